package ports

// Pipeline consumes items; its callbacks may yield follow-up requests.
type Pipeline interface {
	Callbacks() Callbacks
}
