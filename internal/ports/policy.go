package ports

import "time"

// Policy bounds the engine's concurrency and lifecycle.
type Policy struct {
	MaxAsync              int
	ConcurrencyMultiplier int
	PollInterval          time.Duration
	MaxPhases             int
}

// Workers returns min(MaxAsync, businesses*ConcurrencyMultiplier), at least 1.
func (p Policy) Workers(businesses int) int {
	n := businesses * p.ConcurrencyMultiplier
	if p.MaxAsync > 0 && n > p.MaxAsync {
		n = p.MaxAsync
	}
	if n < 1 {
		n = 1
	}
	return n
}
