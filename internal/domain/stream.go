package domain

import "iter"

// Output is what plugin callbacks yield: exactly one of Request or Item is set.
type Output struct {
	Request *Request
	Item    *Item
}

// Valid reports whether exactly one side of the union is populated.
func (o Output) Valid() bool {
	return (o.Request == nil) != (o.Item == nil)
}

// Yield wraps a Request.
func Yield(r *Request) Output { return Output{Request: r} }

// Emit wraps an Item.
func Emit(i *Item) Output { return Output{Item: i} }

// Stream is the lazy sequence every plugin callback must return.
type Stream = iter.Seq[Output]

// Empty returns a Stream that yields nothing.
func Empty() Stream {
	return func(func(Output) bool) {}
}

// Of returns a Stream over a fixed set of outputs.
func Of(outs ...Output) Stream {
	return func(yield func(Output) bool) {
		for _, o := range outs {
			if !yield(o) {
				return
			}
		}
	}
}

// Requests returns a Stream yielding each request in order.
func Requests(reqs ...*Request) Stream {
	return func(yield func(Output) bool) {
		for _, r := range reqs {
			if !yield(Yield(r)) {
				return
			}
		}
	}
}

// Items returns a Stream yielding each item in order.
func Items(items ...*Item) Stream {
	return func(yield func(Output) bool) {
		for _, it := range items {
			if !yield(Emit(it)) {
				return
			}
		}
	}
}
