package plugin

import (
	"context"
	"fmt"
	"reflect"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

var (
	ctxType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	streamType   = reflect.TypeOf(domain.Stream(nil))
	responseType = reflect.TypeOf((*domain.Response)(nil))
	itemType     = reflect.TypeOf((*domain.Item)(nil))
)

// Resolve looks up a callback by name.
func Resolve(cbs ports.Callbacks, name string) (any, error) {
	fn, ok := cbs[name]
	if !ok || fn == nil {
		return nil, domain.Errorf(domain.KindUnknownCallback, "resolve", "%q", name)
	}
	return fn, nil
}

// InvokeResponse calls a builder callback with resp and returns its stream.
func InvokeResponse(ctx context.Context, fn any, resp *domain.Response) (domain.Stream, error) {
	var call func() domain.Stream
	switch f := fn.(type) {
	case func(context.Context, *domain.Response) domain.Stream:
		call = func() domain.Stream { return f(ctx, resp) }
	case func(*domain.Response) domain.Stream:
		call = func() domain.Stream { return f(resp) }
	default:
		return nil, classify("invoke_response", fn, responseType)
	}
	return guard("invoke_response", call)
}

// InvokeItem calls a pipeline callback with item and returns its stream.
func InvokeItem(ctx context.Context, fn any, item *domain.Item) (domain.Stream, error) {
	var call func() domain.Stream
	switch f := fn.(type) {
	case func(context.Context, *domain.Item) domain.Stream:
		call = func() domain.Stream { return f(ctx, item) }
	case func(*domain.Item) domain.Stream:
		call = func() domain.Stream { return f(item) }
	default:
		return nil, classify("invoke_item", fn, itemType)
	}
	return guard("invoke_item", call)
}

// InvokeSeed calls a phase hook. A nil hook is reported as not implemented.
func InvokeSeed(ctx context.Context, seed ports.SeedFunc) (domain.Stream, error) {
	if seed == nil {
		return nil, domain.Errorf(domain.KindUnknownCallback, "invoke_seed", "phase hook not implemented")
	}
	return guard("invoke_seed", func() domain.Stream { return seed(ctx) })
}

func guard(op string, call func() domain.Stream) (s domain.Stream, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, domain.Errorf(domain.KindUnclassified, op, "panic: %v", r)
		}
	}()
	s = call()
	if s == nil {
		return nil, domain.Errorf(domain.KindContractViolation, op, "callback returned a nil stream")
	}
	return s, nil
}

// classify explains why fn is not an accepted callback shape. Parameters are
// checked first: a function that cannot be called with arg is an ArityError,
// one that can but returns something else breaks the stream contract.
func classify(op string, fn any, arg reflect.Type) error {
	if fn == nil {
		return domain.Errorf(domain.KindArityError, op, "callback is nil")
	}
	t := reflect.TypeOf(fn)
	if t.Kind() != reflect.Func {
		return domain.Errorf(domain.KindArityError, op, "callback is %T, not a function", fn)
	}
	if !acceptsArg(t, arg) {
		return domain.Errorf(domain.KindArityError, op, "callback %s cannot take (%s)", t, arg)
	}
	if t.NumOut() != 1 || t.Out(0) != streamType {
		return domain.Errorf(domain.KindContractViolation, op, "callback %s must return a lazy stream", t)
	}
	return domain.Errorf(domain.KindArityError, op, "callback %s has an unsupported signature", t)
}

func acceptsArg(t reflect.Type, arg reflect.Type) bool {
	if t.IsVariadic() {
		return false
	}
	switch t.NumIn() {
	case 1:
		return t.In(0) == arg
	case 2:
		return t.In(0) == ctxType && t.In(1) == arg
	default:
		return false
	}
}

// Drain iterates s and hands each valid output to fn. Invalid outputs are
// reported through onErr as TypeMismatch and skipped; a panic inside the
// stream stops the iteration and is returned as Unclassified.
func Drain(op string, s domain.Stream, fn func(domain.Output), onErr func(error)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Errorf(domain.KindUnclassified, op, "panic in stream: %v", r)
		}
	}()
	for out := range s {
		if !out.Valid() {
			onErr(domain.Errorf(domain.KindTypeMismatch, op, "yielded %s", describe(out)))
			continue
		}
		fn(out)
	}
	return nil
}

func describe(o domain.Output) string {
	if o.Request == nil && o.Item == nil {
		return "an empty output"
	}
	return fmt.Sprintf("both a request and an item (%s)", o.Request.Way)
}
