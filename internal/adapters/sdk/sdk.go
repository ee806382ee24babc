// Package sdk implements the sdk way: call a Go function with positional and
// keyword arguments, then walk a declarative chain of field, key and method
// accesses over the result.
package sdk

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/DJune12138/Collection3/internal/domain"
)

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	kwargType = reflect.TypeOf(map[string]any(nil))
)

// Callables is a registry of named functions reachable from request
// parameters. Functions may take a leading context.Context, and a trailing
// map[string]any receives kwargs. A trailing error result is returned as the
// call's error.
type Callables struct {
	mu sync.RWMutex
	m  map[string]any
}

func NewCallables() *Callables {
	return &Callables{m: make(map[string]any)}
}

// Register adds fn under name. Registering a non-function or a taken name fails.
func (c *Callables) Register(name string, fn any) error {
	if name == "" {
		return domain.Missing("sdk_register", "name")
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return domain.Errorf(domain.KindTypeMismatch, "sdk_register", "%s is %T, not a function", name, fn)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.m[name]; dup {
		return domain.Errorf(domain.KindValidationFailure, "sdk_register", "%s already registered", name)
	}
	c.m[name] = fn
	return nil
}

// MustRegister is Register for package init code.
func (c *Callables) MustRegister(name string, fn any) {
	if err := c.Register(name, fn); err != nil {
		panic(err)
	}
}

// Names lists registered callables, sorted.
func (c *Callables) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.m))
	for n := range c.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Callables) lookup(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.m[name]
	return fn, ok
}

// Call runs one sdk-way request: params callable, args, kwargs and chain.
// The callable is either a function value or the name of a registered one.
func (c *Callables) Call(ctx context.Context, params map[string]any) (any, error) {
	const op = "sdk"
	p := domain.Params(params)

	fn, err := c.resolve(p)
	if err != nil {
		return nil, err
	}
	args, _, err := p.Slice("args")
	if err != nil {
		return nil, err
	}
	kwargs, _, err := p.Map("kwargs")
	if err != nil {
		return nil, err
	}

	out, err := invoke(ctx, op, reflect.ValueOf(fn), args, kwargs)
	if err != nil {
		return nil, err
	}
	steps, _, err := p.Slice("chain")
	if err != nil {
		return nil, err
	}
	return Chain(ctx, out, steps)
}

func (c *Callables) resolve(p domain.Params) (any, error) {
	v, ok := p["callable"]
	if !ok || v == nil {
		return nil, domain.Missing("sdk", "callable")
	}
	if name, isName := v.(string); isName {
		fn, ok := c.lookup(name)
		if !ok {
			return nil, domain.Unsupported("sdk", "callable", name, c.Names()...)
		}
		return fn, nil
	}
	if reflect.TypeOf(v).Kind() != reflect.Func {
		return nil, domain.Errorf(domain.KindTypeMismatch, "sdk", "callable is %T, not a function", v)
	}
	return v, nil
}

// Chain applies steps to v. A step is a name (field or key access), a map
// {"attr": name} or a map {"method": name, "args": [...]}.
func Chain(ctx context.Context, v any, steps []any) (any, error) {
	for i, raw := range steps {
		var err error
		switch step := raw.(type) {
		case string:
			v, err = attr(v, step)
		case map[string]any:
			if name, ok := step["attr"].(string); ok {
				v, err = attr(v, name)
				break
			}
			name, ok := step["method"].(string)
			if !ok {
				return nil, domain.Errorf(domain.KindUnknownParameter, "sdk_chain", "step %d needs attr or method", i)
			}
			args, _, aerr := domain.Params(step).Slice("args")
			if aerr != nil {
				return nil, aerr
			}
			v, err = method(ctx, v, name, args)
		default:
			return nil, domain.Errorf(domain.KindTypeMismatch, "sdk_chain", "step %d is %T", i, raw)
		}
		if err != nil {
			return nil, fmt.Errorf("chain step %d: %w", i, err)
		}
	}
	return v, nil
}

func attr(v any, name string) (any, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, domain.Errorf(domain.KindTypeMismatch, "sdk_chain", "%s on nil value", name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		e := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !e.IsValid() {
			return nil, domain.Errorf(domain.KindTypeMismatch, "sdk_chain", "key %q not found", name)
		}
		return e.Interface(), nil
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, domain.Errorf(domain.KindTypeMismatch, "sdk_chain", "%s has no exported field %s", rv.Type(), name)
		}
		return f.Interface(), nil
	}
	return nil, domain.Errorf(domain.KindTypeMismatch, "sdk_chain", "cannot access %s on %s", name, rv.Type())
}

func method(ctx context.Context, v any, name string, args []any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, domain.Errorf(domain.KindTypeMismatch, "sdk_chain", "method %s on nil value", name)
	}
	m := rv.MethodByName(name)
	if !m.IsValid() {
		return nil, domain.Errorf(domain.KindTypeMismatch, "sdk_chain", "%s has no method %s", rv.Type(), name)
	}
	return invoke(ctx, "sdk_chain", m, args, nil)
}

func invoke(ctx context.Context, op string, fn reflect.Value, args []any, kwargs map[string]any) (out any, err error) {
	t := fn.Type()
	in := make([]reflect.Value, 0, t.NumIn())
	next := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		in = append(in, reflect.ValueOf(ctx))
		next = 1
	}

	want := t.NumIn() - next
	takesKwargs := want > 0 && t.In(t.NumIn()-1) == kwargType && !t.IsVariadic()
	if takesKwargs {
		want--
	} else if len(kwargs) > 0 {
		return nil, domain.Errorf(domain.KindArityError, op, "%s does not take keyword arguments", t)
	}

	if t.IsVariadic() {
		if len(args) < want-1 {
			return nil, domain.Errorf(domain.KindArityError, op, "%s takes at least %d arguments, got %d", t, want-1, len(args))
		}
	} else if len(args) != want {
		return nil, domain.Errorf(domain.KindArityError, op, "%s takes %d arguments, got %d", t, want, len(args))
	}

	for i, a := range args {
		pt := paramType(t, next+i)
		av, err := convert(a, pt)
		if err != nil {
			return nil, domain.Errorf(domain.KindTypeMismatch, op, "argument %d: %v", i, err)
		}
		in = append(in, av)
	}
	if takesKwargs {
		if kwargs == nil {
			kwargs = map[string]any{}
		}
		in = append(in, reflect.ValueOf(kwargs))
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, domain.Errorf(domain.KindUnclassified, op, "panic: %v", r)
		}
	}()
	return results(fn.Call(in))
}

func paramType(t reflect.Type, i int) reflect.Type {
	if t.IsVariadic() && i >= t.NumIn()-1 {
		return t.In(t.NumIn() - 1).Elem()
	}
	return t.In(i)
}

func results(outs []reflect.Value) (any, error) {
	if n := len(outs); n > 0 && outs[n-1].Type() == errorType {
		if e := outs[n-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
		outs = outs[:n-1]
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0].Interface(), nil
	default:
		vals := make([]any, len(outs))
		for i, o := range outs {
			vals[i] = o.Interface()
		}
		return vals, nil
	}
}

// convert adapts loosely typed parameter values (YAML numbers, []any lists)
// to the function's parameter type.
func convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	switch {
	case isNumber(rv.Kind()) && isNumber(t.Kind()):
		return rv.Convert(t), nil
	case rv.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	case rv.Kind() == reflect.Slice && t.Kind() == reflect.Slice:
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := convert(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case rv.Kind() == reflect.Map && t.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := convert(iter.Key().Interface(), t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			e, err := convert(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%v]: %w", iter.Key(), err)
			}
			out.SetMapIndex(k, e)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%T is not assignable to %s", v, t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
