// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
)

// Operation decodes positional parameters into its declared types and runs
// the concrete method.
type Operation func(ctx context.Context, params []any) (any, error)

// Invoker routes invocations to the operations of one remote interface.
// Its id selects it among the invokers of a process.
type Invoker struct {
	id int32

	mu  sync.RWMutex
	ops map[string]Operation
}

// NewInvoker returns an invoker with no operations.
func NewInvoker(id int32) *Invoker {
	return &Invoker{id: id, ops: make(map[string]Operation)}
}

// ID returns the invoker id matched against AbsoluteObjectReference.InvokerID.
func (i *Invoker) ID() int32 {
	return i.id
}

// Register adds an operation. Names are unique per invoker.
func (i *Invoker) Register(name string, op Operation) error {
	if name == "" || op == nil {
		return fmt.Errorf("register operation %q: name and operation are required", name)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.ops[name]; ok {
		return fmt.Errorf("register operation %q: already registered", name)
	}
	i.ops[name] = op
	return nil
}

// Operations returns the registered operation names, sorted.
func (i *Invoker) Operations() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := make([]string, 0, len(i.ops))
	for name := range i.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the operation named by the invocation. Unknown names fail
// with ErrUnknownOperation and no operation is called.
func (i *Invoker) Invoke(ctx context.Context, inv *Invocation) (any, error) {
	name := inv.Data.OperationName
	i.mu.RLock()
	op, ok := i.ops[name]
	i.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q on invoker %d", ErrUnknownOperation, name, i.id)
	}
	return op(ctx, inv.Data.ActualParams)
}

func checkArity(params []any, n int) error {
	if len(params) != n {
		return fmt.Errorf("%w: want %d parameters, got %d", ErrInvalidArgument, n, len(params))
	}
	return nil
}

// Func0 adapts a method without parameters.
func Func0[R any](fn func(context.Context) (R, error)) Operation {
	return func(ctx context.Context, params []any) (any, error) {
		if err := checkArity(params, 0); err != nil {
			return nil, err
		}
		return fn(ctx)
	}
}

// Func1 adapts a method with one parameter.
func Func1[A, R any](fn func(context.Context, A) (R, error)) Operation {
	return func(ctx context.Context, params []any) (any, error) {
		if err := checkArity(params, 1); err != nil {
			return nil, err
		}
		a, err := Arg[A](params, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// Func2 adapts a method with two parameters.
func Func2[A, B, R any](fn func(context.Context, A, B) (R, error)) Operation {
	return func(ctx context.Context, params []any) (any, error) {
		if err := checkArity(params, 2); err != nil {
			return nil, err
		}
		a, err := Arg[A](params, 0)
		if err != nil {
			return nil, err
		}
		b, err := Arg[B](params, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}
}

// Func3 adapts a method with three parameters.
func Func3[A, B, C, R any](fn func(context.Context, A, B, C) (R, error)) Operation {
	return func(ctx context.Context, params []any) (any, error) {
		if err := checkArity(params, 3); err != nil {
			return nil, err
		}
		a, err := Arg[A](params, 0)
		if err != nil {
			return nil, err
		}
		b, err := Arg[B](params, 1)
		if err != nil {
			return nil, err
		}
		c, err := Arg[C](params, 2)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c)
	}
}

// Arg binds params[i] to T. Values already of type T are returned as is,
// and a null binds to the zero value of a nillable T.
// Wire numbers (json.Number, float64) convert to any numeric T that can
// represent them exactly; everything else fails with ErrInvalidArgument.
func Arg[T any](params []any, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(params) {
		return zero, fmt.Errorf("%w: missing parameter %d", ErrInvalidArgument, i)
	}
	v := params[i]
	if t, ok := v.(T); ok {
		return t, nil
	}

	out := reflect.ValueOf(&zero).Elem()
	if v == nil {
		switch out.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			return zero, nil
		}
	}
	if !convertNumber(v, out) {
		return zero, fmt.Errorf("%w: parameter %d: want %s, got %T",
			ErrInvalidArgument, i, out.Type(), v)
	}
	return zero, nil
}

func convertNumber(v any, out reflect.Value) bool {
	var (
		f       float64
		num     json.Number
		hasNum  bool
		isFloat bool
	)
	switch n := v.(type) {
	case json.Number:
		num, hasNum = n, true
	case float64:
		f, isFloat = n, true
	default:
		return false
	}

	switch out.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		switch {
		case hasNum:
			parsed, err := num.Int64()
			if err != nil {
				return false
			}
			i = parsed
		case isFloat:
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return false
			}
			i = int64(f)
		}
		if out.OverflowInt(i) {
			return false
		}
		out.SetInt(i)
		return true

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		switch {
		case hasNum:
			parsed, err := num.Int64()
			if err != nil || parsed < 0 {
				return false
			}
			u = uint64(parsed)
		case isFloat:
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return false
			}
			u = uint64(f)
		}
		if out.OverflowUint(u) {
			return false
		}
		out.SetUint(u)
		return true

	case reflect.Float32, reflect.Float64:
		if hasNum {
			parsed, err := num.Float64()
			if err != nil {
				return false
			}
			f = parsed
		}
		if out.OverflowFloat(f) {
			return false
		}
		out.SetFloat(f)
		return true
	}
	return false
}
