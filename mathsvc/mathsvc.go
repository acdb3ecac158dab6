// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mathsvc is a remote interface providing mathematical methods,
// with its client proxy and server-side invoker.
package mathsvc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/luxfi/remoting"
)

// Operation names.
const (
	OpPi        = "pi"
	OpFibonacci = "fibonacci"
)

// Math provides mathematical methods.
type Math interface {
	// Pi returns the value of pi to the given precision.
	Pi(ctx context.Context, precision float32) (float32, error)

	// Fibonacci returns the i-th element of the Fibonacci sequence that
	// starts with start.
	Fibonacci(ctx context.Context, start, i int) (int, error)
}

// Client is the proxy for a remote Math object.
type Client struct {
	aor remoting.AbsoluteObjectReference
	r   *remoting.Requestor
}

// NewClient returns a proxy calling the object identified by aor.
func NewClient(aor remoting.AbsoluteObjectReference, r *remoting.Requestor) *Client {
	return &Client{aor: aor, r: r}
}

func (c *Client) Pi(ctx context.Context, precision float32) (float32, error) {
	return remoting.Call[float32](ctx, c.r, c.aor, OpPi, precision)
}

func (c *Client) Fibonacci(ctx context.Context, start, i int) (int, error) {
	return remoting.Call[int](ctx, c.r, c.aor, OpFibonacci, start, i)
}

// NewInvoker exposes impl under the given invoker id.
func NewInvoker(id int32, impl Math) *remoting.Invoker {
	inv := remoting.NewInvoker(id)
	// Names are constant and distinct, registration cannot fail.
	_ = inv.Register(OpPi, remoting.Func1(impl.Pi))
	_ = inv.Register(OpFibonacci, remoting.Func2(impl.Fibonacci))
	return inv
}

// ErrOutOfRange is returned for arguments the calculator cannot handle.
var ErrOutOfRange = errors.New("mathsvc: argument out of range")

// maxPiTerms bounds the series so tiny precisions still terminate.
const maxPiTerms = 10_000_000

// Calculator is the reference Math implementation.
type Calculator struct{}

// Pi sums the Leibniz series until the next term is smaller than precision.
func (Calculator) Pi(ctx context.Context, precision float32) (float32, error) {
	if precision <= 0 || math.IsNaN(float64(precision)) {
		return 0, fmt.Errorf("%w: precision %v", ErrOutOfRange, precision)
	}
	var sum float64
	sign := 1.0
	for k := 0; k < maxPiTerms; k++ {
		term := 4 / float64(2*k+1)
		if term < float64(precision) {
			break
		}
		sum += sign * term
		sign = -sign
		if k%4096 == 0 && ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
	return float32(sum), nil
}

// Fibonacci seeds the sequence with start and 1: F(0) = start, F(1) = 1,
// F(n) = F(n-1) + F(n-2).
func (Calculator) Fibonacci(_ context.Context, start, i int) (int, error) {
	if start < 0 || i < 0 {
		return 0, fmt.Errorf("%w: start %d, index %d", ErrOutOfRange, start, i)
	}
	if i == 0 {
		return start, nil
	}
	a, b := start, 1
	for n := 1; n < i; n++ {
		if b > math.MaxInt-a {
			return 0, fmt.Errorf("%w: overflow at index %d", ErrOutOfRange, n+1)
		}
		a, b = b, a+b
	}
	return b, nil
}

var _ Math = (*Client)(nil)
var _ Math = Calculator{}
