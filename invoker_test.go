// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMath struct {
	piCalls  []float32
	fibCalls [][2]int
}

func (m *recordingMath) pi(_ context.Context, precision float32) (float32, error) {
	m.piCalls = append(m.piCalls, precision)
	return 3.14, nil
}

func (m *recordingMath) fibonacci(_ context.Context, start, i int) (int, error) {
	m.fibCalls = append(m.fibCalls, [2]int{start, i})
	return 55, nil
}

func newMathInvoker(t *testing.T, m *recordingMath) *Invoker {
	t.Helper()
	inv := NewInvoker(7)
	require.NoError(t, inv.Register("pi", Func1(m.pi)))
	require.NoError(t, inv.Register("fibonacci", Func2(m.fibonacci)))
	return inv
}

func TestInvokerDispatch(t *testing.T) {
	m := &recordingMath{}
	inv := newMathInvoker(t, m)
	aor := NewReference(NewObjectID(), "localhost", 9000, inv.ID())

	got, err := inv.Invoke(context.Background(), NewInvocation(aor, "fibonacci", 0, 10))
	require.NoError(t, err)
	assert.Equal(t, 55, got)
	assert.Equal(t, [][2]int{{0, 10}}, m.fibCalls)
	assert.Empty(t, m.piCalls)

	got, err = inv.Invoke(context.Background(), NewInvocation(aor, "pi", float32(0.01)))
	require.NoError(t, err)
	assert.Equal(t, float32(3.14), got)
	assert.Equal(t, []float32{0.01}, m.piCalls)
}

func TestInvokerUnknownOperation(t *testing.T) {
	m := &recordingMath{}
	inv := newMathInvoker(t, m)
	aor := NewReference(NewObjectID(), "localhost", 9000, inv.ID())

	got, err := inv.Invoke(context.Background(), NewInvocation(aor, "unknown", 1))
	require.ErrorIs(t, err, ErrUnknownOperation)
	assert.Nil(t, got)
	assert.Empty(t, m.piCalls)
	assert.Empty(t, m.fibCalls)
}

func TestInvokerInvalidArgument(t *testing.T) {
	m := &recordingMath{}
	inv := newMathInvoker(t, m)
	aor := NewReference(NewObjectID(), "localhost", 9000, inv.ID())

	tests := []struct {
		name   string
		op     string
		params []any
	}{
		{name: "string for int", op: "fibonacci", params: []any{"zero", 10}},
		{name: "fractional for int", op: "fibonacci", params: []any{json.Number("1.5"), 10}},
		{name: "too few", op: "fibonacci", params: []any{0}},
		{name: "too many", op: "pi", params: []any{float32(1), float32(2)}},
		{name: "nil", op: "pi", params: []any{nil}},
		{name: "bool for float", op: "pi", params: []any{true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inv.Invoke(context.Background(), NewInvocation(aor, tt.op, tt.params...))
			require.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Empty(t, m.piCalls)
	assert.Empty(t, m.fibCalls)
}

func TestInvokerRegister(t *testing.T) {
	inv := NewInvoker(1)
	op := Func0(func(context.Context) (string, error) { return "pong", nil })
	require.NoError(t, inv.Register("ping", op))
	require.Error(t, inv.Register("ping", op))
	require.Error(t, inv.Register("", op))
	require.Error(t, inv.Register("nil", nil))
	assert.Equal(t, []string{"ping"}, inv.Operations())
}

func TestInvokerPropagatesOperationError(t *testing.T) {
	boom := errors.New("boom")
	inv := NewInvoker(1)
	require.NoError(t, inv.Register("fail", Func0(func(context.Context) (int, error) { return 0, boom })))

	_, err := inv.Invoke(context.Background(), NewInvocation(AbsoluteObjectReference{}, "fail"))
	require.ErrorIs(t, err, boom)
}

func TestFunc3(t *testing.T) {
	op := Func3(func(_ context.Context, a int, b string, c bool) (string, error) {
		if c {
			return b, nil
		}
		return "", nil
	})
	got, err := op(context.Background(), []any{json.Number("1"), "x", true})
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestArgConversions(t *testing.T) {
	params := []any{
		json.Number("42"),
		json.Number("3.5"),
		float64(7),
		float64(7.25),
		json.Number("300"),
		json.Number("-1"),
		"text",
	}

	i, err := Arg[int](params, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, i)

	f, err := Arg[float32](params, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f)

	i64, err := Arg[int64](params, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), i64)

	_, err = Arg[int](params, 3)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Arg[int8](params, 4)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Arg[uint](params, 5)
	require.ErrorIs(t, err, ErrInvalidArgument)

	s, err := Arg[string](params, 6)
	require.NoError(t, err)
	assert.Equal(t, "text", s)

	v, err := Arg[any](params, 6)
	require.NoError(t, err)
	assert.Equal(t, "text", v)

	_, err = Arg[int](params, 7)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestArgNull(t *testing.T) {
	params := []any{nil}

	v, err := Arg[any](params, 0)
	require.NoError(t, err)
	assert.Nil(t, v)

	p, err := Arg[*int](params, 0)
	require.NoError(t, err)
	assert.Nil(t, p)

	s, err := Arg[[]string](params, 0)
	require.NoError(t, err)
	assert.Nil(t, s)

	m, err := Arg[map[string]any](params, 0)
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = Arg[int](params, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Arg[string](params, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
