// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

// InvocationData describes one call: which operation to run on which
// object, with positional arguments. Arguments are untyped here; the
// invoker binds them to the operation's declared parameter types.
type InvocationData struct {
	AOR           AbsoluteObjectReference `json:"aor"`
	OperationName string                  `json:"operation"`
	ActualParams  []any                   `json:"params"`
}

// Invocation is the self-contained, serializable form of a remote call.
// Context is an open side channel with no identity semantics.
type Invocation struct {
	Data    InvocationData `json:"data"`
	Context map[string]any `json:"context,omitempty"`
}

// NewInvocation returns an invocation with an empty context.
func NewInvocation(aor AbsoluteObjectReference, operation string, params ...any) *Invocation {
	if params == nil {
		params = []any{}
	}
	return &Invocation{
		Data: InvocationData{
			AOR:           aor,
			OperationName: operation,
			ActualParams:  params,
		},
		Context: make(map[string]any),
	}
}
