// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"fmt"
)

// Requestor turns a method call on a remote object into one exchange:
// build the invocation, marshal it, send it, unmarshal the reply.
// It keeps no per-call state and is safe for concurrent use.
type Requestor struct {
	marshaller Marshaller
	sender     Sender
}

// NewRequestor returns a requestor sending through sender. A nil
// marshaller selects JSONMarshaller.
func NewRequestor(sender Sender, marshaller Marshaller) *Requestor {
	if marshaller == nil {
		marshaller = defaultMarshaller
	}
	return &Requestor{marshaller: marshaller, sender: sender}
}

// NewDefaultRequestor returns a requestor using DefaultHandler.
func NewDefaultRequestor() *Requestor {
	return NewRequestor(DefaultHandler(), nil)
}

// Request calls operation on the object identified by aor and returns the
// dynamically typed result.
func (r *Requestor) Request(ctx context.Context, aor AbsoluteObjectReference, operation string, params ...any) (any, error) {
	var result any
	if err := r.RequestInto(ctx, aor, operation, &result, params...); err != nil {
		return nil, err
	}
	return result, nil
}

// RequestInto is like Request but decodes the result into reply, which
// must be a non-nil pointer. A nil reply discards the result.
func (r *Requestor) RequestInto(ctx context.Context, aor AbsoluteObjectReference, operation string, reply any, params ...any) error {
	payload, err := r.marshaller.Marshal(NewInvocation(aor, operation, params...))
	if err != nil {
		return err
	}

	resp, err := r.sender.Send(ctx, aor.Host, aor.Port, payload)
	if err != nil {
		return remoteError(aor.Addr(), err)
	}

	env := Reply{Result: reply}
	if err := r.marshaller.Unmarshal(resp, &env); err != nil {
		return err
	}
	if env.Error != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrRemote, aor, operation, env.Error)
	}
	return nil
}

// Call performs a request and decodes the result as T.
func Call[T any](ctx context.Context, r *Requestor, aor AbsoluteObjectReference, operation string, params ...any) (T, error) {
	var result T
	err := r.RequestInto(ctx, aor, operation, &result, params...)
	return result, err
}
