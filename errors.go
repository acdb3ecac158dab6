// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"errors"
	"fmt"
)

var (
	// ErrRemote marks a call that could not complete end-to-end: transport
	// failure, interruption, shutdown failure or a server-side error reply.
	// The state of the remote object is unknown after such a failure.
	ErrRemote = errors.New("remoting: remote error")

	// ErrMarshal marks a payload that could not be encoded or decoded.
	ErrMarshal = errors.New("remoting: marshal error")

	// ErrInvalidConfiguration is returned by protocol constructors.
	ErrInvalidConfiguration = errors.New("remoting: invalid configuration")

	// ErrInvalidArgument is returned when a parameter cannot be bound to the
	// declared type of an operation.
	ErrInvalidArgument = errors.New("remoting: invalid argument")

	// ErrUnknownOperation is returned when an invoker has no operation with
	// the requested name.
	ErrUnknownOperation = errors.New("remoting: unknown operation")

	// ErrUnknownInvoker is returned when no invoker is registered for the
	// invoker id carried by a reference.
	ErrUnknownInvoker = errors.New("remoting: unknown invoker")

	// ErrProtocolClosed is returned by Send after Shutdown.
	ErrProtocolClosed = errors.New("remoting: protocol shut down")
)

func remoteError(addr string, err error) error {
	if errors.Is(err, ErrRemote) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrRemote, addr, err)
}

func marshalError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMarshal, what, err)
}

// Reply error codes carried on the wire.
const (
	CodeUnknownOperation = "unknown_operation"
	CodeUnknownInvoker   = "unknown_invoker"
	CodeInvalidArgument  = "invalid_argument"
	CodeMarshal          = "marshal"
	CodeApplication      = "application"
)

// ReplyError is a failure reported by the remote side of a call.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets callers match remote failures against the local sentinels.
func (e *ReplyError) Is(target error) bool {
	switch target {
	case ErrUnknownOperation:
		return e.Code == CodeUnknownOperation
	case ErrUnknownInvoker:
		return e.Code == CodeUnknownInvoker
	case ErrInvalidArgument:
		return e.Code == CodeInvalidArgument
	case ErrMarshal:
		return e.Code == CodeMarshal
	}
	return false
}

func replyErrorFor(err error) *ReplyError {
	code := CodeApplication
	switch {
	case errors.Is(err, ErrUnknownOperation):
		code = CodeUnknownOperation
	case errors.Is(err, ErrUnknownInvoker):
		code = CodeUnknownInvoker
	case errors.Is(err, ErrInvalidArgument):
		code = CodeInvalidArgument
	case errors.Is(err, ErrMarshal):
		code = CodeMarshal
	}
	return &ReplyError{Code: code, Message: err.Error()}
}
