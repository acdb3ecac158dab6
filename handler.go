// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ClientRequestHandler owns the active client protocol. Sends only load
// the current protocol; swaps are serialized and shut the old protocol
// down before the new one is installed.
type ClientRequestHandler struct {
	mu      sync.Mutex // serializes SetProtocol
	current atomic.Pointer[protocolRef]
}

type protocolRef struct {
	ClientProtocol
}

// NewClientRequestHandler returns a handler using p.
func NewClientRequestHandler(p ClientProtocol) *ClientRequestHandler {
	h := &ClientRequestHandler{}
	h.current.Store(&protocolRef{p})
	return h
}

var defaultHandler = sync.OnceValue(func() *ClientRequestHandler {
	p, err := NewProtocol(DefaultProtocol)
	if err != nil {
		// Defaults always validate.
		panic(fmt.Sprintf("remoting: default protocol: %v", err))
	}
	return NewClientRequestHandler(p)
})

// DefaultHandler returns the process-wide handler, creating it with a
// default TCP protocol on first use.
func DefaultHandler() *ClientRequestHandler {
	return defaultHandler()
}

// Send delegates to the active protocol.
func (h *ClientRequestHandler) Send(ctx context.Context, host string, port uint16, payload []byte) ([]byte, error) {
	return h.current.Load().Send(ctx, host, port, payload)
}

// Protocol returns the active protocol.
func (h *ClientRequestHandler) Protocol() ClientProtocol {
	return h.current.Load().ClientProtocol
}

// SetProtocol shuts down the active protocol and installs p. The new
// protocol is installed even when shutdown fails; the failure is returned.
// A nil p is rejected and the active protocol is left untouched.
func (h *ClientRequestHandler) SetProtocol(p ClientProtocol) error {
	if p == nil {
		return fmt.Errorf("%w: nil protocol", ErrInvalidConfiguration)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if old := h.current.Load(); old != nil && old.ClientProtocol != nil {
		if shutdownErr := old.Shutdown(); shutdownErr != nil {
			err = remoteError("shutdown", shutdownErr)
		}
	}
	h.current.Store(&protocolRef{p})
	return err
}

var _ Sender = (*ClientRequestHandler)(nil)
