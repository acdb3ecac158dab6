// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"fmt"
	"sort"
	"sync"
)

// Protocol names
const (
	ProtocolTCP       = "tcp"     // Length-prefixed frames over pooled TCP, default
	ProtocolWebSocket = "ws"      // One binary message per frame over pooled websockets
	ProtocolGRPC      = "grpc"    // Unary gRPC call per exchange
	ProtocolJSONRPC   = "jsonrpc" // JSON-RPC 2.0 over HTTP
)

// DefaultProtocol is the protocol used by DefaultHandler.
const DefaultProtocol = ProtocolTCP

// ProtocolFactory builds a client protocol from options.
type ProtocolFactory func(opts ...Option) (ClientProtocol, error)

var (
	protocolsMu sync.RWMutex
	protocols   = map[string]ProtocolFactory{
		ProtocolTCP: func(opts ...Option) (ClientProtocol, error) {
			return NewTCPProtocol(opts...)
		},
		ProtocolWebSocket: func(opts ...Option) (ClientProtocol, error) {
			return NewWebSocketProtocol(opts...)
		},
		ProtocolGRPC: func(opts ...Option) (ClientProtocol, error) {
			return NewGRPCProtocol(opts...)
		},
		ProtocolJSONRPC: func(opts ...Option) (ClientProtocol, error) {
			return NewJSONRPCProtocol(opts...)
		},
	}
)

// RegisterProtocol registers a protocol factory under name, replacing any
// previous registration.
func RegisterProtocol(name string, factory ProtocolFactory) {
	protocolsMu.Lock()
	defer protocolsMu.Unlock()
	protocols[name] = factory
}

// NewProtocol builds the protocol registered under name.
func NewProtocol(name string, opts ...Option) (ClientProtocol, error) {
	protocolsMu.RLock()
	factory, ok := protocols[name]
	protocolsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown protocol: %s", name)
	}
	return factory(opts...)
}

// AvailableProtocols returns the registered protocol names, sorted.
func AvailableProtocols() []string {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()
	result := make([]string, 0, len(protocols))
	for name := range protocols {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasProtocol checks if a protocol is registered
func HasProtocol(name string) bool {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()
	_, ok := protocols[name]
	return ok
}
