// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package remoting is a distributed-object middleware runtime. Client code
// holds an AbsoluteObjectReference to an object hosted by another process
// and calls its operations through a Requestor; the runtime marshals the
// call into an Invocation, ships it over a pluggable ClientProtocol, and
// unmarshals the reply. On the server, a Dispatcher routes each invocation
// to the Invoker named by the reference.
//
// # Protocols
//
// TCP is the default protocol. Every message is framed as
//
//	[4-byte big-endian length][payload]
//
// Alternatives share the same ClientProtocol contract and are selected by
// name or constructed directly:
//
//	tcp      NewTCPProtocol        pooled TCP connections (default)
//	ws       NewWebSocketProtocol  pooled websocket sessions
//	grpc     NewGRPCProtocol       one unary gRPC call per exchange
//	jsonrpc  NewJSONRPCProtocol    JSON-RPC 2.0 over HTTP
//
// The pooled protocols bound the number of exchanges in flight
// (WithMaxConcurrentSends). Callers beyond the bound block in Send until a
// slot frees. Idle connections are cached per "host:port" and closed by a
// background reaper once they have been idle longer than
// WithIdleTimeToLive.
//
// # Usage
//
// Client usage:
//
//	proto, err := remoting.NewTCPProtocol(remoting.WithMaxConcurrentSends(64))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	handler := remoting.NewClientRequestHandler(proto)
//	defer handler.Protocol().Shutdown()
//
//	r := remoting.NewRequestor(handler, nil)
//	aor := remoting.NewReference(id, "10.0.0.7", 9000, 1)
//	n, err := remoting.Call[int](ctx, r, aor, "fibonacci", 0, 10)
//
// Server usage:
//
//	inv := remoting.NewInvoker(1)
//	inv.Register("fibonacci", remoting.Func2(fib))
//
//	d := remoting.NewDispatcher()
//	d.Register(inv)
//
//	server, err := remoting.Listen(":9000", d)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	server.Serve(ctx)
//
// # Errors
//
// Failures wrap one of the package sentinels and are matched with
// errors.Is: ErrRemote for anything that prevented a call from completing,
// ErrMarshal for payload encoding, ErrInvalidConfiguration for protocol
// options, and ErrUnknownOperation, ErrUnknownInvoker or ErrInvalidArgument
// for dispatch failures, which are also reported to the client inside the
// ErrRemote it receives.
package remoting
