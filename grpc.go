// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// grpcMethod is the single unary method every exchange is carried on.
const grpcMethod = "/remoting.Remoting/Send"

// rawFrame is an opaque payload carried through gRPC unchanged.
type rawFrame struct {
	payload []byte
}

// frameCodec hands payload bytes to gRPC without re-encoding them.
type frameCodec struct{}

func (frameCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("frame codec: cannot marshal %T", v)
	}
	return f.payload, nil
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("frame codec: cannot unmarshal into %T", v)
	}
	f.payload = append([]byte(nil), data...)
	return nil
}

func (frameCodec) Name() string {
	return "remoting-frame"
}

// GRPCProtocol carries each exchange as a unary gRPC call. Connections are
// kept per address and left to gRPC's own idle management.
type GRPCProtocol struct {
	ttl          time.Duration
	maxFrameSize int
	logger       *zap.Logger
	metrics      *protocolMetrics
	sem          *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[string]*grpc.ClientConn
	closed bool
}

// NewGRPCProtocol returns a gRPC based client protocol.
func NewGRPCProtocol(opts ...Option) (*GRPCProtocol, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	logger := o.logger.Named(ProtocolGRPC)
	return &GRPCProtocol{
		ttl:          o.idleTimeToLive,
		maxFrameSize: int(o.maxFrameSize),
		logger:       logger,
		metrics:      newProtocolMetrics(ProtocolGRPC, o.registerer, logger),
		sem:          semaphore.NewWeighted(int64(o.maxConcurrentSends)),
		ctx:          ctx,
		cancel:       cancel,
		conns:        make(map[string]*grpc.ClientConn),
	}, nil
}

func (p *GRPCProtocol) conn(addr string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrProtocolClosed
	}
	if cc, ok := p.conns[addr]; ok {
		p.metrics.reused.Inc()
		return cc, nil
	}
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithIdleTimeout(p.ttl),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	p.conns[addr] = cc
	p.metrics.opened.Inc()
	return cc, nil
}

// Send performs one exchange as a unary call to host:port.
func (p *GRPCProtocol) Send(ctx context.Context, host string, port uint16, payload []byte) ([]byte, error) {
	addr := joinAddr(host, port)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.metrics.failures.Inc()
		return nil, remoteError(addr, err)
	}
	defer p.sem.Release(1)
	p.metrics.inFlight.Inc()
	defer p.metrics.inFlight.Dec()

	cc, err := p.conn(addr)
	if err != nil {
		p.metrics.failures.Inc()
		return nil, remoteError(addr, err)
	}
	var reply rawFrame
	err = cc.Invoke(ctx, grpcMethod, &rawFrame{payload: payload}, &reply,
		grpc.ForceCodec(frameCodec{}),
		grpc.MaxCallRecvMsgSize(p.maxFrameSize),
	)
	if err != nil {
		p.metrics.failures.Inc()
		p.logger.Debug("send failed", zap.String("addr", addr), zap.Error(err))
		return nil, remoteError(addr, err)
	}
	return reply.payload, nil
}

// Shutdown closes every client connection.
func (p *GRPCProtocol) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()

	var errs error
	for addr, cc := range p.conns {
		errs = multierr.Append(errs, cc.Close())
		delete(p.conns, addr)
	}
	if errs != nil {
		return fmt.Errorf("%w: shutdown grpc protocol: %w", ErrRemote, errs)
	}
	return nil
}

var _ ClientProtocol = (*GRPCProtocol)(nil)

// NewGRPCServer returns a gRPC server that feeds every exchange to d.
func NewGRPCServer(d *Dispatcher, opts ...grpc.ServerOption) *grpc.Server {
	logger := d.logger.Named(ProtocolGRPC)
	handler := func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != grpcMethod {
			return status.Errorf(codes.Unimplemented, "unknown method %s", method)
		}
		var req rawFrame
		if err := stream.RecvMsg(&req); err != nil {
			logger.Debug("receive request", zap.Error(err))
			return err
		}
		return stream.SendMsg(&rawFrame{payload: d.Dispatch(stream.Context(), req.payload)})
	}
	opts = append(opts,
		grpc.ForceServerCodec(frameCodec{}),
		grpc.UnknownServiceHandler(handler),
	)
	return grpc.NewServer(opts...)
}
