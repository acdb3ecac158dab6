// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultJSONRPCPath is where NewJSONRPCProtocol expects the handler.
const DefaultJSONRPCPath = "/remoting/rpc"

const jsonrpcMethod = "Remoting.Send"

// SendArgs carries a request payload in a JSON-RPC call.
type SendArgs struct {
	Payload []byte `json:"payload"`
}

// SendReply carries a reply payload in a JSON-RPC response.
type SendReply struct {
	Payload []byte `json:"payload"`
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// JSONRPCProtocol carries each exchange as a JSON-RPC 2.0 call over HTTP.
// Keep-alive connections are pooled by net/http and expire after the idle
// time to live.
type JSONRPCProtocol struct {
	path      string
	transport *http.Transport
	client    *http.Client
	logger    *zap.Logger
	metrics   *protocolMetrics
	sem       *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewJSONRPCProtocol returns a JSON-RPC over HTTP client protocol.
func NewJSONRPCProtocol(opts ...Option) (*JSONRPCProtocol, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	path := o.path
	if path == "" {
		path = DefaultJSONRPCPath
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.IdleConnTimeout = o.idleTimeToLive
	transport.MaxConnsPerHost = o.maxConcurrentSends
	transport.MaxIdleConnsPerHost = o.maxConcurrentSends

	ctx, cancel := context.WithCancel(context.Background())
	logger := o.logger.Named(ProtocolJSONRPC)
	return &JSONRPCProtocol{
		path:      path,
		transport: transport,
		client:    &http.Client{Transport: transport},
		logger:    logger,
		metrics:   newProtocolMetrics(ProtocolJSONRPC, o.registerer, logger),
		sem:       semaphore.NewWeighted(int64(o.maxConcurrentSends)),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Send posts the payload to http://host:port<path>.
func (p *JSONRPCProtocol) Send(ctx context.Context, host string, port uint16, payload []byte) ([]byte, error) {
	addr := joinAddr(host, port)
	if p.closed.Load() {
		return nil, remoteError(addr, ErrProtocolClosed)
	}
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

	reply, err := p.post(ctx, addr, payload)
	if err != nil {
		p.metrics.failures.Inc()
		p.logger.Debug("send failed", zap.String("addr", addr), zap.Error(err))
		return nil, remoteError(addr, err)
	}
	return reply, nil
}

func (p *JSONRPCProtocol) post(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	body, err := json2.EncodeClientRequest(jsonrpcMethod, &SendArgs{Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode client params: %w", err)
	}
	u := url.URL{Scheme: "http", Host: addr, Path: p.path}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to issue request: %w", err)
	}
	defer CleanlyCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("received status code: %d", resp.StatusCode)
	}
	var reply SendReply
	if err := json2.DecodeClientResponse(resp.Body, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode client response: %w", err)
	}
	return reply.Payload, nil
}

// Shutdown fails pending sends and drops idle keep-alive connections.
func (p *JSONRPCProtocol) Shutdown() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.cancel()
	p.transport.CloseIdleConnections()
	return nil
}

var _ ClientProtocol = (*JSONRPCProtocol)(nil)

type jsonrpcService struct {
	dispatcher *Dispatcher
}

func (s *jsonrpcService) Send(r *http.Request, args *SendArgs, reply *SendReply) error {
	reply.Payload = s.dispatcher.Dispatch(r.Context(), args.Payload)
	return nil
}

// NewJSONRPCHandler serves the dispatcher as the JSON-RPC 2.0 method
// "Remoting.Send".
func NewJSONRPCHandler(d *Dispatcher) (http.Handler, error) {
	s := gorillarpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&jsonrpcService{dispatcher: d}, "Remoting"); err != nil {
		return nil, fmt.Errorf("register jsonrpc service: %w", err)
	}
	return s, nil
}
