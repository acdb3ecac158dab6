// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Protocol defaults.
const (
	DefaultMaxConcurrentSends = 1000
	DefaultIdleTimeToLive     = 10 * time.Second
	DefaultDialTimeout        = 5 * time.Second
)

// Option configures a client protocol.
type Option func(*options)

type options struct {
	maxConcurrentSends int
	idleTimeToLive     time.Duration
	dialTimeout        time.Duration
	maxFrameSize       uint32
	path               string
	logger             *zap.Logger
	clock              clock.Clock
	registerer         prometheus.Registerer
}

func newOptions(opts []Option) *options {
	o := &options{
		maxConcurrentSends: DefaultMaxConcurrentSends,
		idleTimeToLive:     DefaultIdleTimeToLive,
		dialTimeout:        DefaultDialTimeout,
		maxFrameSize:       DefaultMaxFrameSize,
		logger:             zap.NewNop(),
		clock:              clock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) validate() error {
	if o.maxConcurrentSends <= 0 {
		return fmt.Errorf("%w: max concurrent sends must be positive, got %d",
			ErrInvalidConfiguration, o.maxConcurrentSends)
	}
	if o.idleTimeToLive < 0 {
		return fmt.Errorf("%w: idle time to live cannot be negative, got %s",
			ErrInvalidConfiguration, o.idleTimeToLive)
	}
	if o.dialTimeout < 0 {
		return fmt.Errorf("%w: dial timeout cannot be negative, got %s",
			ErrInvalidConfiguration, o.dialTimeout)
	}
	if o.maxFrameSize == 0 {
		return fmt.Errorf("%w: max frame size must be positive", ErrInvalidConfiguration)
	}
	if o.logger == nil || o.clock == nil {
		return fmt.Errorf("%w: logger and clock are required", ErrInvalidConfiguration)
	}
	return nil
}

// WithMaxConcurrentSends bounds the number of exchanges in flight at once.
// Callers beyond the bound block in Send until a slot frees.
func WithMaxConcurrentSends(n int) Option {
	return func(o *options) { o.maxConcurrentSends = n }
}

// WithIdleTimeToLive sets how long an idle pooled connection is kept.
func WithIdleTimeToLive(d time.Duration) Option {
	return func(o *options) { o.idleTimeToLive = d }
}

// WithDialTimeout bounds connection establishment. Zero means no limit
// beyond the caller's context.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithMaxFrameSize bounds the reply size accepted from a peer.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithPath sets the URL path used by the HTTP based protocols.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRegisterer registers the protocol's metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// ServerOption configures servers and dispatchers
type ServerOption func(*serverOptions)

type serverOptions struct {
	marshaller   Marshaller
	logger       *zap.Logger
	registerer   prometheus.Registerer
	maxFrameSize uint32
}

func newServerOptions(opts []ServerOption) *serverOptions {
	o := &serverOptions{
		marshaller:   defaultMarshaller,
		logger:       zap.NewNop(),
		maxFrameSize: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithServerMarshaller sets a custom marshaller for the dispatcher
func WithServerMarshaller(m Marshaller) ServerOption {
	return func(o *serverOptions) { o.marshaller = m }
}

// WithServerLogger sets the server logger
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithServerRegisterer registers the dispatcher's metrics.
func WithServerRegisterer(r prometheus.Registerer) ServerOption {
	return func(o *serverOptions) { o.registerer = r }
}

// WithServerMaxFrameSize bounds the request size accepted by a Server.
func WithServerMaxFrameSize(n uint32) ServerOption {
	return func(o *serverOptions) { o.maxFrameSize = n }
}
