// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Sender ships a request payload to host:port and returns the reply payload.
type Sender interface {
	Send(ctx context.Context, host string, port uint16, payload []byte) ([]byte, error)
}

// ClientProtocol is a pluggable transport strategy. Send must be safe for
// concurrent use; Shutdown releases every resource the protocol holds.
type ClientProtocol interface {
	Sender
	Shutdown() error
}

// DialFunc establishes a new link to addr.
type DialFunc func(ctx context.Context, addr string) (Link, error)

// PooledProtocol is the default client protocol. It bounds the number of
// exchanges in flight, caches idle connections per address, and reaps
// connections that stay idle longer than the configured time to live.
type PooledProtocol struct {
	name    string
	dial    DialFunc
	ttl     time.Duration
	clock   clock.Clock
	logger  *zap.Logger
	metrics *protocolMetrics

	sem *semaphore.Weighted

	cache    sync.Map // "host:port" -> *idleQueue
	createMu sync.Mutex

	evictions *evictionQueue

	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	shutdown sync.Once
	wg       sync.WaitGroup
	err      error
}

// NewTCPProtocol returns a pooled protocol that exchanges length-prefixed
// frames over TCP.
func NewTCPProtocol(opts ...Option) (*PooledProtocol, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: o.dialTimeout}
	dial := func(ctx context.Context, addr string) (Link, error) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("tcp dial: %w", err)
		}
		return newFrameLink(conn, o.maxFrameSize), nil
	}
	return newPooledProtocol(ProtocolTCP, dial, o), nil
}

func newPooledProtocol(name string, dial DialFunc, o *options) *PooledProtocol {
	ctx, cancel := context.WithCancel(context.Background())
	logger := o.logger.Named(name)
	p := &PooledProtocol{
		name:      name,
		dial:      dial,
		ttl:       o.idleTimeToLive,
		clock:     o.clock,
		logger:    logger,
		metrics:   newProtocolMetrics(name, o.registerer, logger),
		sem:       semaphore.NewWeighted(int64(o.maxConcurrentSends)),
		evictions: newEvictionQueue(),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.wg.Add(1)
	go p.reap()
	return p
}

// Send performs one framed exchange with host:port. It blocks while the
// protocol is saturated; cancelling ctx or shutting the protocol down
// interrupts the wait and any I/O in progress.
func (p *PooledProtocol) Send(ctx context.Context, host string, port uint16, payload []byte) ([]byte, error) {
	addr := joinAddr(host, port)
	if p.closed.Load() {
		return nil, remoteError(addr, ErrProtocolClosed)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, p.fail(addr, err)
	}
	defer p.sem.Release(1)

	p.metrics.inFlight.Inc()
	defer p.metrics.inFlight.Dec()

	reply, err := p.sendAndCache(ctx, addr, payload)
	if err != nil {
		return nil, p.fail(addr, err)
	}
	return reply, nil
}

func (p *PooledProtocol) fail(addr string, err error) error {
	if p.ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrProtocolClosed, err)
	}
	p.metrics.failures.Inc()
	p.logger.Debug("send failed", zap.String("addr", addr), zap.Error(err))
	return remoteError(addr, err)
}

func (p *PooledProtocol) sendAndCache(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	c := p.claimIdle(addr)
	if c == nil {
		link, err := p.dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		c = newConnection(addr, link)
		c.Use()
		p.metrics.opened.Inc()
		p.logger.Debug("connection opened", zap.String("addr", addr))
	} else {
		p.metrics.reused.Inc()
	}

	stop := context.AfterFunc(ctx, c.link.Interrupt)
	reply, err := c.link.Exchange(payload)
	interrupted := !stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		p.discard(c)
		return nil, err
	}
	if interrupted {
		// The exchange finished but the link now has an expired deadline.
		p.discard(c)
		return reply, nil
	}

	p.release(addr, c)
	return reply, nil
}

// claimIdle pops idle candidates until one can be claimed.
func (p *PooledProtocol) claimIdle(addr string) *Connection {
	v, ok := p.cache.Load(addr)
	if !ok {
		return nil
	}
	q := v.(*idleQueue)
	for {
		c := q.pop()
		if c == nil {
			return nil
		}
		if c.Use() {
			return c
		}
	}
}

func (p *PooledProtocol) idleQueue(addr string) *idleQueue {
	if v, ok := p.cache.Load(addr); ok {
		return v.(*idleQueue)
	}
	p.createMu.Lock()
	defer p.createMu.Unlock()
	if v, ok := p.cache.Load(addr); ok {
		return v.(*idleQueue)
	}
	q := &idleQueue{}
	p.cache.Store(addr, q)
	return q
}

func (p *PooledProtocol) release(addr string, c *Connection) {
	deathTime := p.clock.Now().Add(p.ttl)
	q := p.idleQueue(addr)
	c.release(deathTime)
	q.push(c)
	if !p.evictions.push(eviction{deathTime: deathTime, conn: c}) {
		// Shut down while we were exchanging.
		q.remove(c)
		p.discard(c)
	}
}

func (p *PooledProtocol) discard(c *Connection) {
	if err := c.Close(); err != nil {
		p.logger.Debug("close connection", zap.String("addr", c.addr), zap.Error(err))
	}
}

// reap closes idle connections whose time to live has passed. It runs
// until the protocol is shut down.
func (p *PooledProtocol) reap() {
	defer p.wg.Done()
	for {
		e, ok := p.evictions.peek()
		if !ok {
			if !p.sleep(p.ttl, p.evictions.wake) {
				return
			}
			continue
		}
		now := p.clock.Now()
		if wait := e.deathTime.Sub(now); wait > 0 {
			if !p.sleep(wait, nil) {
				return
			}
			continue
		}
		p.evictions.pop()
		p.evict(e.conn, now)
	}
}

// sleep waits for d, a wake signal, or shutdown. It reports false on
// shutdown. A zero d waits for wake or shutdown only.
func (p *PooledProtocol) sleep(d time.Duration, wake <-chan struct{}) bool {
	var timeout <-chan time.Time
	if d > 0 {
		t := p.clock.Timer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-p.ctx.Done():
		return false
	case <-timeout:
		return true
	case <-wake:
		return true
	}
}

func (p *PooledProtocol) evict(c *Connection, now time.Time) {
	if c.Used() || !c.expired(now) {
		return
	}
	if !c.Use() {
		return
	}
	// Reused and returned between the check and the claim.
	if !c.expired(now) {
		c.used.Store(false)
		return
	}
	if v, ok := p.cache.Load(c.addr); ok {
		v.(*idleQueue).remove(c)
	}
	p.metrics.reaped.Inc()
	if err := c.Close(); err != nil {
		p.logger.Warn("reap connection", zap.String("addr", c.addr), zap.Error(err))
		return
	}
	p.logger.Debug("connection reaped", zap.String("addr", c.addr))
}

// Shutdown stops the protocol: pending and in-flight sends fail, the
// reaper exits, and every pooled connection is closed. Close failures do
// not stop the drain; they are returned together.
func (p *PooledProtocol) Shutdown() error {
	p.shutdown.Do(func() {
		p.closed.Store(true)
		p.cancel()
		p.wg.Wait()

		var errs error
		seen := make(map[*Connection]struct{})
		for _, e := range p.evictions.drain() {
			if _, ok := seen[e.conn]; ok {
				continue
			}
			seen[e.conn] = struct{}{}
			errs = multierr.Append(errs, e.conn.Close())
		}
		if errs != nil {
			p.err = fmt.Errorf("%w: shutdown %s protocol: %w", ErrRemote, p.name, errs)
		}
		p.logger.Debug("protocol shut down", zap.Error(p.err))
	})
	return p.err
}

// Idle returns the number of idle connections cached for host:port.
func (p *PooledProtocol) Idle(host string, port uint16) int {
	v, ok := p.cache.Load(joinAddr(host, port))
	if !ok {
		return 0
	}
	return v.(*idleQueue).len()
}

var _ ClientProtocol = (*PooledProtocol)(nil)
