// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Link is one established transport endpoint. It carries a single
// request/response exchange at a time.
type Link interface {
	Exchange(payload []byte) ([]byte, error)
	// Interrupt makes blocked and future I/O on the link fail promptly.
	Interrupt()
	Close() error
}

// frameLink carries length-prefixed frames over a byte stream.
type frameLink struct {
	conn         net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	maxFrameSize uint32
}

func newFrameLink(conn net.Conn, maxFrameSize uint32) *frameLink {
	return &frameLink{
		conn:         conn,
		r:            bufio.NewReader(conn),
		w:            bufio.NewWriter(conn),
		maxFrameSize: maxFrameSize,
	}
}

func (l *frameLink) Exchange(payload []byte) ([]byte, error) {
	if err := WriteFrame(l.w, payload); err != nil {
		return nil, err
	}
	if err := l.w.Flush(); err != nil {
		return nil, err
	}
	return ReadFrame(l.r, l.maxFrameSize)
}

func (l *frameLink) Interrupt() {
	_ = l.conn.SetDeadline(aLongTimeAgo)
}

func (l *frameLink) Close() error {
	return l.conn.Close()
}

// Connection is a pooled link to one address. A connection is claimed with
// Use before every exchange or close; exactly one concurrent claimant wins.
type Connection struct {
	link      Link
	addr      string
	used      atomic.Bool
	deathTime atomic.Int64 // unix nanoseconds

	closeOnce sync.Once
	closeErr  error
}

func newConnection(addr string, link Link) *Connection {
	return &Connection{link: link, addr: addr}
}

// Use claims the connection. It reports false if someone else holds it.
func (c *Connection) Use() bool {
	return c.used.CompareAndSwap(false, true)
}

// Used reports whether the connection is currently claimed.
func (c *Connection) Used() bool {
	return c.used.Load()
}

// Addr returns the "host:port" the connection was dialed to.
func (c *Connection) Addr() string {
	return c.addr
}

// DeathTime returns when the connection becomes eligible for eviction.
func (c *Connection) DeathTime() time.Time {
	return time.Unix(0, c.deathTime.Load())
}

// release makes the connection idle again. The death time is published
// before the claim is dropped so anyone who claims it next sees the
// refreshed value.
func (c *Connection) release(deathTime time.Time) {
	c.deathTime.Store(deathTime.UnixNano())
	c.used.Store(false)
}

func (c *Connection) expired(now time.Time) bool {
	return c.deathTime.Load() <= now.UnixNano()
}

// Close closes the underlying link. Later calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.link.Close()
	})
	return c.closeErr
}

// idleQueue is the FIFO of idle connections for one address.
type idleQueue struct {
	mu    sync.Mutex
	conns []*Connection
}

func (q *idleQueue) push(c *Connection) {
	q.mu.Lock()
	q.conns = append(q.conns, c)
	q.mu.Unlock()
}

func (q *idleQueue) pop() *Connection {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.conns) == 0 {
		return nil
	}
	c := q.conns[0]
	q.conns[0] = nil
	q.conns = q.conns[1:]
	return c
}

func (q *idleQueue) remove(c *Connection) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cur := range q.conns {
		if cur == c {
			q.conns = append(q.conns[:i], q.conns[i+1:]...)
			return
		}
	}
}

func (q *idleQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.conns)
}

// eviction records one return-to-cache event.
type eviction struct {
	deathTime time.Time
	conn      *Connection
}

// evictionQueue is an append-many, single-consumer FIFO. With a constant
// time to live, insertion order is death-time order, so the front is
// always the next record to expire.
type evictionQueue struct {
	mu      sync.Mutex
	records []eviction
	closed  bool
	wake    chan struct{}
}

func newEvictionQueue() *evictionQueue {
	return &evictionQueue{wake: make(chan struct{}, 1)}
}

// push appends a record. It reports false once the queue is drained.
func (q *evictionQueue) push(e eviction) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.records = append(q.records, e)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *evictionQueue) peek() (eviction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return eviction{}, false
	}
	return q.records[0], true
}

func (q *evictionQueue) pop() (eviction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return eviction{}, false
	}
	e := q.records[0]
	q.records[0] = eviction{}
	q.records = q.records[1:]
	return e, true
}

// drain closes the queue to further pushes and returns what was left.
func (q *evictionQueue) drain() []eviction {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.records
	q.records = nil
	return rest
}

func (q *evictionQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
