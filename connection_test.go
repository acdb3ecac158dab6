// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLink struct {
	closes   atomic.Int32
	closeErr error
}

func (l *stubLink) Exchange(payload []byte) ([]byte, error) { return payload, nil }
func (l *stubLink) Interrupt()                              {}
func (l *stubLink) Close() error {
	l.closes.Add(1)
	return l.closeErr
}

func TestConnectionSingleClaim(t *testing.T) {
	c := newConnection("127.0.0.1:1", &stubLink{})

	const claimants = 64
	var (
		wins  atomic.Int32
		start = make(chan struct{})
		wg    sync.WaitGroup
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if c.Use() {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.True(t, c.Used())
}

func TestConnectionRelease(t *testing.T) {
	c := newConnection("127.0.0.1:1", &stubLink{})
	require.True(t, c.Use())
	require.False(t, c.Use())

	death := time.Unix(100, 0)
	c.release(death)
	assert.False(t, c.Used())
	assert.Equal(t, death, c.DeathTime())
	assert.False(t, c.expired(death.Add(-time.Nanosecond)))
	assert.True(t, c.expired(death))
	assert.True(t, c.Use())
}

func TestConnectionCloseOnce(t *testing.T) {
	link := &stubLink{closeErr: errors.New("boom")}
	c := newConnection("127.0.0.1:1", link)

	require.EqualError(t, c.Close(), "boom")
	require.EqualError(t, c.Close(), "boom")
	assert.EqualValues(t, 1, link.closes.Load())
}

func TestIdleQueue(t *testing.T) {
	var q idleQueue
	a := newConnection("a", &stubLink{})
	b := newConnection("b", &stubLink{})
	c := newConnection("c", &stubLink{})
	q.push(a)
	q.push(b)
	q.push(c)

	q.remove(b)
	assert.Equal(t, 2, q.len())
	assert.Same(t, a, q.pop())
	assert.Same(t, c, q.pop())
	assert.Nil(t, q.pop())
}

func TestEvictionQueueOrderedByDeathTime(t *testing.T) {
	mock := clock.NewMock()
	ttl := 10 * time.Second
	q := newEvictionQueue()

	for i := 0; i < 10; i++ {
		mock.Add(time.Duration(i) * time.Millisecond)
		q.push(eviction{
			deathTime: mock.Now().Add(ttl),
			conn:      newConnection("a", &stubLink{}),
		})
	}

	var last time.Time
	for {
		e, ok := q.pop()
		if !ok {
			break
		}
		assert.False(t, e.deathTime.Before(last), "death times out of order")
		last = e.deathTime
	}
}

func TestEvictionQueueConcurrentPush(t *testing.T) {
	q := newEvictionQueue()
	c := newConnection("a", &stubLink{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.push(eviction{deathTime: time.Now(), conn: c})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.len())
}

func TestEvictionQueueDrain(t *testing.T) {
	q := newEvictionQueue()
	c := newConnection("a", &stubLink{})
	require.True(t, q.push(eviction{conn: c}))

	rest := q.drain()
	assert.Len(t, rest, 1)
	assert.False(t, q.push(eviction{conn: c}))
	_, ok := q.peek()
	assert.False(t, ok)
}

func TestPooledProtocolShutdownAggregatesCloseErrors(t *testing.T) {
	links := []*stubLink{
		{closeErr: errors.New("first")},
		{},
		{closeErr: errors.New("third")},
	}
	p := newPooledProtocol("stub", nil, newOptions(nil))
	deathTime := time.Now().Add(time.Hour)
	for _, l := range links {
		c := newConnection("a", l)
		// Returned to the cache twice, so it has two eviction records.
		p.evictions.push(eviction{deathTime: deathTime, conn: c})
		p.evictions.push(eviction{deathTime: deathTime, conn: c})
	}

	err := p.Shutdown()
	require.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, 1, strings.Count(err.Error(), "first"))
	assert.Equal(t, 1, strings.Count(err.Error(), "third"))
	for _, l := range links {
		assert.EqualValues(t, 1, l.closes.Load())
	}
}
