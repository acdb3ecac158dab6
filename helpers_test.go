// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// frameServer is a raw framed peer that records what the client does to it.
type frameServer struct {
	ln       net.Listener
	handler  func([]byte) ([]byte, bool)
	gate     chan struct{}
	openGate sync.Once
	accepted atomic.Int32
	requests atomic.Int32
	closed   atomic.Int32
	wg       sync.WaitGroup
}

// newFrameServer starts an echo peer. A gated peer holds every reply
// until release is called.
func newFrameServer(t *testing.T, gated bool) *frameServer {
	t.Helper()
	return newFrameServerFunc(t, gated, func(p []byte) ([]byte, bool) { return p, true })
}

// newFrameServerFunc starts a peer replying with handler; a false second
// result makes the peer hang up instead of replying.
func newFrameServerFunc(t *testing.T, gated bool, handler func([]byte) ([]byte, bool)) *frameServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &frameServer{ln: ln, handler: handler}
	if gated {
		s.gate = make(chan struct{})
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		s.release()
		ln.Close()
		s.wg.Wait()
	})
	return s
}

// release lets held replies through.
func (s *frameServer) release() {
	if s.gate != nil {
		s.openGate.Do(func() { close(s.gate) })
	}
}

func (s *frameServer) serve() {
	defer s.wg.Done()
	var conns sync.WaitGroup
	defer conns.Wait()
	var mu sync.Mutex
	var open []net.Conn
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			mu.Lock()
			for _, c := range open {
				c.Close()
			}
			mu.Unlock()
			return
		}
		s.accepted.Add(1)
		mu.Lock()
		open = append(open, conn)
		mu.Unlock()
		conns.Add(1)
		go func() {
			defer conns.Done()
			s.handle(conn)
		}()
	}
}

func (s *frameServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		payload, err := ReadFrame(r, DefaultMaxFrameSize)
		if err != nil {
			s.closed.Add(1)
			return
		}
		s.requests.Add(1)
		if s.gate != nil {
			<-s.gate
		}
		reply, ok := s.handler(payload)
		if !ok {
			return
		}
		if err := WriteFrame(conn, reply); err != nil {
			return
		}
	}
}

func (s *frameServer) hostPort() (string, uint16) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), uint16(addr.Port)
}

func hostPort(t testing.TB, addr net.Addr) (string, uint16) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, uint16(p)
}

// fakeProtocol is a ClientProtocol test double.
type fakeProtocol struct {
	sendFunc    func(ctx context.Context, host string, port uint16, payload []byte) ([]byte, error)
	shutdownErr error
	shutdowns   atomic.Int32
}

func (f *fakeProtocol) Send(ctx context.Context, host string, port uint16, payload []byte) ([]byte, error) {
	if f.sendFunc == nil {
		return payload, nil
	}
	return f.sendFunc(ctx, host, port, payload)
}

func (f *fakeProtocol) Shutdown() error {
	f.shutdowns.Add(1)
	return f.shutdownErr
}
