// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server serves a Dispatcher over TCP using length-prefixed frames.
// Exchanges on one connection are handled strictly one at a time.
type Server struct {
	listener     net.Listener
	dispatcher   *Dispatcher
	logger       *zap.Logger
	maxFrameSize uint32

	conns  sync.Map // net.Conn -> struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Listen creates a server listening on addr.
func Listen(addr string, d *Dispatcher, opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewServer(listener, d, opts...), nil
}

// NewServer creates a server on an existing listener.
func NewServer(listener net.Listener, d *Dispatcher, opts ...ServerOption) *Server {
	o := newServerOptions(opts)
	return &Server{
		listener:     listener,
		dispatcher:   d,
		logger:       o.logger.Named("server"),
		maxFrameSize: o.maxFrameSize,
	}
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.Close()
	})
	g.Go(func() error {
		defer cancel()
		defer s.wg.Wait()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.closed.Load() || errors.Is(err, net.ErrClosed) {
					return nil
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					continue
				}
				s.Close()
				return fmt.Errorf("accept: %w", err)
			}
			s.wg.Add(1)
			go s.handleConn(ctx, conn)
		}
	})
	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)
	if s.closed.Load() {
		return
	}

	logger := s.logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		payload, err := ReadFrame(r, s.maxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read request", zap.Error(err))
			}
			return
		}
		reply := s.dispatcher.Dispatch(ctx, payload)
		if err := WriteFrame(w, reply); err != nil {
			logger.Debug("write reply", zap.Error(err))
			return
		}
		if err := w.Flush(); err != nil {
			logger.Debug("flush reply", zap.Error(err))
			return
		}
	}
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the listener address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
