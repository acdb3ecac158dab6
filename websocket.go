// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultWebSocketPath is where NewWebSocketProtocol expects the handler.
const DefaultWebSocketPath = "/remoting/ws"

// wsLink carries one binary message per request and per reply.
type wsLink struct {
	conn *websocket.Conn
}

func (l *wsLink) Exchange(payload []byte) ([]byte, error) {
	if err := l.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return nil, fmt.Errorf("ws write: %w", err)
	}
	_, reply, err := l.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("ws read: %w", err)
	}
	return reply, nil
}

func (l *wsLink) Interrupt() {
	_ = l.conn.NetConn().SetDeadline(aLongTimeAgo)
}

func (l *wsLink) Close() error {
	return l.conn.Close()
}

// NewWebSocketProtocol returns a pooled protocol whose connections are
// websocket sessions to ws://host:port<path>.
func NewWebSocketProtocol(opts ...Option) (*PooledProtocol, error) {
	o := newOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	path := o.path
	if path == "" {
		path = DefaultWebSocketPath
	}
	dialer := &websocket.Dialer{
		HandshakeTimeout: o.dialTimeout,
	}
	dial := func(ctx context.Context, addr string) (Link, error) {
		u := url.URL{Scheme: "ws", Host: addr, Path: path}
		conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("ws dial: %w", err)
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		conn.SetReadLimit(int64(o.maxFrameSize))
		return &wsLink{conn: conn}, nil
	}
	return newPooledProtocol(ProtocolWebSocket, dial, o), nil
}

// NewWebSocketHandler serves the dispatcher over websocket sessions. Each
// binary message is one request; the reply is written before the next
// request is read.
func NewWebSocketHandler(d *Dispatcher) http.Handler {
	upgrader := websocket.Upgrader{}
	logger := d.logger.Named("ws")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("upgrade", zap.Error(err))
			return
		}
		defer conn.Close()

		for {
			mt, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			reply := d.Dispatch(r.Context(), payload)
			if err := conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
				logger.Debug("write reply", zap.Error(err))
				return
			}
		}
	})
}
