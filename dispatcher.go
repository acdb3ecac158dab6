// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher is the server side of the protocol: it decodes invocations,
// routes them to the invoker named by the reference, and encodes replies.
// One dispatcher can back any number of transports.
type Dispatcher struct {
	marshaller Marshaller
	logger     *zap.Logger
	metrics    *dispatchMetrics

	mu       sync.RWMutex
	invokers map[int32]*Invoker
}

// NewDispatcher returns a dispatcher with no invokers.
func NewDispatcher(opts ...ServerOption) *Dispatcher {
	o := newServerOptions(opts)
	logger := o.logger.Named("dispatcher")
	return &Dispatcher{
		marshaller: o.marshaller,
		logger:     logger,
		metrics:    newDispatchMetrics(o.registerer, logger),
		invokers:   make(map[int32]*Invoker),
	}
}

// Register makes inv reachable under its id.
func (d *Dispatcher) Register(inv *Invoker) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.invokers[inv.ID()]; ok {
		return fmt.Errorf("register invoker %d: already registered", inv.ID())
	}
	d.invokers[inv.ID()] = inv
	return nil
}

// Invoke routes a decoded invocation.
func (d *Dispatcher) Invoke(ctx context.Context, inv *Invocation) (any, error) {
	id := inv.Data.AOR.InvokerID
	d.mu.RLock()
	invoker, ok := d.invokers[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInvoker, id)
	}
	return invoker.Invoke(ctx, inv)
}

// Dispatch handles one request payload and returns the reply payload.
// Failures are encoded in the reply rather than returned.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) []byte {
	var inv Invocation
	if err := d.marshaller.Unmarshal(payload, &inv); err != nil {
		return d.reply(Reply{Error: replyErrorFor(err)}, "")
	}

	result, err := d.Invoke(ctx, &inv)
	if err != nil {
		d.logger.Debug("invocation failed",
			zap.String("operation", inv.Data.OperationName),
			zap.Int32("invoker", inv.Data.AOR.InvokerID),
			zap.Error(err),
		)
		return d.reply(Reply{Error: replyErrorFor(err)}, inv.Data.OperationName)
	}
	return d.reply(Reply{Result: result}, inv.Data.OperationName)
}

func (d *Dispatcher) reply(r Reply, operation string) []byte {
	data, err := d.marshaller.Marshal(r)
	if err != nil {
		d.logger.Warn("marshal reply", zap.String("operation", operation), zap.Error(err))
		r = Reply{Error: replyErrorFor(err)}
		if data, err = d.marshaller.Marshal(r); err != nil {
			// Nothing sensible left to send; an empty payload fails to decode
			// on the client, which reports it as a marshal error.
			data = nil
		}
	}
	code := "ok"
	if r.Error != nil {
		code = r.Error.Code
	}
	d.metrics.invocations.WithLabelValues(code).Inc()
	return data
}
