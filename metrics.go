// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package remoting

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "remoting"

type protocolMetrics struct {
	inFlight prometheus.Gauge
	opened   prometheus.Counter
	reused   prometheus.Counter
	reaped   prometheus.Counter
	failures prometheus.Counter
}

func newProtocolMetrics(protocol string, reg prometheus.Registerer, logger *zap.Logger) *protocolMetrics {
	labels := prometheus.Labels{"protocol": protocol}
	m := &protocolMetrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "client",
			Name:        "inflight_sends",
			Help:        "Exchanges currently holding an admission slot.",
			ConstLabels: labels,
		}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "client",
			Name:        "connections_opened_total",
			Help:        "Connections dialed because no idle one could be claimed.",
			ConstLabels: labels,
		}),
		reused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "client",
			Name:        "connections_reused_total",
			Help:        "Exchanges served by an idle pooled connection.",
			ConstLabels: labels,
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "client",
			Name:        "connections_reaped_total",
			Help:        "Idle connections closed after their time to live.",
			ConstLabels: labels,
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   "client",
			Name:        "send_failures_total",
			Help:        "Sends that failed with a remote error.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		m.inFlight = register(reg, m.inFlight, logger)
		m.opened = register(reg, m.opened, logger)
		m.reused = register(reg, m.reused, logger)
		m.reaped = register(reg, m.reaped, logger)
		m.failures = register(reg, m.failures, logger)
	}
	return m
}

// register adds c to reg. If an equal collector is already registered,
// that one is returned so every instance reports into the same series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, logger *zap.Logger) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	logger.Warn("register metric", zap.Error(err))
	return c
}

type dispatchMetrics struct {
	invocations *prometheus.CounterVec
}

func newDispatchMetrics(reg prometheus.Registerer, logger *zap.Logger) *dispatchMetrics {
	m := &dispatchMetrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "server",
			Name:      "invocations_total",
			Help:      "Invocations dispatched, by outcome code.",
		}, []string{"code"}),
	}
	if reg != nil {
		m.invocations = register(reg, m.invocations, logger)
	}
	return m
}
