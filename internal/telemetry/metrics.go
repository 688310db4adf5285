// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the Prometheus collectors of the task engine.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "a2a"

// Metrics groups the engine collectors.
type Metrics struct {
	eventsProcessed   *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	queueDropped      prometheus.Counter
	activeSessions    prometheus.Gauge
	pushNotifications *prometheus.CounterVec
	pushDuration      prometheus.Histogram
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		eventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Events folded into task state, by event kind and outcome.",
		}, []string{"kind", "result"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Accepted task state transitions.",
		}, []string{"from", "to"}),
		queueDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_queue_dropped_total",
			Help:      "Events discarded from slow taps under the drop-oldest policy.",
		}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Task sessions with an open event queue.",
		}),
		pushNotifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "Push notification deliveries by outcome.",
		}, []string{"result"}),
		pushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_notification_duration_seconds",
			Help:      "Push notification delivery latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// EventProcessed counts one event of kind with result "ok" or "error".
func (m *Metrics) EventProcessed(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsProcessed.WithLabelValues(kind, result).Inc()
}

// Transition counts an accepted state change.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// QueueDropped counts an event dropped from a slow tap.
func (m *Metrics) QueueDropped() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// PushDelivered records one delivery attempt sequence.
func (m *Metrics) PushDelivered(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pushNotifications.WithLabelValues(result).Inc()
	m.pushDuration.Observe(d.Seconds())
}
