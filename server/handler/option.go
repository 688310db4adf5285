// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-runtime/internal/telemetry"
	"github.com/go-a2a/a2a-runtime/server/agent_execution"
	"github.com/go-a2a/a2a-runtime/server/event"
	"github.com/go-a2a/a2a-runtime/server/task"
)

// Option configures a [DefaultRequestHandler].
type Option func(*DefaultRequestHandler)

// WithLogger sets the [*slog.Logger] for the [DefaultRequestHandler].
func WithLogger(logger *slog.Logger) Option {
	return func(h *DefaultRequestHandler) {
		h.logger = logger
	}
}

// WithTracer sets the [trace.Tracer] for the [DefaultRequestHandler].
func WithTracer(tracer trace.Tracer) Option {
	return func(h *DefaultRequestHandler) {
		h.tracer = tracer
	}
}

// WithMetrics sets the collectors shared by the handler's components.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *DefaultRequestHandler) {
		h.metrics = m
	}
}

// WithPushNotifications enables the push notification operations, storing
// configs in store and delivering snapshots through notifier. notifier may be
// nil to keep configs without delivering.
func WithPushNotifications(store task.PushNotificationConfigStore, notifier *task.PushNotifier) Option {
	return func(h *DefaultRequestHandler) {
		h.pushConfigs = store
		h.notifier = notifier
	}
}

// WithQueueManager sets the registry of session queues.
func WithQueueManager(qm *event.QueueManager) Option {
	return func(h *DefaultRequestHandler) {
		h.queues = qm
	}
}

// WithRequestContextBuilder sets the builder of executor request contexts.
func WithRequestContextBuilder(b agent_execution.RequestContextBuilder) Option {
	return func(h *DefaultRequestHandler) {
		h.builder = b
	}
}
