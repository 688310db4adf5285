// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/go-a2a/a2a-runtime/server/jsonrpc"

// rpcMetrics holds the instruments of one [Server]. Instruments that fail to
// register fall back to no-ops.
type rpcMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	streams  metric.Int64UpDownCounter
}

func newRPCMetrics(m metric.Meter) *rpcMetrics {
	rm := new(rpcMetrics)
	var err error

	rm.requests, err = m.Int64Counter("a2a.rpc.server.requests",
		metric.WithDescription("Count of handled JSON-RPC requests"),
	)
	if err != nil {
		otel.Handle(err)
		rm.requests = noop.Int64Counter{}
	}

	rm.duration, err = m.Float64Histogram("a2a.rpc.server.duration",
		metric.WithDescription("Latency of unary JSON-RPC requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
		rm.duration = noop.Float64Histogram{}
	}

	rm.streams, err = m.Int64UpDownCounter("a2a.rpc.server.active_streams",
		metric.WithDescription("Open SSE and websocket event streams"),
	)
	if err != nil {
		otel.Handle(err)
		rm.streams = noop.Int64UpDownCounter{}
	}
	return rm
}

func (m *rpcMetrics) request(ctx context.Context, method string, code int64, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.Int64("rpc.jsonrpc.error_code", code),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// stream counts an open stream and returns the func that closes it.
func (m *rpcMetrics) stream(ctx context.Context, transport string) func() {
	attrs := metric.WithAttributes(attribute.String("transport", transport))
	m.streams.Add(ctx, 1, attrs)
	return func() { m.streams.Add(ctx, -1, attrs) }
}
