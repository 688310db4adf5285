// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/pool"
)

// serveSSE writes each event as a JSON-RPC response in its own SSE data
// frame. The stream ends after the events end or after the first error.
func (s *Server) serveSSE(ctx context.Context, w http.ResponseWriter, id jsontext.Value, events iter.Seq2[a2a.Event, error], logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeResponse(w, newResponse(id, nil, &Error{Code: CodeInternalError, Message: "streaming unsupported"}))
		return
	}
	defer s.metrics.stream(ctx, "sse")()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	n := 0
	for ev, err := range events {
		if err := writeSSEData(w, newResponse(id, ev, err)); err != nil {
			logger.DebugContext(ctx, "client left the stream", slog.Any("error", err))
			return
		}
		flusher.Flush()
		if err != nil {
			logger.DebugContext(ctx, "stream ended with error", slog.Any("error", err))
			return
		}
		n++
	}
	logger.DebugContext(ctx, "stream completed", slog.Int("events", n))
}

func writeSSEData(w http.ResponseWriter, resp *Response) error {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	buf.WriteString("data: ")
	if err := json.MarshalWrite(buf, resp); err != nil {
		return err
	}
	buf.WriteString("\n\n")
	_, err := w.Write(buf.Bytes())
	return err
}
