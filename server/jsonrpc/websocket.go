// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/go-a2a/a2a-runtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsReadLimit  = 4096
)

// sameOrigin accepts clients without an Origin header and browsers on the
// server's own host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// handleSubscribe streams the events of one task over a websocket, the same
// way tasks/resubscribe does over SSE. Each text frame is a JSON-RPC response
// with a null id. The server closes the connection after the last event.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	logger := s.logger.With(
		slog.String("task_id", taskID),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	wc := &wsConn{conn: conn}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer s.metrics.stream(ctx, "websocket")()

	// The client only sends control frames; a read error means it left.
	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read failed", slog.Any("error", err))
				}
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := wc.write(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	logger.DebugContext(ctx, "websocket subscription opened")
	for ev, err := range s.handler.OnResubscribeToTask(ctx, &a2a.TaskIDParams{ID: taskID}) {
		data, merr := json.Marshal(newResponse(nil, ev, err))
		if merr != nil {
			logger.ErrorContext(ctx, "encode event", slog.Any("error", merr))
			return
		}
		if werr := wc.write(websocket.TextMessage, data); werr != nil {
			logger.DebugContext(ctx, "client left the subscription", slog.Any("error", werr))
			return
		}
		if err != nil {
			break
		}
	}

	wc.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
	wc.mu.Unlock()
	logger.DebugContext(ctx, "websocket subscription closed")
}
