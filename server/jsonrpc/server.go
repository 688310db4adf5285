// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package jsonrpc serves a [handler.RequestHandler] as JSON-RPC 2.0 over HTTP.
//
// Unary methods answer with a single JSON response. message/stream and
// tasks/resubscribe answer with a Server-Sent Events stream whose data lines
// are JSON-RPC responses carrying one event each. GET /tasks/{taskID}/subscribe
// offers the same subscription over a websocket.
package jsonrpc

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/pool"
	"github.com/go-a2a/a2a-runtime/server/handler"
)

// DefaultMaxBodyBytes bounds the size of a request body.
const DefaultMaxBodyBytes = 4 << 20

type methodFunc func(ctx context.Context, params jsontext.Value) (any, error)

type streamFunc func(ctx context.Context, params jsontext.Value) (iter.Seq2[a2a.Event, error], error)

// Server is the HTTP binding of a [handler.RequestHandler].
type Server struct {
	handler      handler.RequestHandler
	logger       *slog.Logger
	meter        metric.Meter
	metrics      *rpcMetrics
	upgrader     websocket.Upgrader
	maxBodyBytes int64

	methods map[string]methodFunc
	streams map[string]streamFunc
	router  chi.Router
}

var _ http.Handler = (*Server)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the [*slog.Logger] for the [Server].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMeterProvider sets the provider of the server's request instruments.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Server) {
		s.meter = mp.Meter(meterName)
	}
}

// WithMaxBodyBytes bounds request bodies to n bytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// WithCheckOrigin sets the websocket origin policy. The default accepts
// requests without an Origin header and same-host origins.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// NewServer creates a new Server dispatching to h.
func NewServer(h handler.RequestHandler, opts ...Option) (*Server, error) {
	if h == nil {
		return nil, errors.New("request handler is required")
	}
	s := &Server{
		handler:      h,
		logger:       slog.Default(),
		meter:        otel.GetMeterProvider().Meter(meterName),
		maxBodyBytes: DefaultMaxBodyBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newRPCMetrics(s.meter)
	s.registerMethods()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	s.Register(r)
	s.router = r
	return s, nil
}

func (s *Server) registerMethods() {
	h := s.handler
	s.methods = map[string]methodFunc{
		MethodMessageSend:                unary(h.OnSendMessage),
		MethodTasksGet:                   unary(h.OnGetTask),
		MethodTasksList:                  unary(h.OnListTasks),
		MethodTasksCancel:                unary(h.OnCancelTask),
		MethodTasksDelete:                unary(noResult(h.OnDeleteTask)),
		MethodPushNotificationConfigSet:  unary(h.OnSetTaskPushNotificationConfig),
		MethodPushNotificationConfigGet:  unary(h.OnGetTaskPushNotificationConfig),
		MethodPushNotificationConfigList: unary(h.OnListTaskPushNotificationConfig),
		MethodPushNotificationConfigDel:  unary(noResult(h.OnDeleteTaskPushNotificationConfig)),
	}
	s.streams = map[string]streamFunc{
		MethodMessageStream:    stream(h.OnSendMessageStream),
		MethodTasksResubscribe: stream(h.OnResubscribeToTask),
	}
}

func unary[P, R any](fn func(context.Context, *P) (R, error)) methodFunc {
	return func(ctx context.Context, raw jsontext.Value) (any, error) {
		p, err := decodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		res, err := fn(ctx, p)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

func noResult[P any](fn func(context.Context, *P) error) func(context.Context, *P) (any, error) {
	return func(ctx context.Context, p *P) (any, error) {
		return nil, fn(ctx, p)
	}
}

func stream[P any](fn func(context.Context, *P) iter.Seq2[a2a.Event, error]) streamFunc {
	return func(ctx context.Context, raw jsontext.Value) (iter.Seq2[a2a.Event, error], error) {
		p, err := decodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, p), nil
	}
}

// Register adds the server's routes to r.
func (s *Server) Register(r chi.Router) {
	r.Post("/", s.handleRPC)
	r.Get("/tasks/{taskID}/subscribe", s.handleSubscribe)
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req Request
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.UnmarshalRead(body, &req); err != nil {
		s.writeResponse(w, newResponse(nil, nil, &Error{Code: CodeParseError, Message: "parse error", Data: err.Error()}))
		return
	}
	if err := req.validate(); err != nil {
		s.writeResponse(w, newResponse(req.ID, nil, err))
		return
	}

	logger := s.logger.With(
		slog.String("method", req.Method),
		slog.String("request_id", middleware.GetReqID(ctx)),
	)

	if open, ok := s.streams[req.Method]; ok {
		events, err := open(ctx, req.Params)
		if err != nil {
			s.writeResponse(w, newResponse(req.ID, nil, err))
			return
		}
		s.serveSSE(ctx, w, req.ID, events, logger)
		return
	}

	call, ok := s.methods[req.Method]
	if !ok {
		s.writeResponse(w, newResponse(req.ID, nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}))
		return
	}
	res, err := call(ctx, req.Params)
	resp := newResponse(req.ID, res, err)

	var code int64
	if resp.Error != nil {
		code = resp.Error.Code
		if code == CodeInternalError {
			logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
		} else {
			logger.DebugContext(ctx, "request rejected", slog.Any("error", err))
		}
	}
	s.metrics.request(ctx, req.Method, code, time.Since(start))
	s.writeResponse(w, resp)
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *Response) {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)
	if err := json.MarshalWrite(buf, resp); err != nil {
		s.logger.Error("encode response", slog.Any("error", err))
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("write response", slog.Any("error", err))
	}
}
