// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-a2a/a2a-runtime/internal/config"
	"github.com/go-a2a/a2a-runtime/internal/echo"
	"github.com/go-a2a/a2a-runtime/internal/telemetry"
	"github.com/go-a2a/a2a-runtime/server/event"
	"github.com/go-a2a/a2a-runtime/server/handler"
	"github.com/go-a2a/a2a-runtime/server/jsonrpc"
	"github.com/go-a2a/a2a-runtime/server/task"
)

// JWKSPath serves the public keys of the push notification signer.
const JWKSPath = "/.well-known/jwks.json"

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON-RPC endpoint",
		Long:  longServe,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("queue-overflow", "block", "slow subscriber policy: block or drop-oldest")
	flags.String("push-signing-key", "", `PEM file of a P-256 key, or "generate"`)
	flags.Bool("metrics", true, "serve Prometheus metrics on /metrics")
	bind(a.v, cmd, map[string]string{
		config.KeyAddr:           "addr",
		config.KeyQueueOverflow:  "queue-overflow",
		config.KeyPushSigningKey: "push-signing-key",
		config.KeyMetricsEnabled: "metrics",
	})
	return cmd
}

// server is the assembled engine.
type server struct {
	handler  *handler.DefaultRequestHandler
	notifier *task.PushNotifier
	stores   *stores
	http     *http.Server
}

// newServer wires the stores, push delivery, session queues, request handler
// and HTTP routes described by cfg.
func newServer(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) (_ *server, err error) {
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.New(reg)
	}

	st, err := openStores(ctx, cfg.Store, true, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			st.close()
		}
	}()

	signer, err := loadSigner(cfg.Push.SigningKey)
	if err != nil {
		return nil, err
	}
	sender := task.NewHTTPPushNotificationSender(task.HTTPPushNotificationSenderConfig{
		Client:     &http.Client{Timeout: cfg.Push.Timeout},
		MaxRetries: cfg.Push.MaxRetries,
		Signer:     signer,
		Logger:     logger,
	})
	notifier, err := task.NewPushNotifier(task.PushNotifierConfig{
		Store:       st.pushConfigs,
		Sender:      sender,
		Concurrency: cfg.Push.Concurrency,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	policy, err := cfg.Queue.Policy()
	if err != nil {
		return nil, err
	}
	queues := event.NewQueueManager(event.QueueManagerConfig{
		MaxQueueSize: cfg.Queue.Size,
		Overflow:     policy,
		Logger:       logger,
		Metrics:      metrics,
	})

	h, err := handler.NewDefaultRequestHandler(echo.New(echo.WithLogger(logger)), st.tasks,
		handler.WithLogger(logger),
		handler.WithMetrics(metrics),
		handler.WithQueueManager(queues),
		handler.WithPushNotifications(st.pushConfigs, notifier),
	)
	if err != nil {
		return nil, err
	}
	rpc, err := jsonrpc.NewServer(h, jsonrpc.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	rpc.Register(r)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if signer != nil {
		r.Method(http.MethodGet, JWKSPath, signer.JWKSHandler())
	}
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return &server{
		handler:  h,
		notifier: notifier,
		stores:   st,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// shutdown ends the sessions so open streams finish, stops the listener and
// waits for pending push notifications.
func (s *server) shutdown(ctx context.Context) error {
	defer s.stores.close()
	herr := s.handler.Shutdown(ctx)
	return errors.Join(
		herr,
		s.http.Shutdown(ctx),
		s.notifier.Close(),
	)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := newServer(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			slog.String("addr", cfg.Addr),
			slog.String("store", cfg.Store.Driver),
			slog.String("version", buildVersion()),
		)
		if err := srv.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.shutdown(sctx)
	})
	return g.Wait()
}

// loadSigner returns the push notification signer selected by key: nil when
// empty, a fresh key for config.GenerateSigningKey, otherwise the PEM file.
func loadSigner(key string) (*task.JWTSigner, error) {
	const issuer = "a2a-server"
	switch key {
	case "":
		return nil, nil
	case config.GenerateSigningKey:
		return task.GenerateJWTSigner("a2a-push-1", issuer)
	}

	data, err := os.ReadFile(key)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	parsed, err := jwk.ParseKey(data, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse signing key %s: %w", key, err)
	}
	var raw any
	if err := jwk.Export(parsed, &raw); err != nil {
		return nil, fmt.Errorf("export signing key %s: %w", key, err)
	}
	private, ok := raw.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key %s: want an ECDSA private key, got %T", key, raw)
	}
	thumb, err := parsed.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, err
	}
	return task.NewJWTSigner(base64.RawURLEncoding.EncodeToString(thumb), issuer, private)
}

var longServe = `
Serve the JSON-RPC endpoint on POST /, event subscriptions over websocket on
GET /tasks/{taskID}/subscribe, Prometheus metrics on /metrics and, when push
notifications are signed, the public key set on /.well-known/jwks.json.

Examples:
  # In-memory store on the default address
  a2a-server serve

  # SQLite store with signed push notifications
  a2a-server serve --store-driver sqlite --store-dsn ./a2a.db --push-signing-key generate

  # PostgreSQL store configured from the environment
  A2A_STORE_DRIVER=postgres A2A_STORE_DSN=postgres://localhost/a2a a2a-server serve
`
