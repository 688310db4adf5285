// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-json-experiment/json"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/pool"
)

// Push notification request headers.
const (
	HeaderNotificationToken     = "X-A2A-Notification-Token"
	HeaderNotificationSignature = "X-A2A-Notification-Signature"
)

// PushNotificationSender delivers a task snapshot to one configured endpoint.
type PushNotificationSender interface {
	Send(ctx context.Context, task *a2a.Task, config *a2a.PushNotificationConfig) error
}

// DeliveryError reports a push endpoint that answered with a non-2xx status.
type DeliveryError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push notification to %s failed with status %d", e.URL, e.StatusCode)
}

// Temporary reports whether the endpoint may accept a retry.
func (e *DeliveryError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// HTTPPushNotificationSenderConfig holds configuration for HTTPPushNotificationSender.
type HTTPPushNotificationSenderConfig struct {
	// Client defaults to an http.Client with a 10s timeout.
	Client *http.Client

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64

	// InitialInterval is the first retry delay. Defaults to 200ms.
	InitialInterval time.Duration

	// Signer, when set, adds a signed JWT to every request.
	Signer *JWTSigner

	Logger *slog.Logger
}

// HTTPPushNotificationSender POSTs the task as JSON to the config URL, retrying
// transport errors and 429/5xx answers with exponential backoff.
type HTTPPushNotificationSender struct {
	client          *http.Client
	maxRetries      uint64
	initialInterval time.Duration
	signer          *JWTSigner
	logger          *slog.Logger
}

var _ PushNotificationSender = (*HTTPPushNotificationSender)(nil)

// NewHTTPPushNotificationSender creates a new HTTPPushNotificationSender.
func NewHTTPPushNotificationSender(config HTTPPushNotificationSenderConfig) *HTTPPushNotificationSender {
	if config.Client == nil {
		config.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 200 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &HTTPPushNotificationSender{
		client:          config.Client,
		maxRetries:      config.MaxRetries,
		initialInterval: config.InitialInterval,
		signer:          config.Signer,
		logger:          config.Logger,
	}
}

// Send implements [PushNotificationSender].
func (s *HTTPPushNotificationSender) Send(ctx context.Context, task *a2a.Task, config *a2a.PushNotificationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)
	if err := json.MarshalWrite(buf, task); err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	body := bytes.Clone(buf.Bytes())

	header := buildHeaders(config)
	if s.signer != nil {
		sig, err := s.signer.Sign(task.ID, body)
		if err != nil {
			return fmt.Errorf("sign push notification: %w", err)
		}
		header.Set(HeaderNotificationSignature, sig)
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.initialInterval),
		backoff.WithMaxElapsedTime(0),
	)
	attempt := 0
	op := func() error {
		attempt++
		err := s.post(ctx, config.URL, header, body)
		var derr *DeliveryError
		if errors.As(err, &derr) && !derr.Temporary() {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.DebugContext(ctx, "push notification attempt failed",
				slog.String("task_id", task.ID),
				slog.String("url", config.URL),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, s.maxRetries), ctx))
}

func (s *HTTPPushNotificationSender) post(ctx context.Context, url string, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header = header.Clone()

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{URL: url, StatusCode: resp.StatusCode}
	}
	return nil
}

func buildHeaders(config *a2a.PushNotificationConfig) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	if config.Token != "" {
		h.Set(HeaderNotificationToken, config.Token)
	}
	if auth := authorizationHeader(config.Authentication); auth != "" {
		h.Set("Authorization", auth)
	}
	return h
}

// authorizationHeader prefers the Bearer scheme and falls back to the first
// non-empty one.
func authorizationHeader(info *a2a.PushNotificationAuthenticationInfo) string {
	if info == nil || info.Credentials == "" {
		return ""
	}
	scheme := ""
	for _, s := range info.Schemes {
		if s == "" {
			continue
		}
		if strings.EqualFold(s, "bearer") {
			scheme = s
			break
		}
		if scheme == "" {
			scheme = s
		}
	}
	if scheme == "" {
		return ""
	}
	return scheme + " " + info.Credentials
}
