// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/go-a2a/a2a-runtime"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

func newCaptureServer(t *testing.T, statuses ...int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		n := len(reqs)
		reqs = append(reqs, capturedRequest{header: r.Header.Clone(), body: body})
		mu.Unlock()
		status := http.StatusOK
		if n < len(statuses) {
			status = statuses[n]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func TestHTTPPushNotificationSenderHeaders(t *testing.T) {
	tests := []struct {
		name   string
		config a2a.PushNotificationConfig
		want   map[string]string
	}{
		{
			name:   "token only",
			config: a2a.PushNotificationConfig{Token: "tok"},
			want: map[string]string{
				"Content-Type":          "application/json",
				HeaderNotificationToken: "tok",
				"Authorization":         "",
			},
		},
		{
			name: "bearer preferred",
			config: a2a.PushNotificationConfig{
				Authentication: &a2a.PushNotificationAuthenticationInfo{
					Schemes:     []string{"Basic", "Bearer"},
					Credentials: "secret",
				},
			},
			want: map[string]string{
				HeaderNotificationToken: "",
				"Authorization":         "Bearer secret",
			},
		},
		{
			name: "first scheme",
			config: a2a.PushNotificationConfig{
				Authentication: &a2a.PushNotificationAuthenticationInfo{
					Schemes:     []string{"", "ApiKey"},
					Credentials: "k",
				},
			},
			want: map[string]string{"Authorization": "ApiKey k"},
		},
		{
			name: "no credentials",
			config: a2a.PushNotificationConfig{
				Authentication: &a2a.PushNotificationAuthenticationInfo{Schemes: []string{"Bearer"}},
			},
			want: map[string]string{"Authorization": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, requests := newCaptureServer(t)
			s := NewHTTPPushNotificationSender(HTTPPushNotificationSenderConfig{})
			cfg := tt.config
			cfg.URL = srv.URL

			task := newTestTask("t1", "c1", a2a.TaskStateWorking)
			if err := s.Send(t.Context(), task, &cfg); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			reqs := requests()
			if len(reqs) != 1 {
				t.Fatalf("got %d requests, want 1", len(reqs))
			}
			for k, want := range tt.want {
				if got := reqs[0].header.Get(k); got != want {
					t.Errorf("header %s = %q, want %q", k, got, want)
				}
			}

			var got a2a.Task
			if err := json.Unmarshal(reqs[0].body, &got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if diff := cmp.Diff(task, &got, taskCmpOpts...); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHTTPPushNotificationSenderRetries(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusServiceUnavailable, http.StatusBadGateway)
	s := NewHTTPPushNotificationSender(HTTPPushNotificationSenderConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	})
	cfg := &a2a.PushNotificationConfig{URL: srv.URL}
	if err := s.Send(t.Context(), newTestTask("t1", "c1", a2a.TaskStateCompleted), cfg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := len(requests()); got != 3 {
		t.Errorf("got %d attempts, want 3", got)
	}
}

func TestHTTPPushNotificationSenderPermanentFailure(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusBadRequest)
	s := NewHTTPPushNotificationSender(HTTPPushNotificationSenderConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	})
	err := s.Send(t.Context(), newTestTask("t1", "c1", a2a.TaskStateCompleted), &a2a.PushNotificationConfig{URL: srv.URL})
	var derr *DeliveryError
	if !errors.As(err, &derr) || derr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Send() error = %v, want DeliveryError with status 400", err)
	}
	if got := len(requests()); got != 1 {
		t.Errorf("got %d attempts, want 1", got)
	}
}

func TestHTTPPushNotificationSenderRetriesExhausted(t *testing.T) {
	srv, requests := newCaptureServer(t, 500, 500, 500, 500)
	s := NewHTTPPushNotificationSender(HTTPPushNotificationSenderConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	})
	err := s.Send(t.Context(), newTestTask("t1", "c1", a2a.TaskStateCompleted), &a2a.PushNotificationConfig{URL: srv.URL})
	if err == nil {
		t.Fatal("Send() error = nil, want failure")
	}
	if got := len(requests()); got != 3 {
		t.Errorf("got %d attempts, want 3", got)
	}
}

func TestJWTSignerSignature(t *testing.T) {
	signer, err := GenerateJWTSigner("key-1", "a2a-test")
	if err != nil {
		t.Fatalf("GenerateJWTSigner() error = %v", err)
	}
	srv, requests := newCaptureServer(t)
	s := NewHTTPPushNotificationSender(HTTPPushNotificationSenderConfig{Signer: signer})
	if err := s.Send(t.Context(), newTestTask("t1", "c1", a2a.TaskStateWorking), &a2a.PushNotificationConfig{URL: srv.URL}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	req := requests()[0]

	sig := req.header.Get(HeaderNotificationSignature)
	tok, err := jwt.ParseString(sig, jwt.WithKeySet(signer.PublicKeys()))
	if err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	var taskID, digest string
	if err := tok.Get(ClaimTaskID, &taskID); err != nil {
		t.Fatalf("get %s claim: %v", ClaimTaskID, err)
	}
	if err := tok.Get(ClaimBodySHA256, &digest); err != nil {
		t.Fatalf("get %s claim: %v", ClaimBodySHA256, err)
	}
	sum := sha256.Sum256(req.body)
	if taskID != "t1" {
		t.Errorf("task_id claim = %q, want t1", taskID)
	}
	if want := hex.EncodeToString(sum[:]); digest != want {
		t.Errorf("body digest claim = %q, want %q", digest, want)
	}
}

func TestJWTSignerJWKSHandler(t *testing.T) {
	signer, err := GenerateJWTSigner("key-1", "")
	if err != nil {
		t.Fatalf("GenerateJWTSigner() error = %v", err)
	}
	rec := httptest.NewRecorder()
	signer.JWKSHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	set, err := jwk.Parse(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("jwk.Parse() error = %v", err)
	}
	if _, ok := set.LookupKeyID("key-1"); !ok {
		t.Error("published key set does not contain key-1")
	}
}

type recordingSender struct {
	mu    sync.Mutex
	sent  map[string]int
	fail  map[string]bool
	calls atomic.Int64
}

func (r *recordingSender) Send(ctx context.Context, task *a2a.Task, config *a2a.PushNotificationConfig) error {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string]int)
	}
	r.sent[task.ID+"/"+config.ID]++
	if r.fail[config.ID] {
		return errors.New("endpoint down")
	}
	return nil
}

func TestPushNotifierFansOut(t *testing.T) {
	store := NewInMemoryPushNotificationConfigStore()
	ctx := t.Context()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Set(ctx, "t1", &a2a.PushNotificationConfig{ID: id, URL: "https://hooks.example.com/" + id}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	sender := &recordingSender{fail: map[string]bool{"b": true}}
	n, err := NewPushNotifier(PushNotifierConfig{Store: store, Sender: sender, Concurrency: 2})
	if err != nil {
		t.Fatalf("NewPushNotifier() error = %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	n.Notify(cctx, newTestTask("t1", "c1", a2a.TaskStateWorking))
	n.Notify(cctx, newTestTask("t2", "c1", a2a.TaskStateWorking))
	cancel()
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := map[string]int{"t1/a": 1, "t1/b": 1, "t1/c": 1}
	if diff := cmp.Diff(want, sender.sent); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}

	n.Notify(ctx, newTestTask("t1", "c1", a2a.TaskStateCompleted))
	n.Wait()
	if got := sender.calls.Load(); got != 3 {
		t.Errorf("Notify after Close delivered; calls = %d, want 3", got)
	}
}

// orderSender records the states it delivers per task. The first delivery of
// slowTask blocks until release is closed.
type orderSender struct {
	slowTask string
	started  chan struct{}
	release  chan struct{}

	mu     sync.Mutex
	states map[string][]a2a.TaskState
	first  bool
}

func (s *orderSender) Send(ctx context.Context, task *a2a.Task, config *a2a.PushNotificationConfig) error {
	s.mu.Lock()
	block := task.ID == s.slowTask && !s.first
	if block {
		s.first = true
	}
	s.mu.Unlock()
	if block {
		close(s.started)
		<-s.release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = make(map[string][]a2a.TaskState)
	}
	s.states[task.ID] = append(s.states[task.ID], task.Status.State)
	return nil
}

func TestPushNotifierKeepsTaskOrder(t *testing.T) {
	ctx := t.Context()
	store := NewInMemoryPushNotificationConfigStore()
	for _, id := range []string{"t1", "t2"} {
		if _, err := store.Set(ctx, id, &a2a.PushNotificationConfig{URL: "https://hooks.example.com/" + id}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	sender := &orderSender{slowTask: "t1", started: make(chan struct{}), release: make(chan struct{})}
	n, err := NewPushNotifier(PushNotifierConfig{Store: store, Sender: sender})
	if err != nil {
		t.Fatalf("NewPushNotifier() error = %v", err)
	}

	n.Notify(ctx, newTestTask("t1", "c1", a2a.TaskStateWorking))
	<-sender.started
	n.Notify(ctx, newTestTask("t1", "c1", a2a.TaskStateInputRequired))
	n.Notify(ctx, newTestTask("t1", "c1", a2a.TaskStateCompleted))

	// Another task is not held up by the slow endpoint.
	n.Notify(ctx, newTestTask("t2", "c1", a2a.TaskStateCompleted))
	deadline := time.After(5 * time.Second)
	for {
		sender.mu.Lock()
		got := len(sender.states["t2"])
		sender.mu.Unlock()
		if got == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("t2 delivery waited for t1")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(sender.release)
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []a2a.TaskState{a2a.TaskStateWorking, a2a.TaskStateInputRequired, a2a.TaskStateCompleted}
	if diff := cmp.Diff(want, sender.states["t1"]); diff != "" {
		t.Errorf("t1 delivery order mismatch (-want +got):\n%s", diff)
	}
}
