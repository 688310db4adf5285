// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides the per-task event plumbing between an agent
// executor and the components that fold and deliver its output.
package event

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/telemetry"
)

// DefaultMaxQueueSize is the per-tap buffer size used when none is configured.
const DefaultMaxQueueSize = 1024

// OverflowPolicy decides what Enqueue does when a tap's buffer is full.
type OverflowPolicy int

const (
	// OverflowBlock makes the producer wait until the slow tap drains, detaches,
	// the queue closes, or the producer's context is done.
	OverflowBlock OverflowPolicy = iota

	// OverflowDropOldest discards the oldest buffered event of the slow tap.
	OverflowDropOldest
)

// String implements [fmt.Stringer].
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses the names returned by [OverflowPolicy.String].
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "block":
		return OverflowBlock, nil
	case "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return 0, errors.New("unknown overflow policy " + s)
	}
}

// QueueOption configures an [EventQueue].
type QueueOption func(*EventQueue)

// WithMaxQueueSize sets the buffer size of each tap.
func WithMaxQueueSize(n int) QueueOption {
	return func(q *EventQueue) {
		if n > 0 {
			q.maxSize = n
		}
	}
}

// WithOverflowPolicy sets the policy applied to slow taps.
func WithOverflowPolicy(p OverflowPolicy) QueueOption {
	return func(q *EventQueue) {
		q.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *EventQueue) {
		q.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) QueueOption {
	return func(q *EventQueue) {
		q.metrics = m
	}
}

// EventQueue is an ordered broadcast channel scoped to one task session.
//
// Events reach every [Tap] that existed when they were enqueued, in enqueue
// order. A tap never sees events enqueued before it was created.
type EventQueue struct {
	taskID  string
	maxSize int
	policy  OverflowPolicy
	logger  *slog.Logger
	metrics *telemetry.Metrics

	// enqMu serializes producers so every tap sees the same order.
	enqMu sync.Mutex

	mu     sync.Mutex
	taps   []*Tap
	closed bool
	final  bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewEventQueue returns an open queue for taskID.
func NewEventQueue(taskID string, opts ...QueueOption) *EventQueue {
	q := &EventQueue{
		taskID:  taskID,
		maxSize: DefaultMaxQueueSize,
		policy:  OverflowBlock,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// TaskID returns the task the queue belongs to.
func (q *EventQueue) TaskID() string { return q.taskID }

// Enqueue publishes ev to every current tap. Each tap receives its own copy.
//
// It returns [a2a.ErrQueueClosed] once the queue is closed. Under
// [OverflowBlock] it may wait for a slow tap and returns ctx.Err() if ctx ends
// first; taps served before that point keep the event.
func (q *EventQueue) Enqueue(ctx context.Context, ev a2a.Event) error {
	if ev == nil {
		return errors.New("event cannot be nil")
	}

	q.enqMu.Lock()
	defer q.enqMu.Unlock()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return a2a.ErrQueueClosed
	}
	if a2a.IsFinal(ev) {
		q.final = true
	}
	taps := slices.Clone(q.taps)
	q.mu.Unlock()

	for _, t := range taps {
		if err := q.deliver(ctx, t, a2a.CloneEvent(ev)); err != nil {
			return err
		}
	}
	return nil
}

func (q *EventQueue) deliver(ctx context.Context, t *Tap, ev a2a.Event) error {
	select {
	case t.ch <- ev:
		return nil
	case <-t.detached:
		return nil
	default:
	}

	if q.policy == OverflowDropOldest {
		for {
			select {
			case t.ch <- ev:
				return nil
			default:
			}
			select {
			case dropped := <-t.ch:
				q.metrics.QueueDropped()
				q.logger.Warn("dropped event from slow consumer",
					slog.String("task_id", q.taskID),
					slog.String("event_kind", string(dropped.Kind())))
			default:
			}
		}
	}

	select {
	case t.ch <- ev:
		return nil
	case <-t.detached:
		return nil
	case <-q.done:
		return a2a.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tap returns a new consumer handle that receives events enqueued from now on.
// Tapping a closed queue returns a handle that is already at end of stream.
func (q *EventQueue) Tap() *Tap {
	t := &Tap{
		q:        q,
		ch:       make(chan a2a.Event, q.maxSize),
		detached: make(chan struct{}),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		close(t.ch)
		return t
	}
	q.taps = append(q.taps, t)
	return t
}

// Close ends the stream. Taps observe end of stream after draining what is
// already buffered. Close is idempotent.
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		// Release producers blocked on a slow tap, then wait for them to leave.
		close(q.done)
		q.enqMu.Lock()
		defer q.enqMu.Unlock()

		q.mu.Lock()
		defer q.mu.Unlock()
		for _, t := range q.taps {
			close(t.ch)
		}
		q.taps = nil

		q.logger.Debug("event queue closed", slog.String("task_id", q.taskID))
	})
}

// IsClosed reports whether Close was called.
func (q *EventQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Finished reports whether a final event (see [a2a.IsFinal]) was enqueued.
// Consumers stop at the first one, so later events reach no consumer that
// was attached before it.
func (q *EventQueue) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.final
}

// TapCount returns the number of attached taps.
func (q *EventQueue) TapCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.taps)
}

func (q *EventQueue) remove(t *Tap) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := slices.Index(q.taps, t); i >= 0 {
		q.taps = slices.Delete(q.taps, i, i+1)
	}
}

// Tap is one independent read cursor on an [EventQueue].
type Tap struct {
	q        *EventQueue
	ch       chan a2a.Event
	detached chan struct{}
	once     sync.Once
}

// Events returns the channel of events. It is closed at end of stream.
func (t *Tap) Events() <-chan a2a.Event { return t.ch }

// Detached is closed once Detach was called.
func (t *Tap) Detached() <-chan struct{} { return t.detached }

// Detach stops delivery to this tap without affecting the queue or other
// taps. Detach is idempotent.
func (t *Tap) Detach() {
	t.once.Do(func() {
		close(t.detached)
		t.q.remove(t)
	})
}
