// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/go-a2a/a2a-runtime"
)

// EventConsumer drains one [Tap].
//
// The sequence it yields ends when the queue closes, after a final event (see
// [a2a.IsFinal]), or when the consumer is detached.
type EventConsumer struct {
	tap    *Tap
	logger *slog.Logger

	mu       sync.Mutex
	agentErr error
	failed   chan struct{}
	finished bool
}

// ConsumerOption configures an [EventConsumer].
type ConsumerOption func(*EventConsumer)

// WithConsumerLogger sets the logger.
func WithConsumerLogger(l *slog.Logger) ConsumerOption {
	return func(c *EventConsumer) {
		c.logger = l
	}
}

// NewEventConsumer returns a consumer reading from tap.
func NewEventConsumer(tap *Tap, opts ...ConsumerOption) *EventConsumer {
	c := &EventConsumer{
		tap:    tap,
		logger: slog.Default(),
		failed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAgentError records that the producing executor failed. Once buffered
// events are drained the consumer reports err instead of end of stream. Only
// the first error is kept.
func (c *EventConsumer) SetAgentError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentErr != nil {
		return
	}
	c.agentErr = err
	close(c.failed)
}

// AgentError returns the error recorded by SetAgentError.
func (c *EventConsumer) AgentError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentErr
}

// Next returns the next event.
//
// A positive timeout bounds the wait; when it elapses Next returns
// [a2a.ErrTimeout] and the consumer stays usable. At end of stream Next
// returns [a2a.ErrQueueClosed], or the agent error if one was recorded.
func (c *EventConsumer) Next(ctx context.Context, timeout time.Duration) (a2a.Event, error) {
	c.mu.Lock()
	finished := c.finished
	c.mu.Unlock()
	if finished {
		return nil, a2a.ErrQueueClosed
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ev, ok := <-c.tap.Events():
		return c.received(ev, ok)
	case <-c.failed:
		select {
		case ev, ok := <-c.tap.Events():
			return c.received(ev, ok)
		default:
			c.finish()
			return nil, c.AgentError()
		}
	case <-c.tap.Detached():
		c.finish()
		return nil, a2a.ErrQueueClosed
	case <-expired:
		return nil, a2a.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *EventConsumer) received(ev a2a.Event, ok bool) (a2a.Event, error) {
	if !ok {
		c.finish()
		if err := c.AgentError(); err != nil {
			return nil, err
		}
		return nil, a2a.ErrQueueClosed
	}
	if a2a.IsFinal(ev) {
		c.finish()
	}
	return ev, nil
}

func (c *EventConsumer) finish() {
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
}

// Events returns the lazy event sequence. A non-nil error is always the last
// element. Breaking out of the loop leaves the consumer attached; call Detach
// to stop delivery.
func (c *EventConsumer) Events(ctx context.Context) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		for {
			ev, err := c.Next(ctx, 0)
			if errors.Is(err, a2a.ErrQueueClosed) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// ConsumeAll drains the sequence and returns every event in order.
func (c *EventConsumer) ConsumeAll(ctx context.Context) ([]a2a.Event, error) {
	var events []a2a.Event
	for ev, err := range c.Events(ctx) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Detach stops draining. The queue and its other taps are not affected.
func (c *EventConsumer) Detach() {
	c.tap.Detach()
	c.logger.Debug("event consumer detached", slog.String("task_id", c.tap.q.TaskID()))
}
