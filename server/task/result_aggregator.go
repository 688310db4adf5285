// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/server/event"
)

// streamBuffer is how many persisted events may wait for a slow stream reader
// before persistence pauses.
const streamBuffer = 16

// ResultAggregatorConfig holds configuration for ResultAggregator.
type ResultAggregatorConfig struct {
	Manager *Manager
	TaskID  string

	// InitialMessage lets the first event of a new task create it. It is
	// dropped once the task was persisted, so a task deleted during the
	// session is not recreated.
	InitialMessage *a2a.Message

	// Notifier receives every persisted snapshot. Optional.
	Notifier *PushNotifier

	Logger *slog.Logger
}

// ResultAggregator drives one session's event consumer, persisting every
// event through the Manager in order, and reduces the stream to a result.
type ResultAggregator struct {
	manager  *Manager
	taskID   string
	initial  *a2a.Message
	notifier *PushNotifier
	logger   *slog.Logger

	mu      sync.Mutex
	task    *a2a.Task
	message *a2a.Message
	err     error
	changed chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewResultAggregator creates a new ResultAggregator.
func NewResultAggregator(config ResultAggregatorConfig) (*ResultAggregator, error) {
	if config.Manager == nil {
		return nil, errors.New("task manager cannot be nil")
	}
	if config.TaskID == "" {
		return nil, errors.New("task ID cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &ResultAggregator{
		manager:  config.Manager,
		taskID:   config.TaskID,
		initial:  config.InitialMessage,
		notifier: config.Notifier,
		logger:   config.Logger,
		changed:  make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Done is closed once the aggregator stopped consuming, including any
// consumption continued in the background.
func (a *ResultAggregator) Done() <-chan struct{} {
	return a.done
}

// Err returns the error that stopped consumption, if any.
func (a *ResultAggregator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Result returns the latest result: the last persisted task, or the message
// reply when no task was produced. It is nil before the first event.
func (a *ResultAggregator) Result() a2a.SendMessageResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.message != nil && a.task == nil {
		return a.message
	}
	if a.task != nil {
		return a.task.Clone()
	}
	return nil
}

func (a *ResultAggregator) finish(err error) {
	a.doneOnce.Do(func() {
		a.mu.Lock()
		a.err = err
		a.mu.Unlock()
		close(a.done)
	})
}

// Wait blocks until cond holds for the latest result, consumption ends, or
// ctx is done. When consumption ends first Wait returns the final result, or
// the error that stopped consumption.
func (a *ResultAggregator) Wait(ctx context.Context, cond func(a2a.SendMessageResult) bool) (a2a.SendMessageResult, error) {
	for {
		a.mu.Lock()
		changed := a.changed
		a.mu.Unlock()

		if res := a.Result(); res != nil && cond(res) {
			return res, nil
		}
		select {
		case <-changed:
		case <-a.done:
			if err := a.Err(); err != nil {
				return nil, err
			}
			return a.result()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// process persists one event.
func (a *ResultAggregator) process(ctx context.Context, ev a2a.Event) error {
	if msg, ok := ev.(*a2a.Message); ok {
		a.mu.Lock()
		a.message = msg
		a.broadcast()
		a.mu.Unlock()
		return nil
	}

	a.mu.Lock()
	initial := a.initial
	a.mu.Unlock()
	var opts []ProcessOption
	if initial != nil {
		opts = append(opts, WithInitialMessage(initial))
	}

	t, err := a.manager.Process(ctx, a.taskID, ev, opts...)
	if err != nil {
		return err
	}
	a.notifier.Notify(ctx, t)
	a.mu.Lock()
	a.task = t
	if t != nil {
		a.initial = nil
	}
	a.broadcast()
	a.mu.Unlock()
	return nil
}

// broadcast wakes every Wait call. a.mu must be held.
func (a *ResultAggregator) broadcast() {
	close(a.changed)
	a.changed = make(chan struct{})
}

func (a *ResultAggregator) result() (a2a.SendMessageResult, error) {
	if r := a.Result(); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: stream ended without a result for task %s", a2a.ErrQueueClosed, a.taskID)
}

// ConsumeAll drains c to its end and returns the final task, or the message
// when the agent replied with one.
func (a *ResultAggregator) ConsumeAll(ctx context.Context, c *event.EventConsumer) (res a2a.SendMessageResult, err error) {
	defer func() { a.finish(err) }()

	for ev, err := range c.Events(ctx) {
		if err != nil {
			return nil, err
		}
		if err := a.process(ctx, ev); err != nil {
			return nil, err
		}
		if msg, ok := ev.(*a2a.Message); ok {
			return msg, nil
		}
	}
	return a.result()
}

// ConsumeAndBreakOnInterrupt drains c until there is something to return.
//
// It returns early with interrupted set when the task pauses for input or
// authentication, or, if blocking is false, as soon as the task exists. The
// rest of the stream is then consumed and persisted in the background,
// detached from ctx; Done reports when that finishes. The same happens when
// ctx ends first, in which case ctx's error is returned.
func (a *ResultAggregator) ConsumeAndBreakOnInterrupt(ctx context.Context, c *event.EventConsumer, blocking bool) (res a2a.SendMessageResult, interrupted bool, err error) {
	pctx := context.WithoutCancel(ctx)
	next, stop := iter.Pull2(c.Events(ctx))
	for {
		ev, err, ok := next()
		if !ok {
			stop()
			res, err := a.result()
			a.finish(err)
			return res, false, err
		}
		if err != nil && ctx.Err() != nil {
			stop()
			go a.continueConsuming(pctx, c)
			return nil, false, err
		}
		if err == nil {
			err = a.process(pctx, ev)
		}
		if err != nil {
			stop()
			a.finish(err)
			return nil, false, err
		}
		if msg, ok := ev.(*a2a.Message); ok {
			stop()
			a.finish(nil)
			return msg, false, nil
		}

		interrupt := isInterrupt(ev) || !blocking
		if !interrupt || a2a.IsFinal(ev) {
			continue
		}
		stop()
		res := a.Result()
		go a.continueConsuming(pctx, c)
		return res, true, nil
	}
}

func (a *ResultAggregator) continueConsuming(ctx context.Context, c *event.EventConsumer) {
	for ev, err := range c.Events(ctx) {
		if err == nil {
			err = a.process(ctx, ev)
		}
		if err != nil {
			a.logger.ErrorContext(ctx, "background event processing failed",
				slog.String("task_id", a.taskID),
				slog.Any("error", err),
			)
			a.finish(err)
			return
		}
	}
	a.finish(nil)
}

func isInterrupt(ev a2a.Event) bool {
	switch v := ev.(type) {
	case *a2a.TaskStatusUpdateEvent:
		return v.Status.State.IsInterrupted()
	case *a2a.Task:
		return v.Status.State.IsInterrupted()
	default:
		return false
	}
}

type streamItem struct {
	ev  a2a.Event
	err error
}

// Stream returns the session's events, each yielded only after it was
// persisted. Persistence runs on its own goroutine detached from ctx: if the
// reader stops early the rest of the stream is still persisted.
func (a *ResultAggregator) Stream(ctx context.Context, c *event.EventConsumer) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		out := make(chan streamItem, streamBuffer)
		gone := make(chan struct{})
		defer close(gone)

		go a.persist(context.WithoutCancel(ctx), c, out, gone)

		for {
			select {
			case it, ok := <-out:
				if !ok {
					return
				}
				if !yield(it.ev, it.err) || it.err != nil {
					return
				}
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
		}
	}
}

func (a *ResultAggregator) persist(ctx context.Context, c *event.EventConsumer, out chan<- streamItem, gone <-chan struct{}) {
	defer close(out)
	send := func(it streamItem) {
		select {
		case out <- it:
		case <-gone:
		}
	}
	for ev, err := range c.Events(ctx) {
		if err == nil {
			err = a.process(ctx, ev)
		}
		if err != nil {
			a.finish(err)
			send(streamItem{err: err})
			return
		}
		send(streamItem{ev: ev})
	}
	a.finish(nil)
}
