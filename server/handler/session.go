// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/server/event"
	"github.com/go-a2a/a2a-runtime/server/task"
)

// session is the active processing of one task: its event queue, the single
// aggregator persisting what is published to it, and the executor calls
// publishing.
//
// The queue is closed when the last execution returns or when the
// aggregator stops consuming, whichever comes first.
type session struct {
	taskID   string
	queue    *event.EventQueue
	agg      *task.ResultAggregator
	consumer *event.EventConsumer

	mu      sync.Mutex
	execs   map[*execution]struct{}
	drained bool
}

type execution struct {
	cancel context.CancelFunc
}

// track registers an execution. The returned release reports whether it was
// the last one, after which the session accepts no more executions and ok is
// false.
func (s *session) track(ex *execution) (release func() bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drained {
		return nil, false
	}
	s.execs[ex] = struct{}{}
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.execs, ex)
		if len(s.execs) == 0 {
			s.drained = true
		}
		return s.drained
	}, true
}

func (s *session) active() bool {
	select {
	case <-s.agg.Done():
		return false
	default:
		return !s.queue.IsClosed() && !s.queue.Finished()
	}
}

// cancelExecutions cancels the context of every running Execute call.
func (s *session) cancelExecutions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ex := range s.execs {
		if ex.cancel != nil {
			ex.cancel()
		}
	}
}

// openSession returns the active session of taskID, or opens one. A new
// session's aggregator creates the task from initial when it does not exist.
//
// The session is returned held: it stays open at least until hold is passed
// to release. The caller opening a session must drive its aggregator. When
// observe is set a tap is attached to the queue before anything else can be
// published.
func (h *DefaultRequestHandler) openSession(taskID string, initial *a2a.Message, observe bool) (s *session, opened bool, tap *event.Tap, hold func() bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[taskID]; ok {
		if s.active() {
			if hold, ok := s.track(&execution{}); ok {
				if observe {
					tap = s.queue.Tap()
				}
				return s, false, tap, hold, nil
			}
		}
		h.queues.Close(s.queue)
	}

	agg, err := task.NewResultAggregator(task.ResultAggregatorConfig{
		Manager:        h.manager,
		TaskID:         taskID,
		InitialMessage: initial,
		Notifier:       h.notifier,
		Logger:         h.logger,
	})
	if err != nil {
		return nil, false, nil, nil, err
	}
	q, persisted, created := h.queues.CreateOrTap(taskID)
	if !created {
		// The queue outlived its session; it must not carry the new one.
		h.queues.Close(q)
		q, persisted, _ = h.queues.CreateOrTap(taskID)
	}
	s = &session{
		taskID:   taskID,
		queue:    q,
		agg:      agg,
		consumer: event.NewEventConsumer(persisted, event.WithConsumerLogger(h.logger)),
		execs:    make(map[*execution]struct{}),
	}
	h.sessions[taskID] = s
	hold, _ = s.track(&execution{})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-agg.Done()
		h.endSession(s)
	}()

	h.logger.Info("task session opened", slog.String("task_id", taskID))
	return s, true, nil, hold, nil
}

// release drops an execution or hold, closing the queue after the last one.
func (h *DefaultRequestHandler) release(s *session, release func() bool) {
	if release() {
		h.queues.Close(s.queue)
	}
}

func (h *DefaultRequestHandler) endSession(s *session) {
	h.mu.Lock()
	if h.sessions[s.taskID] == s {
		delete(h.sessions, s.taskID)
	}
	// Closed under h.mu so that openSession never taps this queue.
	h.queues.Close(s.queue)
	h.mu.Unlock()

	if err := s.agg.Err(); err != nil {
		s.cancelExecutions()
		h.logger.Error("task session failed",
			slog.String("task_id", s.taskID),
			slog.Any("error", err),
		)
	}
	h.logger.Info("task session closed", slog.String("task_id", s.taskID))
}

// startExecution runs fn in the background on a context detached from ctx and
// cancelled by cancel-task. A failure of fn fails the task through the
// session queue, so the aggregator persists it and subscribers observe it.
// The caller must hold s.
func (h *DefaultRequestHandler) startExecution(ctx context.Context, s *session, contextID string, fn func(context.Context) error) {
	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ex := &execution{cancel: cancel}
	release, ok := s.track(ex)
	if !ok {
		cancel()
		s.consumer.SetAgentError(fmt.Errorf("task %s: session ended before execution started", s.taskID))
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()

		err := runExecutor(execCtx, fn)
		canceled := errors.Is(err, context.Canceled) && execCtx.Err() != nil
		if err != nil && !canceled {
			h.logger.ErrorContext(execCtx, "agent executor failed",
				slog.String("task_id", s.taskID),
				slog.Any("error", err),
			)
			if perr := h.publishFailed(execCtx, s, contextID); perr != nil {
				s.consumer.SetAgentError(errors.Join(err, perr))
			}
		}
		h.release(s, release)
	}()
}

// publishFailed publishes a failed status for the session's task unless the
// session already produced its final result.
func (h *DefaultRequestHandler) publishFailed(ctx context.Context, s *session, contextID string) error {
	switch r := s.agg.Result().(type) {
	case *a2a.Message:
		return nil
	case *a2a.Task:
		if r.Status.State.IsTerminal() {
			return nil
		}
		contextID = r.ContextID
	}
	u, err := task.NewTaskUpdater(task.TaskUpdaterConfig{
		TaskID:    s.taskID,
		ContextID: contextID,
		Queue:     s.queue,
	})
	if err != nil {
		return err
	}
	err = u.Fail(ctx, u.NewAgentMessage([]a2a.Part{a2a.NewTextPart("agent execution failed")}, nil))
	if errors.Is(err, a2a.ErrQueueClosed) {
		// The session already ended on another final event.
		return nil
	}
	return err
}

func runExecutor(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent executor panicked: %v", r)
		}
	}()
	return fn(ctx)
}
