// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package handler implements the transport-independent operations of an A2A
// server on top of the task lifecycle components.
package handler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/keylock"
	"github.com/go-a2a/a2a-runtime/internal/telemetry"
	"github.com/go-a2a/a2a-runtime/server/agent_execution"
	"github.com/go-a2a/a2a-runtime/server/event"
	"github.com/go-a2a/a2a-runtime/server/task"
)

const tracerName = "github.com/go-a2a/a2a-runtime/server/handler"

// RequestHandler defines the operations a protocol binding exposes.
type RequestHandler interface {
	// OnSendMessage sends a message and returns the resulting task, or the
	// agent's message reply. Unless the configuration disables blocking, it
	// waits until the task is terminal or needs client input.
	OnSendMessage(ctx context.Context, params *a2a.MessageSendParams) (a2a.SendMessageResult, error)

	// OnSendMessageStream sends a message and streams the events of the task.
	OnSendMessageStream(ctx context.Context, params *a2a.MessageSendParams) iter.Seq2[a2a.Event, error]

	// OnGetTask returns a task snapshot.
	OnGetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error)

	// OnListTasks returns one page of tasks.
	OnListTasks(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error)

	// OnCancelTask cancels a task and returns its canceled snapshot.
	OnCancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error)

	// OnResubscribeToTask streams the current task snapshot followed by the
	// live events of its active session.
	OnResubscribeToTask(ctx context.Context, params *a2a.TaskIDParams) iter.Seq2[a2a.Event, error]

	// OnDeleteTask deletes a task together with its push notification configs.
	OnDeleteTask(ctx context.Context, params *a2a.TaskIDParams) error

	OnSetTaskPushNotificationConfig(ctx context.Context, params *a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error)
	OnGetTaskPushNotificationConfig(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (*a2a.TaskPushNotificationConfig, error)
	OnListTaskPushNotificationConfig(ctx context.Context, params *a2a.TaskIDParams) ([]*a2a.TaskPushNotificationConfig, error)
	OnDeleteTaskPushNotificationConfig(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) error
}

// DefaultRequestHandler runs an [agent_execution.AgentExecutor] and keeps its
// tasks in a [task.TaskStore].
//
// Each task has at most one active session. Sends to a task whose session is
// still active join it: their executor publishes to the same queue and the
// session's aggregator stays the only writer.
type DefaultRequestHandler struct {
	executor    agent_execution.AgentExecutor
	store       task.TaskStore
	manager     *task.Manager
	pushConfigs task.PushNotificationConfigStore
	notifier    *task.PushNotifier
	queues      *event.QueueManager
	builder     agent_execution.RequestContextBuilder
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *telemetry.Metrics

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

var _ RequestHandler = (*DefaultRequestHandler)(nil)

// NewDefaultRequestHandler creates a new DefaultRequestHandler.
func NewDefaultRequestHandler(executor agent_execution.AgentExecutor, store task.TaskStore, opts ...Option) (*DefaultRequestHandler, error) {
	if executor == nil {
		return nil, errors.New("agent executor cannot be nil")
	}
	if store == nil {
		return nil, errors.New("task store cannot be nil")
	}
	h := &DefaultRequestHandler{
		executor: executor,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.queues == nil {
		h.queues = event.NewQueueManager(event.QueueManagerConfig{
			Logger:  h.logger,
			Metrics: h.metrics,
		})
	}
	if h.builder == nil {
		h.builder = agent_execution.NewSimpleRequestContextBuilder(
			agent_execution.WithRelatedTasks(store),
			agent_execution.WithBuilderLogger(h.logger),
		)
	}

	manager, err := task.NewManager(task.ManagerConfig{
		Store:   store,
		Locks:   keylock.New(),
		Logger:  h.logger,
		Metrics: h.metrics,
	})
	if err != nil {
		return nil, err
	}
	h.manager = manager
	return h, nil
}

func (h *DefaultRequestHandler) startSpan(ctx context.Context, op, taskID string) (context.Context, trace.Span) {
	ctx, span := h.tracer.Start(ctx, "a2a.handler."+op, trace.WithSpanKind(trace.SpanKindServer))
	if taskID != "" {
		span.SetAttributes(attribute.String("a2a.task_id", taskID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// send is a message accepted into a session.
type send struct {
	session *session
	opened  bool
	tap     *event.Tap

	// current is the task the message was appended to, nil for a new task.
	current *a2a.Task
}

// startSend records the message and starts the executor on it.
func (h *DefaultRequestHandler) startSend(ctx context.Context, params *a2a.MessageSendParams, observe bool) (*send, error) {
	if params == nil {
		return nil, invalidParams("message send params are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	msg := params.Message

	var cur *a2a.Task
	if msg.TaskID != "" {
		var err error
		cur, err = h.manager.AppendMessage(ctx, msg.TaskID, msg)
		if err != nil {
			return nil, err
		}
	}

	rc, err := h.builder.Build(ctx, params, msg.TaskID, msg.ContextID, cur)
	if err != nil {
		return nil, err
	}
	taskID, contextID := rc.TaskID(), rc.ContextID()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("a2a.task_id", taskID),
		attribute.String("a2a.context_id", contextID),
	)

	if params.Configuration != nil && params.Configuration.PushNotificationConfig != nil {
		if h.pushConfigs == nil {
			return nil, errPushNotSupported
		}
		if _, err := h.pushConfigs.Set(ctx, taskID, params.Configuration.PushNotificationConfig); err != nil {
			return nil, err
		}
	}

	var initial *a2a.Message
	if cur == nil {
		initial = msg.Clone()
		initial.TaskID = taskID
		initial.ContextID = contextID
	}
	s, opened, tap, hold, err := h.openSession(taskID, initial, observe)
	if err != nil {
		return nil, err
	}
	h.startExecution(ctx, s, contextID, func(ctx context.Context) error {
		return h.executor.Execute(ctx, rc, s.queue)
	})
	h.release(s, hold)
	h.logger.DebugContext(ctx, "message accepted",
		slog.String("task_id", taskID),
		slog.String("context_id", contextID),
		slog.Bool("joined", !opened),
	)
	return &send{session: s, opened: opened, tap: tap, current: cur}, nil
}

// OnSendMessage implements [RequestHandler].
func (h *DefaultRequestHandler) OnSendMessage(ctx context.Context, params *a2a.MessageSendParams) (_ a2a.SendMessageResult, err error) {
	ctx, span := h.startSpan(ctx, "OnSendMessage", "")
	defer func() { endSpan(span, err) }()

	sd, err := h.startSend(ctx, params, false)
	if err != nil {
		return nil, err
	}

	var res a2a.SendMessageResult
	switch {
	case sd.opened:
		res, _, err = sd.session.agg.ConsumeAndBreakOnInterrupt(ctx, sd.session.consumer, params.IsBlocking())
	case !params.IsBlocking() && sd.current != nil:
		res = sd.current
	default:
		var rev int64
		if sd.current != nil {
			rev = sd.current.Revision()
		}
		res, err = sd.session.agg.Wait(ctx, func(r a2a.SendMessageResult) bool {
			t, ok := r.(*a2a.Task)
			if !ok {
				return true
			}
			return t.Revision() > rev && (t.Status.State.IsTerminal() || t.Status.State.IsInterrupted())
		})
	}
	if err != nil {
		return nil, err
	}
	if t, ok := res.(*a2a.Task); ok {
		t.TrimHistory(params.HistoryLength())
	}
	return res, nil
}

// OnSendMessageStream implements [RequestHandler].
//
// A caller opening the session receives each event after it was persisted.
// A caller joining an active session observes the events as published.
func (h *DefaultRequestHandler) OnSendMessageStream(ctx context.Context, params *a2a.MessageSendParams) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		var err error
		ctx, span := h.startSpan(ctx, "OnSendMessageStream", "")
		defer func() { endSpan(span, err) }()

		sd, err := h.startSend(ctx, params, true)
		if err != nil {
			yield(nil, err)
			return
		}

		events := sd.session.agg.Stream(ctx, sd.session.consumer)
		if !sd.opened {
			c := event.NewEventConsumer(sd.tap, event.WithConsumerLogger(h.logger))
			defer c.Detach()
			events = c.Events(ctx)
		}
		for ev, e := range events {
			if e != nil {
				err = e
			}
			if !yield(ev, e) {
				return
			}
		}
	}
}

// OnGetTask implements [RequestHandler].
func (h *DefaultRequestHandler) OnGetTask(ctx context.Context, params *a2a.TaskQueryParams) (_ *a2a.Task, err error) {
	if params == nil || params.ID == "" {
		return nil, invalidParams("task id is required")
	}
	ctx, span := h.startSpan(ctx, "OnGetTask", params.ID)
	defer func() { endSpan(span, err) }()

	if params.HistoryLength != nil && *params.HistoryLength < 0 {
		return nil, invalidParams("history length must not be negative")
	}
	t, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if params.HistoryLength != nil {
		t.TrimHistory(*params.HistoryLength)
	}
	return t, nil
}

// OnListTasks implements [RequestHandler].
func (h *DefaultRequestHandler) OnListTasks(ctx context.Context, params *a2a.ListTasksParams) (_ *a2a.ListTasksResult, err error) {
	ctx, span := h.startSpan(ctx, "OnListTasks", "")
	defer func() { endSpan(span, err) }()

	if params == nil {
		params = &a2a.ListTasksParams{}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	res, err := h.store.List(ctx, params)
	if err != nil {
		return nil, err
	}
	if params.HistoryLength != nil {
		for _, t := range res.Tasks {
			t.TrimHistory(*params.HistoryLength)
		}
	}
	return res, nil
}

// OnCancelTask implements [RequestHandler].
//
// Running executions of the task have their context cancelled, then the
// executor's Cancel is called with the session queue. If it publishes no
// terminal status, a canceled status is published on its behalf.
func (h *DefaultRequestHandler) OnCancelTask(ctx context.Context, params *a2a.TaskIDParams) (_ *a2a.Task, err error) {
	if params == nil || params.ID == "" {
		return nil, invalidParams("task id is required")
	}
	ctx, span := h.startSpan(ctx, "OnCancelTask", params.ID)
	defer func() { endSpan(span, err) }()

	cur, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if cur.Status.State.IsTerminal() {
		return nil, notCancelable(cur.ID, cur.Status.State)
	}

	s, opened, _, hold, err := h.openSession(cur.ID, nil, false)
	if err != nil {
		return nil, err
	}
	if opened {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			s.agg.ConsumeAll(context.WithoutCancel(ctx), s.consumer)
		}()
	}
	s.cancelExecutions()

	watch := s.queue.Tap()
	rc := agent_execution.NewRequestContext(nil, cur.ID, cur.ContextID, cur)
	cancelErr := runExecutor(ctx, func(ctx context.Context) error {
		return h.executor.Cancel(ctx, rc, s.queue)
	})
	published := drainForTerminal(watch)
	watch.Detach()
	if cancelErr == nil && !published {
		cancelErr = h.publishCanceled(ctx, cur, s.queue)
	}
	h.release(s, hold)
	if cancelErr != nil {
		return nil, fmt.Errorf("cancel task %s: %w", cur.ID, cancelErr)
	}

	res, err := s.agg.Wait(ctx, func(r a2a.SendMessageResult) bool {
		t, ok := r.(*a2a.Task)
		return ok && t.Status.State.IsTerminal()
	})
	if err != nil {
		return nil, err
	}
	t, ok := res.(*a2a.Task)
	if !ok {
		if t, err = h.store.Get(ctx, cur.ID); err != nil {
			return nil, err
		}
	}
	if t.Status.State != a2a.TaskStateCanceled {
		return nil, notCancelable(t.ID, t.Status.State)
	}
	h.logger.InfoContext(ctx, "task canceled", slog.String("task_id", t.ID))
	return t, nil
}

func (h *DefaultRequestHandler) publishCanceled(ctx context.Context, cur *a2a.Task, q *event.EventQueue) error {
	u, err := task.NewTaskUpdater(task.TaskUpdaterConfig{
		TaskID:    cur.ID,
		ContextID: cur.ContextID,
		Queue:     q,
	})
	if err != nil {
		return err
	}
	err = u.Cancel(ctx, nil)
	if errors.Is(err, a2a.ErrQueueClosed) {
		// The session already ended on another final event.
		return nil
	}
	return err
}

// drainForTerminal reports whether a terminal status is among the events
// already buffered on tap.
func drainForTerminal(tap *event.Tap) bool {
	for {
		select {
		case ev, ok := <-tap.Events():
			if !ok {
				return false
			}
			if isTerminal(ev) {
				return true
			}
		default:
			return false
		}
	}
}

func isTerminal(ev a2a.Event) bool {
	switch v := ev.(type) {
	case *a2a.TaskStatusUpdateEvent:
		return v.Status.State.IsTerminal()
	case *a2a.Task:
		return v.Status.State.IsTerminal()
	default:
		return false
	}
}

// OnResubscribeToTask implements [RequestHandler].
//
// Subscribers only observe: events are persisted by the session that
// published them.
func (h *DefaultRequestHandler) OnResubscribeToTask(ctx context.Context, params *a2a.TaskIDParams) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		if params == nil || params.ID == "" {
			yield(nil, invalidParams("task id is required"))
			return
		}
		var err error
		ctx, span := h.startSpan(ctx, "OnResubscribeToTask", params.ID)
		defer func() { endSpan(span, err) }()

		// Tap before reading the snapshot so no event falls in between.
		tap, tapErr := h.queues.Tap(params.ID)
		if tapErr == nil {
			defer tap.Detach()
		}

		t, err := h.store.Get(ctx, params.ID)
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(t, nil) || tapErr != nil || t.Status.State.IsTerminal() {
			return
		}

		c := event.NewEventConsumer(tap, event.WithConsumerLogger(h.logger))
		for ev, e := range c.Events(ctx) {
			if e != nil {
				err = e
			}
			if !yield(ev, e) {
				return
			}
		}
	}
}

// OnDeleteTask implements [RequestHandler]. An active session of the task
// fails on its next event.
func (h *DefaultRequestHandler) OnDeleteTask(ctx context.Context, params *a2a.TaskIDParams) (err error) {
	if params == nil || params.ID == "" {
		return invalidParams("task id is required")
	}
	ctx, span := h.startSpan(ctx, "OnDeleteTask", params.ID)
	defer func() { endSpan(span, err) }()

	if err := h.store.Delete(ctx, params.ID); err != nil {
		return err
	}
	if h.pushConfigs != nil {
		if err := h.pushConfigs.DeleteAll(ctx, params.ID); err != nil {
			return err
		}
	}
	h.logger.InfoContext(ctx, "task deleted", slog.String("task_id", params.ID))
	return nil
}

// taskExists fails with a2a.ErrTaskNotFound for unknown tasks.
func (h *DefaultRequestHandler) taskExists(ctx context.Context, taskID string) error {
	if taskID == "" {
		return invalidParams("task id is required")
	}
	_, err := h.store.Get(ctx, taskID)
	return err
}

func bindConfig(taskID string, cfg *a2a.PushNotificationConfig) *a2a.TaskPushNotificationConfig {
	return &a2a.TaskPushNotificationConfig{
		Name:                   a2a.PushNotificationConfigName(taskID, cfg.ID),
		TaskID:                 taskID,
		PushNotificationConfig: *cfg,
	}
}

// OnSetTaskPushNotificationConfig implements [RequestHandler].
func (h *DefaultRequestHandler) OnSetTaskPushNotificationConfig(ctx context.Context, params *a2a.TaskPushNotificationConfig) (_ *a2a.TaskPushNotificationConfig, err error) {
	if params == nil {
		return nil, invalidParams("push notification config is required")
	}
	ctx, span := h.startSpan(ctx, "OnSetTaskPushNotificationConfig", params.TaskID)
	defer func() { endSpan(span, err) }()

	if h.pushConfigs == nil {
		return nil, errPushNotSupported
	}
	if err := h.taskExists(ctx, params.TaskID); err != nil {
		return nil, err
	}
	stored, err := h.pushConfigs.Set(ctx, params.TaskID, &params.PushNotificationConfig)
	if err != nil {
		return nil, err
	}
	h.logger.DebugContext(ctx, "push notification config set",
		slog.String("task_id", params.TaskID),
		slog.String("config_id", stored.ID),
	)
	return bindConfig(params.TaskID, stored), nil
}

// OnGetTaskPushNotificationConfig implements [RequestHandler]. Without a
// config ID the task's first config is returned.
func (h *DefaultRequestHandler) OnGetTaskPushNotificationConfig(ctx context.Context, params *a2a.GetTaskPushNotificationConfigParams) (_ *a2a.TaskPushNotificationConfig, err error) {
	if params == nil {
		return nil, invalidParams("task id is required")
	}
	ctx, span := h.startSpan(ctx, "OnGetTaskPushNotificationConfig", params.ID)
	defer func() { endSpan(span, err) }()

	if h.pushConfigs == nil {
		return nil, errPushNotSupported
	}
	if err := h.taskExists(ctx, params.ID); err != nil {
		return nil, err
	}
	if params.PushNotificationConfigID != "" {
		cfg, err := h.pushConfigs.Get(ctx, params.ID, params.PushNotificationConfigID)
		if err != nil {
			return nil, err
		}
		return bindConfig(params.ID, cfg), nil
	}
	configs, err := h.pushConfigs.List(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("task %s: %w", params.ID, a2a.ErrPushNotificationConfigNotFound)
	}
	return bindConfig(params.ID, configs[0]), nil
}

// OnListTaskPushNotificationConfig implements [RequestHandler].
func (h *DefaultRequestHandler) OnListTaskPushNotificationConfig(ctx context.Context, params *a2a.TaskIDParams) (_ []*a2a.TaskPushNotificationConfig, err error) {
	if params == nil {
		return nil, invalidParams("task id is required")
	}
	ctx, span := h.startSpan(ctx, "OnListTaskPushNotificationConfig", params.ID)
	defer func() { endSpan(span, err) }()

	if h.pushConfigs == nil {
		return nil, errPushNotSupported
	}
	if err := h.taskExists(ctx, params.ID); err != nil {
		return nil, err
	}
	configs, err := h.pushConfigs.List(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*a2a.TaskPushNotificationConfig, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, bindConfig(params.ID, cfg))
	}
	return out, nil
}

// OnDeleteTaskPushNotificationConfig implements [RequestHandler].
func (h *DefaultRequestHandler) OnDeleteTaskPushNotificationConfig(ctx context.Context, params *a2a.DeleteTaskPushNotificationConfigParams) (err error) {
	if params == nil || params.PushNotificationConfigID == "" {
		return invalidParams("task id and push notification config id are required")
	}
	ctx, span := h.startSpan(ctx, "OnDeleteTaskPushNotificationConfig", params.ID)
	defer func() { endSpan(span, err) }()

	if h.pushConfigs == nil {
		return errPushNotSupported
	}
	if err := h.taskExists(ctx, params.ID); err != nil {
		return err
	}
	return h.pushConfigs.Delete(ctx, params.ID, params.PushNotificationConfigID)
}

// Shutdown cancels every running execution, closes all sessions and waits for
// background work to finish or ctx to end.
func (h *DefaultRequestHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for _, s := range h.sessions {
		s.cancelExecutions()
	}
	h.mu.Unlock()
	h.queues.CloseAll()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
