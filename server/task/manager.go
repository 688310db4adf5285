// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/keylock"
	"github.com/go-a2a/a2a-runtime/internal/telemetry"
)

// ManagerConfig holds configuration for Manager.
type ManagerConfig struct {
	Store TaskStore

	// Locks serializes writers per task ID. Managers sharing a store within a
	// process should share an arena. Defaults to a private one.
	Locks *keylock.Arena

	// Clock stamps status updates that carry no timestamp. Defaults to a2a.Now.
	Clock func() time.Time

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Manager is the only writer of tasks. It folds events into the stored task
// under a per-task lock, enforcing the state machine.
type Manager struct {
	store   TaskStore
	locks   *keylock.Arena
	clock   func() time.Time
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewManager creates a new Manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Store == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if config.Locks == nil {
		config.Locks = keylock.New()
	}
	if config.Clock == nil {
		config.Clock = a2a.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Manager{
		store:   config.Store,
		locks:   config.Locks,
		clock:   config.Clock,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Store returns the underlying task store.
func (m *Manager) Store() TaskStore {
	return m.store
}

type processOptions struct {
	initial *a2a.Message
}

// ProcessOption configures a single [Manager.Process] call.
type ProcessOption func(*processOptions)

// WithInitialMessage lets Process create the task in the submitted state, with
// msg as its first history entry, when the event addresses an unknown task.
func WithInitialMessage(msg *a2a.Message) ProcessOption {
	return func(o *processOptions) {
		o.initial = msg
	}
}

// Get returns the stored task.
func (m *Manager) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	return m.store.Get(ctx, taskID)
}

// Process folds ev into the task taskID and returns the updated snapshot.
//
// A rejected event leaves the stored task untouched. A message event carries
// no task state: Process returns the current task, or nil when none exists.
func (m *Manager) Process(ctx context.Context, taskID string, ev a2a.Event, opts ...ProcessOption) (_ *a2a.Task, err error) {
	defer func() { m.metrics.EventProcessed(string(ev.Kind()), err) }()

	var o processOptions
	for _, opt := range opts {
		opt(&o)
	}

	unlock, err := m.locks.Lock(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, ok := ev.(*a2a.Message); ok {
		t, err := m.store.Get(ctx, taskID)
		if errors.Is(err, a2a.ErrTaskNotFound) {
			return nil, nil
		}
		return t, err
	}

	info := ev.TaskInfo()
	if info.TaskID != taskID {
		return nil, NewManagerError(taskID, ev.Kind(),
			fmt.Errorf("%w: event addresses task %q", a2a.ErrTaskIDMismatch, info.TaskID))
	}

	cur, err := m.store.Get(ctx, taskID)
	switch {
	case errors.Is(err, a2a.ErrTaskNotFound):
		cur = nil
	case err != nil:
		return nil, err
	}

	if cur == nil {
		return m.create(ctx, taskID, ev, o)
	}

	if info.ContextID != "" && info.ContextID != cur.ContextID {
		return nil, NewManagerError(taskID, ev.Kind(),
			fmt.Errorf("%w: event context %q, task context %q", a2a.ErrTaskIDMismatch, info.ContextID, cur.ContextID))
	}

	if cur.Status.State.IsTerminal() {
		if isDuplicateStatus(cur.Status, ev) {
			m.logger.DebugContext(ctx, "duplicate terminal status ignored",
				slog.String("task_id", taskID),
				slog.String("state", string(cur.Status.State)),
			)
			return cur, nil
		}
		return nil, NewManagerError(taskID, ev.Kind(), a2a.ErrTaskNotModifiable)
	}

	next, changed, err := m.apply(ctx, cur, ev)
	if err != nil {
		return nil, NewManagerError(taskID, ev.Kind(), err)
	}
	if !changed {
		return cur, nil
	}
	if err := m.save(ctx, cur.Status.State, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (m *Manager) create(ctx context.Context, taskID string, ev a2a.Event, o processOptions) (*a2a.Task, error) {
	var next *a2a.Task
	switch v := ev.(type) {
	case *a2a.Task:
		next = v.Clone()
		next.SetRevision(0)
		if next.Status.Timestamp.IsZero() {
			next.Status.Timestamp = m.clock()
		}
	default:
		if o.initial == nil {
			return nil, NewManagerError(taskID, ev.Kind(), a2a.ErrTaskNotFound)
		}
		base := a2a.NewSubmittedTask(taskID, ev.TaskInfo().ContextID, o.initial)
		base.Status.Timestamp = m.clock()
		var err error
		next, _, err = m.apply(ctx, base, ev)
		if err != nil {
			return nil, NewManagerError(taskID, ev.Kind(), err)
		}
	}

	if err := m.save(ctx, "", next); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "task created",
		slog.String("task_id", next.ID),
		slog.String("context_id", next.ContextID),
		slog.String("state", string(next.Status.State)),
	)
	return next, nil
}

// apply returns a changed copy of cur. changed is false when the event is a
// no-op, in which case next is nil.
func (m *Manager) apply(ctx context.Context, cur *a2a.Task, ev a2a.Event) (next *a2a.Task, changed bool, err error) {
	switch v := ev.(type) {
	case *a2a.Task:
		if v.Status.State != cur.Status.State && !a2a.CanTransition(cur.Status.State, v.Status.State) {
			return nil, false, fmt.Errorf("%w: %s to %s", a2a.ErrInvalidTransition, cur.Status.State, v.Status.State)
		}
		next = v.Clone()
		next.ContextID = cur.ContextID
		next.SetRevision(cur.Revision())
		next.Status.Timestamp = m.stamp(cur.Status.Timestamp, next.Status.Timestamp)
		return next, true, nil

	case *a2a.TaskStatusUpdateEvent:
		if !a2a.CanTransition(cur.Status.State, v.Status.State) {
			return nil, false, fmt.Errorf("%w: %s to %s", a2a.ErrInvalidTransition, cur.Status.State, v.Status.State)
		}
		next = cur.Clone()
		if prev := cur.Status.Message; prev != nil && !inHistory(next.History, prev.MessageID) {
			next.History = append(next.History, *prev.Clone())
		}
		next.Status = a2a.TaskStatus{
			State:     v.Status.State,
			Message:   v.Status.Message.Clone(),
			Timestamp: m.stamp(cur.Status.Timestamp, v.Status.Timestamp),
		}
		next.Metadata = mergeMetadata(next.Metadata, v.Metadata)
		return next, true, nil

	case *a2a.TaskArtifactUpdateEvent:
		idx := cur.Artifact(v.Artifact.ArtifactID)
		if v.Append && idx < 0 {
			m.logger.WarnContext(ctx, "append to unknown artifact ignored",
				slog.String("task_id", cur.ID),
				slog.String("artifact_id", v.Artifact.ArtifactID),
			)
			return nil, false, nil
		}
		next = cur.Clone()
		art := v.Artifact.Clone()
		switch {
		case idx < 0:
			next.Artifacts = append(next.Artifacts, *art)
		case !v.Append:
			next.Artifacts[idx] = *art
		default:
			existing := &next.Artifacts[idx]
			existing.Parts = append(existing.Parts, art.Parts...)
			if art.Name != "" {
				existing.Name = art.Name
			}
			if art.Description != "" {
				existing.Description = art.Description
			}
			existing.Metadata = mergeMetadata(existing.Metadata, art.Metadata)
		}
		return next, true, nil

	default:
		return nil, false, fmt.Errorf("%w: unsupported event %T", a2a.ErrInvalidParams, ev)
	}
}

func (m *Manager) save(ctx context.Context, from a2a.TaskState, next *a2a.Task) error {
	if err := m.store.Save(ctx, next); err != nil {
		m.logger.ErrorContext(ctx, "save task",
			slog.String("task_id", next.ID),
			slog.Any("error", err),
		)
		return err
	}
	to := next.Status.State
	if from != to {
		m.metrics.Transition(string(from), string(to))
		if to.IsTerminal() {
			m.logger.InfoContext(ctx, "task finished",
				slog.String("task_id", next.ID),
				slog.String("state", string(to)),
			)
		}
	}
	return nil
}

// stamp keeps status timestamps non-decreasing.
func (m *Manager) stamp(prev, ts time.Time) time.Time {
	if ts.IsZero() {
		ts = m.clock()
	}
	if ts.Before(prev) {
		return prev
	}
	return ts
}

// AppendMessage adds a client message to the history of an existing,
// non-terminal task.
func (m *Manager) AppendMessage(ctx context.Context, taskID string, msg *a2a.Message) (*a2a.Task, error) {
	unlock, err := m.locks.Lock(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if cur.Status.State.IsTerminal() {
		return nil, NewManagerError(taskID, a2a.EventKindMessage, a2a.ErrTaskNotModifiable)
	}
	if msg.ContextID != "" && msg.ContextID != cur.ContextID {
		return nil, NewManagerError(taskID, a2a.EventKindMessage,
			fmt.Errorf("%w: message context %q, task context %q", a2a.ErrTaskIDMismatch, msg.ContextID, cur.ContextID))
	}
	if inHistory(cur.History, msg.MessageID) {
		return cur, nil
	}

	next := cur.Clone()
	appended := msg.Clone()
	appended.TaskID = taskID
	appended.ContextID = cur.ContextID
	next.History = append(next.History, *appended)
	if err := m.save(ctx, cur.Status.State, next); err != nil {
		return nil, err
	}
	return next, nil
}

// isDuplicateStatus reports whether ev restates the recorded status: same
// state and same message ID.
func isDuplicateStatus(cur a2a.TaskStatus, ev a2a.Event) bool {
	var st a2a.TaskStatus
	switch v := ev.(type) {
	case *a2a.TaskStatusUpdateEvent:
		st = v.Status
	case *a2a.Task:
		st = v.Status
	default:
		return false
	}
	return st.State == cur.State && messageID(st.Message) == messageID(cur.Message)
}

func messageID(m *a2a.Message) string {
	if m == nil {
		return ""
	}
	return m.MessageID
}

func inHistory(history []a2a.Message, id string) bool {
	if id == "" {
		return false
	}
	for i := range history {
		if history[i].MessageID == id {
			return true
		}
	}
	return false
}

func mergeMetadata(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	maps.Copy(dst, a2a.CloneMetadata(src))
	return dst
}
