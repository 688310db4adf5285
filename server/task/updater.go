// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/server/event"
)

// TaskUpdaterConfig holds configuration for creating a TaskUpdater.
type TaskUpdaterConfig struct {
	TaskID    string
	ContextID string
	Queue     *event.EventQueue

	// IDs generates artifact and message IDs. Defaults to UUID v4.
	IDs a2a.IDGenerator

	// Clock stamps status updates. Defaults to a2a.Now.
	Clock func() time.Time
}

// TaskUpdater is the executor's handle for publishing the events of one task
// session. It is safe for concurrent use; events are enqueued in call order.
//
// Once a terminal status was published every further update fails with
// a2a.ErrTaskNotModifiable and nothing is enqueued.
type TaskUpdater struct {
	taskID    string
	contextID string
	queue     *event.EventQueue
	ids       a2a.IDGenerator
	clock     func() time.Time

	mu       sync.Mutex
	terminal bool
}

// NewTaskUpdater creates a new TaskUpdater with the given configuration.
func NewTaskUpdater(config TaskUpdaterConfig) (*TaskUpdater, error) {
	if config.TaskID == "" {
		return nil, errors.New("task ID cannot be empty")
	}
	if config.ContextID == "" {
		return nil, errors.New("context ID cannot be empty")
	}
	if config.Queue == nil {
		return nil, errors.New("event queue cannot be nil")
	}
	if config.IDs == nil {
		config.IDs = a2a.UUIDGenerator
	}
	if config.Clock == nil {
		config.Clock = a2a.Now
	}
	return &TaskUpdater{
		taskID:    config.TaskID,
		contextID: config.ContextID,
		queue:     config.Queue,
		ids:       config.IDs,
		clock:     config.Clock,
	}, nil
}

// TaskID returns the task ID this updater is associated with.
func (u *TaskUpdater) TaskID() string { return u.taskID }

// ContextID returns the context ID this updater is associated with.
func (u *TaskUpdater) ContextID() string { return u.contextID }

// IsTerminal reports whether a terminal status was published.
func (u *TaskUpdater) IsTerminal() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.terminal
}

type statusOptions struct {
	metadata map[string]any
	final    *bool
}

// StatusOption configures [TaskUpdater.UpdateStatus].
type StatusOption func(*statusOptions)

// WithStatusMetadata attaches metadata to the status update event.
func WithStatusMetadata(md map[string]any) StatusOption {
	return func(o *statusOptions) { o.metadata = md }
}

// WithFinal overrides the final flag, which defaults to whether the state is
// terminal.
func WithFinal(final bool) StatusOption {
	return func(o *statusOptions) { o.final = &final }
}

// UpdateStatus publishes a status update. msg may be nil.
func (u *TaskUpdater) UpdateStatus(ctx context.Context, state a2a.TaskState, msg *a2a.Message, opts ...StatusOption) error {
	var o statusOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !state.IsValid() {
		return NewUpdaterError("update status", u.taskID, fmt.Errorf("%w: state %q", a2a.ErrInvalidParams, state))
	}
	final := state.IsTerminal()
	if o.final != nil {
		final = *o.final
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.terminal {
		return NewUpdaterError("update status", u.taskID, a2a.ErrTaskNotModifiable)
	}

	ev := &a2a.TaskStatusUpdateEvent{
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Status: a2a.TaskStatus{
			State:     state,
			Message:   u.bind(msg),
			Timestamp: u.clock(),
		},
		Final:    final,
		Metadata: a2a.CloneMetadata(o.metadata),
	}
	if err := u.queue.Enqueue(ctx, ev); err != nil {
		return NewUpdaterError("update status", u.taskID, err)
	}
	if state.IsTerminal() {
		u.terminal = true
	}
	return nil
}

// bind copies msg and addresses it to this task.
func (u *TaskUpdater) bind(msg *a2a.Message) *a2a.Message {
	if msg == nil {
		return nil
	}
	m := msg.Clone()
	if m.MessageID == "" {
		m.MessageID = u.ids.NewID()
	}
	m.TaskID = u.taskID
	m.ContextID = u.contextID
	return m
}

type artifactOptions struct {
	id          string
	name        string
	description string
	append      bool
	lastChunk   bool
	metadata    map[string]any
}

// ArtifactOption configures [TaskUpdater.AddArtifact].
type ArtifactOption func(*artifactOptions)

// WithArtifactID addresses an existing artifact, typically the ID returned by
// an earlier AddArtifact call.
func WithArtifactID(id string) ArtifactOption {
	return func(o *artifactOptions) { o.id = id }
}

// WithArtifactName sets the artifact name.
func WithArtifactName(name string) ArtifactOption {
	return func(o *artifactOptions) { o.name = name }
}

// WithArtifactDescription sets the artifact description.
func WithArtifactDescription(desc string) ArtifactOption {
	return func(o *artifactOptions) { o.description = desc }
}

// WithAppend appends the parts to the artifact instead of replacing it.
func WithAppend(v bool) ArtifactOption {
	return func(o *artifactOptions) { o.append = v }
}

// WithLastChunk marks the final chunk of a streamed artifact.
func WithLastChunk(last bool) ArtifactOption {
	return func(o *artifactOptions) { o.lastChunk = last }
}

// WithArtifactMetadata attaches metadata to the artifact.
func WithArtifactMetadata(md map[string]any) ArtifactOption {
	return func(o *artifactOptions) { o.metadata = md }
}

// AddArtifact publishes an artifact update and returns the artifact ID. A new
// ID is generated unless one is given; appending requires one.
func (u *TaskUpdater) AddArtifact(ctx context.Context, parts []a2a.Part, opts ...ArtifactOption) (string, error) {
	var o artifactOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.append && o.id == "" {
		return "", NewUpdaterError("add artifact", u.taskID, fmt.Errorf("%w: append requires an artifact id", a2a.ErrInvalidParams))
	}
	for i, p := range parts {
		if err := p.Validate(); err != nil {
			return "", NewUpdaterError("add artifact", u.taskID, fmt.Errorf("part %d: %w", i, err))
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.terminal {
		return "", NewUpdaterError("add artifact", u.taskID, a2a.ErrTaskNotModifiable)
	}

	id := o.id
	if id == "" {
		id = u.ids.NewID()
	}
	art := a2a.Artifact{
		ArtifactID:  id,
		Name:        o.name,
		Description: o.description,
		Parts:       parts,
		Metadata:    o.metadata,
	}
	ev := &a2a.TaskArtifactUpdateEvent{
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Artifact:  *art.Clone(),
		Append:    o.append,
		LastChunk: o.lastChunk,
	}
	if err := u.queue.Enqueue(ctx, ev); err != nil {
		return "", NewUpdaterError("add artifact", u.taskID, err)
	}
	return id, nil
}

// Submit marks the task as submitted.
func (u *TaskUpdater) Submit(ctx context.Context, msg *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateSubmitted, msg)
}

// StartWork marks the task as working.
func (u *TaskUpdater) StartWork(ctx context.Context, msg *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateWorking, msg)
}

// Complete marks the task as completed.
func (u *TaskUpdater) Complete(ctx context.Context, msg *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateCompleted, msg)
}

// Fail marks the task as failed.
func (u *TaskUpdater) Fail(ctx context.Context, msg *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateFailed, msg)
}

// Reject marks the task as rejected.
func (u *TaskUpdater) Reject(ctx context.Context, msg *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateRejected, msg)
}

// Cancel marks the task as canceled.
func (u *TaskUpdater) Cancel(ctx context.Context, msg *a2a.Message) error {
	return u.UpdateStatus(ctx, a2a.TaskStateCanceled, msg)
}

// RequiresInput pauses the task until the client answers. final ends the
// current event stream.
func (u *TaskUpdater) RequiresInput(ctx context.Context, msg *a2a.Message, final bool) error {
	return u.UpdateStatus(ctx, a2a.TaskStateInputRequired, msg, WithFinal(final))
}

// RequiresAuth pauses the task until the client authenticates.
func (u *TaskUpdater) RequiresAuth(ctx context.Context, msg *a2a.Message, final bool) error {
	return u.UpdateStatus(ctx, a2a.TaskStateAuthRequired, msg, WithFinal(final))
}

// NewAgentMessage returns an agent message addressed to this task.
func (u *TaskUpdater) NewAgentMessage(parts []a2a.Part, metadata map[string]any) *a2a.Message {
	return &a2a.Message{
		MessageID: u.ids.NewID(),
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Role:      a2a.RoleAgent,
		Parts:     parts,
		Metadata:  metadata,
	}
}
