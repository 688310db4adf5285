// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/server/task"
)

// SimpleRequestContextBuilder is the default [RequestContextBuilder].
//
// With a Store it also attaches the tasks listed in the message's
// ReferenceTaskIDs. References to unknown tasks are skipped.
type SimpleRequestContextBuilder struct {
	store  task.TaskStore
	ids    a2a.IDGenerator
	logger *slog.Logger
}

var _ RequestContextBuilder = (*SimpleRequestContextBuilder)(nil)

// SimpleRequestContextBuilderOption configures a [SimpleRequestContextBuilder].
type SimpleRequestContextBuilderOption func(*SimpleRequestContextBuilder)

// WithRelatedTasks enables loading referenced tasks from store.
func WithRelatedTasks(store task.TaskStore) SimpleRequestContextBuilderOption {
	return func(b *SimpleRequestContextBuilder) { b.store = store }
}

// WithIDGenerator sets the generator of task and context IDs.
func WithIDGenerator(ids a2a.IDGenerator) SimpleRequestContextBuilderOption {
	return func(b *SimpleRequestContextBuilder) { b.ids = ids }
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(l *slog.Logger) SimpleRequestContextBuilderOption {
	return func(b *SimpleRequestContextBuilder) { b.logger = l }
}

// NewSimpleRequestContextBuilder creates a new SimpleRequestContextBuilder.
func NewSimpleRequestContextBuilder(opts ...SimpleRequestContextBuilderOption) *SimpleRequestContextBuilder {
	b := &SimpleRequestContextBuilder{
		ids:    a2a.UUIDGenerator,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build implements [RequestContextBuilder].
func (b *SimpleRequestContextBuilder) Build(ctx context.Context, params *a2a.MessageSendParams, taskID, contextID string, current *a2a.Task) (*RequestContext, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: message send params are required", a2a.ErrInvalidParams)
	}
	if current != nil {
		if taskID != "" && taskID != current.ID {
			return nil, fmt.Errorf("%w: task %s does not match %s", a2a.ErrTaskIDMismatch, taskID, current.ID)
		}
		taskID = current.ID
		if contextID == "" {
			contextID = current.ContextID
		}
	}
	if taskID == "" {
		taskID = b.ids.NewID()
	}
	if contextID == "" {
		contextID = b.ids.NewID()
	}

	rc := NewRequestContext(params, taskID, contextID, current)
	if b.store == nil || params.Message == nil {
		return rc, nil
	}
	for _, id := range params.Message.ReferenceTaskIDs {
		t, err := b.store.Get(ctx, id)
		switch {
		case errors.Is(err, a2a.ErrTaskNotFound):
			b.logger.DebugContext(ctx, "referenced task not found",
				slog.String("task_id", taskID),
				slog.String("reference_task_id", id),
			)
		case err != nil:
			return nil, fmt.Errorf("load related task %s: %w", id, err)
		default:
			rc.AttachRelatedTask(t)
		}
	}
	return rc, nil
}
