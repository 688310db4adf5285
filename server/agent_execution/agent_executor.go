// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent_execution defines the boundary between the request handler
// and the agent logic that actually works on tasks.
//
// An [AgentExecutor] receives a [RequestContext] describing the incoming
// message and publishes events to the session's event queue, usually through
// a task.TaskUpdater:
//
//	func (e *myAgent) Execute(ctx context.Context, rc *agent_execution.RequestContext, q *event.EventQueue) error {
//		u, err := task.NewTaskUpdater(task.TaskUpdaterConfig{TaskID: rc.TaskID(), ContextID: rc.ContextID(), Queue: q})
//		if err != nil {
//			return err
//		}
//		if err := u.StartWork(ctx, nil); err != nil {
//			return err
//		}
//		// ...
//		return u.Complete(ctx, nil)
//	}
package agent_execution

import (
	"context"

	"github.com/go-a2a/a2a-runtime/server/event"
)

// AgentExecutor runs agent logic for one task session.
type AgentExecutor interface {
	// Execute works on the request and publishes Task, Message,
	// TaskStatusUpdateEvent or TaskArtifactUpdateEvent values to queue. It
	// should eventually publish a terminal or interrupted status, or a single
	// Message reply. ctx is cancelled when the task is canceled.
	Execute(ctx context.Context, reqCtx *RequestContext, queue *event.EventQueue) error

	// Cancel asks the agent to stop working on the task. The agent should
	// publish a canceled status to queue; if it does not, the handler does.
	Cancel(ctx context.Context, reqCtx *RequestContext, queue *event.EventQueue) error
}
