// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package echo provides a demonstration [agent_execution.AgentExecutor] that
// answers every message by streaming it back as an artifact.
//
// A few commands exercise the other task states:
//
//	/ask <question>  pauses in input-required until the next message
//	/wait            works until the task is canceled
//	/fail <reason>   ends in failed
//	/reject          ends in rejected
package echo

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/server/agent_execution"
	"github.com/go-a2a/a2a-runtime/server/event"
	"github.com/go-a2a/a2a-runtime/server/task"
)

// ArtifactName is the name of the artifact holding the echoed text.
const ArtifactName = "echo"

// Executor echoes user input.
type Executor struct {
	delay  time.Duration
	logger *slog.Logger
}

var _ agent_execution.AgentExecutor = (*Executor)(nil)

// Option configures an [Executor].
type Option func(*Executor)

// WithChunkDelay pauses between streamed chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.delay = d
	}
}

// WithLogger sets the [*slog.Logger] for the [Executor].
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New returns a new Executor.
func New(opts ...Option) *Executor {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func updater(rc *agent_execution.RequestContext, q *event.EventQueue) (*task.TaskUpdater, error) {
	return task.NewTaskUpdater(task.TaskUpdaterConfig{
		TaskID:    rc.TaskID(),
		ContextID: rc.ContextID(),
		Queue:     q,
	})
}

func textMessage(u *task.TaskUpdater, text string) *a2a.Message {
	return u.NewAgentMessage([]a2a.Part{a2a.NewTextPart(text)}, nil)
}

// Execute implements [agent_execution.AgentExecutor].
func (e *Executor) Execute(ctx context.Context, rc *agent_execution.RequestContext, q *event.EventQueue) error {
	u, err := updater(rc, q)
	if err != nil {
		return err
	}
	input := strings.TrimSpace(rc.UserInput(" "))
	e.logger.DebugContext(ctx, "echo request",
		slog.String("task_id", rc.TaskID()),
		slog.Bool("resumed", rc.CurrentTask() != nil),
	)

	cmd, arg, _ := strings.Cut(input, " ")
	if rc.CurrentTask() == nil {
		if cmd == "/reject" {
			return u.Reject(ctx, textMessage(u, "request rejected"))
		}
		if err := u.Submit(ctx, nil); err != nil {
			return err
		}
	}
	if err := u.StartWork(ctx, nil); err != nil {
		return err
	}

	switch cmd {
	case "/reject":
		return u.Reject(ctx, textMessage(u, "request rejected"))
	case "/ask":
		return u.RequiresInput(ctx, textMessage(u, arg), true)
	case "/wait":
		<-ctx.Done()
		return ctx.Err()
	case "/fail":
		return u.Fail(ctx, textMessage(u, arg))
	}

	if err := e.stream(ctx, u, input); err != nil {
		return err
	}
	return u.Complete(ctx, textMessage(u, input))
}

// stream publishes input word by word as chunks of one artifact.
func (e *Executor) stream(ctx context.Context, u *task.TaskUpdater, input string) error {
	words := strings.Fields(input)
	if len(words) == 0 {
		words = []string{""}
	}
	id := a2a.NewID()
	for i, w := range words {
		if i > 0 && e.delay > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if i < len(words)-1 {
			w += " "
		}
		_, err := u.AddArtifact(ctx, []a2a.Part{a2a.NewTextPart(w)},
			task.WithArtifactID(id),
			task.WithArtifactName(ArtifactName),
			task.WithAppend(i > 0),
			task.WithLastChunk(i == len(words)-1),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Cancel implements [agent_execution.AgentExecutor].
func (e *Executor) Cancel(ctx context.Context, rc *agent_execution.RequestContext, q *event.EventQueue) error {
	u, err := updater(rc, q)
	if err != nil {
		return err
	}
	return u.Cancel(ctx, textMessage(u, "canceled on request"))
}
