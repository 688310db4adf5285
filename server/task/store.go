// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements the task lifecycle: persistence, the task manager
// that folds events into tasks, result aggregation, the executor-facing
// updater, and push notification delivery.
package task

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/pagetoken"
)

// TaskStore persists tasks.
//
// Implementations are safe for concurrent use and never share memory with
// callers: Save stores a copy and Get returns a fresh one.
type TaskStore interface {
	// Save upserts the whole task. A task carrying a non-zero revision is only
	// written if the stored revision still matches, otherwise Save fails with
	// a2a.ErrConcurrentModification. On success the new revision is recorded on
	// task.
	Save(ctx context.Context, task *a2a.Task) error

	// Get returns the task or an error matching a2a.ErrTaskNotFound.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// List returns one page of tasks ordered by last update, newest first.
	// Tokens the store did not issue for the same filter fail with
	// a2a.ErrInvalidPageToken.
	List(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error)

	// Delete removes the task or fails with a2a.ErrTaskNotFound.
	Delete(ctx context.Context, taskID string) error
}

// listEntry is a task with its listing key.
type listEntry struct {
	task      *a2a.Task
	updatedAt time.Time
}

func (e listEntry) matches(params *a2a.ListTasksParams) bool {
	if params.ContextID != "" && e.task.ContextID != params.ContextID {
		return false
	}
	if params.Status != "" && e.task.Status.State != params.Status {
		return false
	}
	if !params.LastUpdatedAfter.IsZero() && !e.updatedAt.After(params.LastUpdatedAfter) {
		return false
	}
	return true
}

// paginate orders entries and cuts the page selected by params.
func paginate(entries []listEntry, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	cur, hasCursor, err := pagetoken.Decode(params)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(entries, func(a, b listEntry) int {
		if c := b.updatedAt.Compare(a.updatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.task.ID, a.task.ID)
	})

	start := 0
	if hasCursor {
		start = len(entries)
		for i, e := range entries {
			if !cur.Before(e.updatedAt.UnixNano(), e.task.ID) {
				start = i
				break
			}
		}
	}

	size := pagetoken.Size(params.PageSize)
	end := min(start+size, len(entries))
	res := &a2a.ListTasksResult{
		Tasks:     make([]*a2a.Task, 0, end-start),
		PageSize:  size,
		TotalSize: len(entries),
	}
	for _, e := range entries[start:end] {
		res.Tasks = append(res.Tasks, e.task)
	}
	if end < len(entries) {
		next := entries[end]
		res.NextPageToken = pagetoken.Encode(params, next.updatedAt, next.task.ID)
	}
	return res, nil
}
