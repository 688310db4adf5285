// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-a2a/a2a-runtime"
)

type memoryEntry struct {
	task      *a2a.Task
	updatedAt time.Time
}

// InMemoryTaskStore is an in-memory implementation of TaskStore.
// Task data is lost when the process stops.
type InMemoryTaskStore struct {
	mu       sync.RWMutex
	tasks    map[string]*memoryEntry
	lastTick time.Time

	now    func() time.Time
	logger *slog.Logger
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// InMemoryOption configures an [InMemoryTaskStore].
type InMemoryOption func(*InMemoryTaskStore)

// WithClock sets the time source used for last-updated tracking.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryTaskStore) {
		s.now = now
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) InMemoryOption {
	return func(s *InMemoryTaskStore) {
		s.logger = l
	}
}

// NewInMemoryTaskStore creates a new InMemoryTaskStore.
func NewInMemoryTaskStore(opts ...InMemoryOption) *InMemoryTaskStore {
	s := &InMemoryTaskStore{
		tasks:  make(map[string]*memoryEntry),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tick returns a strictly increasing update time. Callers hold s.mu.
func (s *InMemoryTaskStore) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastTick) {
		t = s.lastTick.Add(time.Nanosecond)
	}
	s.lastTick = t
	return t
}

// Save implements [TaskStore].
func (s *InMemoryTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return NewStoreError("save", "", errors.New("task with an id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rev int64
	cur, ok := s.tasks[task.ID]
	switch {
	case ok:
		rev = cur.task.Revision()
		if task.Revision() != 0 && task.Revision() != rev {
			return NewStoreError("save", task.ID, a2a.ErrConcurrentModification)
		}
	case task.Revision() != 0:
		// The snapshot was read from a task that has since been deleted.
		return NewStoreError("save", task.ID, a2a.ErrConcurrentModification)
	}

	stored := task.Clone()
	stored.SetRevision(rev + 1)
	s.tasks[task.ID] = &memoryEntry{task: stored, updatedAt: s.tick()}
	task.SetRevision(rev + 1)

	s.logger.DebugContext(ctx, "task saved", slog.String("task_id", task.ID), slog.Int64("revision", rev+1))
	return nil
}

// Get implements [TaskStore].
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return nil, NewStoreError("get", taskID, a2a.ErrTaskNotFound)
	}
	return e.task.Clone(), nil
}

// List implements [TaskStore].
func (s *InMemoryTaskStore) List(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	if params == nil {
		params = &a2a.ListTasksParams{}
	}

	s.mu.RLock()
	entries := make([]listEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		le := listEntry{task: e.task, updatedAt: e.updatedAt}
		if le.matches(params) {
			entries = append(entries, le)
		}
	}
	s.mu.RUnlock()

	res, err := paginate(entries, params)
	if err != nil {
		return nil, NewStoreError("list", "", err)
	}
	for i, t := range res.Tasks {
		res.Tasks[i] = t.Clone()
	}
	return res, nil
}

// Delete implements [TaskStore].
func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return NewStoreError("delete", taskID, a2a.ErrTaskNotFound)
	}
	delete(s.tasks, taskID)
	s.logger.DebugContext(ctx, "task deleted", slog.String("task_id", taskID))
	return nil
}
