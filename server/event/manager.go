// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/go-a2a/a2a-runtime/internal/telemetry"
)

// ErrNoTaskQueue is returned when a task has no active session queue.
var ErrNoTaskQueue = errors.New("no event queue for task")

// QueueManagerConfig holds configuration for a [QueueManager].
type QueueManagerConfig struct {
	// MaxQueueSize is the per-tap buffer of new queues.
	MaxQueueSize int

	// Overflow is the policy of new queues.
	Overflow OverflowPolicy

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// QueueManager tracks the event queue of every active task session.
type QueueManager struct {
	mu     sync.Mutex
	queues map[string]*EventQueue

	config QueueManagerConfig
	logger *slog.Logger
}

// NewQueueManager returns an empty manager.
func NewQueueManager(config QueueManagerConfig) *QueueManager {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &QueueManager{
		queues: make(map[string]*EventQueue),
		config: config,
		logger: config.Logger,
	}
}

func (m *QueueManager) newQueue(taskID string) *EventQueue {
	return NewEventQueue(taskID,
		WithMaxQueueSize(m.config.MaxQueueSize),
		WithOverflowPolicy(m.config.Overflow),
		WithLogger(m.config.Logger),
		WithMetrics(m.config.Metrics),
	)
}

// CreateOrTap returns the session queue of taskID, creating it when none is
// active, together with a tap attached before any event is enqueued by the
// caller. created reports whether a new session was opened.
func (m *QueueManager) CreateOrTap(taskID string) (q *EventQueue, tap *Tap, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[taskID]; ok && !q.IsClosed() {
		return q, q.Tap(), false
	}
	q = m.newQueue(taskID)
	m.queues[taskID] = q
	m.config.Metrics.SessionOpened()
	m.logger.Debug("event queue created", slog.String("task_id", taskID))
	return q, q.Tap(), true
}

// Get returns the active queue of taskID.
func (m *QueueManager) Get(taskID string) (*EventQueue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[taskID]
	return q, ok
}

// Tap attaches a new tap to the active queue of taskID.
func (m *QueueManager) Tap(taskID string) (*Tap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[taskID]
	if !ok {
		return nil, ErrNoTaskQueue
	}
	return q.Tap(), nil
}

// Close closes q and ends its session. A newer session for the same task is
// left alone.
func (m *QueueManager) Close(q *EventQueue) {
	m.mu.Lock()
	if cur, ok := m.queues[q.TaskID()]; ok && cur == q {
		delete(m.queues, q.TaskID())
		m.config.Metrics.SessionClosed()
	}
	m.mu.Unlock()
	q.Close()
}

// CloseAll closes every active session.
func (m *QueueManager) CloseAll() {
	m.mu.Lock()
	queues := m.queues
	m.queues = make(map[string]*EventQueue)
	m.mu.Unlock()

	for _, q := range queues {
		m.config.Metrics.SessionClosed()
		q.Close()
	}
}

// Len returns the number of active sessions.
func (m *QueueManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}
