// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/telemetry"
)

// DefaultPushConcurrency bounds in-flight deliveries of a PushNotifier.
const DefaultPushConcurrency = 16

// PushNotifierConfig holds configuration for PushNotifier.
type PushNotifierConfig struct {
	Store  PushNotificationConfigStore
	Sender PushNotificationSender

	// Concurrency bounds the deliveries in flight across all tasks.
	Concurrency int64

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// PushNotifier fans task snapshots out to every config registered for the
// task. Deliveries run in the background: Notify never blocks on an endpoint
// and delivery failures are only logged and counted.
//
// Snapshots of one task are delivered one at a time in Notify order.
// Different tasks are delivered concurrently.
type PushNotifier struct {
	store   PushNotificationConfigStore
	sender  PushNotificationSender
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	closed  bool
	pending map[string][]pushJob
	wg      sync.WaitGroup
}

type pushJob struct {
	ctx  context.Context
	task *a2a.Task
}

// NewPushNotifier creates a new PushNotifier.
func NewPushNotifier(config PushNotifierConfig) (*PushNotifier, error) {
	if config.Store == nil {
		return nil, errors.New("push notification config store is required")
	}
	if config.Sender == nil {
		return nil, errors.New("push notification sender is required")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultPushConcurrency
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &PushNotifier{
		store:   config.Store,
		sender:  config.Sender,
		sem:     semaphore.NewWeighted(config.Concurrency),
		logger:  config.Logger,
		metrics: config.Metrics,
		pending: make(map[string][]pushJob),
	}, nil
}

// Notify schedules delivery of a snapshot of task. The caller's context only
// contributes its values; cancelling it does not abort delivery.
func (n *PushNotifier) Notify(ctx context.Context, task *a2a.Task) {
	if n == nil || task == nil {
		return
	}
	job := pushJob{ctx: context.WithoutCancel(ctx), task: task.Clone()}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.wg.Add(1)
	queue, running := n.pending[task.ID]
	n.pending[task.ID] = append(queue, job)
	if !running {
		go n.drain(task.ID)
	}
}

// drain delivers the pending snapshots of taskID until none are left. At most
// one drain runs per task.
func (n *PushNotifier) drain(taskID string) {
	for {
		n.mu.Lock()
		queue := n.pending[taskID]
		if len(queue) == 0 {
			delete(n.pending, taskID)
			n.mu.Unlock()
			return
		}
		job := queue[0]
		n.pending[taskID] = queue[1:]
		n.mu.Unlock()

		n.dispatch(job.ctx, job.task)
		n.wg.Done()
	}
}

func (n *PushNotifier) dispatch(ctx context.Context, task *a2a.Task) {
	configs, err := n.store.List(ctx, task.ID)
	if err != nil {
		n.logger.WarnContext(ctx, "list push notification configs",
			slog.String("task_id", task.ID),
			slog.Any("error", err),
		)
		return
	}
	if len(configs) == 0 {
		return
	}

	var g errgroup.Group
	for _, config := range configs {
		if err := n.sem.Acquire(ctx, 1); err != nil {
			return
		}
		g.Go(func() error {
			defer n.sem.Release(1)
			start := time.Now()
			err := n.sender.Send(ctx, task, config)
			n.metrics.PushDelivered(time.Since(start), err)
			if err != nil {
				n.logger.WarnContext(ctx, "push notification failed",
					slog.String("task_id", task.ID),
					slog.String("config_id", config.ID),
					slog.String("url", config.URL),
					slog.Any("error", err),
				)
				return err
			}
			n.logger.DebugContext(ctx, "push notification sent",
				slog.String("task_id", task.ID),
				slog.String("config_id", config.ID),
				slog.String("state", string(task.Status.State)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		n.logger.WarnContext(ctx, "some push notifications failed", slog.String("task_id", task.ID))
	}
}

// Wait blocks until every scheduled delivery has finished.
func (n *PushNotifier) Wait() {
	n.wg.Wait()
}

// Close stops accepting notifications and waits for in-flight deliveries.
func (n *PushNotifier) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
	return nil
}
