// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/server/event"
)

type session struct {
	store      *InMemoryTaskStore
	queue      *event.EventQueue
	consumer   *event.EventConsumer
	updater    *TaskUpdater
	aggregator *ResultAggregator
}

func newSession(t *testing.T) *session {
	t.Helper()
	store := NewInMemoryTaskStore()
	m := newTestManager(t, store)
	q := event.NewEventQueue("t1")
	c := event.NewEventConsumer(q.Tap())
	u, err := NewTaskUpdater(TaskUpdaterConfig{TaskID: "t1", ContextID: "c1", Queue: q, IDs: sequentialIDs()})
	if err != nil {
		t.Fatalf("NewTaskUpdater() error = %v", err)
	}
	agg, err := NewResultAggregator(ResultAggregatorConfig{
		Manager:        m,
		TaskID:         "t1",
		InitialMessage: &a2a.Message{MessageID: "m1", Role: a2a.RoleUser, Parts: []a2a.Part{a2a.NewTextPart("hi")}},
	})
	if err != nil {
		t.Fatalf("NewResultAggregator() error = %v", err)
	}
	return &session{store: store, queue: q, consumer: c, updater: u, aggregator: agg}
}

// run executes fn as the agent and closes the queue when it returns.
func (s *session) run(t *testing.T, fn func(ctx context.Context, u *TaskUpdater) error) {
	t.Helper()
	go func() {
		defer s.queue.Close()
		if err := fn(context.Background(), s.updater); err != nil {
			s.consumer.SetAgentError(err)
		}
	}()
}

func waitDone(t *testing.T, agg *ResultAggregator) {
	t.Helper()
	select {
	case <-agg.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("aggregator did not finish")
	}
}

func TestResultAggregatorConsumeAll(t *testing.T) {
	s := newSession(t)
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		if err := u.Submit(ctx, nil); err != nil {
			return err
		}
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		if _, err := u.AddArtifact(ctx, []a2a.Part{a2a.NewTextPart("result")}, WithArtifactID("a1"), WithArtifactName("answer")); err != nil {
			return err
		}
		return u.Complete(ctx, nil)
	})

	res, err := s.aggregator.ConsumeAll(t.Context(), s.consumer)
	if err != nil {
		t.Fatalf("ConsumeAll() error = %v", err)
	}
	task, ok := res.(*a2a.Task)
	if !ok {
		t.Fatalf("ConsumeAll() returned %T, want *a2a.Task", res)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}
	want := []a2a.Artifact{{ArtifactID: "a1", Name: "answer", Parts: []a2a.Part{a2a.NewTextPart("result")}}}
	if diff := cmp.Diff(want, task.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}
	if len(task.History) != 1 || task.History[0].MessageID != "m1" {
		t.Errorf("history = %+v, want the initial message", task.History)
	}

	stored, err := s.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(task, stored, taskCmpOpts...); diff != "" {
		t.Errorf("stored task mismatch (-result +stored):\n%s", diff)
	}
	waitDone(t, s.aggregator)
}

func TestResultAggregatorMessageResult(t *testing.T) {
	s := newSession(t)
	reply := &a2a.Message{MessageID: "r1", Role: a2a.RoleAgent, Parts: []a2a.Part{a2a.NewTextPart("pong")}}
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		return s.queue.Enqueue(ctx, reply)
	})

	res, err := s.aggregator.ConsumeAll(t.Context(), s.consumer)
	if err != nil {
		t.Fatalf("ConsumeAll() error = %v", err)
	}
	if diff := cmp.Diff(reply, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.store.Get(t.Context(), "t1"); !errors.Is(err, a2a.ErrTaskNotFound) {
		t.Errorf("a message reply created a task: %v", err)
	}
}

func TestResultAggregatorAgentError(t *testing.T) {
	s := newSession(t)
	boom := errors.New("agent crashed")
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		return boom
	})

	if _, err := s.aggregator.ConsumeAll(t.Context(), s.consumer); !errors.Is(err, boom) {
		t.Fatalf("ConsumeAll() error = %v, want %v", err, boom)
	}
	stored, err := s.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status.State != a2a.TaskStateWorking {
		t.Errorf("state = %s, want the working state persisted before the failure", stored.Status.State)
	}
}

func TestResultAggregatorSurfacesStoreErrors(t *testing.T) {
	s := newSession(t)
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		// completed is not reachable from submitted.
		return u.Complete(ctx, nil)
	})
	if _, err := s.aggregator.ConsumeAll(t.Context(), s.consumer); !errors.Is(err, a2a.ErrInvalidTransition) {
		t.Fatalf("ConsumeAll() error = %v, want ErrInvalidTransition", err)
	}
}

func TestResultAggregatorNonBlocking(t *testing.T) {
	s := newSession(t)
	release := make(chan struct{})
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		if err := u.Submit(ctx, nil); err != nil {
			return err
		}
		<-release
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		return u.Complete(ctx, nil)
	})

	res, interrupted, err := s.aggregator.ConsumeAndBreakOnInterrupt(t.Context(), s.consumer, false)
	if err != nil {
		t.Fatalf("ConsumeAndBreakOnInterrupt() error = %v", err)
	}
	if !interrupted {
		t.Error("interrupted = false, want true for a non-blocking call")
	}
	if task := res.(*a2a.Task); task.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("state = %s, want submitted", task.Status.State)
	}

	close(release)
	waitDone(t, s.aggregator)
	if err := s.aggregator.Err(); err != nil {
		t.Fatalf("background error = %v", err)
	}
	stored, err := s.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status.State != a2a.TaskStateCompleted {
		t.Errorf("stored state = %s, want completed after background processing", stored.Status.State)
	}
}

func TestResultAggregatorBreaksOnInterrupt(t *testing.T) {
	s := newSession(t)
	resume := make(chan struct{})
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		if err := u.RequiresAuth(ctx, nil, false); err != nil {
			return err
		}
		<-resume
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		return u.Complete(ctx, nil)
	})

	res, interrupted, err := s.aggregator.ConsumeAndBreakOnInterrupt(t.Context(), s.consumer, true)
	if err != nil {
		t.Fatalf("ConsumeAndBreakOnInterrupt() error = %v", err)
	}
	if !interrupted {
		t.Error("interrupted = false, want true")
	}
	if task := res.(*a2a.Task); task.Status.State != a2a.TaskStateAuthRequired {
		t.Errorf("state = %s, want auth-required", task.Status.State)
	}

	close(resume)
	waitDone(t, s.aggregator)
	stored, err := s.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status.State != a2a.TaskStateCompleted {
		t.Errorf("stored state = %s, want completed", stored.Status.State)
	}
}

func TestResultAggregatorBlockingRunsToEnd(t *testing.T) {
	s := newSession(t)
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		return u.Complete(ctx, nil)
	})
	res, interrupted, err := s.aggregator.ConsumeAndBreakOnInterrupt(t.Context(), s.consumer, true)
	if err != nil {
		t.Fatalf("ConsumeAndBreakOnInterrupt() error = %v", err)
	}
	if interrupted {
		t.Error("interrupted = true for a blocking call without interruption")
	}
	if task := res.(*a2a.Task); task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}
}

func TestResultAggregatorStream(t *testing.T) {
	s := newSession(t)
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		if _, err := u.AddArtifact(ctx, []a2a.Part{a2a.NewTextPart("x")}, WithArtifactID("a1")); err != nil {
			return err
		}
		return u.Complete(ctx, nil)
	})

	var kinds []a2a.EventKind
	for ev, err := range s.aggregator.Stream(t.Context(), s.consumer) {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		kinds = append(kinds, ev.Kind())

		// Each event is persisted before it is yielded.
		stored, err := s.store.Get(t.Context(), "t1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if stored.Revision() < int64(len(kinds)) {
			t.Errorf("event %d yielded at store revision %d", len(kinds), stored.Revision())
		}
	}
	want := []a2a.EventKind{a2a.EventKindStatusUpdate, a2a.EventKindArtifactUpdate, a2a.EventKindStatusUpdate}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestResultAggregatorStreamPersistsAfterReaderLeaves(t *testing.T) {
	s := newSession(t)
	more := make(chan struct{})
	s.run(t, func(ctx context.Context, u *TaskUpdater) error {
		if err := u.StartWork(ctx, nil); err != nil {
			return err
		}
		<-more
		for range 3 {
			if _, err := u.AddArtifact(ctx, []a2a.Part{a2a.NewTextPart("x")}); err != nil {
				return err
			}
		}
		return u.Complete(ctx, nil)
	})

	ctx, cancel := context.WithCancel(t.Context())
	for ev, err := range s.aggregator.Stream(ctx, s.consumer) {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		if ev.Kind() == a2a.EventKindStatusUpdate {
			break
		}
	}
	cancel()
	close(more)

	waitDone(t, s.aggregator)
	stored, err := s.store.Get(t.Context(), "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status.State != a2a.TaskStateCompleted || len(stored.Artifacts) != 3 {
		t.Errorf("stored task = %s with %d artifacts, want completed with 3", stored.Status.State, len(stored.Artifacts))
	}
}
