// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/a2a-runtime"
)

func TestEventConsumerNextTimeoutIsRecoverable(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())

	if _, err := c.Next(t.Context(), 10*time.Millisecond); !errors.Is(err, a2a.ErrTimeout) {
		t.Fatalf("Next() error = %v, want %v", err, a2a.ErrTimeout)
	}
	if q.IsClosed() {
		t.Fatal("timeout closed the queue")
	}

	enqueueN(t, q, 1, 1)
	ev, err := c.Next(t.Context(), time.Second)
	if err != nil {
		t.Fatalf("Next() after timeout error = %v", err)
	}
	if got := seqOf(t, ev); got != 1 {
		t.Errorf("seq = %d, want 1", got)
	}
}

func TestEventConsumerNextAfterClose(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())
	enqueueN(t, q, 1, 1)
	q.Close()

	if _, err := c.Next(t.Context(), time.Second); err != nil {
		t.Fatalf("Next() error = %v, want buffered event", err)
	}
	for range 2 {
		if _, err := c.Next(t.Context(), time.Second); !errors.Is(err, a2a.ErrQueueClosed) {
			t.Fatalf("Next() error = %v, want %v", err, a2a.ErrQueueClosed)
		}
	}
}

func TestEventConsumerStopsAtFinalEvent(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())

	enqueueN(t, q, 1, 2)
	final := seqEvent(3)
	final.Status.State = a2a.TaskStateCompleted
	final.Final = true
	if err := q.Enqueue(t.Context(), final); err != nil {
		t.Fatal(err)
	}
	enqueueN(t, q, 4, 4)

	events, err := c.ConsumeAll(t.Context())
	if err != nil {
		t.Fatalf("ConsumeAll() error = %v", err)
	}
	var got []int
	for _, ev := range events {
		got = append(got, seqOf(t, ev))
	}
	if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
		t.Errorf("consumed events mismatch (-want +got):\n%s", diff)
	}
}

func TestEventConsumerMessageIsFinal(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())

	if err := q.Enqueue(t.Context(), a2a.NewTextMessage(a2a.RoleAgent, "hi")); err != nil {
		t.Fatal(err)
	}
	events, err := c.ConsumeAll(t.Context())
	if err != nil {
		t.Fatalf("ConsumeAll() error = %v", err)
	}
	if len(events) != 1 || events[0].Kind() != a2a.EventKindMessage {
		t.Errorf("ConsumeAll() = %v, want one message", events)
	}
}

func TestEventConsumerAgentError(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())
	boom := errors.New("executor crashed")

	enqueueN(t, q, 1, 2)
	c.SetAgentError(boom)
	c.SetAgentError(errors.New("ignored"))
	q.Close()

	var got []int
	var gotErr error
	for ev, err := range c.Events(t.Context()) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, seqOf(t, ev))
	}
	if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
		t.Errorf("events before error mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("sequence error = %v, want %v", gotErr, boom)
	}
}

func TestEventConsumerAgentErrorWithoutClose(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())
	boom := errors.New("executor crashed")

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.SetAgentError(boom)
	}()
	if _, err := c.Next(t.Context(), time.Second); !errors.Is(err, boom) {
		t.Errorf("Next() error = %v, want %v", err, boom)
	}
}

func TestEventConsumerDetach(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())
	other := q.Tap()

	c.Detach()
	enqueueN(t, q, 1, 1)

	if _, err := c.Next(t.Context(), time.Second); !errors.Is(err, a2a.ErrQueueClosed) {
		t.Errorf("Next() after Detach error = %v, want %v", err, a2a.ErrQueueClosed)
	}
	if q.IsClosed() {
		t.Error("Detach closed the queue")
	}
	if got := seqOf(t, <-other.Events()); got != 1 {
		t.Errorf("other tap seq = %d, want 1", got)
	}
}

func TestEventConsumerBreakKeepsQueue(t *testing.T) {
	q := NewEventQueue("task-1")
	c := NewEventConsumer(q.Tap())
	enqueueN(t, q, 1, 3)

	for range c.Events(t.Context()) {
		break
	}
	ev, err := c.Next(t.Context(), time.Second)
	if err != nil {
		t.Fatalf("Next() after break error = %v", err)
	}
	if got := seqOf(t, ev); got != 2 {
		t.Errorf("seq = %d, want 2", got)
	}
}
