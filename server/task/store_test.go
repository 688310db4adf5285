// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-a2a/a2a-runtime"
)

var taskCmpOpts = []cmp.Option{
	cmpopts.IgnoreUnexported(a2a.Task{}),
	cmpopts.EquateEmpty(),
}

func newTestTask(id, contextID string, state a2a.TaskState) *a2a.Task {
	return &a2a.Task{
		ID:        id,
		ContextID: contextID,
		Status: a2a.TaskStatus{
			State:     state,
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		History: []a2a.Message{{
			MessageID: "m-" + id,
			Role:      a2a.RoleUser,
			Parts:     []a2a.Part{a2a.NewTextPart("hello")},
		}},
		Metadata: map[string]any{"source": "test"},
	}
}

func newSQLiteTaskStore(t *testing.T) TaskStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "a2a.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	s, err := NewDatabaseTaskStore(t.Context(), DatabaseTaskStoreConfig{DB: db, CreateTable: true})
	if err != nil {
		t.Fatalf("NewDatabaseTaskStore() error = %v", err)
	}
	return s
}

func newPostgresTaskStore(t *testing.T) TaskStore {
	t.Helper()
	dsn := os.Getenv("A2A_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("A2A_TEST_POSTGRES_DSN not set")
	}
	pool, err := pgxpool.New(t.Context(), dsn)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)

	table := fmt.Sprintf("tasks_test_%d", time.Now().UnixNano())
	s, err := NewPostgresTaskStore(t.Context(), PostgresTaskStoreConfig{Pool: pool, TableName: table, CreateTable: true})
	if err != nil {
		t.Fatalf("NewPostgresTaskStore() error = %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
	})
	return s
}

var taskStores = map[string]func(t *testing.T) TaskStore{
	"memory":   func(*testing.T) TaskStore { return NewInMemoryTaskStore() },
	"sqlite":   newSQLiteTaskStore,
	"postgres": newPostgresTaskStore,
}

func TestTaskStoreSaveGet(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			want := newTestTask("t1", "c1", a2a.TaskStateWorking)

			if err := s.Save(t.Context(), want); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if want.Revision() != 1 {
				t.Errorf("Revision() after first save = %d, want 1", want.Revision())
			}

			got, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if diff := cmp.Diff(want, got, taskCmpOpts...); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}
			if got.Revision() != 1 {
				t.Errorf("Get().Revision() = %d, want 1", got.Revision())
			}

			if _, err := s.Get(t.Context(), "missing"); !errors.Is(err, a2a.ErrTaskNotFound) {
				t.Errorf("Get(missing) error = %v, want %v", err, a2a.ErrTaskNotFound)
			}
		})
	}
}

func TestTaskStoreReturnsCopies(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			task := newTestTask("t1", "c1", a2a.TaskStateWorking)
			if err := s.Save(t.Context(), task); err != nil {
				t.Fatal(err)
			}
			task.Status.State = a2a.TaskStateFailed

			got, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatal(err)
			}
			got.Metadata["source"] = "mutated"

			again, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatal(err)
			}
			if again.Status.State != a2a.TaskStateWorking || again.Metadata["source"] != "test" {
				t.Errorf("stored task changed through a caller copy: %+v", again)
			}
		})
	}
}

func TestTaskStoreUpsertReplaces(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Save(t.Context(), newTestTask("t1", "c1", a2a.TaskStateWorking)); err != nil {
				t.Fatal(err)
			}
			replacement := newTestTask("t1", "c1", a2a.TaskStateCompleted)
			replacement.Metadata = nil
			if err := s.Save(t.Context(), replacement); err != nil {
				t.Fatalf("blind Save() error = %v", err)
			}

			got, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(replacement, got, taskCmpOpts...); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}
			if got.Revision() != 2 {
				t.Errorf("Revision() = %d, want 2", got.Revision())
			}
		})
	}
}

func TestTaskStoreRejectsStaleSave(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Save(t.Context(), newTestTask("t1", "c1", a2a.TaskStateWorking)); err != nil {
				t.Fatal(err)
			}

			a, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatal(err)
			}
			b, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatal(err)
			}

			a.Status.State = a2a.TaskStateCompleted
			if err := s.Save(t.Context(), a); err != nil {
				t.Fatalf("first conditional Save() error = %v", err)
			}
			b.Status.State = a2a.TaskStateFailed
			if err := s.Save(t.Context(), b); !errors.Is(err, a2a.ErrConcurrentModification) {
				t.Fatalf("stale Save() error = %v, want %v", err, a2a.ErrConcurrentModification)
			}

			got, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Status.State != a2a.TaskStateCompleted {
				t.Errorf("state = %s, want %s", got.Status.State, a2a.TaskStateCompleted)
			}
		})
	}
}

func TestTaskStoreRejectsSaveAfterDelete(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Save(t.Context(), newTestTask("t1", "c1", a2a.TaskStateWorking)); err != nil {
				t.Fatal(err)
			}
			snapshot, err := s.Get(t.Context(), "t1")
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Delete(t.Context(), "t1"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}

			snapshot.Status.State = a2a.TaskStateCompleted
			if err := s.Save(t.Context(), snapshot); !errors.Is(err, a2a.ErrConcurrentModification) {
				t.Fatalf("Save() of deleted snapshot error = %v, want %v", err, a2a.ErrConcurrentModification)
			}
			if _, err := s.Get(t.Context(), "t1"); !errors.Is(err, a2a.ErrTaskNotFound) {
				t.Errorf("Get() error = %v, want %v", err, a2a.ErrTaskNotFound)
			}
		})
	}
}

func TestTaskStoreDelete(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			if err := s.Save(t.Context(), newTestTask("t1", "c1", a2a.TaskStateWorking)); err != nil {
				t.Fatal(err)
			}
			if err := s.Delete(t.Context(), "t1"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(t.Context(), "t1"); !errors.Is(err, a2a.ErrTaskNotFound) {
				t.Errorf("Get() after Delete error = %v, want %v", err, a2a.ErrTaskNotFound)
			}
			if err := s.Delete(t.Context(), "t1"); !errors.Is(err, a2a.ErrTaskNotFound) {
				t.Errorf("second Delete() error = %v, want %v", err, a2a.ErrTaskNotFound)
			}
		})
	}
}

func TestTaskStorePaginationRoundTrip(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			const n = 23
			want := make(map[string]bool, n)
			for i := range n {
				id := fmt.Sprintf("task-%02d", i)
				want[id] = true
				if err := s.Save(t.Context(), newTestTask(id, "c1", a2a.TaskStateWorking)); err != nil {
					t.Fatal(err)
				}
			}

			seen := make(map[string]bool, n)
			params := &a2a.ListTasksParams{PageSize: 5}
			pages := 0
			for {
				res, err := s.List(t.Context(), params)
				if err != nil {
					t.Fatalf("List() page %d error = %v", pages, err)
				}
				pages++
				if res.TotalSize != n {
					t.Errorf("TotalSize = %d, want %d", res.TotalSize, n)
				}
				for _, task := range res.Tasks {
					if seen[task.ID] {
						t.Errorf("task %s listed twice", task.ID)
					}
					seen[task.ID] = true
				}
				if res.NextPageToken == "" {
					break
				}
				params.PageToken = res.NextPageToken
			}

			if pages != 5 {
				t.Errorf("pages = %d, want 5", pages)
			}
			if diff := cmp.Diff(want, seen); diff != "" {
				t.Errorf("listed tasks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTaskStoreListOrderAndFilters(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			for _, task := range []*a2a.Task{
				newTestTask("a", "c1", a2a.TaskStateWorking),
				newTestTask("b", "c2", a2a.TaskStateCompleted),
				newTestTask("c", "c1", a2a.TaskStateCompleted),
			} {
				if err := s.Save(t.Context(), task); err != nil {
					t.Fatal(err)
				}
			}
			mark := time.Now()
			time.Sleep(2 * time.Millisecond)
			// Touch "a" so it becomes the most recent.
			if err := s.Save(t.Context(), newTestTask("a", "c1", a2a.TaskStateWorking)); err != nil {
				t.Fatal(err)
			}

			tests := []struct {
				name   string
				params a2a.ListTasksParams
				want   []string
			}{
				{name: "all newest first", want: []string{"a", "c", "b"}},
				{name: "context", params: a2a.ListTasksParams{ContextID: "c1"}, want: []string{"a", "c"}},
				{name: "status", params: a2a.ListTasksParams{Status: a2a.TaskStateCompleted}, want: []string{"c", "b"}},
				{name: "context and status", params: a2a.ListTasksParams{ContextID: "c1", Status: a2a.TaskStateCompleted}, want: []string{"c"}},
				{name: "updated after", params: a2a.ListTasksParams{LastUpdatedAfter: mark}, want: []string{"a"}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					res, err := s.List(t.Context(), &tt.params)
					if err != nil {
						t.Fatalf("List() error = %v", err)
					}
					var got []string
					for _, task := range res.Tasks {
						got = append(got, task.ID)
					}
					if diff := cmp.Diff(tt.want, got); diff != "" {
						t.Errorf("List() ids mismatch (-want +got):\n%s", diff)
					}
				})
			}
		})
	}
}

func TestTaskStoreInvalidPageToken(t *testing.T) {
	for name, newStore := range taskStores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			for i := range 3 {
				if err := s.Save(t.Context(), newTestTask(fmt.Sprint(i), "c1", a2a.TaskStateWorking)); err != nil {
					t.Fatal(err)
				}
			}
			res, err := s.List(t.Context(), &a2a.ListTasksParams{ContextID: "c1", PageSize: 1})
			if err != nil {
				t.Fatal(err)
			}

			for _, params := range []*a2a.ListTasksParams{
				{PageToken: "garbage"},
				{ContextID: "c2", PageToken: res.NextPageToken},
			} {
				if _, err := s.List(t.Context(), params); !errors.Is(err, a2a.ErrInvalidPageToken) {
					t.Errorf("List(%+v) error = %v, want %v", params, err, a2a.ErrInvalidPageToken)
				}
			}
		})
	}
}
