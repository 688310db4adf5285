// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"fmt"

	"github.com/go-a2a/a2a-runtime"
)

// StoreError is returned by TaskStore and PushNotificationConfigStore
// implementations. Err is one of the a2a sentinel errors, possibly wrapping
// the backend error.
type StoreError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e StoreError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("task store %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("task store %s %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, taskID string, err error) StoreError {
	return StoreError{
		Operation: operation,
		TaskID:    taskID,
		Err:       err,
	}
}

// unavailable wraps a backend failure so it matches [a2a.ErrStoreUnavailable].
func unavailable(operation, taskID string, err error) StoreError {
	return NewStoreError(operation, taskID, fmt.Errorf("%w: %w", a2a.ErrStoreUnavailable, err))
}

// ManagerError is returned by [Manager] when an event is rejected.
type ManagerError struct {
	TaskID string
	Event  a2a.EventKind
	Err    error
}

// Error returns the error message.
func (e ManagerError) Error() string {
	return fmt.Sprintf("task manager: %s event for task %s: %v", e.Event, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e ManagerError) Unwrap() error {
	return e.Err
}

// NewManagerError creates a new ManagerError.
func NewManagerError(taskID string, kind a2a.EventKind, err error) ManagerError {
	return ManagerError{
		TaskID: taskID,
		Event:  kind,
		Err:    err,
	}
}

// UpdaterError is returned by [TaskUpdater].
type UpdaterError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e UpdaterError) Error() string {
	return fmt.Sprintf("task updater %s for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e UpdaterError) Unwrap() error {
	return e.Err
}

// NewUpdaterError creates a new UpdaterError.
func NewUpdaterError(operation, taskID string, err error) UpdaterError {
	return UpdaterError{
		Operation: operation,
		TaskID:    taskID,
		Err:       err,
	}
}

// IsStoreUnavailable reports whether err is a backend I/O failure.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, a2a.ErrStoreUnavailable)
}
