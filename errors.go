// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import "errors"

// Task lifecycle errors.
var (
	// ErrTaskNotFound is returned when the addressed task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPushNotificationConfigNotFound is returned when the addressed push
	// notification config does not exist.
	ErrPushNotificationConfigNotFound = errors.New("push notification config not found")

	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrTaskIDMismatch is returned when an event addresses a different task
	// or context than the one being updated.
	ErrTaskIDMismatch = errors.New("task id mismatch")

	// ErrTaskNotModifiable is returned when a write targets a task in a terminal state.
	ErrTaskNotModifiable = errors.New("task is in a terminal state and cannot be modified")

	// ErrTaskNotCancelable is returned when cancellation is requested for a task
	// that can no longer be canceled.
	ErrTaskNotCancelable = errors.New("task cannot be canceled")

	// ErrInvalidPageToken is returned for page tokens the store did not issue
	// for the same filter.
	ErrInvalidPageToken = errors.New("invalid page token")

	// ErrTimeout is returned by a consumer when no event arrived in time. It is
	// recoverable.
	ErrTimeout = errors.New("timed out waiting for event")

	// ErrQueueClosed is returned once a queue is closed and drained.
	ErrQueueClosed = errors.New("event queue is closed")

	// ErrStoreUnavailable wraps backend I/O failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConcurrentModification is returned when a save is based on a stale
	// snapshot.
	ErrConcurrentModification = errors.New("task was modified concurrently")

	// ErrInvalidParams is returned for malformed requests.
	ErrInvalidParams = errors.New("invalid params")

	// ErrUnsupportedOperation is returned for operations the server does not offer.
	ErrUnsupportedOperation = errors.New("operation not supported")
)

// IsNotFound reports whether err means a task or push notification config
// does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrPushNotificationConfigNotFound)
}
