// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"fmt"

	"github.com/go-a2a/a2a-runtime"
)

// errPushNotSupported is returned by push notification operations when the
// handler has no config store.
var errPushNotSupported = fmt.Errorf("%w: push notifications are not enabled", a2a.ErrUnsupportedOperation)

func invalidParams(msg string) error {
	return fmt.Errorf("%w: %s", a2a.ErrInvalidParams, msg)
}

// notCancelable reports a cancel request for a task that already reached
// state. It matches both a2a.ErrTaskNotCancelable and a2a.ErrTaskNotModifiable.
func notCancelable(taskID string, state a2a.TaskState) error {
	return fmt.Errorf("task %s is %s: %w: %w", taskID, state, a2a.ErrTaskNotCancelable, a2a.ErrTaskNotModifiable)
}
