// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import "slices"

// TaskState is the lifecycle state of a [Task].
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// transitions lists, for every non-terminal state, the states it may move to.
// Terminal states have no entry.
var transitions = map[TaskState][]TaskState{
	TaskStateSubmitted: {
		TaskStateSubmitted,
		TaskStateWorking,
		TaskStateRejected,
		TaskStateCanceled,
		TaskStateFailed,
	},
	TaskStateWorking: {
		TaskStateWorking,
		TaskStateInputRequired,
		TaskStateAuthRequired,
		TaskStateCompleted,
		TaskStateFailed,
		TaskStateCanceled,
		TaskStateRejected,
	},
	TaskStateInputRequired: {
		TaskStateInputRequired,
		TaskStateWorking,
		TaskStateCanceled,
		TaskStateFailed,
	},
	TaskStateAuthRequired: {
		TaskStateAuthRequired,
		TaskStateWorking,
		TaskStateCanceled,
		TaskStateFailed,
	},
}

// IsTerminal reports whether no further transition is accepted from s.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	default:
		return false
	}
}

// IsInterrupted reports whether the task is paused waiting on the client.
func (s TaskState) IsInterrupted() bool {
	return s == TaskStateInputRequired || s == TaskStateAuthRequired
}

// IsValid reports whether s is a known state other than unknown.
func (s TaskState) IsValid() bool {
	_, ok := transitions[s]
	return ok || s.IsTerminal()
}

// CanTransition reports whether a task in state from may move to state to.
func CanTransition(from, to TaskState) bool {
	return slices.Contains(transitions[from], to)
}

// NewSubmittedTask returns a task in the submitted state whose history starts
// with msg. msg may be nil.
func NewSubmittedTask(taskID, contextID string, msg *Message) *Task {
	t := &Task{
		ID:        taskID,
		ContextID: contextID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: Now(),
		},
	}
	if msg != nil {
		m := msg.Clone()
		if m.TaskID == "" {
			m.TaskID = taskID
		}
		if m.ContextID == "" {
			m.ContextID = contextID
		}
		t.History = append(t.History, *m)
	}
	return t
}
