// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

// EventKind names the variant of an [Event].
type EventKind string

const (
	EventKindTask           EventKind = "task"
	EventKindMessage        EventKind = "message"
	EventKindStatusUpdate   EventKind = "status-update"
	EventKindArtifactUpdate EventKind = "artifact-update"
)

// TaskInfo identifies the task an event belongs to.
type TaskInfo struct {
	TaskID    string
	ContextID string
}

// Event is anything an agent executor can publish to an event queue:
// *[Task], *[Message], *[TaskStatusUpdateEvent] or *[TaskArtifactUpdateEvent].
type Event interface {
	Kind() EventKind
	TaskInfo() TaskInfo

	isEvent()
}

// SendMessageResult is the result of a non-streaming send: a *[Task], or a
// *[Message] when the agent replied without creating a task.
type SendMessageResult interface {
	isSendMessageResult()
}

var (
	_ Event = (*Task)(nil)
	_ Event = (*Message)(nil)
	_ Event = (*TaskStatusUpdateEvent)(nil)
	_ Event = (*TaskArtifactUpdateEvent)(nil)

	_ SendMessageResult = (*Task)(nil)
	_ SendMessageResult = (*Message)(nil)
)

// TaskStatusUpdateEvent moves a task to a new status.
type TaskStatusUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// TaskArtifactUpdateEvent adds, extends or replaces an artifact of a task.
type TaskArtifactUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitzero"`
	LastChunk bool           `json:"lastChunk,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

func (*Task) Kind() EventKind                    { return EventKindTask }
func (*Message) Kind() EventKind                 { return EventKindMessage }
func (*TaskStatusUpdateEvent) Kind() EventKind   { return EventKindStatusUpdate }
func (*TaskArtifactUpdateEvent) Kind() EventKind { return EventKindArtifactUpdate }

func (t *Task) TaskInfo() TaskInfo    { return TaskInfo{TaskID: t.ID, ContextID: t.ContextID} }
func (m *Message) TaskInfo() TaskInfo { return TaskInfo{TaskID: m.TaskID, ContextID: m.ContextID} }
func (e *TaskStatusUpdateEvent) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: e.TaskID, ContextID: e.ContextID}
}
func (e *TaskArtifactUpdateEvent) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: e.TaskID, ContextID: e.ContextID}
}

func (*Task) isEvent()                    {}
func (*Message) isEvent()                 {}
func (*TaskStatusUpdateEvent) isEvent()   {}
func (*TaskArtifactUpdateEvent) isEvent() {}

func (*Task) isSendMessageResult()    {}
func (*Message) isSendMessageResult() {}

// IsFinal reports whether ev ends an event stream: a message reply, a status
// update flagged final or reaching a terminal state, or a task snapshot in a
// terminal state.
func IsFinal(ev Event) bool {
	switch v := ev.(type) {
	case *Message:
		return true
	case *TaskStatusUpdateEvent:
		return v.Final || v.Status.State.IsTerminal()
	case *Task:
		return v.Status.State.IsTerminal()
	default:
		return false
	}
}
