// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a defines the Agent-to-Agent (A2A) protocol entities handled by
// the task lifecycle engine: tasks, messages, artifacts, the events that
// mutate them, and push notification configuration.
package a2a

import (
	"fmt"
	"time"
)

// Role identifies the sender of a [Message].
type Role string

const (
	// RoleUser marks messages sent by the client.
	RoleUser Role = "user"
	// RoleAgent marks messages produced by the agent.
	RoleAgent Role = "agent"
)

// PartKind discriminates the variants of [Part].
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// FileContent is the payload of a file part. Exactly one of Bytes (base64) or
// URI is set.
type FileContent struct {
	Name     string `json:"name,omitzero"`
	MIMEType string `json:"mimeType,omitzero"`
	Bytes    string `json:"bytes,omitzero"`
	URI      string `json:"uri,omitzero"`
}

// Part is one content segment of a [Message] or [Artifact].
//
// Part is a tagged variant: Kind selects which of Text, File or Data is
// meaningful.
type Part struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitzero"`
	File     *FileContent   `json:"file,omitzero"`
	Data     map[string]any `json:"data,omitzero"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// NewTextPart returns a text [Part].
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewDataPart returns a structured data [Part].
func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// NewFilePart returns a file [Part].
func NewFilePart(file FileContent) Part {
	return Part{Kind: PartKindFile, File: &file}
}

// Validate reports whether the part carries the payload its kind requires.
func (p Part) Validate() error {
	switch p.Kind {
	case PartKindText:
		return nil
	case PartKindData:
		if p.Data == nil {
			return fmt.Errorf("%w: data part without data", ErrInvalidParams)
		}
		return nil
	case PartKindFile:
		if p.File == nil {
			return fmt.Errorf("%w: file part without file", ErrInvalidParams)
		}
		if (p.File.Bytes == "") == (p.File.URI == "") {
			return fmt.Errorf("%w: file part needs exactly one of bytes or uri", ErrInvalidParams)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown part kind %q", ErrInvalidParams, p.Kind)
	}
}

// Message is a single turn of communication between a client and an agent.
// A message is immutable once appended to a task's history.
type Message struct {
	MessageID        string         `json:"messageId"`
	ContextID        string         `json:"contextId,omitzero"`
	TaskID           string         `json:"taskId,omitzero"`
	Role             Role           `json:"role"`
	Parts            []Part         `json:"parts"`
	Metadata         map[string]any `json:"metadata,omitzero"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitzero"`
}

// NewMessage returns a message with a freshly generated message ID.
func NewMessage(role Role, parts ...Part) *Message {
	return &Message{
		MessageID: NewID(),
		Role:      role,
		Parts:     parts,
	}
}

// NewTextMessage returns a message holding a single text part.
func NewTextMessage(role Role, text string) *Message {
	return NewMessage(role, NewTextPart(text))
}

// Validate checks the fields every message must carry.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: message is required", ErrInvalidParams)
	}
	if m.MessageID == "" {
		return fmt.Errorf("%w: message id is required", ErrInvalidParams)
	}
	if m.Role != RoleUser && m.Role != RoleAgent {
		return fmt.Errorf("%w: invalid role %q", ErrInvalidParams, m.Role)
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("%w: message must have at least one part", ErrInvalidParams)
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// Artifact is a named output produced by a task, possibly in chunks.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitzero"`
	Description string         `json:"description,omitzero"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitzero"`
}

// TaskStatus is the current state of a task plus an optional explanatory
// message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitzero"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Task is a unit of long-running agent work.
//
// ID and ContextID never change once the task exists. History is append-only.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitzero"`
	History   []Message      `json:"history,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`

	// revision is the store-maintained version the snapshot was read at.
	revision int64
}

// Revision reports the store revision this snapshot was read at. Zero means
// the snapshot did not come from a store.
func (t *Task) Revision() int64 { return t.revision }

// SetRevision records the store revision of the snapshot. It is meant for
// TaskStore implementations.
func (t *Task) SetRevision(rev int64) { t.revision = rev }

// Artifact returns the index of the artifact with the given ID, or -1.
func (t *Task) Artifact(id string) int {
	for i := range t.Artifacts {
		if t.Artifacts[i].ArtifactID == id {
			return i
		}
	}
	return -1
}

// TrimHistory keeps only the last n history entries. A negative n keeps
// everything.
func (t *Task) TrimHistory(n int) {
	if n < 0 || len(t.History) <= n {
		return
	}
	if n == 0 {
		t.History = nil
		return
	}
	t.History = t.History[len(t.History)-n:]
}

// PushNotificationAuthenticationInfo describes how the push endpoint expects
// to be authenticated.
type PushNotificationAuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitzero"`
}

// PushNotificationConfig is an endpoint registered to receive task updates.
type PushNotificationConfig struct {
	ID             string                              `json:"id,omitzero"`
	URL            string                              `json:"url"`
	Token          string                              `json:"token,omitzero"`
	Authentication *PushNotificationAuthenticationInfo `json:"authentication,omitzero"`
}

// Validate checks that the config has a usable endpoint.
func (c *PushNotificationConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: push notification config is required", ErrInvalidParams)
	}
	if c.URL == "" {
		return fmt.Errorf("%w: push notification url is required", ErrInvalidParams)
	}
	return nil
}

// TaskPushNotificationConfig binds a [PushNotificationConfig] to a task.
type TaskPushNotificationConfig struct {
	// Name is the resource identity, tasks/{taskId}/pushNotificationConfigs/{configId}.
	Name                   string                 `json:"name,omitzero"`
	TaskID                 string                 `json:"taskId"`
	PushNotificationConfig PushNotificationConfig `json:"pushNotificationConfig"`
}

// PushNotificationConfigName returns the resource name of a task's push
// notification config.
func PushNotificationConfigName(taskID, configID string) string {
	return "tasks/" + taskID + "/pushNotificationConfigs/" + configID
}
