// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// NewID returns a new random identifier (UUID v4).
func NewID() string {
	return uuid.NewString()
}

// IDGenerator produces identifiers for messages and artifacts.
type IDGenerator interface {
	NewID() string
}

// IDGeneratorFunc adapts a function to [IDGenerator].
type IDGeneratorFunc func() string

// NewID implements [IDGenerator].
func (f IDGeneratorFunc) NewID() string { return f() }

// UUIDGenerator is the default [IDGenerator].
var UUIDGenerator IDGenerator = IDGeneratorFunc(NewID)

// Now returns the current time in UTC without a monotonic reading, the form
// stored in status timestamps.
func Now() time.Time {
	return time.Now().UTC()
}

// Clone returns a deep copy of the task, including its store revision.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Status = t.Status.clone()
	if t.Artifacts != nil {
		c.Artifacts = make([]Artifact, len(t.Artifacts))
		for i := range t.Artifacts {
			c.Artifacts[i] = *t.Artifacts[i].Clone()
		}
	}
	if t.History != nil {
		c.History = make([]Message, len(t.History))
		for i := range t.History {
			c.History[i] = *t.History[i].Clone()
		}
	}
	c.Metadata = CloneMetadata(t.Metadata)
	return &c
}

func (s TaskStatus) clone() TaskStatus {
	s.Message = s.Message.Clone()
	return s
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Parts = cloneParts(m.Parts)
	c.Metadata = CloneMetadata(m.Metadata)
	c.ReferenceTaskIDs = slices.Clone(m.ReferenceTaskIDs)
	return &c
}

// Clone returns a deep copy of the artifact.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.Parts = cloneParts(a.Parts)
	c.Metadata = CloneMetadata(a.Metadata)
	return &c
}

// Clone returns a deep copy of the status update event.
func (e *TaskStatusUpdateEvent) Clone() *TaskStatusUpdateEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Status = e.Status.clone()
	c.Metadata = CloneMetadata(e.Metadata)
	return &c
}

// Clone returns a deep copy of the artifact update event.
func (e *TaskArtifactUpdateEvent) Clone() *TaskArtifactUpdateEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Artifact = *e.Artifact.Clone()
	c.Metadata = CloneMetadata(e.Metadata)
	return &c
}

// Clone returns a deep copy of the config.
func (c *PushNotificationConfig) Clone() *PushNotificationConfig {
	if c == nil {
		return nil
	}
	cc := *c
	if c.Authentication != nil {
		auth := *c.Authentication
		auth.Schemes = slices.Clone(c.Authentication.Schemes)
		cc.Authentication = &auth
	}
	return &cc
}

// CloneEvent returns a deep copy of ev.
func CloneEvent(ev Event) Event {
	switch v := ev.(type) {
	case *Task:
		return v.Clone()
	case *Message:
		return v.Clone()
	case *TaskStatusUpdateEvent:
		return v.Clone()
	case *TaskArtifactUpdateEvent:
		return v.Clone()
	default:
		return ev
	}
}

func cloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	c := make([]Part, len(parts))
	for i, p := range parts {
		c[i] = p
		if p.File != nil {
			f := *p.File
			c[i].File = &f
		}
		c[i].Data = CloneMetadata(p.Data)
		c[i].Metadata = CloneMetadata(p.Metadata)
	}
	return c
}

// CloneMetadata deep-copies a JSON-like map. Nested maps and slices are
// copied; other values are shared.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := maps.Clone(m)
	for k, v := range c {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return CloneMetadata(vv)
	case []any:
		c := make([]any, len(vv))
		for i := range vv {
			c[i] = cloneValue(vv[i])
		}
		return c
	default:
		return v
	}
}
