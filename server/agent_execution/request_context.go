// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agent_execution

import (
	"slices"
	"strings"
	"sync"

	"github.com/go-a2a/a2a-runtime"
)

// RequestContext describes an incoming request to an [AgentExecutor].
type RequestContext struct {
	taskID    string
	contextID string
	params    *a2a.MessageSendParams
	task      *a2a.Task

	mu      sync.Mutex
	related []*a2a.Task
}

// NewRequestContext returns the context of a request for taskID in
// contextID. params may be nil for cancellation; task is the current snapshot
// when the request continues an existing task.
func NewRequestContext(params *a2a.MessageSendParams, taskID, contextID string, task *a2a.Task) *RequestContext {
	return &RequestContext{
		taskID:    taskID,
		contextID: contextID,
		params:    params,
		task:      task,
	}
}

// TaskID returns the ID of the task being worked on.
func (rc *RequestContext) TaskID() string { return rc.taskID }

// ContextID returns the conversation context ID.
func (rc *RequestContext) ContextID() string { return rc.contextID }

// Message returns the incoming message, or nil.
func (rc *RequestContext) Message() *a2a.Message {
	if rc.params == nil {
		return nil
	}
	return rc.params.Message
}

// Params returns the request parameters, or nil.
func (rc *RequestContext) Params() *a2a.MessageSendParams { return rc.params }

// CurrentTask returns the task snapshot the request continues, or nil for a
// new task.
func (rc *RequestContext) CurrentTask() *a2a.Task { return rc.task }

// Configuration returns the send configuration, or nil.
func (rc *RequestContext) Configuration() *a2a.MessageSendConfiguration {
	if rc.params == nil {
		return nil
	}
	return rc.params.Configuration
}

// Metadata returns the request metadata.
func (rc *RequestContext) Metadata() map[string]any {
	if rc.params == nil {
		return nil
	}
	return rc.params.Metadata
}

// RelatedTasks returns the tasks the incoming message references.
func (rc *RequestContext) RelatedTasks() []*a2a.Task {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return slices.Clone(rc.related)
}

// AttachRelatedTask records t as related to the request.
func (rc *RequestContext) AttachRelatedTask(t *a2a.Task) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.related = append(rc.related, t)
}

// UserInput joins the text parts of the incoming message with sep.
func (rc *RequestContext) UserInput(sep string) string {
	msg := rc.Message()
	if msg == nil {
		return ""
	}
	var texts []string
	for _, p := range msg.Parts {
		if p.Kind == a2a.PartKindText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, sep)
}
