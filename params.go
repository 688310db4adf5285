// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
	"time"
)

// MessageSendConfiguration controls how a send is processed.
type MessageSendConfiguration struct {
	AcceptedOutputModes    []string                `json:"acceptedOutputModes,omitzero"`
	Blocking               *bool                   `json:"blocking,omitzero"`
	HistoryLength          *int                    `json:"historyLength,omitzero"`
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitzero"`
}

// MessageSendParams is the request of message/send and message/stream.
type MessageSendParams struct {
	Message       *Message                  `json:"message"`
	Configuration *MessageSendConfiguration `json:"configuration,omitzero"`
	Metadata      map[string]any            `json:"metadata,omitzero"`
}

// IsBlocking reports whether the caller waits for a terminal or interrupted
// task. Sends block unless the configuration says otherwise.
func (p *MessageSendParams) IsBlocking() bool {
	if p.Configuration == nil || p.Configuration.Blocking == nil {
		return true
	}
	return *p.Configuration.Blocking
}

// HistoryLength returns the requested history length, or -1 for all.
func (p *MessageSendParams) HistoryLength() int {
	if p.Configuration == nil || p.Configuration.HistoryLength == nil {
		return -1
	}
	return *p.Configuration.HistoryLength
}

// Validate checks the request.
func (p *MessageSendParams) Validate() error {
	if err := p.Message.Validate(); err != nil {
		return err
	}
	if p.Configuration != nil {
		if n := p.Configuration.HistoryLength; n != nil && *n < 0 {
			return fmt.Errorf("%w: history length must not be negative", ErrInvalidParams)
		}
		if pc := p.Configuration.PushNotificationConfig; pc != nil {
			if err := pc.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// TaskIDParams addresses a task.
type TaskIDParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// TaskQueryParams is the request of tasks/get.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitzero"`
	Metadata      map[string]any `json:"metadata,omitzero"`
}

// ListTasksParams filters and pages a task listing. Zero fields do not filter.
type ListTasksParams struct {
	ContextID        string    `json:"contextId,omitzero"`
	Status           TaskState `json:"status,omitzero"`
	LastUpdatedAfter time.Time `json:"lastUpdatedAfter,omitzero"`
	PageSize         int       `json:"pageSize,omitzero"`
	PageToken        string    `json:"pageToken,omitzero"`
	HistoryLength    *int      `json:"historyLength,omitzero"`
}

// Validate checks the filter values.
func (p *ListTasksParams) Validate() error {
	if p.PageSize < 0 {
		return fmt.Errorf("%w: page size must not be negative", ErrInvalidParams)
	}
	if p.Status != "" && !p.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidParams, p.Status)
	}
	if p.HistoryLength != nil && *p.HistoryLength < 0 {
		return fmt.Errorf("%w: history length must not be negative", ErrInvalidParams)
	}
	return nil
}

// ListTasksResult is one page of a task listing.
type ListTasksResult struct {
	Tasks         []*Task `json:"tasks"`
	NextPageToken string  `json:"nextPageToken"`
	PageSize      int     `json:"pageSize"`
	TotalSize     int     `json:"totalSize"`
}

// GetTaskPushNotificationConfigParams addresses one push notification config.
type GetTaskPushNotificationConfigParams struct {
	ID                       string `json:"id"`
	PushNotificationConfigID string `json:"pushNotificationConfigId,omitzero"`
}

// DeleteTaskPushNotificationConfigParams addresses the config to delete.
type DeleteTaskPushNotificationConfigParams struct {
	ID                       string `json:"id"`
	PushNotificationConfigID string `json:"pushNotificationConfigId"`
}
