// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/go-a2a/a2a-runtime"
)

// jsonColumn stores a value as JSON text in a single column.
type jsonColumn[T any] struct {
	V T
}

// Value implements the driver.Valuer interface for database storage.
func (c jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(c.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database retrieval.
func (c *jsonColumn[T]) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		var zero T
		c.V = zero
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into a JSON column", value)
	}
	return json.Unmarshal(b, &c.V)
}

// taskModel is the relational row of a task. State and LastUpdated duplicate
// data held in Status so listings can filter and order in SQL; Revision backs
// optimistic locking.
type taskModel struct {
	ID          string                     `gorm:"primaryKey;size:64"`
	ContextID   string                     `gorm:"size:64;index"`
	State       string                     `gorm:"size:32;index"`
	Status      jsonColumn[a2a.TaskStatus] `gorm:"type:text"`
	Artifacts   jsonColumn[[]a2a.Artifact] `gorm:"type:text"`
	History     jsonColumn[[]a2a.Message]  `gorm:"type:text"`
	Metadata    jsonColumn[map[string]any] `gorm:"type:text"`
	LastUpdated int64                      `gorm:"index"`
	Revision    int64                      `gorm:"not null;default:0"`
}

// TableName implements gorm's Tabler.
func (taskModel) TableName() string { return "tasks" }

func newTaskModel(t *a2a.Task, updatedAt time.Time, revision int64) *taskModel {
	return &taskModel{
		ID:          t.ID,
		ContextID:   t.ContextID,
		State:       string(t.Status.State),
		Status:      jsonColumn[a2a.TaskStatus]{V: t.Status},
		Artifacts:   jsonColumn[[]a2a.Artifact]{V: t.Artifacts},
		History:     jsonColumn[[]a2a.Message]{V: t.History},
		Metadata:    jsonColumn[map[string]any]{V: t.Metadata},
		LastUpdated: updatedAt.UnixNano(),
		Revision:    revision,
	}
}

func (m *taskModel) toTask() *a2a.Task {
	t := &a2a.Task{
		ID:        m.ID,
		ContextID: m.ContextID,
		Status:    m.Status.V,
		Artifacts: m.Artifacts.V,
		History:   m.History.V,
		Metadata:  m.Metadata.V,
	}
	t.SetRevision(m.Revision)
	return t
}

func (m *taskModel) entry() listEntry {
	return listEntry{task: m.toTask(), updatedAt: time.Unix(0, m.LastUpdated).UTC()}
}

// pushConfigModel is the relational row of a push notification config.
type pushConfigModel struct {
	TaskID    string                                 `gorm:"primaryKey;size:64"`
	ConfigID  string                                 `gorm:"primaryKey;size:64"`
	Config    jsonColumn[a2a.PushNotificationConfig] `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's Tabler.
func (pushConfigModel) TableName() string { return "push_notification_configs" }
