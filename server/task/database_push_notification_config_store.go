// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/go-a2a/a2a-runtime"
)

// DatabasePushNotificationConfigStore is a PushNotificationConfigStore backed
// by any gorm dialect.
type DatabasePushNotificationConfigStore struct {
	db    *gorm.DB
	table string
	ids   a2a.IDGenerator
}

var _ PushNotificationConfigStore = (*DatabasePushNotificationConfigStore)(nil)

// DatabasePushNotificationConfigStoreConfig holds configuration for
// DatabasePushNotificationConfigStore.
type DatabasePushNotificationConfigStoreConfig struct {
	DB *gorm.DB

	// TableName defaults to "push_notification_configs".
	TableName string

	// CreateTable runs the additive migration on construction.
	CreateTable bool
}

// NewDatabasePushNotificationConfigStore creates a new DatabasePushNotificationConfigStore.
func NewDatabasePushNotificationConfigStore(ctx context.Context, config DatabasePushNotificationConfigStoreConfig) (*DatabasePushNotificationConfigStore, error) {
	if config.DB == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if config.TableName == "" {
		config.TableName = pushConfigModel{}.TableName()
	}

	s := &DatabasePushNotificationConfigStore{
		db:    config.DB,
		table: config.TableName,
		ids:   a2a.UUIDGenerator,
	}
	if config.CreateTable {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the table or adds missing columns and indexes.
func (s *DatabasePushNotificationConfigStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&pushConfigModel{}); err != nil {
		return unavailable("migrate push configs", "", err)
	}
	return nil
}

// Set implements [PushNotificationConfigStore].
func (s *DatabasePushNotificationConfigStore) Set(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if err := config.Validate(); err != nil {
		return nil, NewStoreError("set push config", taskID, err)
	}
	stored := config.Clone()
	if stored.ID == "" {
		stored.ID = s.ids.NewID()
	}

	m := &pushConfigModel{
		TaskID:   taskID,
		ConfigID: stored.ID,
		Config:   jsonColumn[a2a.PushNotificationConfig]{V: *stored},
	}
	err := s.db.WithContext(ctx).Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "config_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return nil, unavailable("set push config", taskID, err)
	}
	return stored, nil
}

// Get implements [PushNotificationConfigStore].
func (s *DatabasePushNotificationConfigStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	var m pushConfigModel
	err := s.db.WithContext(ctx).Table(s.table).
		Where("task_id = ? AND config_id = ?", taskID, configID).
		Take(&m).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, NewStoreError("get push config", taskID, a2a.ErrPushNotificationConfigNotFound)
	case err != nil:
		return nil, unavailable("get push config", taskID, err)
	}
	c := m.Config.V
	return &c, nil
}

// List implements [PushNotificationConfigStore].
func (s *DatabasePushNotificationConfigStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	var models []pushConfigModel
	err := s.db.WithContext(ctx).Table(s.table).
		Where("task_id = ?", taskID).
		Order("created_at").Order("config_id").
		Find(&models).Error
	if err != nil {
		return nil, unavailable("list push configs", taskID, err)
	}
	out := make([]*a2a.PushNotificationConfig, len(models))
	for i := range models {
		c := models[i].Config.V
		out[i] = &c
	}
	return out, nil
}

// Delete implements [PushNotificationConfigStore].
func (s *DatabasePushNotificationConfigStore) Delete(ctx context.Context, taskID, configID string) error {
	res := s.db.WithContext(ctx).Table(s.table).
		Where("task_id = ? AND config_id = ?", taskID, configID).
		Delete(&pushConfigModel{})
	if res.Error != nil {
		return unavailable("delete push config", taskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return NewStoreError("delete push config", taskID, a2a.ErrPushNotificationConfigNotFound)
	}
	return nil
}

// DeleteAll implements [PushNotificationConfigStore].
func (s *DatabasePushNotificationConfigStore) DeleteAll(ctx context.Context, taskID string) error {
	err := s.db.WithContext(ctx).Table(s.table).
		Where("task_id = ?", taskID).
		Delete(&pushConfigModel{}).Error
	if err != nil {
		return unavailable("delete push configs", taskID, err)
	}
	return nil
}
