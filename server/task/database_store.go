// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/pagetoken"
)

// OpenSQLite opens a SQLite database for the gorm-backed stores. SQLite allows
// one writer, so the pool is limited to a single connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// DatabaseTaskStore is a TaskStore backed by any gorm dialect.
//
// Lost updates are prevented optimistically: every row carries a revision and
// a conditional save only succeeds against the revision it read.
type DatabaseTaskStore struct {
	db     *gorm.DB
	table  string
	logger *slog.Logger

	clockMu  sync.Mutex
	lastTick time.Time
}

var _ TaskStore = (*DatabaseTaskStore)(nil)

// DatabaseTaskStoreConfig holds configuration for DatabaseTaskStore.
type DatabaseTaskStoreConfig struct {
	DB *gorm.DB

	// TableName defaults to "tasks".
	TableName string

	// CreateTable runs the additive migration on construction.
	CreateTable bool

	Logger *slog.Logger
}

// NewDatabaseTaskStore creates a new DatabaseTaskStore.
func NewDatabaseTaskStore(ctx context.Context, config DatabaseTaskStoreConfig) (*DatabaseTaskStore, error) {
	if config.DB == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if config.TableName == "" {
		config.TableName = taskModel{}.TableName()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &DatabaseTaskStore{
		db:     config.DB,
		table:  config.TableName,
		logger: config.Logger,
	}
	if config.CreateTable {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the table or adds missing columns and indexes. It never
// drops or alters existing columns.
func (s *DatabaseTaskStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&taskModel{}); err != nil {
		return unavailable("migrate", "", err)
	}
	return nil
}

func (s *DatabaseTaskStore) tick() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := time.Now().UTC()
	if !t.After(s.lastTick) {
		t = s.lastTick.Add(time.Nanosecond)
	}
	s.lastTick = t
	return t
}

// Save implements [TaskStore].
func (s *DatabaseTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return NewStoreError("save", "", errors.New("task with an id is required"))
	}

	var newRev int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur taskModel
		err := tx.Table(s.table).Select("revision").Where("id = ?", task.ID).Take(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if task.Revision() != 0 {
				// The snapshot was read from a row that has since been deleted.
				return a2a.ErrConcurrentModification
			}
			newRev = 1
			model := newTaskModel(task, s.tick(), newRev)
			return tx.Table(s.table).Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error
		case err != nil:
			return err
		}

		if task.Revision() != 0 && task.Revision() != cur.Revision {
			return a2a.ErrConcurrentModification
		}
		newRev = cur.Revision + 1
		model := newTaskModel(task, s.tick(), newRev)
		res := tx.Table(s.table).
			Where("id = ? AND revision = ?", task.ID, cur.Revision).
			Updates(map[string]any{
				"context_id":   model.ContextID,
				"state":        model.State,
				"status":       model.Status,
				"artifacts":    model.Artifacts,
				"history":      model.History,
				"metadata":     model.Metadata,
				"last_updated": model.LastUpdated,
				"revision":     model.Revision,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return a2a.ErrConcurrentModification
		}
		return nil
	})
	switch {
	case errors.Is(err, a2a.ErrConcurrentModification):
		return NewStoreError("save", task.ID, err)
	case err != nil:
		return unavailable("save", task.ID, err)
	}

	task.SetRevision(newRev)
	s.logger.DebugContext(ctx, "task saved", slog.String("task_id", task.ID), slog.Int64("revision", newRev))
	return nil
}

// Get implements [TaskStore].
func (s *DatabaseTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	var m taskModel
	err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", taskID).Take(&m).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, NewStoreError("get", taskID, a2a.ErrTaskNotFound)
	case err != nil:
		return nil, unavailable("get", taskID, err)
	}
	return m.toTask(), nil
}

// List implements [TaskStore].
func (s *DatabaseTaskStore) List(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	if params == nil {
		params = &a2a.ListTasksParams{}
	}
	cur, hasCursor, err := pagetoken.Decode(params)
	if err != nil {
		return nil, NewStoreError("list", "", err)
	}

	q := s.db.WithContext(ctx).Table(s.table)
	if params.ContextID != "" {
		q = q.Where("context_id = ?", params.ContextID)
	}
	if params.Status != "" {
		q = q.Where("state = ?", string(params.Status))
	}
	if !params.LastUpdatedAfter.IsZero() {
		q = q.Where("last_updated > ?", params.LastUpdatedAfter.UnixNano())
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, unavailable("list", "", err)
	}

	if hasCursor {
		q = q.Where("last_updated < ? OR (last_updated = ? AND id <= ?)", cur.UpdatedAt, cur.UpdatedAt, cur.TaskID)
	}
	size := pagetoken.Size(params.PageSize)
	var models []taskModel
	if err := q.Order("last_updated DESC").Order("id DESC").Limit(size + 1).Find(&models).Error; err != nil {
		return nil, unavailable("list", "", err)
	}

	res := &a2a.ListTasksResult{
		Tasks:     make([]*a2a.Task, 0, min(len(models), size)),
		PageSize:  size,
		TotalSize: int(total),
	}
	for i := range models {
		if i == size {
			next := models[i].entry()
			res.NextPageToken = pagetoken.Encode(params, next.updatedAt, next.task.ID)
			break
		}
		res.Tasks = append(res.Tasks, models[i].toTask())
	}
	return res, nil
}

// Delete implements [TaskStore].
func (s *DatabaseTaskStore) Delete(ctx context.Context, taskID string) error {
	res := s.db.WithContext(ctx).Table(s.table).Where("id = ?", taskID).Delete(&taskModel{})
	if res.Error != nil {
		return unavailable("delete", taskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return NewStoreError("delete", taskID, a2a.ErrTaskNotFound)
	}
	return nil
}
