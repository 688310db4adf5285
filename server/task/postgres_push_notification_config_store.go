// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-a2a/a2a-runtime"
)

// PostgresPushNotificationConfigStore is a PushNotificationConfigStore on
// PostgreSQL using pgx.
type PostgresPushNotificationConfigStore struct {
	pool  *pgxpool.Pool
	table string
	ids   a2a.IDGenerator
}

var _ PushNotificationConfigStore = (*PostgresPushNotificationConfigStore)(nil)

// PostgresPushNotificationConfigStoreConfig holds configuration for
// PostgresPushNotificationConfigStore.
type PostgresPushNotificationConfigStoreConfig struct {
	Pool *pgxpool.Pool

	// TableName defaults to "push_notification_configs".
	TableName string

	// CreateTable runs the schema statements on construction.
	CreateTable bool
}

// NewPostgresPushNotificationConfigStore creates a new PostgresPushNotificationConfigStore.
func NewPostgresPushNotificationConfigStore(ctx context.Context, config PostgresPushNotificationConfigStoreConfig) (*PostgresPushNotificationConfigStore, error) {
	if config.Pool == nil {
		return nil, errors.New("postgres pool cannot be nil")
	}
	if config.TableName == "" {
		config.TableName = pushConfigModel{}.TableName()
	}

	s := &PostgresPushNotificationConfigStore{
		pool:  config.Pool,
		table: pgx.Identifier{config.TableName}.Sanitize(),
		ids:   a2a.UUIDGenerator,
	}
	if config.CreateTable {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the table when it does not exist.
func (s *PostgresPushNotificationConfigStore) Migrate(ctx context.Context) error {
	idx := strings.Trim(s.table, `"`)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			seq BIGSERIAL,
			task_id TEXT NOT NULL,
			config_id TEXT NOT NULL,
			config JSONB NOT NULL,
			PRIMARY KEY (task_id, config_id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + idx + "_task"}.Sanitize() + ` ON ` + s.table + ` (task_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return unavailable("migrate push configs", "", fmt.Errorf("schema statement %q: %w", stmt, err))
		}
	}
	return nil
}

// Set implements [PushNotificationConfigStore].
func (s *PostgresPushNotificationConfigStore) Set(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if err := config.Validate(); err != nil {
		return nil, NewStoreError("set push config", taskID, err)
	}
	stored := config.Clone()
	if stored.ID == "" {
		stored.ID = s.ids.NewID()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, NewStoreError("set push config", taskID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (task_id, config_id, config) VALUES ($1, $2, $3)
		ON CONFLICT (task_id, config_id) DO UPDATE SET config = EXCLUDED.config`,
		taskID, stored.ID, string(data))
	if err != nil {
		return nil, unavailable("set push config", taskID, err)
	}
	return stored, nil
}

func scanPushConfig(row pgx.Row) (*a2a.PushNotificationConfig, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	var c a2a.PushNotificationConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode push config: %w", err)
	}
	return &c, nil
}

// Get implements [PushNotificationConfigStore].
func (s *PostgresPushNotificationConfigStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	c, err := scanPushConfig(s.pool.QueryRow(ctx,
		`SELECT config FROM `+s.table+` WHERE task_id = $1 AND config_id = $2`, taskID, configID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, NewStoreError("get push config", taskID, a2a.ErrPushNotificationConfigNotFound)
	case err != nil:
		return nil, unavailable("get push config", taskID, err)
	}
	return c, nil
}

// List implements [PushNotificationConfigStore].
func (s *PostgresPushNotificationConfigStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT config FROM `+s.table+` WHERE task_id = $1 ORDER BY seq`, taskID)
	if err != nil {
		return nil, unavailable("list push configs", taskID, err)
	}
	defer rows.Close()

	var out []*a2a.PushNotificationConfig
	for rows.Next() {
		c, err := scanPushConfig(rows)
		if err != nil {
			return nil, unavailable("list push configs", taskID, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list push configs", taskID, err)
	}
	return out, nil
}

// Delete implements [PushNotificationConfigStore].
func (s *PostgresPushNotificationConfigStore) Delete(ctx context.Context, taskID, configID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table+` WHERE task_id = $1 AND config_id = $2`, taskID, configID)
	if err != nil {
		return unavailable("delete push config", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return NewStoreError("delete push config", taskID, a2a.ErrPushNotificationConfigNotFound)
	}
	return nil
}

// DeleteAll implements [PushNotificationConfigStore].
func (s *PostgresPushNotificationConfigStore) DeleteAll(ctx context.Context, taskID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE task_id = $1`, taskID); err != nil {
		return unavailable("delete push configs", taskID, err)
	}
	return nil
}
