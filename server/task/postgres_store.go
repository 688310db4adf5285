// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/pagetoken"
)

// PostgresTaskStore is a TaskStore on PostgreSQL using pgx.
//
// Each task is one row holding the task document as JSONB plus the columns
// listings filter on. Saves lock the row with SELECT ... FOR UPDATE.
type PostgresTaskStore struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger

	clockMu  sync.Mutex
	lastTick time.Time
}

var _ TaskStore = (*PostgresTaskStore)(nil)

// PostgresTaskStoreConfig holds configuration for PostgresTaskStore.
type PostgresTaskStoreConfig struct {
	Pool *pgxpool.Pool

	// TableName defaults to "tasks".
	TableName string

	// CreateTable runs the schema statements on construction.
	CreateTable bool

	Logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(ctx context.Context, config PostgresTaskStoreConfig) (*PostgresTaskStore, error) {
	if config.Pool == nil {
		return nil, errors.New("postgres pool cannot be nil")
	}
	if config.TableName == "" {
		config.TableName = "tasks"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &PostgresTaskStore{
		pool:   config.Pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		logger: config.Logger,
	}
	if config.CreateTable {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// schema lists the statements of every schema version. Later versions only
// add columns and indexes, so running them against an older table upgrades
// it in place.
func (s *PostgresTaskStore) schema() []string {
	idx := strings.Trim(s.table, `"`)
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id TEXT PRIMARY KEY,
			data JSONB NOT NULL
		)`,
		`ALTER TABLE ` + s.table + ` ADD COLUMN IF NOT EXISTS context_id TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE ` + s.table + ` ADD COLUMN IF NOT EXISTS state TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE ` + s.table + ` ADD COLUMN IF NOT EXISTS last_updated BIGINT NOT NULL DEFAULT 0`,
		`ALTER TABLE ` + s.table + ` ADD COLUMN IF NOT EXISTS revision BIGINT NOT NULL DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + idx + "_context"}.Sanitize() + ` ON ` + s.table + ` (context_id)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + idx + "_listing"}.Sanitize() + ` ON ` + s.table + ` (last_updated DESC, id DESC)`,
	}
}

// Migrate applies the schema statements.
func (s *PostgresTaskStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return unavailable("migrate", "", fmt.Errorf("schema statement %q: %w", stmt, err))
		}
	}
	return nil
}

func (s *PostgresTaskStore) tick() time.Time {
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
func (s *PostgresTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return NewStoreError("save", "", errors.New("task with an id is required"))
	}
	data, err := json.Marshal(task)
	if err != nil {
		return NewStoreError("save", task.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable("save", task.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur int64
	err = tx.QueryRow(ctx, `SELECT revision FROM `+s.table+` WHERE id = $1 FOR UPDATE`, task.ID).Scan(&cur)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if task.Revision() != 0 {
			return NewStoreError("save", task.ID, a2a.ErrConcurrentModification)
		}
	case err != nil:
		return unavailable("save", task.ID, err)
	case task.Revision() != 0 && task.Revision() != cur:
		return NewStoreError("save", task.ID, a2a.ErrConcurrentModification)
	}

	newRev := cur + 1
	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table+` (id, data, context_id, state, last_updated, revision)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			context_id = EXCLUDED.context_id,
			state = EXCLUDED.state,
			last_updated = EXCLUDED.last_updated,
			revision = EXCLUDED.revision`,
		task.ID,
		string(data),
		task.ContextID,
		string(task.Status.State),
		s.tick().UnixNano(),
		newRev,
	)
	if err != nil {
		return unavailable("save", task.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("save", task.ID, err)
	}

	task.SetRevision(newRev)
	s.logger.DebugContext(ctx, "task saved", slog.String("task_id", task.ID), slog.Int64("revision", newRev))
	return nil
}

func scanTask(row pgx.Row) (listEntry, error) {
	var (
		data        []byte
		revision    int64
		lastUpdated int64
	)
	if err := row.Scan(&data, &revision, &lastUpdated); err != nil {
		return listEntry{}, err
	}
	var t a2a.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return listEntry{}, fmt.Errorf("decode task document: %w", err)
	}
	t.SetRevision(revision)
	return listEntry{task: &t, updatedAt: time.Unix(0, lastUpdated).UTC()}, nil
}

// Get implements [TaskStore].
func (s *PostgresTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	e, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT data, revision, last_updated FROM `+s.table+` WHERE id = $1`, taskID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, NewStoreError("get", taskID, a2a.ErrTaskNotFound)
	case err != nil:
		return nil, unavailable("get", taskID, err)
	}
	return e.task, nil
}

// List implements [TaskStore].
func (s *PostgresTaskStore) List(ctx context.Context, params *a2a.ListTasksParams) (*a2a.ListTasksResult, error) {
	if params == nil {
		params = &a2a.ListTasksParams{}
	}
	cur, hasCursor, err := pagetoken.Decode(params)
	if err != nil {
		return nil, NewStoreError("list", "", err)
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if params.ContextID != "" {
		where = append(where, "context_id = "+arg(params.ContextID))
	}
	if params.Status != "" {
		where = append(where, "state = "+arg(string(params.Status)))
	}
	if !params.LastUpdatedAfter.IsZero() {
		where = append(where, "last_updated > "+arg(params.LastUpdatedAfter.UnixNano()))
	}
	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.table+filter, args...).Scan(&total); err != nil {
		return nil, unavailable("list", "", err)
	}

	if hasCursor {
		u, id := arg(cur.UpdatedAt), arg(cur.TaskID)
		where = append(where, "(last_updated < "+u+" OR (last_updated = "+u+" AND id <= "+id+"))")
		filter = " WHERE " + strings.Join(where, " AND ")
	}
	size := pagetoken.Size(params.PageSize)
	rows, err := s.pool.Query(ctx,
		`SELECT data, revision, last_updated FROM `+s.table+filter+
			` ORDER BY last_updated DESC, id DESC LIMIT `+arg(size+1),
		args...)
	if err != nil {
		return nil, unavailable("list", "", err)
	}
	defer rows.Close()

	res := &a2a.ListTasksResult{
		Tasks:     make([]*a2a.Task, 0, size),
		PageSize:  size,
		TotalSize: total,
	}
	for rows.Next() {
		e, err := scanTask(rows)
		if err != nil {
			return nil, unavailable("list", "", err)
		}
		if len(res.Tasks) == size {
			res.NextPageToken = pagetoken.Encode(params, e.updatedAt, e.task.ID)
			break
		}
		res.Tasks = append(res.Tasks, e.task)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", "", err)
	}
	return res, nil
}

// Delete implements [TaskStore].
func (s *PostgresTaskStore) Delete(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE id = $1`, taskID)
	if err != nil {
		return unavailable("delete", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return NewStoreError("delete", taskID, a2a.ErrTaskNotFound)
	}
	return nil
}
