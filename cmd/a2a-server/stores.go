// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-a2a/a2a-runtime/internal/config"
	"github.com/go-a2a/a2a-runtime/server/task"
)

// stores are the backends selected by store.driver.
type stores struct {
	tasks       task.TaskStore
	pushConfigs task.PushNotificationConfigStore
	close       func()
}

// migrator is implemented by the durable stores.
type migrator interface {
	Migrate(ctx context.Context) error
}

// openStores connects the configured backends. With create set, the tables
// are created or upgraded before use.
func openStores(ctx context.Context, cfg config.Store, create bool, logger *slog.Logger) (*stores, error) {
	logger = logger.With(slog.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.DriverMemory:
		return &stores{
			tasks:       task.NewInMemoryTaskStore(task.WithStoreLogger(logger)),
			pushConfigs: task.NewInMemoryPushNotificationConfigStore(),
			close:       func() {},
		}, nil

	case config.DriverSQLite:
		db, err := task.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		tasks, err := task.NewDatabaseTaskStore(ctx, task.DatabaseTaskStoreConfig{
			DB:          db,
			TableName:   cfg.Table,
			CreateTable: create,
			Logger:      logger,
		})
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		configs, err := task.NewDatabasePushNotificationConfigStore(ctx, task.DatabasePushNotificationConfigStoreConfig{
			DB:          db,
			CreateTable: create,
		})
		if err != nil {
			sqlDB.Close()
			return nil, err
		}
		return &stores{
			tasks:       tasks,
			pushConfigs: configs,
			close:       func() { _ = sqlDB.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		tasks, err := task.NewPostgresTaskStore(ctx, task.PostgresTaskStoreConfig{
			Pool:        pool,
			TableName:   cfg.Table,
			CreateTable: create,
			Logger:      logger,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		configs, err := task.NewPostgresPushNotificationConfigStore(ctx, task.PostgresPushNotificationConfigStoreConfig{
			Pool:        pool,
			CreateTable: create,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			tasks:       tasks,
			pushConfigs: configs,
			close:       pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
