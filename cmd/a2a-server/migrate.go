// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/go-a2a/a2a-runtime/internal/config"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store tables",
		Long: `Create the task and push notification config tables, or add the columns
and indexes an older schema lacks. Existing data is never dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.DriverMemory {
				logger.Info("the memory store has no schema")
				return nil
			}

			ctx := cmd.Context()
			st, err := openStores(ctx, cfg.Store, false, logger)
			if err != nil {
				return err
			}
			defer st.close()

			for _, s := range []any{st.tasks, st.pushConfigs} {
				m, ok := s.(migrator)
				if !ok {
					continue
				}
				if err := m.Migrate(ctx); err != nil {
					return fmt.Errorf("migrate %T: %w", s, err)
				}
			}
			logger.Info("schema up to date", slog.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}
