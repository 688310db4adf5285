// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-a2a/a2a-runtime/internal/config"
)

// app carries the state shared by the subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func (a *app) load() (*config.Config, error) {
	return config.Load(a.v, a.cfgFile)
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "a2a-server",
		Short:         "Serve the A2A task lifecycle engine",
		Long:          longRoot,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "YAML config file")
	flags.String("store-driver", config.DriverMemory, "task store driver: memory, sqlite or postgres")
	flags.String("store-dsn", "", "SQLite path or PostgreSQL connection string")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text, json or logfmt")
	bind(a.v, root, map[string]string{
		config.KeyStoreDriver: "store-driver",
		config.KeyStoreDSN:    "store-dsn",
		config.KeyLogLevel:    "log-level",
		config.KeyLogFormat:   "log-format",
	})

	root.AddCommand(
		newServeCommand(a),
		newMigrateCommand(a),
		newSendCommand(),
		newVersionCommand(),
	)
	return root
}

// bind ties config keys to persistent or local flags of cmd.
func bind(v *viper.Viper, cmd *cobra.Command, flags map[string]string) {
	for key, name := range flags {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			f = cmd.Flags().Lookup(name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

var longRoot = `
a2a-server runs the A2A task lifecycle engine: it persists tasks, folds agent
events into them, streams updates to subscribers and delivers push
notifications.

Settings come from defaults, an optional YAML file (--config), A2A_*
environment variables and flags, in increasing order of precedence.
`
