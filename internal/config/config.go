// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the settings of the a2a-server binary.
//
// Values come, from lowest to highest precedence, from the defaults, an
// optional YAML file, A2A_* environment variables and command line flags
// bound to the same keys. Nested keys map to environment variables by
// replacing dots with underscores, so store.dsn is read from A2A_STORE_DSN.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/go-a2a/a2a-runtime/server/event"
	"github.com/go-a2a/a2a-runtime/server/task"
)

// EnvPrefix is the prefix of the environment variables read by [Load].
const EnvPrefix = "A2A"

// Keys of the configuration.
const (
	KeyAddr            = "addr"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyStoreDriver     = "store.driver"
	KeyStoreDSN        = "store.dsn"
	KeyStoreTable      = "store.table"
	KeyQueueSize       = "queue.size"
	KeyQueueOverflow   = "queue.overflow"
	KeyPushTimeout     = "push.timeout"
	KeyPushMaxRetries  = "push.max_retries"
	KeyPushConcurrency = "push.concurrency"
	KeyPushSigningKey  = "push.signing_key"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyMetricsEnabled  = "metrics.enabled"
)

// GenerateSigningKey as push.signing_key signs with a key created at startup.
const GenerateSigningKey = "generate"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the decoded configuration.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Store           Store         `mapstructure:"store"`
	Queue           Queue         `mapstructure:"queue"`
	Push            Push          `mapstructure:"push"`
	Log             Log           `mapstructure:"log"`
	Metrics         Metrics       `mapstructure:"metrics"`
}

// Store selects the task and push config storage.
type Store struct {
	// Driver is one of memory, sqlite or postgres.
	Driver string `mapstructure:"driver"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	DSN string `mapstructure:"dsn"`

	// Table overrides the name of the tasks table.
	Table string `mapstructure:"table"`
}

// Queue configures the session event queues.
type Queue struct {
	Size     int    `mapstructure:"size"`
	Overflow string `mapstructure:"overflow"`
}

// Push configures push notification delivery.
type Push struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  uint64        `mapstructure:"max_retries"`
	Concurrency int64         `mapstructure:"concurrency"`

	// SigningKey is a PEM file holding a P-256 private key, "generate" for
	// a key created at startup, or empty to send unsigned notifications.
	SigningKey string `mapstructure:"signing_key"`
}

// Log configures the process logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyShutdownTimeout, 15*time.Second)
	v.SetDefault(KeyStoreDriver, DriverMemory)
	v.SetDefault(KeyStoreDSN, "")
	v.SetDefault(KeyStoreTable, "tasks")
	v.SetDefault(KeyQueueSize, event.DefaultMaxQueueSize)
	v.SetDefault(KeyQueueOverflow, event.OverflowBlock.String())
	v.SetDefault(KeyPushTimeout, 10*time.Second)
	v.SetDefault(KeyPushMaxRetries, 3)
	v.SetDefault(KeyPushConcurrency, task.DefaultPushConcurrency)
	v.SetDefault(KeyPushSigningKey, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyMetricsEnabled, true)
}

// Load reads the configuration into v and decodes it. file may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("%s: required by the %s driver", KeyStoreDSN, c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown driver %q", KeyStoreDriver, c.Store.Driver))
	}
	if _, err := c.Queue.Policy(); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyQueueOverflow, err))
	}
	if c.Queue.Size < 0 {
		errs = append(errs, fmt.Errorf("%s: must not be negative", KeyQueueSize))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("%s: unknown format %q", KeyLogFormat, c.Log.Format))
	}
	return errors.Join(errs...)
}

// Policy parses the overflow policy.
func (q Queue) Policy() (event.OverflowPolicy, error) {
	return event.ParseOverflowPolicy(q.Overflow)
}

// NewLogger returns a [*slog.Logger] writing to w through a charmbracelet
// logger with the configured level and format.
func (l Log) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "a2a",
	}
	switch l.Format {
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	default:
		opts.Formatter = log.TextFormatter
	}
	return slog.New(log.NewWithOptions(w, opts)), nil
}
