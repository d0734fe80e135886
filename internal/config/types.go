package config

import (
	"time"

	"github.com/aristath/lifecycle/internal/logging"
)

// StatusConfig configures the HTTP status surface.
type StatusConfig struct {
	Addr string `mapstructure:"addr"` // Listen address; empty disables the server
}

// TaskOverride adjusts one registered task. Nil fields leave the module's value.
type TaskOverride struct {
	Timeout     *time.Duration `mapstructure:"timeout"`
	NonCritical *bool          `mapstructure:"non_critical"`
	Priority    *int           `mapstructure:"priority"`
	MaxAttempts *int           `mapstructure:"max_attempts"`
}

// TasksConfig holds task-level settings applied by the host at registration.
type TasksConfig struct {
	DefaultTimeout time.Duration           `mapstructure:"default_timeout"` // 0 means no timeout
	Overrides      map[string]TaskOverride `mapstructure:"overrides"`       // Keyed by task name (lowercase)
}

// RetryConfig holds retry defaults for task initialization.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"` // Applied to tasks without their own policy; 1 disables
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// BreakerConfig configures per-task circuit breakers.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// RemindersConfig configures the reminders session module.
type RemindersConfig struct {
	Sweep string `mapstructure:"sweep"` // Cron spec for the due-reminder sweep
}

// Config is the top-level host configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"` // Database, notes vault and logs live here
	Logging   logging.Config  `mapstructure:"logging"`
	Status    StatusConfig    `mapstructure:"status"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Reminders RemindersConfig `mapstructure:"reminders"`
}
