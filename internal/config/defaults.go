package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/aristath/lifecycle/internal/logging"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dataDir := ".lifecycle"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".lifecycle", "data")
	}

	return &Config{
		DataDir: dataDir,
		Logging: logging.DefaultConfig(),
		Status: StatusConfig{
			Addr: "127.0.0.1:7420",
		},
		Tasks: TasksConfig{
			DefaultTimeout: 30 * time.Second,
			Overrides:      map[string]TaskOverride{},
		},
		Retry: RetryConfig{
			MaxAttempts:     1,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Breaker: BreakerConfig{
			Enabled:             false,
			ConsecutiveFailures: 3,
			OpenTimeout:         30 * time.Second,
		},
		Reminders: RemindersConfig{
			Sweep: "@every 1m",
		},
	}
}

// setDefaults registers every scalar key so environment overrides apply to it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.path", cfg.Logging.Path)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.retention_days", cfg.Logging.RetentionDays)
	v.SetDefault("status.addr", cfg.Status.Addr)
	v.SetDefault("tasks.default_timeout", cfg.Tasks.DefaultTimeout)
	v.SetDefault("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", cfg.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", cfg.Retry.MaxInterval)
	v.SetDefault("breaker.enabled", cfg.Breaker.Enabled)
	v.SetDefault("breaker.consecutive_failures", cfg.Breaker.ConsecutiveFailures)
	v.SetDefault("breaker.open_timeout", cfg.Breaker.OpenTimeout)
	v.SetDefault("reminders.sweep", cfg.Reminders.Sweep)
}
