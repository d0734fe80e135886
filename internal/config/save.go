package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Save writes the configuration to path, creating parent directories.
// The format follows the file extension; durations are written as strings.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigType(configType(path))

	v.Set("data_dir", cfg.DataDir)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("logging.retention_days", cfg.Logging.RetentionDays)
	if cfg.Logging.Path != "" {
		v.Set("logging.path", cfg.Logging.Path)
	}
	v.Set("status.addr", cfg.Status.Addr)
	v.Set("tasks.default_timeout", cfg.Tasks.DefaultTimeout.String())
	v.Set("retry.max_attempts", cfg.Retry.MaxAttempts)
	v.Set("retry.initial_interval", cfg.Retry.InitialInterval.String())
	v.Set("retry.max_interval", cfg.Retry.MaxInterval.String())
	v.Set("breaker.enabled", cfg.Breaker.Enabled)
	v.Set("breaker.consecutive_failures", cfg.Breaker.ConsecutiveFailures)
	v.Set("breaker.open_timeout", cfg.Breaker.OpenTimeout.String())
	v.Set("reminders.sweep", cfg.Reminders.Sweep)

	if len(cfg.Tasks.Overrides) > 0 {
		overrides := make(map[string]any, len(cfg.Tasks.Overrides))
		for name, o := range cfg.Tasks.Overrides {
			overrides[name] = overrideMap(o)
		}
		v.Set("tasks.overrides", overrides)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

func overrideMap(o TaskOverride) map[string]any {
	m := map[string]any{}
	if o.Timeout != nil {
		m["timeout"] = o.Timeout.String()
	}
	if o.NonCritical != nil {
		m["non_critical"] = *o.NonCritical
	}
	if o.Priority != nil {
		m["priority"] = *o.Priority
	}
	if o.MaxAttempts != nil {
		m["max_attempts"] = *o.MaxAttempts
	}
	return m
}
