package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LIFECYCLE_STATUS_ADDR.
const EnvPrefix = "LIFECYCLE"

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): environment, project config,
// global config, defaults. Missing files are not errors; malformed files are.
// The format follows the file extension (yaml, yml or json).
func Load(globalPath, projectPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := mergeConfigFile(v, globalPath); err != nil {
		return nil, fmt.Errorf("loading global config: %w", err)
	}
	if err := mergeConfigFile(v, projectPath); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Tasks.Overrides == nil {
		cfg.Tasks.Overrides = map[string]TaskOverride{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GlobalConfigPath returns ~/.lifecycle/config.yaml.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".lifecycle", "config.yaml")
}

// ProjectConfigPath returns .lifecycle/config.yaml relative to the working directory.
func ProjectConfigPath() string {
	return filepath.Join(".lifecycle", "config.yaml")
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*Config, error) {
	return Load(GlobalConfigPath(), ProjectConfigPath())
}

// Validate checks values that would otherwise fail late during boot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Tasks.DefaultTimeout < 0 {
		return fmt.Errorf("tasks.default_timeout must not be negative")
	}
	for name, o := range c.Tasks.Overrides {
		if o.Timeout != nil && *o.Timeout < 0 {
			return fmt.Errorf("tasks.overrides.%s.timeout must not be negative", name)
		}
		if o.MaxAttempts != nil && *o.MaxAttempts < 1 {
			return fmt.Errorf("tasks.overrides.%s.max_attempts must be at least 1", name)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if _, err := cron.ParseStandard(c.Reminders.Sweep); err != nil {
		return fmt.Errorf("invalid reminders.sweep %q: %w", c.Reminders.Sweep, err)
	}
	return nil
}

// mergeConfigFile merges one config file into v. Missing files are skipped.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}
