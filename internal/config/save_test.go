package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Status.Addr = ":8123"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	status, ok := raw["status"].(map[string]any)
	if !ok || status["addr"] != ":8123" {
		t.Errorf("status.addr not written: %v", raw["status"])
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.yaml")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	first := DefaultConfig()
	first.Logging.Level = "debug"
	if err := Save(first, path); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	second := DefaultConfig()
	second.Logging.Level = "error"
	if err := Save(second, path); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Logging.Level != "error" {
		t.Errorf("expected overwritten level 'error', got %q", loaded.Logging.Level)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			timeout := 3 * time.Second
			critical := false
			priority := -2

			cfg := DefaultConfig()
			cfg.DataDir = "/var/lib/lifecycle"
			cfg.Tasks.DefaultTimeout = 12 * time.Second
			cfg.Retry.MaxAttempts = 4
			cfg.Breaker.Enabled = true
			cfg.Reminders.Sweep = "*/5 * * * *"
			cfg.Tasks.Overrides["git"] = TaskOverride{Timeout: &timeout, NonCritical: &critical}
			cfg.Tasks.Overrides["schedule"] = TaskOverride{Priority: &priority}

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			loaded, err := Load("", path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if loaded.DataDir != cfg.DataDir {
				t.Errorf("data_dir = %q, want %q", loaded.DataDir, cfg.DataDir)
			}
			if loaded.Tasks.DefaultTimeout != cfg.Tasks.DefaultTimeout {
				t.Errorf("default_timeout = %s, want %s", loaded.Tasks.DefaultTimeout, cfg.Tasks.DefaultTimeout)
			}
			if loaded.Retry.MaxAttempts != 4 || !loaded.Breaker.Enabled {
				t.Errorf("retry/breaker lost: %+v %+v", loaded.Retry, loaded.Breaker)
			}
			if loaded.Reminders.Sweep != cfg.Reminders.Sweep {
				t.Errorf("sweep = %q", loaded.Reminders.Sweep)
			}

			git := loaded.Tasks.Overrides["git"]
			if git.Timeout == nil || *git.Timeout != timeout {
				t.Errorf("git.timeout = %v", git.Timeout)
			}
			if git.NonCritical == nil || *git.NonCritical {
				t.Errorf("git.non_critical = %v", git.NonCritical)
			}
			if p := loaded.Tasks.Overrides["schedule"].Priority; p == nil || *p != priority {
				t.Errorf("schedule.priority = %v", p)
			}
		})
	}
}
