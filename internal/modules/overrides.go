package modules

import (
	"strings"

	"github.com/aristath/lifecycle/internal/config"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// ApplyOverrides adjusts a descriptor with the configured task overrides and
// the retry defaults. Tasks that carry their own retry policy keep it unless
// an override names max_attempts.
func ApplyOverrides(task scheduler.Task, cfg *config.Config) scheduler.Task {
	if cfg == nil {
		return task
	}

	if task.Retry == nil && cfg.Retry.MaxAttempts > 1 {
		task.Retry = retryPolicy(cfg, cfg.Retry.MaxAttempts)
	}

	o, ok := cfg.Tasks.Overrides[strings.ToLower(task.Name)]
	if !ok {
		return task
	}
	if o.Timeout != nil {
		task.Timeout = *o.Timeout
	}
	if o.NonCritical != nil {
		task.NonCritical = *o.NonCritical
	}
	if o.Priority != nil {
		task.Priority = *o.Priority
	}
	if o.MaxAttempts != nil {
		task.Retry = retryPolicy(cfg, *o.MaxAttempts)
	}
	return task
}

func retryPolicy(cfg *config.Config, attempts int) *scheduler.RetryPolicy {
	return &scheduler.RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
}
