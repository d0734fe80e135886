package scheduler

import (
	"context"
	"time"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
)

// CleanupConfig configures a CleanupCoordinator.
type CleanupConfig struct {
	DefaultTimeout time.Duration // Applied to tasks without their own timeout; 0 disables
	Events         events.Publisher
	Logger         *logging.Logger
}

// CleanupCoordinator tears down a phase activation.
type CleanupCoordinator struct {
	cfg CleanupConfig
	log *logging.Logger
}

// NewCleanupCoordinator creates a new CleanupCoordinator.
func NewCleanupCoordinator(cfg CleanupConfig) *CleanupCoordinator {
	log := cfg.Logger
	if log == nil {
		log = logging.Component("cleanup")
	}
	return &CleanupCoordinator{cfg: cfg, log: log}
}

// Run invokes the cleanup of every completed task in result, in reverse
// completion order. Failures are logged and collected; every remaining cleanup
// still runs. Tasks without a cleanup callback are passed over.
func (c *CleanupCoordinator) Run(ctx context.Context, result *PhaseResult, lookup Lookup) *CleanupResult {
	out := &CleanupResult{
		Phase:     result.Phase,
		Errors:    make(map[string]error),
		StartedAt: time.Now(),
	}
	out.ActivationID = result.ActivationID

	for i := len(result.CompletionOrder) - 1; i >= 0; i-- {
		name := result.CompletionOrder[i]
		if rec, ok := result.Records[name]; !ok || rec.Status != TaskCompleted {
			continue
		}
		task, ok := lookup(name)
		if !ok || task.Cleanup == nil {
			continue
		}

		err := c.cleanupTask(ctx, task)
		out.Cleaned = append(out.Cleaned, name)
		if err != nil {
			out.Errors[name] = err
			c.log.WarnCtx("cleanup failed", map[string]any{
				"task":  name,
				"phase": result.Phase.String(),
				"error": err.Error(),
			})
		} else {
			c.log.Debugf("cleaned up %s", name)
		}
		if c.cfg.Events != nil {
			c.cfg.Events.Publish(events.TopicTask, events.TaskCleanedUpEvent{
				Name:      name,
				Phase:     result.Phase.String(),
				Err:       err,
				Timestamp: time.Now(),
			})
		}
	}

	out.FinishedAt = time.Now()

	if c.cfg.Events != nil {
		failed := make([]string, 0, len(out.Errors))
		for _, name := range out.Cleaned {
			if _, ok := out.Errors[name]; ok {
				failed = append(failed, name)
			}
		}
		c.cfg.Events.Publish(events.TopicPhase, events.PhaseCleanedEvent{
			Phase:     result.Phase.String(),
			Cleaned:   append([]string(nil), out.Cleaned...),
			Failed:    failed,
			Timestamp: out.FinishedAt,
		})
	}
	c.log.InfoCtx("phase cleaned up", map[string]any{
		"phase":   result.Phase.String(),
		"cleaned": len(out.Cleaned),
		"failed":  len(out.Errors),
	})

	return out
}

func (c *CleanupCoordinator) cleanupTask(ctx context.Context, task *Task) error {
	timeout := task.Timeout
	if timeout == 0 {
		timeout = c.cfg.DefaultTimeout
	}

	err, timedOut := callWithTimeout(ctx, timeout, func(ctx context.Context) error {
		return task.Cleanup(ctx)
	})
	if timedOut {
		return &CleanupError{Task: task.Name, Err: &TimeoutError{Task: task.Name, Timeout: timeout}}
	}
	if err != nil {
		return &CleanupError{Task: task.Name, Err: err}
	}
	return nil
}
