package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
)

// ExecutorConfig configures an Executor. Zero values are usable.
type ExecutorConfig struct {
	Invoke         InvokeFunc    // Defaults to DirectInvoke
	DefaultTimeout time.Duration // Applied to tasks without their own timeout; 0 disables
	Events         events.Publisher
	Logger         *logging.Logger

	// DependencyStatus reports the status of a task that belongs to another,
	// already activated phase.
	DependencyStatus func(name string) (TaskStatus, bool)

	// Observe is called with a copy of a record after every status change.
	Observe func(phase Phase, rec Record)
}

// Executor runs a resolved task order sequentially and applies the failure policy.
type Executor struct {
	cfg ExecutorConfig
	log *logging.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Invoke == nil {
		cfg.Invoke = DirectInvoke
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Component("scheduler")
	}
	return &Executor{cfg: cfg, log: log}
}

// Run executes order one task at a time and returns the activation's result.
//
// A task starts only when all of its dependencies have completed; otherwise it
// is skipped with a DependencyFailedError. A failing critical task stops the
// phase and skips every task after it. A failing non-critical task is logged
// and the phase continues. Cancelling ctx between tasks aborts the phase.
func (e *Executor) Run(ctx context.Context, phase Phase, order []*Task, sess Session) *PhaseResult {
	if sess.ActivationID == "" {
		sess.ActivationID = uuid.NewString()
	}

	result := &PhaseResult{
		Phase:        phase,
		ActivationID: sess.ActivationID,
		User:         sess.User,
		Status:       PhaseRunning,
		Order:        make([]string, 0, len(order)),
		Records:      make(map[string]*Record, len(order)),
		StartedAt:    time.Now(),
	}
	for _, t := range order {
		result.Order = append(result.Order, t.Name)
		result.Records[t.Name] = &Record{Task: t.Name, Status: TaskPending}
	}

	e.log.InfoCtx("phase started", map[string]any{
		"phase":      phase.String(),
		"activation": result.ActivationID,
		"tasks":      len(order),
	})
	e.publish(events.TopicPhase, events.PhaseStartedEvent{
		Phase:        phase.String(),
		ActivationID: result.ActivationID,
		User:         sess.User,
		Order:        append([]string(nil), result.Order...),
		Timestamp:    result.StartedAt,
	})

	for i, task := range order {
		if err := ctx.Err(); err != nil {
			skipped := e.skipRemaining(result, order[i:], "phase cancelled")
			result.Err = &PhaseError{
				Phase:   phase,
				Skipped: skipped,
				Err:     fmt.Errorf("phase %s cancelled: %w", phase, err),
			}
			break
		}

		rec := result.Records[task.Name]

		if depErr := e.unmetDependency(task, result); depErr != nil {
			e.setStatus(result, rec, TaskSkipped)
			rec.Err = depErr
			e.log.WarnCtx("task skipped", map[string]any{
				"task":  task.Name,
				"phase": phase.String(),
				"error": depErr.Error(),
			})
			e.publish(events.TopicTask, events.TaskSkippedEvent{
				Name:         task.Name,
				Phase:        phase.String(),
				ActivationID: result.ActivationID,
				Reason:       depErr.Error(),
				Timestamp:    time.Now(),
			})
			e.progress(result)
			continue
		}

		rec.StartedAt = time.Now()
		e.setStatus(result, rec, TaskRunning)
		e.publish(events.TopicTask, events.TaskStartedEvent{
			Name:         task.Name,
			Phase:        phase.String(),
			ActivationID: result.ActivationID,
			Attempt:      1,
			Timestamp:    rec.StartedAt,
		})

		attempts, err := e.runTask(ctx, task, sess)
		rec.FinishedAt = time.Now()
		rec.Attempts = attempts

		if err == nil {
			e.setStatus(result, rec, TaskCompleted)
			result.CompletionOrder = append(result.CompletionOrder, task.Name)
			e.log.InfoCtx("task completed", map[string]any{
				"task":     task.Name,
				"phase":    phase.String(),
				"duration": rec.Duration().String(),
			})
			e.publish(events.TopicTask, events.TaskCompletedEvent{
				Name:         task.Name,
				Phase:        phase.String(),
				ActivationID: result.ActivationID,
				Attempts:     rec.Attempts,
				Duration:     rec.Duration(),
				Timestamp:    rec.FinishedAt,
			})
			e.progress(result)
			continue
		}

		rec.Err = err
		e.setStatus(result, rec, TaskFailed)
		e.publish(events.TopicTask, events.TaskFailedEvent{
			Name:         task.Name,
			Phase:        phase.String(),
			ActivationID: result.ActivationID,
			Critical:     task.Critical(),
			Attempts:     rec.Attempts,
			Err:          err,
			Duration:     rec.Duration(),
			Timestamp:    rec.FinishedAt,
		})

		if task.NonCritical {
			e.log.WarnCtx("non-critical task failed", map[string]any{
				"task":  task.Name,
				"phase": phase.String(),
				"error": err.Error(),
			})
			e.progress(result)
			continue
		}

		e.log.ErrorCtx("critical task failed", map[string]any{
			"task":  task.Name,
			"phase": phase.String(),
			"error": err.Error(),
		})
		skipped := e.skipRemaining(result, order[i+1:], fmt.Sprintf("critical task %q failed", task.Name))
		result.Err = &PhaseError{Phase: phase, Task: task.Name, Skipped: skipped, Err: err}
		break
	}

	result.FinishedAt = time.Now()
	if result.Err != nil {
		result.Status = PhaseFailed
	} else {
		result.Status = PhaseCompleted
	}

	e.progress(result)
	e.publish(events.TopicPhase, events.PhaseFinishedEvent{
		Phase:        phase.String(),
		ActivationID: result.ActivationID,
		Status:       result.Status.String(),
		Tasks:        statusNames(result),
		Err:          result.Err,
		Duration:     result.FinishedAt.Sub(result.StartedAt),
		Timestamp:    result.FinishedAt,
	})
	e.log.InfoCtx("phase finished", map[string]any{
		"phase":     phase.String(),
		"status":    result.Status.String(),
		"completed": result.Count(TaskCompleted),
		"failed":    result.Count(TaskFailed),
		"skipped":   result.Count(TaskSkipped),
	})

	return result
}

// runTask invokes the task's initialize under its timeout and returns the
// number of attempts made.
func (e *Executor) runTask(ctx context.Context, task *Task, sess Session) (int, error) {
	timeout := task.Timeout
	if timeout == 0 {
		timeout = e.cfg.DefaultTimeout
	}

	var attempts atomic.Int32
	call := func(ctx context.Context) error {
		attempts.Add(1)
		return recoverCall(ctx, func(ctx context.Context) error {
			return task.Initialize(ctx, sess)
		})
	}

	err, timedOut := callWithTimeout(ctx, timeout, func(ctx context.Context) error {
		return e.cfg.Invoke(ctx, task, call)
	})
	n := int(attempts.Load())
	if timedOut {
		return n, &TimeoutError{Task: task.Name, Timeout: timeout}
	}
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			return n, err
		}
		return n, &TaskExecutionError{Task: task.Name, Err: err}
	}
	return n, nil
}

// unmetDependency returns a DependencyFailedError for the first dependency
// that has not completed, or nil.
func (e *Executor) unmetDependency(task *Task, result *PhaseResult) error {
	for _, dep := range task.DependsOn {
		if rec, ok := result.Records[dep]; ok {
			if rec.Status != TaskCompleted {
				return &DependencyFailedError{Task: task.Name, Dependency: dep, Status: rec.Status}
			}
			continue
		}

		status := TaskPending
		if e.cfg.DependencyStatus != nil {
			if s, ok := e.cfg.DependencyStatus(dep); ok {
				status = s
			}
		}
		if status != TaskCompleted {
			return &DependencyFailedError{Task: task.Name, Dependency: dep, Status: status}
		}
	}
	return nil
}

// skipRemaining marks every still-pending task in rest as skipped.
func (e *Executor) skipRemaining(result *PhaseResult, rest []*Task, reason string) []string {
	var skipped []string
	now := time.Now()
	for _, t := range rest {
		rec := result.Records[t.Name]
		if rec.Status != TaskPending {
			continue
		}
		e.setStatus(result, rec, TaskSkipped)
		skipped = append(skipped, t.Name)
		e.publish(events.TopicTask, events.TaskSkippedEvent{
			Name:         t.Name,
			Phase:        result.Phase.String(),
			ActivationID: result.ActivationID,
			Reason:       reason,
			Timestamp:    now,
		})
	}
	return skipped
}

func (e *Executor) setStatus(result *PhaseResult, rec *Record, to TaskStatus) {
	if err := rec.transition(to); err != nil {
		// Only reachable through a bug in Run.
		panic(err)
	}
	if e.cfg.Observe != nil {
		e.cfg.Observe(result.Phase, *rec)
	}
}

func (e *Executor) progress(result *PhaseResult) {
	e.publish(events.TopicPhase, events.PhaseProgressEvent{
		Phase:     result.Phase.String(),
		Total:     len(result.Records),
		Completed: result.Count(TaskCompleted),
		Running:   result.Count(TaskRunning),
		Failed:    result.Count(TaskFailed),
		Skipped:   result.Count(TaskSkipped),
		Pending:   result.Count(TaskPending),
		Timestamp: time.Now(),
	})
}

func (e *Executor) publish(topic string, ev events.Event) {
	if e.cfg.Events != nil {
		e.cfg.Events.Publish(topic, ev)
	}
}

func statusNames(result *PhaseResult) map[string]string {
	out := make(map[string]string, len(result.Records))
	for name, rec := range result.Records {
		out[name] = rec.Status.String()
	}
	return out
}
