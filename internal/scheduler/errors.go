package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTask         = errors.New("invalid task")
	ErrDuplicateTask       = errors.New("duplicate task")
	ErrMissingDependency   = errors.New("missing dependency")
	ErrCyclicDependency    = errors.New("cyclic dependency")
	ErrPhaseOrder          = errors.New("phase order violation")
	ErrPhaseAlreadyRunning = errors.New("phase already running")
	ErrTaskExecution       = errors.New("task execution failed")
	ErrTimeout             = errors.New("task timed out")
	ErrDependencyFailed    = errors.New("dependency failed")
	ErrCleanup             = errors.New("cleanup failed")
	ErrNoCurrentUser       = errors.New("no current user")
)

type invalidTaskError struct {
	msg string
}

func (e *invalidTaskError) Error() string        { return ErrInvalidTask.Error() + ": " + e.msg }
func (e *invalidTaskError) Is(target error) bool { return target == ErrInvalidTask }

func invalidTaskf(format string, args ...any) error {
	return &invalidTaskError{msg: fmt.Sprintf(format, args...)}
}

// DuplicateTaskError is returned when a task name is registered twice.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already registered", e.Name)
}

func (e *DuplicateTaskError) Is(target error) bool { return target == ErrDuplicateTask }

// MissingDependencyError names a dependency that is not registered in any phase.
type MissingDependencyError struct {
	Task       string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unregistered task %q", e.Task, e.Dependency)
}

func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

// CyclicDependencyError names the members of a dependency cycle.
// Cycle is closed: the first name is repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Cycle) == 0 {
		return ErrCyclicDependency.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Cycle, " -> "))
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrCyclicDependency }

// Members returns the distinct tasks in the cycle.
func (e *CyclicDependencyError) Members() []string {
	if len(e.Cycle) < 2 {
		return append([]string(nil), e.Cycle...)
	}
	return append([]string(nil), e.Cycle[:len(e.Cycle)-1]...)
}

// PhaseOrderError is returned when a task depends on a task of a phase that has not completed.
type PhaseOrderError struct {
	Task            string
	Phase           Phase
	Dependency      string
	DependencyPhase Phase
}

func (e *PhaseOrderError) Error() string {
	return fmt.Sprintf("task %q (%s) depends on %q from phase %s, which has not completed",
		e.Task, e.Phase, e.Dependency, e.DependencyPhase)
}

func (e *PhaseOrderError) Is(target error) bool { return target == ErrPhaseOrder }

// PhaseAlreadyRunningError rejects a second concurrent activation of a phase.
type PhaseAlreadyRunningError struct {
	Phase Phase
}

func (e *PhaseAlreadyRunningError) Error() string {
	return fmt.Sprintf("phase %s is already running", e.Phase)
}

func (e *PhaseAlreadyRunningError) Is(target error) bool { return target == ErrPhaseAlreadyRunning }

// TaskExecutionError wraps the error returned by a task's initialize callback.
type TaskExecutionError struct {
	Task string
	Err  error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.Task, e.Err)
}

func (e *TaskExecutionError) Is(target error) bool { return target == ErrTaskExecution }
func (e *TaskExecutionError) Unwrap() error        { return e.Err }

// TimeoutError is recorded when a task exceeds its timeout.
type TimeoutError struct {
	Task    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %q timed out after %s", e.Task, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// DependencyFailedError is recorded on a task skipped because a dependency did not complete.
type DependencyFailedError struct {
	Task       string
	Dependency string
	Status     TaskStatus
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("task %q skipped: dependency %q is %s", e.Task, e.Dependency, e.Status)
}

func (e *DependencyFailedError) Is(target error) bool { return target == ErrDependencyFailed }

// CleanupError wraps the error returned by a task's cleanup callback.
type CleanupError struct {
	Task string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of task %q failed: %v", e.Task, e.Err)
}

func (e *CleanupError) Is(target error) bool { return target == ErrCleanup }
func (e *CleanupError) Unwrap() error        { return e.Err }

// PhaseError reports an aborted phase activation: the task that failed and the
// tasks that were skipped as a result.
type PhaseError struct {
	Phase   Phase
	Task    string
	Skipped []string
	Err     error
}

func (e *PhaseError) Error() string {
	msg := fmt.Sprintf("phase %s aborted", e.Phase)
	if e.Task != "" {
		msg += fmt.Sprintf(" by task %q", e.Task)
	}
	if len(e.Skipped) > 0 {
		msg += fmt.Sprintf(" (skipped: %s)", strings.Join(e.Skipped, ", "))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PhaseError) Unwrap() error { return e.Err }
