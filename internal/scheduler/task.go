package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Phase identifies a stage of the process lifecycle.
type Phase int

const (
	PhaseStartup Phase = iota // Process startup
	PhaseSession              // Per-user session bring-up/tear-down
)

// Phases returns every phase in activation order.
func Phases() []Phase {
	return []Phase{PhaseStartup, PhaseSession}
}

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStartup:
		return "startup"
	case PhaseSession:
		return "session"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p == PhaseStartup || p == PhaseSession
}

// ParsePhase converts a phase name back into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "startup":
		return PhaseStartup, nil
	case "session":
		return PhaseSession, nil
	default:
		return 0, fmt.Errorf("unknown phase %q (use startup or session)", s)
	}
}

// TaskStatus represents the current state of a task within one phase activation.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Not yet run
	TaskRunning                     // Currently executing
	TaskCompleted                   // Finished successfully
	TaskFailed                      // Finished with error
	TaskSkipped                     // Intentionally not run
)

// String returns the lowercase status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText lets status maps serialize with readable names.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the session context threaded into task execution.
type Session struct {
	User         string // Empty when no user is active
	ActivationID string // Identifies the phase activation running the task
}

// HasUser reports whether a user is active.
func (s Session) HasUser() bool {
	return s.User != ""
}

// InitFunc is a task's bootstrap action.
type InitFunc func(ctx context.Context, sess Session) error

// CleanupFunc is the inverse action run during phase teardown.
type CleanupFunc func(ctx context.Context) error

// Initializer is implemented by module objects that bootstrap themselves.
type Initializer interface {
	Initialize(ctx context.Context, sess Session) error
}

// Cleaner is optionally implemented by module objects with teardown work.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// RetryPolicy configures exponential-backoff retries of a task's initialize.
type RetryPolicy struct {
	MaxAttempts     int           // Total attempts including the first (<= 1 disables retry)
	InitialInterval time.Duration // First backoff interval
	MaxInterval     time.Duration // Backoff ceiling
}

// Task describes one unit of bootstrap work. Descriptors are immutable once registered.
type Task struct {
	Name        string        // Unique key within the registry
	Phase       Phase         // Lifecycle phase the task belongs to
	Priority    int           // Lower runs earlier among unconstrained tasks
	DependsOn   []string      // Tasks that must complete successfully first
	NonCritical bool          // Failure is logged and the phase continues
	Timeout     time.Duration // Zero means the executor default
	Retry       *RetryPolicy  // Nil means a single attempt
	Initialize  InitFunc
	Cleanup     CleanupFunc // Optional
}

// Critical reports whether a failure of this task aborts its phase.
func (t *Task) Critical() bool {
	return !t.NonCritical
}

// FromModule fills the descriptor's callbacks from a module object.
// Cleanup is wired only when m also implements Cleaner.
func FromModule(desc Task, m Initializer) Task {
	desc.Initialize = m.Initialize
	if c, ok := m.(Cleaner); ok {
		desc.Cleanup = c.Cleanup
	}
	return desc
}

func (t *Task) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return invalidTaskf("task name is required")
	}
	if !t.Phase.Valid() {
		return invalidTaskf("task %q has unknown phase %d", t.Name, int(t.Phase))
	}
	if t.Initialize == nil {
		return invalidTaskf("task %q has no initialize callback", t.Name)
	}
	if t.Timeout < 0 {
		return invalidTaskf("task %q has negative timeout", t.Name)
	}
	return nil
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = dedupe(task.DependsOn)
	}
	if task.Retry != nil {
		r := *task.Retry
		cp.Retry = &r
	}
	return &cp
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
