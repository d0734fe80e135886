package scheduler

import (
	"fmt"
	"time"
)

// PhaseStatus is the state of one phase in the process lifetime.
type PhaseStatus int

const (
	PhaseNotStarted PhaseStatus = iota
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

// String returns the lowercase phase status name.
func (s PhaseStatus) String() string {
	switch s {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase_status(%d)", int(s))
	}
}

// MarshalText lets phase status maps serialize with readable names.
func (s PhaseStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Record is the execution record of one task in one phase activation.
type Record struct {
	Task       string
	Status     TaskStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
	Err        error
}

// Duration returns how long the task ran, or zero if it never started.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// transition validates and applies a status change.
func (r *Record) transition(to TaskStatus) error {
	if !isAllowedTransition(r.Status, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", r.Task, r.Status, to)
	}
	r.Status = to
	return nil
}

func isAllowedTransition(from, to TaskStatus) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning || to == TaskSkipped
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed
	default:
		return false
	}
}

// PhaseResult is the outcome of one phase activation. It is not modified
// after the executor returns it.
type PhaseResult struct {
	Phase           Phase
	ActivationID    string
	User            string
	Status          PhaseStatus
	Order           []string           // Resolved execution order
	CompletionOrder []string           // Tasks in the order they completed
	Records         map[string]*Record // Keyed by task name
	StartedAt       time.Time
	FinishedAt      time.Time
	Err             error
}

// Statuses returns a task name -> status map.
func (r *PhaseResult) Statuses() map[string]TaskStatus {
	out := make(map[string]TaskStatus, len(r.Records))
	for name, rec := range r.Records {
		out[name] = rec.Status
	}
	return out
}

// Count returns how many tasks ended in the given status.
func (r *PhaseResult) Count(status TaskStatus) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Status == status {
			n++
		}
	}
	return n
}

// Record returns a copy of the named task's record.
func (r *PhaseResult) Record(name string) (Record, bool) {
	rec, ok := r.Records[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// CleanupResult is the outcome of tearing down one phase.
type CleanupResult struct {
	Phase        Phase
	ActivationID string
	Cleaned      []string         // Tasks whose cleanup ran, in invocation order
	Errors       map[string]error // CleanupError per failed task
	StartedAt    time.Time
	FinishedAt   time.Time
}

// OK reports whether every cleanup succeeded.
func (r *CleanupResult) OK() bool {
	return len(r.Errors) == 0
}
