package events

import (
	"time"
)

// Event is the base interface for all lifecycle events.
type Event interface {
	EventType() string
	// Subject is the task name for task events and the phase name otherwise.
	Subject() string
}

// Topic constants
const (
	TopicTask         = "task"
	TopicPhase        = "phase"
	TopicSession      = "session"
	TopicNotification = "notification"
)

// Event type constants
const (
	EventTypeTaskStarted    = "task.started"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeTaskSkipped    = "task.skipped"
	EventTypeTaskCleanedUp  = "task.cleaned_up"
	EventTypePhaseStarted   = "phase.started"
	EventTypePhaseFinished  = "phase.finished"
	EventTypePhaseCleaned   = "phase.cleaned"
	EventTypePhaseProgress  = "phase.progress"
	EventTypeUserChanged    = "session.user_changed"
	EventTypeNotification   = "notification.posted"
	EventTypeReminderFired  = "notification.reminder"
	EventTypeVaultChanged   = "notification.vault_changed"
	EventTypeScheduleTicked = "notification.schedule_tick"
)

// TaskStartedEvent is published when a task's initialize begins.
type TaskStartedEvent struct {
	Name         string
	Phase        string
	ActivationID string
	Attempt      int
	Timestamp    time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Subject() string   { return e.Name }

// TaskCompletedEvent is published when a task's initialize succeeds.
type TaskCompletedEvent struct {
	Name         string
	Phase        string
	ActivationID string
	Attempts     int
	Duration     time.Duration
	Timestamp    time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Subject() string   { return e.Name }

// TaskFailedEvent is published when a task fails or times out.
type TaskFailedEvent struct {
	Name         string
	Phase        string
	ActivationID string
	Critical     bool
	Attempts     int
	Err          error
	Duration     time.Duration
	Timestamp    time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Subject() string   { return e.Name }

// TaskSkippedEvent is published when a task is skipped without running.
type TaskSkippedEvent struct {
	Name         string
	Phase        string
	ActivationID string
	Reason       string
	Timestamp    time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) Subject() string   { return e.Name }

// TaskCleanedUpEvent is published after a task's cleanup runs.
type TaskCleanedUpEvent struct {
	Name      string
	Phase     string
	Err       error // Nil on success
	Timestamp time.Time
}

func (e TaskCleanedUpEvent) EventType() string { return EventTypeTaskCleanedUp }
func (e TaskCleanedUpEvent) Subject() string   { return e.Name }

// PhaseStartedEvent is published when a phase activation begins.
type PhaseStartedEvent struct {
	Phase        string
	ActivationID string
	User         string
	Order        []string
	Timestamp    time.Time
}

func (e PhaseStartedEvent) EventType() string { return EventTypePhaseStarted }
func (e PhaseStartedEvent) Subject() string   { return e.Phase }

// PhaseFinishedEvent is published when a phase activation ends.
type PhaseFinishedEvent struct {
	Phase        string
	ActivationID string
	Status       string            // completed or failed
	Tasks        map[string]string // Task name -> final status
	Err          error
	Duration     time.Duration
	Timestamp    time.Time
}

func (e PhaseFinishedEvent) EventType() string { return EventTypePhaseFinished }
func (e PhaseFinishedEvent) Subject() string   { return e.Phase }

// PhaseCleanedEvent is published when a phase teardown ends.
type PhaseCleanedEvent struct {
	Phase     string
	Cleaned   []string
	Failed    []string
	Timestamp time.Time
}

func (e PhaseCleanedEvent) EventType() string { return EventTypePhaseCleaned }
func (e PhaseCleanedEvent) Subject() string   { return e.Phase }

// PhaseProgressEvent is published after every task state change.
type PhaseProgressEvent struct {
	Phase     string
	Total     int
	Completed int
	Running   int
	Failed    int
	Skipped   int
	Pending   int
	Timestamp time.Time
}

func (e PhaseProgressEvent) EventType() string { return EventTypePhaseProgress }
func (e PhaseProgressEvent) Subject() string   { return e.Phase }

// UserChangedEvent is published when the current user is set or cleared.
type UserChangedEvent struct {
	Previous  string
	User      string
	Timestamp time.Time
}

func (e UserChangedEvent) EventType() string { return EventTypeUserChanged }
func (e UserChangedEvent) Subject() string   { return "session" }

// NotificationEvent carries a user-facing message from a host module.
type NotificationEvent struct {
	Kind      string // One of the notification EventType* constants
	Source    string // Module that posted it
	Title     string
	Body      string
	Timestamp time.Time
}

func (e NotificationEvent) EventType() string {
	if e.Kind == "" {
		return EventTypeNotification
	}
	return e.Kind
}
func (e NotificationEvent) Subject() string { return e.Source }
