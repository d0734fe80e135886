// Package modules holds the productivity suite's feature modules. Each one
// contributes a task to the orchestrator; together they boot the process
// (startup phase) and bring a signed-in user's session up and down.
package modules

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/aristath/lifecycle/internal/config"
	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/persistence"
	"github.com/aristath/lifecycle/internal/scheduler"
	"github.com/aristath/lifecycle/internal/vault"
)

// Task names.
const (
	TaskDB           = "db"
	TaskFilesystem   = "filesystem"
	TaskGit          = "git"
	TaskNotification = "notification"
	TaskSchedule     = "schedule"
	TaskEventWiring  = "event-wiring"

	TaskAuth       = "auth"
	TaskAccounts   = "accounts"
	TaskSessionLog = "session-log"
	TaskReminders  = "reminders"
)

// Registrar accepts task descriptors. *orchestrator.Orchestrator implements it.
type Registrar interface {
	RegisterTask(task scheduler.Task) error
}

// Host is the shared state the modules hand to each other. Fields are set by
// the startup task that owns them and read by tasks that depend on it.
type Host struct {
	cfg *config.Config
	bus *events.EventBus
	log *logging.Logger

	mu       sync.RWMutex
	store    persistence.Store
	vault    *vault.Vault
	cron     *cron.Cron
	notifier *Notifier
	account  *persistence.Account
}

// NewHost creates the module host.
func NewHost(cfg *config.Config, bus *events.EventBus, log *logging.Logger) *Host {
	if log == nil {
		log = logging.Component("modules")
	}
	if bus == nil {
		bus = events.NewEventBus()
	}
	return &Host{cfg: cfg, bus: bus, log: log}
}

// DBPath returns the SQLite database location.
func (h *Host) DBPath() string {
	return filepath.Join(h.cfg.DataDir, "lifecycle.db")
}

// NotesDir returns the notes vault location.
func (h *Host) NotesDir() string {
	return filepath.Join(h.cfg.DataDir, "notes")
}

// Store returns the database opened by the db task, or nil.
func (h *Host) Store() persistence.Store {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store
}

// Vault returns the notes vault opened by the git task, or nil.
func (h *Host) Vault() *vault.Vault {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.vault
}

// Cron returns the engine started by the schedule task, or nil.
func (h *Host) Cron() *cron.Cron {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cron
}

// Notifier returns the notifier started by the notification task, or nil.
func (h *Host) Notifier() *Notifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.notifier
}

// Account returns the signed-in user's account, or nil.
func (h *Host) Account() *persistence.Account {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.account
}

func (h *Host) set(fn func(h *Host)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

// Descriptors returns every module's task descriptor with configuration
// overrides applied.
func (h *Host) Descriptors() []scheduler.Task {
	tasks := []scheduler.Task{
		scheduler.FromModule(scheduler.Task{
			Name:  TaskDB,
			Phase: scheduler.PhaseStartup,
		}, &dbModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:  TaskFilesystem,
			Phase: scheduler.PhaseStartup,
		}, &filesystemModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:        TaskGit,
			Phase:       scheduler.PhaseStartup,
			DependsOn:   []string{TaskFilesystem},
			NonCritical: true,
		}, &gitModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:  TaskNotification,
			Phase: scheduler.PhaseStartup,
		}, &notificationModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:      TaskSchedule,
			Phase:     scheduler.PhaseStartup,
			DependsOn: []string{TaskNotification},
		}, &scheduleModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:        TaskEventWiring,
			Phase:       scheduler.PhaseStartup,
			Priority:    10,
			DependsOn:   []string{TaskDB, TaskNotification},
			NonCritical: true,
		}, &eventWiringModule{host: h}),

		scheduler.FromModule(scheduler.Task{
			Name:  TaskAuth,
			Phase: scheduler.PhaseSession,
		}, &authModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:      TaskAccounts,
			Phase:     scheduler.PhaseSession,
			DependsOn: []string{TaskAuth, TaskDB},
		}, &accountsModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:      TaskSessionLog,
			Phase:     scheduler.PhaseSession,
			DependsOn: []string{TaskAccounts},
		}, &sessionLogModule{host: h}),
		scheduler.FromModule(scheduler.Task{
			Name:      TaskReminders,
			Phase:     scheduler.PhaseSession,
			DependsOn: []string{TaskAccounts, TaskSchedule},
		}, &remindersModule{host: h}),
	}

	for i := range tasks {
		tasks[i] = ApplyOverrides(tasks[i], h.cfg)
	}
	return tasks
}

// Register adds every module's task to r.
func Register(r Registrar, h *Host) error {
	for _, task := range h.Descriptors() {
		if err := r.RegisterTask(task); err != nil {
			return fmt.Errorf("registering module %s: %w", task.Name, err)
		}
	}
	return nil
}
