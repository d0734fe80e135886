package modules

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lifecycle/internal/config"
	"github.com/aristath/lifecycle/internal/events"
	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/orchestrator"
	"github.com/aristath/lifecycle/internal/persistence"
	"github.com/aristath/lifecycle/internal/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Tasks.DefaultTimeout = 10 * time.Second
	return cfg
}

func bootHost(t *testing.T) (*orchestrator.Orchestrator, *Host, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)

	cfg := testConfig(t)
	o := orchestrator.New(
		orchestrator.WithLogger(logging.Nop()),
		orchestrator.WithEventBus(bus),
		orchestrator.WithDefaultTimeout(cfg.Tasks.DefaultTimeout),
	)
	h := NewHost(cfg, bus, logging.Nop())
	require.NoError(t, Register(o, h))
	return o, h, bus
}

func TestRegister_Plans(t *testing.T) {
	o, _, _ := bootHost(t)

	startup, err := o.Plan(scheduler.PhaseStartup)
	require.NoError(t, err)
	wantStartup := []string{TaskDB, TaskFilesystem, TaskGit, TaskNotification, TaskSchedule, TaskEventWiring}
	if diff := cmp.Diff(wantStartup, startup); diff != "" {
		t.Errorf("startup plan mismatch (-want +got):\n%s", diff)
	}

	session, err := o.Plan(scheduler.PhaseSession)
	require.NoError(t, err)
	wantSession := []string{TaskAuth, TaskAccounts, TaskReminders, TaskSessionLog}
	if diff := cmp.Diff(wantSession, session); diff != "" {
		t.Errorf("session plan mismatch (-want +got):\n%s", diff)
	}
}

func TestRegister_Twice(t *testing.T) {
	o, h, _ := bootHost(t)
	err := Register(o, h)
	assert.ErrorIs(t, err, scheduler.ErrDuplicateTask)
}

func TestLifecycle_EndToEnd(t *testing.T) {
	ctx := context.Background()
	o, h, _ := bootHost(t)

	res, err := o.ExecutePhase(ctx, scheduler.PhaseStartup)
	require.NoError(t, err)
	assert.Equal(t, scheduler.PhaseCompleted, res.Status)
	for _, name := range []string{TaskDB, TaskFilesystem, TaskNotification, TaskSchedule, TaskEventWiring} {
		assert.True(t, o.IsTaskCompleted(name), "%s should be completed", name)
	}
	if _, err := exec.LookPath("git"); err == nil {
		assert.True(t, o.IsTaskCompleted(TaskGit))
		assert.NotNil(t, h.Vault())
	}
	require.NotNil(t, h.Store())
	require.NotNil(t, h.Cron())
	require.NotNil(t, h.Notifier())

	res, err = o.StartSession(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, scheduler.PhaseCompleted, res.Status)

	acct := h.Account()
	require.NotNil(t, acct)
	assert.Equal(t, "alice", acct.User)

	open, err := h.Store().OpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "alice", open[0].User)

	cleanup := o.EndSession(ctx)
	assert.True(t, cleanup.OK(), "session cleanup errors: %v", cleanup.Errors)
	assert.Nil(t, h.Account())
	assert.Empty(t, o.CurrentUser())

	open, err = h.Store().OpenSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	// The recorder saw both activations.
	store := h.Store()
	require.Eventually(t, func() bool {
		runs, err := store.PhaseRuns(ctx, 0)
		return err == nil && len(runs) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	for _, r := range o.Shutdown(ctx) {
		assert.True(t, r.OK(), "%s cleanup errors: %v", r.Phase, r.Errors)
	}
	assert.Nil(t, h.Store())
	assert.Nil(t, h.Cron())
	assert.Nil(t, h.Notifier())
}

func TestSession_InvalidUserFailsPhase(t *testing.T) {
	ctx := context.Background()
	o, _, _ := bootHost(t)
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	_, err := o.ExecutePhase(ctx, scheduler.PhaseStartup)
	require.NoError(t, err)

	res, err := o.StartSession(ctx, "Not A User!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidUser), "got %v", err)
	assert.Equal(t, scheduler.PhaseFailed, res.Status)
	assert.Equal(t, scheduler.TaskSkipped, res.Records[TaskAccounts].Status)
}

func TestSession_RequiresStartup(t *testing.T) {
	o, _, _ := bootHost(t)
	_, err := o.StartSession(context.Background(), "alice")
	assert.ErrorIs(t, err, scheduler.ErrPhaseOrder)
}

func TestRecordEvent(t *testing.T) {
	ctx := context.Background()
	store, err := persistence.NewMemoryStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	start := time.Unix(1700000000, 0)
	evs := []events.Event{
		events.PhaseStartedEvent{Phase: "startup", ActivationID: "act", Timestamp: start},
		events.TaskCompletedEvent{Name: "db", ActivationID: "act", Attempts: 1, Duration: time.Millisecond, Timestamp: start},
		events.TaskFailedEvent{Name: "git", ActivationID: "act", Attempts: 2, Err: errors.New("no git"), Timestamp: start},
		events.TaskSkippedEvent{Name: "schedule", ActivationID: "act", Reason: "dependency failed", Timestamp: start},
		events.PhaseFinishedEvent{Phase: "startup", ActivationID: "act", Status: "completed", Duration: time.Second, Timestamp: start.Add(time.Second)},
		events.UserChangedEvent{User: "ignored"},
	}
	for _, ev := range evs {
		require.NoError(t, recordEvent(ctx, store, ev))
	}

	runs, err := store.PhaseRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.True(t, runs[0].StartedAt.Equal(start))

	tasks, err := store.TaskRuns(ctx, "act")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "completed", tasks[0].Status)
	assert.Equal(t, 2, tasks[1].Attempts)
	assert.Equal(t, "no git", tasks[1].Error)
	assert.Equal(t, "skipped", tasks[2].Status)
}

func TestRemindersSweep(t *testing.T) {
	ctx := context.Background()
	store, err := persistence.NewMemoryStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := events.NewEventBus()
	t.Cleanup(bus.Close)
	notifications := bus.Subscribe(events.TopicNotification, 10)

	h := NewHost(testConfig(t), bus, logging.Nop())
	h.set(func(h *Host) { h.store = store })
	n := newNotifier(bus, logging.Nop())
	t.Cleanup(func() { n.close(context.Background()) })
	h.set(func(h *Host) { h.notifier = n })

	_, err = store.UpsertAccount(ctx, "alice")
	require.NoError(t, err)
	now := time.Now()
	_, err = store.AddReminder(ctx, persistence.Reminder{User: "alice", Title: "standup", DueAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = store.AddReminder(ctx, persistence.Reminder{User: "alice", Title: "later", DueAt: now.Add(time.Hour)})
	require.NoError(t, err)

	m := &remindersModule{host: h}
	fired, err := m.sweep(ctx, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	select {
	case ev := <-notifications:
		ne, ok := ev.(events.NotificationEvent)
		require.True(t, ok)
		assert.Equal(t, events.EventTypeReminderFired, ne.EventType())
		assert.Equal(t, "standup", ne.Title)
	case <-time.After(time.Second):
		t.Fatal("no reminder notification")
	}

	fired, err = m.sweep(ctx, "alice", now)
	require.NoError(t, err)
	assert.Zero(t, fired, "fired reminders are not delivered twice")

	require.Eventually(t, func() bool { return len(n.Recent()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestIgnoredNote(t *testing.T) {
	for path, want := range map[string]bool{
		"/notes/.git":      true,
		"/notes/todo.md~":  true,
		"/notes/.#todo.md": true,
		"/notes/todo.swp":  true,
		"/notes/todo.md":   false,
		"/notes/ideas.txt": false,
	} {
		assert.Equal(t, want, ignoredNote(path), path)
	}
}
