package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lifecycle/internal/events"
)

func feed(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		require.True(t, ok, "Update returned %T", next)
	}
	return m
}

func TestModel_TracksTasksAndPhases(t *testing.T) {
	sub := make(chan events.Event)
	now := time.Now()

	m := feed(t, NewFromSubscription(sub),
		tea.WindowSizeMsg{Width: 120, Height: 40},
		events.PhaseStartedEvent{Phase: "startup", ActivationID: "abcdef123456", Order: []string{"db", "git"}, Timestamp: now},
		events.TaskStartedEvent{Name: "db", Phase: "startup", Timestamp: now},
		events.TaskCompletedEvent{Name: "db", Phase: "startup", Attempts: 1, Duration: 5 * time.Millisecond, Timestamp: now},
		events.TaskStartedEvent{Name: "git", Phase: "startup", Timestamp: now},
		events.TaskFailedEvent{Name: "git", Phase: "startup", Err: errors.New("no repo"), Timestamp: now},
		events.PhaseProgressEvent{Phase: "startup", Total: 2, Completed: 1, Failed: 1},
		events.PhaseFinishedEvent{Phase: "startup", Status: "completed", Timestamp: now},
		events.NotificationEvent{Source: "reminders", Title: "standup", Timestamp: now},
	)

	db, ok := m.taskPane.Task("db")
	require.True(t, ok)
	assert.Equal(t, "completed", db.Status)
	assert.Equal(t, 1, db.Attempts)

	git, ok := m.taskPane.Task("git")
	require.True(t, ok)
	assert.Equal(t, "failed", git.Status)
	assert.False(t, git.Critical)
	assert.Contains(t, git.Log[len(git.Log)-1], "non-critical failure: no repo")

	startup, ok := m.phasePane.Phase("startup")
	require.True(t, ok)
	assert.Equal(t, "completed", startup.Status)
	assert.Equal(t, 2, startup.Total)
	assert.Equal(t, 1, startup.Failed)

	view := m.View()
	assert.Contains(t, view, "Tasks")
	assert.Contains(t, view, "standup")
}

func TestModel_CleanupAndSkip(t *testing.T) {
	m := feed(t, NewFromSubscription(make(chan events.Event)),
		events.TaskSkippedEvent{Name: "reminders", Phase: "session", Reason: "dependency failed"},
		events.TaskCleanedUpEvent{Name: "db", Phase: "startup"},
		events.PhaseCleanedEvent{Phase: "startup"},
	)

	r, _ := m.taskPane.Task("reminders")
	assert.Equal(t, "skipped", r.Status)
	db, _ := m.taskPane.Task("db")
	assert.Equal(t, "cleaned", db.Status)
	p, _ := m.phasePane.Phase("startup")
	assert.Equal(t, "cleaned", p.Status)
}

func TestModel_Navigation(t *testing.T) {
	m := feed(t, NewFromSubscription(make(chan events.Event)),
		tea.WindowSizeMsg{Width: 100, Height: 30},
		events.TaskStartedEvent{Name: "db", Phase: "startup"},
		events.TaskStartedEvent{Name: "filesystem", Phase: "startup"},
	)
	assert.Equal(t, "db", m.taskPane.SelectedTask())

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	assert.Equal(t, "filesystem", m.taskPane.SelectedTask())

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	assert.Equal(t, "filesystem", m.taskPane.SelectedTask(), "selection stops at the last task")

	m = feed(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PanePhases, m.focusedPane)

	// Keys do not reach the task list while the phase pane is focused.
	m = feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	assert.Equal(t, "filesystem", m.taskPane.SelectedTask())
}

func TestModel_QuitAndBusClosed(t *testing.T) {
	sub := make(chan events.Event)
	close(sub)

	m := NewFromSubscription(sub)
	msg := m.Init()()
	assert.IsType(t, busClosedMsg{}, msg)

	m = feed(t, m, msg, tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.True(t, strings.Contains(m.View(), "host stopped"))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, "Goodbye!\n", next.View())
}
