// Package tui is the terminal boot monitor: it follows lifecycle events on
// the bus and shows every task and phase as they progress.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/lifecycle/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PanePhases
)

// busClosedMsg is delivered once the event bus shuts down.
type busClosedMsg struct{}

// Model is the root Bubble Tea model for the boot monitor.
type Model struct {
	taskPane    TaskPaneModel
	phasePane   PhasePaneModel
	focusedPane PaneID
	eventSub    <-chan events.Event
	width       int
	height      int
	quitting    bool
	busClosed   bool
}

// New creates a new monitor model subscribed to every topic of the bus.
func New(eventBus *events.EventBus) Model {
	return NewFromSubscription(eventBus.SubscribeAll(256))
}

// NewFromSubscription creates a monitor reading from an existing subscription.
func NewFromSubscription(sub <-chan events.Event) Model {
	return Model{
		taskPane:    NewTaskPaneModel(),
		phasePane:   NewPhasePaneModel(),
		focusedPane: PaneTasks,
		eventSub:    sub,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PanePhases
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case busClosedMsg:
		m.busClosed = true

	case events.TaskStartedEvent, events.TaskCompletedEvent, events.TaskFailedEvent,
		events.TaskSkippedEvent, events.TaskCleanedUpEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.PhaseStartedEvent, events.PhaseProgressEvent, events.PhaseFinishedEvent,
		events.PhaseCleanedEvent, events.NotificationEvent:
		var cmd tea.Cmd
		m.phasePane, cmd = m.phasePane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		// Not displayed, but keep consuming.
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the monitor.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.phasePane.View())
	return lipgloss.JoinVertical(lipgloss.Left, body, HelpView(m.busClosed))
}

// computeLayout splits the width 60/40 between tasks and phases.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	availableHeight := m.height - 1

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.phasePane.SetSize(m.width-leftWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.phasePane.SetFocused(m.focusedPane == PanePhases)
}
