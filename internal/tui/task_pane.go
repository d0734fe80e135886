package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/lifecycle/internal/events"
)

// TaskState is what the monitor knows about one task.
type TaskState struct {
	Name      string
	Phase     string
	Status    string // "running", "completed", "failed", "skipped", "cleaned"
	Critical  bool
	Attempts  int
	Log       []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel lists tasks in start order with the selected task's log.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // name -> state
	taskOrder   []string              // first-seen order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		t := m.task(msg.Name, msg.Phase)
		t.Status = "running"
		t.StartTime = msg.Timestamp
		t.Duration = 0
		t.logf(msg.Timestamp, "started (activation %s)", shortID(msg.ActivationID))
		m.touch(msg.Name)

	case events.TaskCompletedEvent:
		t := m.task(msg.Name, msg.Phase)
		t.Status = "completed"
		t.Attempts = msg.Attempts
		t.Duration = msg.Duration
		t.logf(msg.Timestamp, "completed in %v after %d attempt(s)", msg.Duration.Round(time.Millisecond), msg.Attempts)
		m.touch(msg.Name)

	case events.TaskFailedEvent:
		t := m.task(msg.Name, msg.Phase)
		t.Status = "failed"
		t.Critical = msg.Critical
		t.Attempts = msg.Attempts
		t.Duration = msg.Duration
		kind := "non-critical"
		if msg.Critical {
			kind = "critical"
		}
		t.logf(msg.Timestamp, "%s failure: %v", kind, msg.Err)
		m.touch(msg.Name)

	case events.TaskSkippedEvent:
		t := m.task(msg.Name, msg.Phase)
		t.Status = "skipped"
		t.logf(msg.Timestamp, "skipped: %s", msg.Reason)
		m.touch(msg.Name)

	case events.TaskCleanedUpEvent:
		t := m.task(msg.Name, msg.Phase)
		t.Status = "cleaned"
		if msg.Err != nil {
			t.logf(msg.Timestamp, "cleanup failed: %v", msg.Err)
		} else {
			t.logf(msg.Timestamp, "cleaned up")
		}
		m.touch(msg.Name)
	}

	return m, cmd
}

func (m *TaskPaneModel) task(name, phase string) *TaskState {
	t, ok := m.tasks[name]
	if !ok {
		t = &TaskState{Name: name, Phase: phase}
		m.tasks[name] = t
		m.taskOrder = append(m.taskOrder, name)
	}
	return t
}

// touch refreshes the viewport if name is the selected task.
func (m *TaskPaneModel) touch(name string) {
	if m.SelectedTask() == name {
		m.updateViewportContent()
	}
}

func (t *TaskState) logf(at time.Time, format string, args ...any) {
	t.Log = append(t.Log, at.Format("15:04:05.000")+"  "+fmt.Sprintf(format, args...))
}

// Task returns the state of a task, if seen.
func (m TaskPaneModel) Task(name string) (TaskState, bool) {
	t, ok := m.tasks[name]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, name := range m.taskOrder {
		t := m.tasks[name]
		label := fmt.Sprintf("%s [%s]", t.Name, t.Phase)
		if len(label) > width-4 {
			label = label[:width-7] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), label)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "completed":
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	case "skipped":
		return StyleStatusSkipped.Render("–")
	case "cleaned":
		return StyleStatusPending.Render("↺")
	default:
		return StyleStatusPending.Render("○")
	}
}

// SelectedTask returns the name of the selected task.
func (m TaskPaneModel) SelectedTask() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) updateViewportContent() {
	t, ok := m.tasks[m.SelectedTask()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	m.viewport.SetContent(strings.Join(t.Log, "\n"))
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h

	vw := max(w-28-4, 10)
	vh := max(h-4, 5)
	m.viewport.Width = vw
	m.viewport.Height = vh
	m.updateViewportContent()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
