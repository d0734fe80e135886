package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/lifecycle/internal/events"
)

const maxNotifications = 8

// PhaseState holds the latest progress of one phase.
type PhaseState struct {
	Status    string // "running", "completed", "failed", "cleaned"
	User      string
	Total     int
	Completed int
	Running   int
	Failed    int
	Skipped   int
	Pending   int
}

// PhasePaneModel shows per-phase progress and the latest notifications.
type PhasePaneModel struct {
	phases        map[string]*PhaseState
	notifications []string
	width         int
	height        int
	focused       bool
}

// NewPhasePaneModel creates a new phase pane model.
func NewPhasePaneModel() PhasePaneModel {
	return PhasePaneModel{phases: make(map[string]*PhaseState)}
}

// Update handles messages for the phase pane.
func (m PhasePaneModel) Update(msg tea.Msg) (PhasePaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.PhaseStartedEvent:
		p := m.phase(msg.Phase)
		*p = PhaseState{Status: "running", User: msg.User, Total: len(msg.Order), Pending: len(msg.Order)}

	case events.PhaseProgressEvent:
		p := m.phase(msg.Phase)
		p.Total = msg.Total
		p.Completed = msg.Completed
		p.Running = msg.Running
		p.Failed = msg.Failed
		p.Skipped = msg.Skipped
		p.Pending = msg.Pending

	case events.PhaseFinishedEvent:
		m.phase(msg.Phase).Status = msg.Status

	case events.PhaseCleanedEvent:
		m.phase(msg.Phase).Status = "cleaned"

	case events.NotificationEvent:
		line := fmt.Sprintf("%s %s: %s", msg.Timestamp.Format("15:04:05"), msg.Source, msg.Title)
		m.notifications = append(m.notifications, line)
		if len(m.notifications) > maxNotifications {
			m.notifications = m.notifications[len(m.notifications)-maxNotifications:]
		}
	}

	return m, nil
}

func (m *PhasePaneModel) phase(name string) *PhaseState {
	p, ok := m.phases[name]
	if !ok {
		p = &PhaseState{}
		m.phases[name] = p
	}
	return p
}

// Phase returns the state of a phase, if seen.
func (m PhasePaneModel) Phase(name string) (PhaseState, bool) {
	p, ok := m.phases[name]
	if !ok {
		return PhaseState{}, false
	}
	return *p, true
}

// View renders the phase pane.
func (m PhasePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Phases")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	for _, name := range []string{"startup", "session"} {
		p, ok := m.phases[name]
		if !ok {
			b.WriteString(fmt.Sprintf("%-8s %s\n\n", name, StyleStatusPending.Render("not started")))
			continue
		}
		header := fmt.Sprintf("%-8s %s", name, phaseStatusStyle(p.Status).Render(p.Status))
		if p.User != "" {
			header += " (" + p.User + ")"
		}
		b.WriteString(header + "\n")
		b.WriteString(m.progressBar(p) + "\n\n")
	}

	if len(m.notifications) > 0 {
		b.WriteString(StyleTitle.Render("Notifications"))
		b.WriteString("\n")
		for _, n := range m.notifications {
			b.WriteString(n + "\n")
		}
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m PhasePaneModel) progressBar(p *PhaseState) string {
	if p.Total == 0 {
		return StyleStatusPending.Render("no tasks")
	}
	barWidth := max(min(m.width-16, 40), 10)
	completedWidth := (p.Completed * barWidth) / p.Total
	failedWidth := (p.Failed * barWidth) / p.Total
	skippedWidth := (p.Skipped * barWidth) / p.Total
	runningWidth := (p.Running * barWidth) / p.Total
	pendingWidth := barWidth - completedWidth - failedWidth - skippedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusSkipped.Render(strings.Repeat("~", max(0, skippedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))
	return fmt.Sprintf("[%s] %d/%d", bar, p.Completed, p.Total)
}

func phaseStatusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return StyleStatusRunning
	case "completed":
		return StyleStatusComplete
	case "failed":
		return StyleStatusFailed
	default:
		return StyleStatusPending
	}
}

// SetSize updates the pane dimensions.
func (m *PhasePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *PhasePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
