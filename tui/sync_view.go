// ABOUTME: TUI view for outstanding commands and recent notifications
// ABOUTME: Shows pending and failed commands and lets the user dismiss failures
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/pipedash/command"
	"github.com/harperreed/pipedash/models"
)

const activityNotifications = 10

var (
	activityHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Underline(true)

	activityLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Width(36)

	activityPendingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	activityErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9"))

	activitySelectedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("255")).
				Bold(true)

	activityMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)

	severityStyles = map[models.Severity]lipgloss.Style{
		models.SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		models.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		models.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
)

func (m Model) renderActivityView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("PIPELINE"))
	s.WriteString("\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	// Commands
	s.WriteString(activityHeaderStyle.Render("Commands"))
	s.WriteString("\n\n")

	statuses := m.dash.Statuses()
	if len(statuses) == 0 {
		s.WriteString(activityMessageStyle.Render("Nothing in flight."))
		s.WriteString("\n")
	}
	for i, st := range statuses {
		s.WriteString(m.renderStatusRow(st, i == m.selectedStatus))
		s.WriteString("\n")
	}

	// Notifications
	s.WriteString("\n")
	s.WriteString(activityHeaderStyle.Render("Notifications"))
	s.WriteString("\n\n")

	queue := m.dash.Notifications()
	if len(queue) == 0 {
		s.WriteString(activityMessageStyle.Render("No notifications yet."))
		s.WriteString("\n")
	}
	if len(queue) > activityNotifications {
		queue = queue[:activityNotifications]
	}
	for _, n := range queue {
		style, ok := severityStyles[n.Severity]
		if !ok {
			style = severityStyles[models.SeverityInfo]
		}
		s.WriteString(fmt.Sprintf("%s  %s  %s\n",
			activityMessageStyle.Render(fmt.Sprintf("%-14s", formatTimeSince(n.CreatedAt))),
			style.Render(fmt.Sprintf("%-7s", n.Severity)),
			n.Message))
	}

	s.WriteString("\n")
	s.WriteString(m.renderStatusLine())
	s.WriteString("\n")
	s.WriteString(m.renderActivityHelp())

	return s.String()
}

func (m Model) renderStatusRow(st command.Status, selected bool) string {
	var row strings.Builder

	// Selection indicator
	if selected {
		row.WriteString("▶ ")
	} else {
		row.WriteString("  ")
	}

	label := st.Label
	if label == "" {
		label = fmt.Sprintf("%s %s", st.Op, st.Kind)
	}
	if selected {
		row.WriteString(activitySelectedStyle.Render(activityLabelStyle.Render(truncate(label, 34))))
	} else {
		row.WriteString(activityLabelStyle.Render(truncate(label, 34)))
	}

	switch st.State {
	case command.StatePending:
		row.WriteString(activityPendingStyle.Render("  " + m.spinner.View() + " Saving..."))
		row.WriteString(activityMessageStyle.Render(fmt.Sprintf(" (%s)", formatTimeSince(st.StartedAt))))
	case command.StateFailed:
		row.WriteString(activityErrorStyle.Render("  ✗ Failed"))
		if st.Err != nil {
			row.WriteString(activityErrorStyle.Render(": " + errorText(st.Err)))
		}
	}
	return row.String()
}

func (m Model) renderActivityHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"d: Dismiss failure",
		"Esc/a: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleActivityKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	statuses := m.dash.Statuses()

	switch msg.String() {
	case "esc", "a":
		m.viewMode = ViewBoard
	case "up", "k":
		if m.selectedStatus > 0 {
			m.selectedStatus--
		}
	case "down", "j":
		if m.selectedStatus < len(statuses)-1 {
			m.selectedStatus++
		}
	case "d":
		if m.selectedStatus < len(statuses) {
			m.dash.Dismiss(statuses[m.selectedStatus].CommandID)
			if m.selectedStatus > 0 && m.selectedStatus >= len(statuses)-1 {
				m.selectedStatus--
			}
		}
	}

	return m, nil
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
