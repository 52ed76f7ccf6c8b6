// ABOUTME: Confirmation dialog for trashing and purging leads
// ABOUTME: Trash answers go through the drag coordinator; purge deletes the lead and its deals and comments
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/pipedash/models"
)

var (
	confirmBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(1, 2).
			Width(60).
			Align(lipgloss.Center)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	confirmButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("9")).
				Padding(0, 2).
				MarginRight(2)

	cancelButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("8")).
				Padding(0, 2)
)

func (m Model) renderConfirmView() string {
	lead := m.confirmLead

	var title, message, warning, yes string
	switch m.confirm {
	case confirmPurge:
		title = warningStyle.Render("⚠  DELETE PERMANENTLY  ⚠")
		message = "Delete this lead and all of its deals and comments?"
		warning = "\nThis action cannot be undone!"
		yes = "Yes, Delete (y)"
	default:
		title = warningStyle.Render("MOVE TO TRASH")
		message = "Move this lead to the trash?"
		warning = "\nIt can be restored from the trash view."
		yes = "Yes, Trash (y)"
	}
	entityInfo := fmt.Sprintf("\nLEAD: %s\n", lead.FullName())
	if lead.Company != "" {
		entityInfo = fmt.Sprintf("\nLEAD: %s (%s)\n", lead.FullName(), lead.Company)
	}

	buttons := lipgloss.JoinHorizontal(
		lipgloss.Left,
		confirmButtonStyle.Render(yes),
		cancelButtonStyle.Render("Cancel (n/esc)"),
	)

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		title,
		"",
		message,
		entityInfo,
		warning,
		"",
		buttons,
	)

	box := confirmBoxStyle.Render(content)

	// Center the box on screen
	dialog := lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		box,
	)

	return dialog
}

func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.viewMode = m.prevMode
		return m, m.confirmed(true)
	case "n", "N", "esc":
		m.viewMode = m.prevMode
		return m, m.confirmed(false)
	}

	return m, nil
}

// confirmed resolves the open dialog. A declined trash still ends the
// gesture so the coordinator records it as cancelled.
func (m *Model) confirmed(yes bool) tea.Cmd {
	lead := m.confirmLead
	m.confirmLead = models.Lead{}

	switch m.confirm {
	case confirmPurge:
		if !yes {
			return nil
		}
		dash := m.dash
		return m.run("purge", func(ctx context.Context) error {
			return dash.PurgeLead(ctx, lead.ID)
		})
	default:
		coord := m.dash.Drag()
		answer := func(models.Lead) bool { return yes }
		if !yes {
			_, err := coord.DropOnTrash(m.ctx, answer)
			m.err = err
			m.column = m.dragFrom
			m.clampRow()
			return nil
		}
		return m.run("trash", func(ctx context.Context) error {
			_, err := coord.DropOnTrash(ctx, answer)
			return err
		})
	}
}
