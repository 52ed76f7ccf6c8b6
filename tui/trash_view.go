// ABOUTME: Trash view listing soft-deleted leads
// ABOUTME: Restores leads to the pipeline or opens the purge confirmation
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) renderTrashView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("PIPELINE"))
	s.WriteString("\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if len(m.trash) == 0 {
		s.WriteString(cardMetaStyle.Render("Trash is empty."))
		s.WriteString("\n")
	} else {
		s.WriteString(m.renderTrashTable())
		s.WriteString("\n")
	}

	s.WriteString(m.renderStatusLine())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render(strings.Join([]string{
		"↑/↓: Navigate",
		"r: Restore",
		"D: Delete permanently",
		"Esc/t: Back",
		"q: Quit",
	}, " • ")))

	return s.String()
}

func (m Model) renderTrashTable() string {
	columns := []table.Column{
		{Title: "Name", Width: 28},
		{Title: "Company", Width: 24},
		{Title: "Email", Width: 30},
		{Title: "Updated", Width: 12},
	}

	var rows []table.Row
	for _, lead := range m.trash {
		rows = append(rows, table.Row{
			lead.FullName(),
			lead.Company,
			lead.Email,
			lead.UpdatedAt.Format("2006-01-02"),
		})
	}

	height := m.height - 10
	if height < 3 {
		height = 3
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	if m.trashRow < len(rows) {
		t.SetCursor(m.trashRow)
	}

	return t.View()
}

func (m Model) handleTrashKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "t":
		m.viewMode = ViewBoard
	case "up", "k":
		if m.trashRow > 0 {
			m.trashRow--
		}
	case "down", "j":
		if m.trashRow < len(m.trash)-1 {
			m.trashRow++
		}
	case "r":
		if m.trashRow >= len(m.trash) {
			return m, nil
		}
		id := m.trash[m.trashRow].ID
		coord := m.dash.Drag()
		return m, m.run("restore", func(ctx context.Context) error {
			_, err := coord.Restore(ctx, id)
			return err
		})
	case "D":
		if m.trashRow >= len(m.trash) {
			return m, nil
		}
		m.confirm = confirmPurge
		m.confirmLead = m.trash[m.trashRow]
		m.prevMode = ViewTrash
		m.viewMode = ViewConfirm
	}
	return m, nil
}
