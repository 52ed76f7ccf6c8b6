// ABOUTME: Task table shown on the lead detail view
// ABOUTME: Flags overdue and soon-due follow-up tasks
package tui

import (
	"github.com/charmbracelet/bubbles/table"

	"github.com/harperreed/pipedash/models"
)

const dueSoonDays = 3

func (m Model) renderTasksTable(lead models.Lead) string {
	tasks := m.dash.Store().TasksForLead(lead.ID)
	if len(tasks) == 0 {
		return cardMetaStyle.Render("No tasks")
	}

	columns := []table.Column{
		{Title: "", Width: 3},
		{Title: "Task", Width: 36},
		{Title: "Status", Width: 12},
		{Title: "Due", Width: 12},
	}

	var rows []table.Row
	for _, t := range tasks {
		indicator := "🟢"
		if t.IsOverdue() {
			indicator = "🔴"
		} else if t.IsDueSoon(dueSoonDays) {
			indicator = "🟡"
		}

		due := "-"
		if t.DueAt != nil {
			due = t.DueAt.Format("2006-01-02")
		}

		rows = append(rows, table.Row{
			indicator,
			t.Title,
			t.Status,
			due,
		})
	}

	tbl := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
	)

	return tbl.View()
}
