// ABOUTME: Pipeline summary view with per-stage lead counts and deal totals
// ABOUTME: Draws a horizontal bar per stage scaled to the largest column
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/pipedash/models"
)

const summaryBarWidth = 40

var (
	summaryStageStyle = lipgloss.NewStyle().
				Bold(true).
				Width(14)

	summaryBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170"))
)

func (m Model) renderSummaryView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("PIPELINE"))
	s.WriteString("\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	summary := m.dash.Summary()
	most := 0
	for _, st := range summary {
		if st.Leads > most {
			most = st.Leads
		}
	}

	for _, st := range summary {
		bar := 0
		if most > 0 {
			bar = st.Leads * summaryBarWidth / most
		}
		if st.Leads > 0 && bar == 0 {
			bar = 1
		}

		var totals []string
		for _, cur := range st.Currencies() {
			totals = append(totals, models.FormatAmount(st.DealValue[cur], cur))
		}

		s.WriteString(summaryStageStyle.Render(string(st.Stage)))
		s.WriteString(summaryBarStyle.Render(fmt.Sprintf("%-*s", summaryBarWidth, strings.Repeat("█", bar))))
		s.WriteString(fmt.Sprintf(" %3d", st.Leads))
		if len(totals) > 0 {
			s.WriteString("  ")
			s.WriteString(fieldValueStyle.Render(strings.Join(totals, ", ")))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(cardMetaStyle.Render(fmt.Sprintf("%d leads on the board, %d in trash", m.board.Total(), len(m.trash))))
	s.WriteString("\n")
	s.WriteString(m.renderStatusLine())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render(strings.Join([]string{"Esc/g: Back", "q: Quit"}, " • ")))

	return s.String()
}

func (m Model) handleSummaryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "g":
		m.viewMode = ViewBoard
	}
	return m, nil
}
