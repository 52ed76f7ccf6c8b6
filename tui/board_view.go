// ABOUTME: Kanban board view with one column per pipeline stage
// ABOUTME: Handles cursor movement, pick-up and drop of cards, sorting, and search
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/harperreed/pipedash/pipeline"
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	columnActiveStyle = columnStyle.
				BorderForeground(lipgloss.Color("170"))

	columnTargetStyle = columnStyle.
				BorderForeground(lipgloss.Color("11"))

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	cardSelectedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("255")).
				Bold(true)

	cardDraggedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Italic(true)

	cardMetaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func (m Model) renderBoardView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("PIPELINE"))
	s.WriteString("\n")

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if m.searching || m.search.Value() != "" {
		s.WriteString(m.search.View())
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderColumns())
	s.WriteString("\n")

	s.WriteString(m.renderStatusLine())
	s.WriteString("\n")

	// Help
	s.WriteString(m.renderBoardHelp())

	return s.String()
}

func (m Model) renderTabs() string {
	tabs := []struct {
		name string
		mode ViewMode
	}{
		{"Board", ViewBoard},
		{fmt.Sprintf("Trash (%d)", len(m.trash)), ViewTrash},
		{"Activity", ViewActivity},
		{"Summary", ViewSummary},
	}
	var rendered []string
	for _, tab := range tabs {
		if tab.mode == m.viewMode {
			rendered = append(rendered, tabActiveStyle.Render(tab.name))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(tab.name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) columnWidth() int {
	n := len(m.board.Columns)
	if n == 0 {
		return 20
	}
	w := m.width/n - 4
	if w < 14 {
		w = 14
	}
	return w
}

func (m Model) renderColumns() string {
	width := m.columnWidth()
	busy := m.busyLeads()
	dragID, _ := m.dash.Drag().Dragging()

	var cols []string
	for i, col := range m.board.Columns {
		var body strings.Builder
		body.WriteString(columnHeaderStyle.Render(fmt.Sprintf("%s (%d)", col.Stage, len(col.Leads))))
		body.WriteString("\n")

		if len(col.Leads) == 0 {
			body.WriteString(cardMetaStyle.Render("empty"))
		}
		for j, lead := range col.Leads {
			line := truncate(lead.FullName(), width-2)
			if busy[lead.ID] {
				line = m.spinner.View() + line
			}
			switch {
			case m.dragging && lead.ID == dragID:
				body.WriteString(cardDraggedStyle.Render("» " + line))
			case i == m.column && j == m.row && !m.dragging:
				body.WriteString(cardSelectedStyle.Render(line))
			default:
				body.WriteString(cardStyle.Render(line))
			}
			body.WriteString("\n")
			if lead.Company != "" {
				body.WriteString(cardMetaStyle.Render(truncate(lead.Company, width-2)))
				body.WriteString("\n")
			}
		}

		style := columnStyle
		switch {
		case m.dragging && i == m.column:
			style = columnTargetStyle
		case i == m.column:
			style = columnActiveStyle
		}
		cols = append(cols, style.Width(width).Render(body.String()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m Model) renderBoardHelp() string {
	if m.searching {
		return helpStyle.Render("Enter: Keep filter • Esc: Clear search")
	}
	if m.dragging {
		return helpStyle.Render(strings.Join([]string{
			"←/→: Choose stage",
			"Enter/Space: Drop",
			"x: Drop on trash",
			"Esc: Cancel",
		}, " • "))
	}
	sort := m.dash.Projection().Sort()
	help := []string{
		"←/→/↑/↓: Navigate",
		"Space: Pick up",
		"Enter: Details",
		"x: Trash",
		"t: Trash view",
		fmt.Sprintf("s/S: Sort (%s %s)", sort.Field, sort.Direction),
		"/: Search",
		"a: Activity",
		"g: Summary",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleBoardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKeys(msg)
	}

	switch msg.String() {
	case "left", "h":
		if m.column > 0 {
			m.column--
			m.clampRow()
		}
	case "right", "l":
		if m.column < len(m.board.Columns)-1 {
			m.column++
			m.clampRow()
		}
	case "up", "k":
		if !m.dragging && m.row > 0 {
			m.row--
		}
	case "down", "j":
		if !m.dragging && m.row < m.columnLen(m.column)-1 {
			m.row++
		}
	case " ":
		if m.dragging {
			return m.drop()
		}
		return m.pickUp()
	case "enter":
		if m.dragging {
			return m.drop()
		}
		if lead, ok := m.selectedLead(); ok {
			m.selectedID = lead.ID
			m.viewMode = ViewDetail
		}
	case "esc":
		if m.dragging {
			m.dash.Drag().Cancel()
			m.dragging = false
			m.column = m.dragFrom
			m.clampRow()
			return m, nil
		}
		if m.search.Value() != "" {
			m.search.SetValue("")
			m.applySearch()
		}
	case "x":
		return m.askTrash()
	case "t":
		m.viewMode = ViewTrash
	case "a":
		m.viewMode = ViewActivity
	case "g":
		m.viewMode = ViewSummary
	case "s":
		m.toggleSort(pipeline.SortLastName)
	case "S":
		m.toggleSort(pipeline.SortCreatedAt)
	case "/":
		m.searching = true
		return m, m.search.Focus()
	}
	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		m.search.Blur()
		return m, nil
	case "esc":
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		m.applySearch()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.applySearch()
	return m, cmd
}

func (m *Model) applySearch() {
	f := m.dash.Projection().Filter()
	f.Search = m.search.Value()
	m.dash.Projection().SetFilter(f)
	m.reload()
}

func (m *Model) toggleSort(field pipeline.SortField) {
	proj := m.dash.Projection()
	proj.SetSort(proj.Sort().Toggle(field))
	m.reload()
}

func (m *Model) clampRow() {
	if n := m.columnLen(m.column); m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m Model) pickUp() (tea.Model, tea.Cmd) {
	lead, ok := m.selectedLead()
	if !ok {
		return m, nil
	}
	if err := m.dash.Drag().Begin(lead.ID); err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.dragging = true
	m.dragFrom = m.column
	return m, nil
}

func (m Model) drop() (tea.Model, tea.Cmd) {
	if m.column < 0 || m.column >= len(m.board.Columns) {
		return m, nil
	}
	stage := m.board.Columns[m.column].Stage
	m.dragging = false
	coord := m.dash.Drag()
	cmd := m.run("move", func(ctx context.Context) error {
		_, err := coord.DropOnStage(ctx, stage)
		return err
	})
	return m, cmd
}

// askTrash opens the trash confirmation for the dragged or selected card.
func (m Model) askTrash() (tea.Model, tea.Cmd) {
	if m.dragging {
		id, _ := m.dash.Drag().Dragging()
		return m.askTrashLead(id, ViewBoard)
	}
	lead, ok := m.selectedLead()
	if !ok {
		return m, nil
	}
	m.dragFrom = m.column
	return m.askTrashLead(lead.ID, ViewBoard)
}

// askTrashLead starts or continues a gesture on id and asks before the drop.
// The card stays on the board until the answer comes back.
func (m Model) askTrashLead(id uuid.UUID, returnTo ViewMode) (tea.Model, tea.Cmd) {
	coord := m.dash.Drag()
	if cur, dragging := coord.Dragging(); !dragging || cur != id {
		if err := coord.Begin(id); err != nil {
			m.err = err
			return m, nil
		}
	}
	lead, ok := m.dash.Store().Lead(id)
	if !ok {
		coord.Cancel()
		m.dragging = false
		return m, nil
	}
	m.dragging = false
	m.confirm = confirmTrash
	m.confirmLead = lead
	m.prevMode = returnTo
	m.viewMode = ViewConfirm
	return m, nil
}

func truncate(s string, n int) string {
	if n <= 1 || lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) > n-1 {
		r = r[:n-1]
	}
	return string(r) + "…"
}
