// ABOUTME: Lead detail view with deals, comments, and tasks
// ABOUTME: Adds comments inline and can send the lead to the trash confirmation
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/pipedash/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("LEAD"))
	s.WriteString("\n\n")

	lead, ok := m.dash.Store().Lead(m.selectedID)
	if !ok {
		s.WriteString(cardMetaStyle.Render("This lead no longer exists."))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("Esc: Back"))
		return s.String()
	}

	s.WriteString(m.renderLeadFields(lead))
	s.WriteString("\n")
	s.WriteString(m.renderLeadDeals(lead))
	s.WriteString("\n")
	s.WriteString(m.renderLeadComments(lead))
	s.WriteString("\n")
	s.WriteString(sectionStyle.Render("Tasks"))
	s.WriteString("\n")
	s.WriteString(m.renderTasksTable(lead))
	s.WriteString("\n")

	if m.commenting {
		s.WriteString(m.commentInput.View())
		s.WriteString("\n")
	}

	s.WriteString(m.renderStatusLine())
	s.WriteString("\n")

	// Help
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func (m Model) renderLeadFields(lead models.Lead) string {
	var s strings.Builder
	s.WriteString(m.renderField("Name", lead.FullName()))
	s.WriteString(m.renderField("Stage", string(lead.Stage)))
	s.WriteString(m.renderField("Company", lead.Company))
	s.WriteString(m.renderField("Email", lead.Email))
	s.WriteString(m.renderField("Phone", lead.Phone))

	if lead.OwnerID != nil {
		owner := lead.OwnerID.String()
		if u, ok := m.dash.Store().User(*lead.OwnerID); ok {
			owner = u.Name
		}
		s.WriteString(m.renderField("Owner", owner))
	}
	if lead.ProjectID != nil {
		project := lead.ProjectID.String()
		if p, ok := m.dash.Store().Project(*lead.ProjectID); ok {
			project = p.Title
		}
		s.WriteString(m.renderField("Project", project))
	}
	s.WriteString(m.renderField("LinkedIn", lead.SocialLinks.LinkedIn))
	s.WriteString(m.renderField("Website", lead.SocialLinks.Website))
	if len(lead.Files) > 0 {
		names := make([]string, 0, len(lead.Files))
		for _, f := range lead.Files {
			names = append(names, f.Name)
		}
		s.WriteString(m.renderField("Files", strings.Join(names, ", ")))
	}
	s.WriteString(m.renderField("Created", lead.CreatedAt.Format("2006-01-02 15:04")))
	s.WriteString(m.renderField("Updated", formatTimeSince(lead.UpdatedAt)))
	return s.String()
}

func (m Model) renderLeadDeals(lead models.Lead) string {
	var s strings.Builder
	s.WriteString(sectionStyle.Render("Deals"))
	s.WriteString("\n")

	deals := m.dash.Store().DealsForLead(lead.ID)
	if len(deals) == 0 {
		s.WriteString(cardMetaStyle.Render("No deals"))
		s.WriteString("\n")
		return s.String()
	}
	for _, d := range deals {
		s.WriteString(fmt.Sprintf("  %s  %s\n", models.FormatAmount(d.TotalAmount, d.Currency), d.Type))
	}
	return s.String()
}

func (m Model) renderLeadComments(lead models.Lead) string {
	var s strings.Builder
	comments := m.dash.Comments(lead.ID)
	s.WriteString(sectionStyle.Render(fmt.Sprintf("Comments (%d)", len(comments))))
	s.WriteString("\n")

	if len(comments) == 0 {
		s.WriteString(cardMetaStyle.Render("No comments"))
		s.WriteString("\n")
		return s.String()
	}
	for _, c := range comments {
		s.WriteString(cardMetaStyle.Render(formatTimeSince(c.CreatedAt)))
		s.WriteString("  ")
		s.WriteString(fieldValueStyle.Render(c.Body))
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) renderField(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fmt.Sprintf("%s %s\n",
		fieldLabelStyle.Render(label+":"),
		fieldValueStyle.Render(value))
}

func (m Model) renderDetailHelp() string {
	if m.commenting {
		return helpStyle.Render("Enter: Post comment • Esc: Cancel")
	}
	help := []string{
		"Esc: Back",
		"c: Comment",
		"x: Trash",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.commenting {
		return m.handleCommentKeys(msg)
	}

	switch msg.String() {
	case "esc":
		m.viewMode = ViewBoard
	case "c":
		m.commenting = true
		return m, m.commentInput.Focus()
	case "x":
		return m.askTrashLead(m.selectedID, ViewBoard)
	}

	return m, nil
}

func (m Model) handleCommentKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.commenting = false
		m.commentInput.Blur()
		m.commentInput.SetValue("")
		return m, nil
	case "enter":
		body := strings.TrimSpace(m.commentInput.Value())
		m.commenting = false
		m.commentInput.Blur()
		m.commentInput.SetValue("")
		if body == "" {
			return m, nil
		}
		dash := m.dash
		leadID := m.selectedID
		return m, m.run("comment", func(ctx context.Context) error {
			_, err := dash.AddComment(ctx, leadID, body, nil)
			return err
		})
	}

	var cmd tea.Cmd
	m.commentInput, cmd = m.commentInput.Update(msg)
	return m, cmd
}
