// ABOUTME: Deal capture form opened after a lead moves to Closed
// ABOUTME: Collects amount, currency, and type, then records the deal or dismisses the prompt
package tui

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/models"
)

const (
	fieldAmount = iota
	fieldCurrency
	fieldType
)

var dealTypes = []models.DealType{models.DealConsulting, models.DealOnlineTraining, models.DealOffsite}

func (m Model) renderCaptureView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("NEW DEAL"))
	s.WriteString("\n")
	s.WriteString(fieldValueStyle.Render(fmt.Sprintf("%s closed. Record the deal?", m.captureLead.FullName())))
	s.WriteString("\n\n")

	// Form fields
	for i, input := range m.formInputs {
		if i == m.focusIndex {
			s.WriteString("> ")
		} else {
			s.WriteString("  ")
		}
		s.WriteString(input.View())
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.renderStatusLine())
	s.WriteString("\n")

	// Help
	s.WriteString(m.renderCaptureHelp())

	return s.String()
}

func (m Model) renderCaptureHelp() string {
	help := []string{
		"Tab: Next field",
		"Enter: Save",
		"Esc: Skip",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleCaptureKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.dash.DismissCapture(m.captureLead.ID)
		m.viewMode = m.prevMode
		m.err = nil
		m.checkCaptures()
		return m, nil
	case "tab", "down":
		m.focusIndex = (m.focusIndex + 1) % len(m.formInputs)
		m.updateFormFocus()
		return m, nil
	case "shift+tab", "up":
		m.focusIndex = (m.focusIndex + len(m.formInputs) - 1) % len(m.formInputs)
		m.updateFormFocus()
		return m, nil
	case "enter":
		in, err := m.dealInput()
		if err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.viewMode = m.prevMode
		dash := m.dash
		leadID := m.captureLead.ID
		return m, m.run("deal", func(ctx context.Context) error {
			_, err := dash.CaptureDeal(ctx, leadID, in)
			return err
		})
	}

	// Update current input
	var cmd tea.Cmd
	m.formInputs[m.focusIndex], cmd = m.formInputs[m.focusIndex].Update(msg)
	return m, cmd
}

func (m *Model) initCaptureForm() {
	inputs := make([]textinput.Model, 3)

	inputs[fieldAmount] = textinput.New()
	inputs[fieldAmount].Placeholder = "Total amount (e.g. 12500.00)"
	inputs[fieldAmount].CharLimit = 20

	inputs[fieldCurrency] = textinput.New()
	inputs[fieldCurrency].Placeholder = "Currency"
	inputs[fieldCurrency].CharLimit = 3
	inputs[fieldCurrency].SetValue("USD")

	inputs[fieldType] = textinput.New()
	inputs[fieldType].Placeholder = "Type: Consulting, OnlineTraining, Offsite"
	inputs[fieldType].CharLimit = 20
	inputs[fieldType].SetValue(string(models.DealConsulting))

	m.formInputs = inputs
	m.focusIndex = 0
	m.updateFormFocus()
}

func (m *Model) updateFormFocus() {
	for i := range m.formInputs {
		if i == m.focusIndex {
			m.formInputs[i].Focus()
		} else {
			m.formInputs[i].Blur()
		}
	}
}

// dealInput reads the form. Bad values come back as field-level validation errors.
func (m Model) dealInput() (dashboard.DealInput, error) {
	fields := map[string]string{}

	cents, err := parseAmount(m.formInputs[fieldAmount].Value())
	if err != nil {
		fields["totalAmount"] = err.Error()
	}

	var dealType models.DealType
	raw := strings.TrimSpace(m.formInputs[fieldType].Value())
	for _, t := range dealTypes {
		if strings.EqualFold(string(t), raw) {
			dealType = t
		}
	}
	if dealType == "" {
		fields["type"] = fmt.Sprintf("unknown deal type %q", raw)
	}

	if len(fields) > 0 {
		return dashboard.DealInput{}, &backend.Error{
			Kind:    backend.KindValidationRejected,
			Message: "check the deal form",
			Fields:  fields,
		}
	}
	return dashboard.DealInput{
		TotalAmount: cents,
		Currency:    m.formInputs[fieldCurrency].Value(),
		Type:        dealType,
		ProjectID:   m.captureLead.ProjectID,
	}, nil
}

// parseAmount converts a decimal amount into cents.
func parseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount cannot be negative")
	}
	return int64(math.Round(v * 100)), nil
}
