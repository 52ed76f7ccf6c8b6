// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Kanban board over the pipeline projection with drag, trash, search, and toasts
package tui

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/command"
	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/pipeline"
	"github.com/harperreed/pipedash/store"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewBoard ViewMode = iota
	ViewDetail
	ViewCapture
	ViewTrash
	ViewActivity
	ViewSummary
	ViewConfirm
)

const toastTTL = 4 * time.Second

type confirmAction int

const (
	confirmTrash confirmAction = iota
	confirmPurge
)

// refreshMsg asks the model to re-read the board after a store or projection change.
type refreshMsg struct{}

// notificationMsg is sent when the reconciler queues a notification.
type notificationMsg struct{}

type toastExpiredMsg struct{ id string }

// opDoneMsg reports a finished command.
type opDoneMsg struct {
	what string
	err  error
}

// Model is the main bubbletea model
type Model struct {
	dash    *dashboard.Dashboard
	ctx     context.Context
	updates chan tea.Msg
	unsubs  []func()

	viewMode ViewMode
	prevMode ViewMode

	// Board state
	board    pipeline.Board
	trash    []models.Lead
	column   int
	row      int
	dragging bool
	dragFrom int

	// Trash view state
	trashRow int

	// Search
	search    textinput.Model
	searching bool

	// Confirmation state
	confirm     confirmAction
	confirmLead models.Lead

	// Detail view state
	selectedID   uuid.UUID
	commentInput textinput.Model
	commenting   bool

	// Deal capture form state
	captureLead models.Lead
	formInputs  []textinput.Model
	focusIndex  int

	// Activity view state
	selectedStatus int

	// UI state
	spinner spinner.Model
	pending int
	toast   *models.Notification
	width   int
	height  int
	err     error
}

// NewModel creates a new TUI model over a mounted dashboard.
func NewModel(ctx context.Context, dash *dashboard.Dashboard) Model {
	search := textinput.New()
	search.Placeholder = "Search leads"
	search.CharLimit = 100

	comment := textinput.New()
	comment.Placeholder = "Add a comment"
	comment.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	m := Model{
		dash:         dash,
		ctx:          ctx,
		updates:      make(chan tea.Msg, 32),
		viewMode:     ViewBoard,
		search:       search,
		commentInput: comment,
		spinner:      sp,
		width:        80,
		height:       24,
	}

	// Sends never block; a dropped refresh is covered by the next one.
	send := func(msg tea.Msg) {
		select {
		case m.updates <- msg:
		default:
		}
	}
	m.unsubs = append(m.unsubs,
		dash.Projection().Subscribe(func(pipeline.Board) { send(refreshMsg{}) }),
		dash.Store().Subscribe(func(store.Change) { send(refreshMsg{}) }),
		dash.Reconciler().Subscribe(func(models.Notification) { send(notificationMsg{}) }),
	)
	dash.OnDealCapture(func(models.Lead) { send(refreshMsg{}) })

	m.reload()
	return m
}

// Close drops the model's subscriptions.
func (m Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.spinner.Tick)
}

func (m Model) listen() tea.Cmd {
	ch := m.updates
	return func() tea.Msg { return <-ch }
}

// run executes fn off the update loop and reports back with opDoneMsg.
func (m *Model) run(what string, fn func(ctx context.Context) error) tea.Cmd {
	m.pending++
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{what: what, err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case refreshMsg:
		m.reload()
		m.checkCaptures()
		return m, m.listen()
	case notificationMsg:
		cmd := m.takeToast()
		return m, tea.Batch(m.listen(), cmd)
	case toastExpiredMsg:
		if m.toast != nil && m.toast.ID == msg.id {
			m.toast = nil
		}
		return m, nil
	case opDoneMsg:
		if m.pending > 0 {
			m.pending--
		}
		m.err = localError(msg.err)
		m.reload()
		m.checkCaptures()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewBoard:
		return m.renderBoardView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewCapture:
		return m.renderCaptureView()
	case ViewTrash:
		return m.renderTrashView()
	case ViewActivity:
		return m.renderActivityView()
	case ViewSummary:
		return m.renderSummaryView()
	case ViewConfirm:
		return m.renderConfirmView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Text inputs own every key except ctrl+c.
	typing := m.searching || m.commenting || m.viewMode == ViewCapture
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		if !typing && m.viewMode != ViewConfirm {
			return m, tea.Quit
		}
	}

	// Delegate to view-specific handlers
	switch m.viewMode {
	case ViewBoard:
		return m.handleBoardKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewCapture:
		return m.handleCaptureKeys(msg)
	case ViewTrash:
		return m.handleTrashKeys(msg)
	case ViewActivity:
		return m.handleActivityKeys(msg)
	case ViewSummary:
		return m.handleSummaryKeys(msg)
	case ViewConfirm:
		return m.handleConfirmKeys(msg)
	}

	return m, nil
}

// reload copies the projection's current output and clamps cursors.
func (m *Model) reload() {
	m.board = m.dash.Board()
	m.trash = m.dash.Trash()

	if m.column >= len(m.board.Columns) {
		m.column = len(m.board.Columns) - 1
	}
	if m.column < 0 {
		m.column = 0
	}
	if n := m.columnLen(m.column); m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
	if m.trashRow >= len(m.trash) {
		m.trashRow = len(m.trash) - 1
	}
	if m.trashRow < 0 {
		m.trashRow = 0
	}
}

// checkCaptures opens the deal form for the oldest pending capture.
func (m *Model) checkCaptures() {
	if m.viewMode == ViewCapture || m.viewMode == ViewConfirm {
		return
	}
	pending := m.dash.PendingCaptures()
	if len(pending) == 0 {
		return
	}
	m.prevMode = m.viewMode
	m.captureLead = pending[0]
	m.initCaptureForm()
	m.viewMode = ViewCapture
}

func (m *Model) takeToast() tea.Cmd {
	n, ok := m.dash.TakeToast()
	if !ok {
		return nil
	}
	m.toast = &n
	id := n.ID
	return tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
}

// localError keeps errors the toast line does not already report.
func localError(err error) error {
	if err == nil {
		return nil
	}
	var be *backend.Error
	if errors.As(err, &be) && be.Kind != backend.KindValidationRejected {
		return nil
	}
	return err
}

func (m Model) columnLen(i int) int {
	if i < 0 || i >= len(m.board.Columns) {
		return 0
	}
	return len(m.board.Columns[i].Leads)
}

// selectedLead is the card under the board cursor.
func (m Model) selectedLead() (models.Lead, bool) {
	if m.column < 0 || m.column >= len(m.board.Columns) {
		return models.Lead{}, false
	}
	leads := m.board.Columns[m.column].Leads
	if m.row < 0 || m.row >= len(leads) {
		return models.Lead{}, false
	}
	return leads[m.row], true
}

// busyLeads are the ids with a pending command.
func (m Model) busyLeads() map[uuid.UUID]bool {
	out := map[uuid.UUID]bool{}
	for _, st := range m.dash.Statuses() {
		if st.State == command.StatePending {
			out[st.TargetID] = true
		}
	}
	return out
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	errorLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	toastStyles = map[models.Severity]lipgloss.Style{
		models.SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9")).Padding(0, 1),
		models.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Padding(0, 1),
		models.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("25")).Padding(0, 1),
	}
)

// renderStatusLine shows the spinner, toast, and last local error.
func (m Model) renderStatusLine() string {
	var parts []string
	if m.pending > 0 || len(m.busyLeads()) > 0 {
		parts = append(parts, m.spinner.View()+" saving")
	}
	if m.toast != nil {
		style, ok := toastStyles[m.toast.Severity]
		if !ok {
			style = toastStyles[models.SeverityInfo]
		}
		parts = append(parts, style.Render(m.toast.Message))
	}
	if m.err != nil {
		parts = append(parts, errorLineStyle.Render("Error: "+errorText(m.err)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, joinSpaced(parts)...)
}

func joinSpaced(parts []string) []string {
	out := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			out = append(out, "  ")
		}
		out = append(out, p)
	}
	return out
}

// errorText prefers field-level messages when the error carries them.
func errorText(err error) string {
	fields := backend.FieldErrors(err)
	if len(fields) == 0 {
		return err.Error()
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+fields[name])
	}
	return strings.Join(parts, "; ")
}
