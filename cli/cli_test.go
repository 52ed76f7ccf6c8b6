// ABOUTME: Tests for the pipedash CLI commands
// ABOUTME: Runs commands against a mounted dashboard and checks printed output and resulting state
package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/backend/backendtest"
	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/models"
)

type cliFixture struct {
	mem     *backendtest.Memory
	dash    *dashboard.Dashboard
	buf     *bytes.Buffer
	ada     models.Lead
	alan    models.Lead
	project models.Project
}

func setupTestCLI(t *testing.T) *cliFixture {
	t.Helper()
	now := time.Now().UTC().Add(-time.Hour)
	f := &cliFixture{
		mem: backendtest.NewMemory(),
		buf: &bytes.Buffer{},
		ada: models.Lead{
			ID: uuid.New(), FirstName: "Ada", LastName: "Lovelace", Company: "Analytical",
			Stage: models.StageIdentified, CreatedAt: now, UpdatedAt: now,
		},
		alan: models.Lead{
			ID: uuid.New(), FirstName: "Alan", LastName: "Turing", Email: "alan@example.com",
			Stage: models.StageNegotiation, CreatedAt: now, UpdatedAt: now,
		},
	}
	f.project = models.Project{ID: uuid.New(), Title: "Bletchley", LeadIDs: []uuid.UUID{f.alan.ID}, CreatedAt: now, UpdatedAt: now}
	f.mem.Seed(f.ada, f.alan, f.project)

	f.dash = dashboard.New(dashboard.Options{Backend: f.mem, Logger: zerolog.Nop()})
	require.NoError(t, f.dash.Mount(context.Background()))
	t.Cleanup(func() { _ = f.dash.Unmount() })

	prevOut, prevIn, prevInteractive := out, in, interactive
	out = f.buf
	t.Cleanup(func() { out, in, interactive = prevOut, prevIn, prevInteractive })
	return f
}

func (f *cliFixture) lead(t *testing.T, id uuid.UUID) models.Lead {
	t.Helper()
	l, ok := f.dash.Store().Lead(id)
	require.True(t, ok)
	return l
}

func TestListLeadsCommand(t *testing.T) {
	f := setupTestCLI(t)
	ctx := context.Background()

	require.NoError(t, ListLeadsCommand(ctx, f.dash, nil))
	output := f.buf.String()
	assert.Contains(t, output, "Ada Lovelace")
	assert.Contains(t, output, "Alan Turing")
	assert.Less(t, strings.Index(output, "Identified"), strings.Index(output, "Negotiation"))

	f.buf.Reset()
	require.NoError(t, ListLeadsCommand(ctx, f.dash, []string{"--query", "alan@"}))
	assert.NotContains(t, f.buf.String(), "Ada Lovelace")
	assert.Contains(t, f.buf.String(), "Alan Turing")

	f.buf.Reset()
	require.NoError(t, ListLeadsCommand(ctx, f.dash, []string{"--project", f.project.ID.String()}))
	assert.NotContains(t, f.buf.String(), "Ada Lovelace")

	f.buf.Reset()
	require.NoError(t, ListLeadsCommand(ctx, f.dash, []string{"--trash"}))
	assert.Contains(t, f.buf.String(), "No leads found")
}

func TestAddLeadCommandValidation(t *testing.T) {
	f := setupTestCLI(t)
	ctx := context.Background()

	err := AddLeadCommand(ctx, f.dash, []string{"--email", "not-an-email"})
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrValidationRejected)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "lastName")

	require.NoError(t, AddLeadCommand(ctx, f.dash, []string{"--first", "Grace", "--last", "Hopper", "--stage", "contacted"}))
	assert.Contains(t, f.buf.String(), "✓ Lead created: Grace Hopper")
	assert.Len(t, f.dash.Board().Column(models.StageContacted), 1)
}

func TestEditLeadCommandSendsOnlyGivenFlags(t *testing.T) {
	f := setupTestCLI(t)

	require.NoError(t, EditLeadCommand(context.Background(), f.dash, []string{"--company", "Engines Ltd", f.ada.ID.String()}))
	l := f.lead(t, f.ada.ID)
	assert.Equal(t, "Engines Ltd", l.Company)
	assert.Equal(t, "Ada", l.FirstName)
}

func TestMoveLeadCommandToClosedAsksForDeal(t *testing.T) {
	f := setupTestCLI(t)
	ctx := context.Background()

	require.NoError(t, MoveLeadCommand(ctx, f.dash, []string{f.alan.ID.String(), "closed"}))
	assert.Contains(t, f.buf.String(), "✓ Moved Alan Turing to Closed")
	assert.Contains(t, f.buf.String(), "Record the deal")
	assert.Equal(t, models.StageClosed, f.lead(t, f.alan.ID).Stage)

	f.buf.Reset()
	require.NoError(t, AddDealCommand(ctx, f.dash, []string{"--lead", f.alan.ID.String(), "--amount", "250000", "--currency", "eur", "--type", "offsite"}))
	assert.Contains(t, f.buf.String(), "2500.00 EUR")
	assert.Empty(t, f.dash.PendingCaptures())

	f.buf.Reset()
	require.NoError(t, SummaryCommand(ctx, f.dash, nil))
	assert.Contains(t, f.buf.String(), "2500.00 EUR")
}

func TestMoveLeadCommandRejectsTrashAndSameStage(t *testing.T) {
	f := setupTestCLI(t)
	ctx := context.Background()

	err := MoveLeadCommand(ctx, f.dash, []string{f.ada.ID.String(), "trash"})
	require.Error(t, err)

	require.NoError(t, MoveLeadCommand(ctx, f.dash, []string{f.ada.ID.String(), "Identified"}))
	assert.Contains(t, f.buf.String(), "already in Identified")
}

func TestAddDealRequiresClosedLead(t *testing.T) {
	f := setupTestCLI(t)

	err := AddDealCommand(context.Background(), f.dash, []string{"--lead", f.ada.ID.String(), "--amount", "100"})
	assert.ErrorIs(t, err, dashboard.ErrDealRequiresClosedLead)
}

func TestTrashLeadCommandConfirmation(t *testing.T) {
	f := setupTestCLI(t)
	ctx := context.Background()

	// No terminal and no --yes: refuse.
	interactive = func() bool { return false }
	err := TrashLeadCommand(ctx, f.dash, []string{f.ada.ID.String()})
	require.Error(t, err)
	assert.Equal(t, models.StageIdentified, f.lead(t, f.ada.ID).Stage)

	// Terminal answering no.
	interactive = func() bool { return true }
	in = strings.NewReader("n\n")
	require.NoError(t, TrashLeadCommand(ctx, f.dash, []string{f.ada.ID.String()}))
	assert.Contains(t, f.buf.String(), "Cancelled")
	assert.Equal(t, models.StageIdentified, f.lead(t, f.ada.ID).Stage)

	// Terminal answering yes.
	in = strings.NewReader("y\n")
	require.NoError(t, TrashLeadCommand(ctx, f.dash, []string{f.ada.ID.String()}))
	assert.Equal(t, models.StageTrash, f.lead(t, f.ada.ID).Stage)

	require.NoError(t, RestoreLeadCommand(ctx, f.dash, []string{f.ada.ID.String()}))
	assert.Equal(t, models.StageIdentified, f.lead(t, f.ada.ID).Stage)
}

func TestPurgeLeadCommand(t *testing.T) {
	f := setupTestCLI(t)
	ctx := context.Background()

	require.NoError(t, TrashLeadCommand(ctx, f.dash, []string{"--yes", f.ada.ID.String()}))
	require.NoError(t, CommentCommand(ctx, f.dash, []string{f.ada.ID.String(), "left", "a", "voicemail"}))
	require.Len(t, f.dash.Comments(f.ada.ID), 1)
	commentID := f.dash.Comments(f.ada.ID)[0].ID

	require.NoError(t, PurgeLeadCommand(ctx, f.dash, []string{"--yes", f.ada.ID.String()}))
	_, ok := f.dash.Store().Lead(f.ada.ID)
	assert.False(t, ok)
	assert.False(t, f.mem.Has(models.KindLead, f.ada.ID))
	assert.False(t, f.mem.Has(models.KindComment, commentID))
}

func TestTaskCommands(t *testing.T) {
	f := setupTestCLI(t)
	ctx := context.Background()

	require.NoError(t, TaskListCommand(ctx, f.dash, nil))
	assert.Contains(t, f.buf.String(), "No tasks found")

	f.buf.Reset()
	require.NoError(t, AddTaskCommand(ctx, f.dash, []string{"--title", "Send proposal", "--lead", f.alan.ID.String(), "--due", "2000-01-01"}))
	tasks := f.dash.Store().TasksForLead(f.alan.ID)
	require.Len(t, tasks, 1)

	f.buf.Reset()
	require.NoError(t, TaskListCommand(ctx, f.dash, []string{"--overdue-only"}))
	assert.Contains(t, f.buf.String(), "🔴 Send proposal")
	assert.Contains(t, f.buf.String(), "Alan Turing")

	f.buf.Reset()
	require.NoError(t, TaskStatusCommand(ctx, f.dash, []string{tasks[0].ID.String(), "done"}))
	assert.Contains(t, f.buf.String(), "is now done")

	f.buf.Reset()
	require.NoError(t, TaskListCommand(ctx, f.dash, nil))
	assert.Contains(t, f.buf.String(), "No tasks found")

	err := TaskStatusCommand(ctx, f.dash, []string{tasks[0].ID.String(), "someday"})
	assert.ErrorIs(t, err, backend.ErrValidationRejected)
}

func TestProjectMembersCommand(t *testing.T) {
	f := setupTestCLI(t)

	args := []string{"--add", f.ada.ID.String(), "--remove", f.alan.ID.String(), f.project.ID.String()}
	require.NoError(t, ProjectMembersCommand(context.Background(), f.dash, args))
	assert.Contains(t, f.buf.String(), "Bletchley now has 1 leads")

	p, ok := f.dash.Store().Project(f.project.ID)
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{f.ada.ID}, p.LeadIDs)
}

// syncBuffer lets the watch goroutine write while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchCommandPrintsNotifications(t *testing.T) {
	f := setupTestCLI(t)
	sb := &syncBuffer{}
	out = sb

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchCommand(ctx, f.dash, []string{"--json"}) }()

	require.Eventually(t, func() bool {
		f.dash.Reconciler().Notify(models.Notification{Type: "lead.moved", Message: "Ada moved"})
		return strings.Contains(sb.String(), `"message":"Ada moved"`)
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
