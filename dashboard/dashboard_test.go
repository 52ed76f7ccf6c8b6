// ABOUTME: End-to-end tests for the dashboard wiring
// ABOUTME: Covers mount, deferral of stream events during updates, deal capture, trash, membership, and unmount

package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/command"
	"github.com/harperreed/pipedash/config"
	"github.com/harperreed/pipedash/drag"
	"github.com/harperreed/pipedash/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newLead(last string, stage models.Stage) models.Lead {
	return models.Lead{ID: uuid.New(), FirstName: "Test", LastName: last, Stage: stage, CreatedAt: t0, UpdatedAt: t0}
}

func mount(t *testing.T, mb *memBackend, src StreamSource) *Dashboard {
	t.Helper()
	d := New(Options{Config: config.Default(), Backend: mb, Stream: src, Logger: zerolog.Nop()})
	require.NoError(t, d.Mount(context.Background()))
	t.Cleanup(func() { _ = d.Unmount() })
	return d
}

func yes(models.Lead) bool { return true }

func TestMountLoadsEveryKind(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Hopper", models.StageQualified)
	trashed := newLead("Gone", models.StageTrash)
	user := models.User{ID: uuid.New(), Name: "Owner"}
	project := models.Project{ID: uuid.New(), Title: "Launch", LeadIDs: []uuid.UUID{lead.ID}}
	comment := models.Comment{ID: uuid.New(), LeadID: lead.ID, Body: "hi", CreatedAt: t0}
	task := models.Task{ID: uuid.New(), Title: "Call", Status: models.TaskStatusTodo, LeadID: &lead.ID}
	mb.seed(lead, trashed, user, project, comment, task)

	d := mount(t, mb, nil)

	assert.Equal(t, 2, d.Store().Len(models.KindLead))
	assert.Equal(t, 1, d.Store().Len(models.KindUser))
	assert.Equal(t, 1, d.Store().Len(models.KindProject))
	assert.Len(t, d.Comments(lead.ID), 1)
	assert.Equal(t, 1, d.Board().Total())
	assert.Len(t, d.Trash(), 1)

	assert.ErrorIs(t, d.Mount(context.Background()), ErrMounted)
}

func TestStreamEventDeferredUntilUpdateResolves(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Lovelace", models.StageIdentified)
	mb.seed(lead)
	src := chanSource{ch: make(chan models.StreamEvent)}
	d := mount(t, mb, src)

	release := mb.gate(lead.ID)
	company := "Local"
	done := make(chan error, 1)
	go func() {
		_, err := d.UpdateLead(context.Background(), lead.ID, LeadPatch{Company: &company})
		done <- err
	}()
	require.Eventually(t, func() bool { return d.exec.Busy(lead.ID) }, time.Second, time.Millisecond)

	streamed := lead
	streamed.Company = "Stream"
	streamed.UpdatedAt = time.Now().UTC().Add(time.Hour)
	ev := models.StreamEvent{
		ID:      "ev-1",
		Type:    "lead.updated",
		Message: "Lovelace changed",
		Entity:  &models.EntityChange{Kind: models.KindLead, ID: lead.ID, Op: models.OpUpsert, Record: mustRaw(t, streamed)},
	}
	src.ch <- ev

	require.Eventually(t, func() bool { return d.Reconciler().Deferred() == 1 }, time.Second, time.Millisecond)
	got, _ := d.Store().Lead(lead.ID)
	assert.Equal(t, "Local", got.Company)
	assert.Empty(t, d.Notifications())

	release()
	require.NoError(t, <-done)

	require.Eventually(t, func() bool {
		l, _ := d.Store().Lead(lead.ID)
		return l.Company == "Stream" && d.Reconciler().Deferred() == 0
	}, time.Second, time.Millisecond)
	require.Len(t, d.Notifications(), 1)
	assert.Equal(t, "ev-1", d.Notifications()[0].ID)

	src.ch <- ev
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, d.Notifications(), 1)
}

func TestDealCaptureFlow(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Closer", models.StageQualified)
	mb.seed(lead)
	d := mount(t, mb, nil)

	var fired int32
	d.OnDealCapture(func(models.Lead) { atomic.AddInt32(&fired, 1) })

	_, err := d.CreateDeal(context.Background(), lead.ID, DealInput{TotalAmount: 100, Currency: "usd", Type: models.DealConsulting})
	assert.ErrorIs(t, err, ErrDealRequiresClosedLead)

	_, err = d.MoveLead(context.Background(), lead.ID, models.StageClosed)
	require.NoError(t, err)
	_, err = d.MoveLead(context.Background(), lead.ID, models.StageClosed)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	pending := d.PendingCaptures()
	require.Len(t, pending, 1)
	assert.Equal(t, lead.ID, pending[0].ID)

	_, err = d.CaptureDeal(context.Background(), lead.ID, DealInput{TotalAmount: 100, Currency: "dollars", Type: models.DealConsulting})
	assert.ErrorIs(t, err, backend.ErrValidationRejected)
	assert.Contains(t, backend.FieldErrors(err), "deal")
	assert.Len(t, d.PendingCaptures(), 1)

	deal, err := d.CaptureDeal(context.Background(), lead.ID, DealInput{TotalAmount: 250000, Currency: "usd", Type: models.DealOffsite})
	require.NoError(t, err)
	assert.Equal(t, lead.ID, deal.LeadID)
	assert.Equal(t, "USD", deal.Currency)
	assert.Empty(t, d.PendingCaptures())
	assert.Len(t, d.Store().DealsForLead(lead.ID), 1)

	sum := d.Summary()
	assert.Equal(t, int64(250000), sum[models.StageClosed.Index()].DealValue["USD"])
}

func TestSoftDeleteRestoreAndPurge(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Trashy", models.StageClosed)
	deal := models.Deal{ID: uuid.New(), LeadID: lead.ID, TotalAmount: 10, Currency: "EUR", Type: models.DealConsulting}
	comment := models.Comment{ID: uuid.New(), LeadID: lead.ID, Body: "note", CreatedAt: t0}
	mb.seed(lead, deal, comment)
	d := mount(t, mb, nil)

	assert.ErrorIs(t, d.PurgeLead(context.Background(), lead.ID), drag.ErrNotTrashed)

	out, err := d.SoftDeleteLead(context.Background(), lead.ID, func(models.Lead) bool { return false })
	require.NoError(t, err)
	assert.False(t, out.Issued)
	assert.Equal(t, 1, d.Board().Total())

	_, err = d.SoftDeleteLead(context.Background(), lead.ID, yes)
	require.NoError(t, err)
	assert.Zero(t, d.Board().Total())
	require.Len(t, d.Trash(), 1)

	restored, err := d.RestoreLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageIdentified, restored.Stage)
	assert.Empty(t, d.Trash())
	stage, _, ok := d.Board().Locate(lead.ID)
	require.True(t, ok)
	assert.Equal(t, models.StageIdentified, stage)

	_, err = d.SoftDeleteLead(context.Background(), lead.ID, yes)
	require.NoError(t, err)
	require.NoError(t, d.PurgeLead(context.Background(), lead.ID))

	_, ok = d.Store().Lead(lead.ID)
	assert.False(t, ok)
	assert.Empty(t, d.Store().DealsForLead(lead.ID))
	assert.Empty(t, d.Comments(lead.ID))
	assert.False(t, mb.has(models.KindLead, lead.ID))
	assert.False(t, mb.has(models.KindDeal, deal.ID))
	assert.False(t, mb.has(models.KindComment, comment.ID))
}

func TestFailedMoveShowsToastOnce(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Offline", models.StageContacted)
	mb.seed(lead)
	mb.failWith(lead.ID, &backend.Error{Kind: backend.KindNetworkUnavailable, StatusCode: 503, Message: "service unavailable"})
	d := mount(t, mb, nil)

	_, err := d.MoveLead(context.Background(), lead.ID, models.StageQualified)
	assert.ErrorIs(t, err, backend.ErrNetworkUnavailable)

	stage, _, _ := d.Board().Locate(lead.ID)
	assert.Equal(t, models.StageContacted, stage)

	toast, ok := d.TakeToast()
	require.True(t, ok)
	assert.Equal(t, models.SeverityError, toast.Severity)
	assert.Equal(t, models.SourceLocal, toast.Source)
	_, ok = d.TakeToast()
	assert.False(t, ok)

	statuses := d.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, command.StateFailed, statuses[0].State)
	d.Dismiss(statuses[0].CommandID)
	assert.Empty(t, d.Statuses())
}

func TestCommitMembershipKeepsConcurrentChanges(t *testing.T) {
	mb := newMemBackend(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	project := models.Project{ID: uuid.New(), Title: "Launch", LeadIDs: []uuid.UUID{a}}
	mb.seed(project)
	d := mount(t, mb, nil)

	edit, err := d.BeginMembershipEdit(project.ID)
	require.NoError(t, err)

	// Someone else adds b while the form is open.
	mb.patch(models.KindProject, project.ID, map[string]any{"leadIds": []uuid.UUID{a, b}})
	require.NoError(t, d.Refresh(context.Background(), models.KindProject))

	updated, err := d.CommitMembership(context.Background(), edit, []uuid.UUID{a, c})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b, c}, updated.LeadIDs)

	edit, err = d.BeginMembershipEdit(project.ID)
	require.NoError(t, err)
	updated, err = d.CommitMembership(context.Background(), edit, []uuid.UUID{b, c})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{b, c}, updated.LeadIDs)

	same, err := d.CommitMembership(context.Background(), MembershipEdit{ProjectID: project.ID, Snapshot: []uuid.UUID{b, c}}, []uuid.UUID{c, b})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{b, c}, same.LeadIDs)
}

func TestUnmountIgnoresLateResolution(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Late", models.StageNegotiation)
	mb.seed(lead)
	d := New(Options{Config: config.Default(), Backend: mb, Logger: zerolog.Nop()})
	require.NoError(t, d.Mount(context.Background()))

	release := mb.gate(lead.ID)
	done := make(chan error, 1)
	go func() {
		_, err := d.MoveLead(context.Background(), lead.ID, models.StageClosed)
		done <- err
	}()
	require.Eventually(t, func() bool { return d.exec.Busy(lead.ID) }, time.Second, time.Millisecond)

	require.NoError(t, d.Unmount())
	release()
	assert.ErrorIs(t, <-done, command.ErrClosed)

	got, _ := d.Store().Lead(lead.ID)
	assert.True(t, got.UpdatedAt.Equal(t0), "server record must not be applied after unmount")
	assert.Empty(t, d.PendingCaptures())
	assert.ErrorIs(t, d.Refresh(context.Background()), ErrUnmounted)
}

func TestCreateLeadValidationAndSuccess(t *testing.T) {
	mb := newMemBackend(t)
	d := mount(t, mb, nil)

	_, err := d.CreateLead(context.Background(), LeadInput{Email: "nope"})
	require.ErrorIs(t, err, backend.ErrValidationRejected)
	fields := backend.FieldErrors(err)
	assert.Contains(t, fields, "lastName")
	assert.Contains(t, fields, "email")

	_, err = d.CreateLead(context.Background(), LeadInput{LastName: "X", Stage: models.StageTrash})
	assert.ErrorIs(t, err, backend.ErrValidationRejected)

	lead, err := d.CreateLead(context.Background(), LeadInput{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.StageIdentified, lead.Stage)
	assert.True(t, mb.has(models.KindLead, lead.ID))
	assert.Equal(t, 1, d.Store().Len(models.KindLead))
	assert.Equal(t, 1, d.Board().Total())
}

func TestRefreshKeepsRecordsWithCommandsInFlight(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Busy", models.StageIdentified)
	other := newLead("Idle", models.StageIdentified)
	mb.seed(lead, other)
	d := mount(t, mb, nil)

	release := mb.gate(lead.ID)
	company := "Optimistic"
	done := make(chan error, 1)
	go func() {
		_, err := d.UpdateLead(context.Background(), lead.ID, LeadPatch{Company: &company})
		done <- err
	}()
	require.Eventually(t, func() bool { return d.exec.Busy(lead.ID) }, time.Second, time.Millisecond)

	mb.patch(models.KindLead, other.ID, map[string]any{"company": "Refetched"})
	require.NoError(t, d.Refresh(context.Background(), models.KindLead))

	got, _ := d.Store().Lead(lead.ID)
	assert.Equal(t, "Optimistic", got.Company)
	o, _ := d.Store().Lead(other.ID)
	assert.Equal(t, "Refetched", o.Company)

	release()
	require.NoError(t, <-done)
}

func TestCommentsAndTasks(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Notes", models.StageContacted)
	mb.seed(lead)
	d := mount(t, mb, nil)

	_, err := d.AddComment(context.Background(), lead.ID, "  ", nil)
	assert.ErrorIs(t, err, backend.ErrValidationRejected)

	first, err := d.AddComment(context.Background(), lead.ID, "first", nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := d.AddComment(context.Background(), lead.ID, "second", nil)
	require.NoError(t, err)

	comments := d.Comments(lead.ID)
	require.Len(t, comments, 2)
	assert.Equal(t, second.ID, comments[0].ID)
	assert.Equal(t, first.ID, comments[1].ID)

	require.NoError(t, d.DeleteComment(context.Background(), first.ID))
	assert.Len(t, d.Comments(lead.ID), 1)

	task, err := d.CreateTask(context.Background(), "Send proposal", &lead.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, task.Status)

	_, err = d.TransitionTask(context.Background(), task.ID, "exploded")
	assert.ErrorIs(t, err, backend.ErrValidationRejected)

	done, err := d.TransitionTask(context.Background(), task.ID, models.TaskStatusDone)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, done.Status)
	stored, _ := d.Store().Task(task.ID)
	assert.Equal(t, models.TaskStatusDone, stored.Status)
}

func TestCommentCountFollowsComments(t *testing.T) {
	mb := newMemBackend(t)
	lead := newLead("Counted", models.StageQualified)
	mb.seed(lead)
	d := mount(t, mb, nil)

	c, err := d.AddComment(context.Background(), lead.ID, "called back", nil)
	require.NoError(t, err)
	got, _ := d.Store().Lead(lead.ID)
	assert.Equal(t, 1, got.CommentCount)

	_, err = d.AddComment(context.Background(), lead.ID, "sent deck", nil)
	require.NoError(t, err)
	got, _ = d.Store().Lead(lead.ID)
	assert.Equal(t, 2, got.CommentCount)

	require.NoError(t, d.DeleteComment(context.Background(), c.ID))
	got, _ = d.Store().Lead(lead.ID)
	assert.Equal(t, 1, got.CommentCount)
	assert.Len(t, d.Comments(lead.ID), got.CommentCount)
}
