// ABOUTME: Tests for the stream reconciler
// ABOUTME: Covers dedup, queue cap and order, entity application, deferral, and the toast pointer

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type busySet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]bool
}

func (b *busySet) Busy(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ids[id]
}

func (b *busySet) set(id uuid.UUID, busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids[id] = busy
}

type memJournal struct {
	mu    sync.Mutex
	seen  map[string]bool
	shown string
}

func (j *memJournal) Seen(id string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seen[id], nil
}

func (j *memJournal) Mark(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seen[id] = true
	return nil
}

func (j *memJournal) LastShown() (string, error) { return j.shown, nil }

func (j *memJournal) SetLastShown(id string) error {
	j.shown = id
	return nil
}

func start(t *testing.T, opts Options) *Reconciler {
	t.Helper()
	opts.Logger = zerolog.Nop()
	r := NewReconciler(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func push(t *testing.T, r *Reconciler, ev models.StreamEvent) {
	t.Helper()
	require.NoError(t, r.Push(context.Background(), ev))
}

func leadEvent(t *testing.T, id string, lead models.Lead) models.StreamEvent {
	t.Helper()
	raw, err := json.Marshal(lead)
	require.NoError(t, err)
	return models.StreamEvent{
		ID:      id,
		Type:    "lead.updated",
		Message: "lead changed",
		Entity:  &models.EntityChange{Kind: models.KindLead, ID: lead.ID, Op: models.OpUpsert, Record: raw},
	}
}

func TestDuplicateEventQueuedOnce(t *testing.T) {
	r := start(t, Options{Store: store.New()})

	push(t, r, models.StreamEvent{ID: "e1", Type: "lead.updated"})
	push(t, r, models.StreamEvent{ID: "e1", Type: "lead.updated"})
	push(t, r, models.StreamEvent{ID: "e2", Type: "lead.updated"})
	push(t, r, models.StreamEvent{ID: "e1", Type: "lead.updated"})

	require.Eventually(t, func() bool { return len(r.Queue()) == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	q := r.Queue()
	require.Len(t, q, 2)
	assert.Equal(t, "e2", q[0].ID)
	assert.Equal(t, "e1", q[1].ID)
}

func TestJournalSuppressesReplayedEvents(t *testing.T) {
	j := &memJournal{seen: map[string]bool{"old": true}}
	r := start(t, Options{Store: store.New(), Journal: j})

	push(t, r, models.StreamEvent{ID: "old"})
	push(t, r, models.StreamEvent{ID: "new"})
	require.Eventually(t, func() bool { return len(r.Queue()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "new", r.Queue()[0].ID)
	seen, _ := j.Seen("new")
	assert.True(t, seen)
}

func TestQueueIsCappedMostRecentFirst(t *testing.T) {
	r := NewReconciler(Options{QueueCap: 3, Logger: zerolog.Nop()})
	for i := 0; i < 5; i++ {
		r.Notify(models.Notification{ID: fmt.Sprintf("n%d", i), Message: "hi"})
	}
	q := r.Queue()
	require.Len(t, q, 3)
	assert.Equal(t, "n4", q[0].ID)
	assert.Equal(t, "n2", q[2].ID)
	assert.Equal(t, models.SourceLocal, q[0].Source)
	assert.Equal(t, models.SeverityInfo, q[0].Severity)
}

func TestNotifyAssignsIDs(t *testing.T) {
	r := NewReconciler(Options{Logger: zerolog.Nop()})
	r.Notify(models.Notification{Message: "a"})
	r.Notify(models.Notification{Message: "b"})
	q := r.Queue()
	require.Len(t, q, 2)
	assert.NotEmpty(t, q[0].ID)
	assert.NotEqual(t, q[0].ID, q[1].ID)
	assert.False(t, q[0].CreatedAt.IsZero())
}

func TestEntityUpsertAndRemove(t *testing.T) {
	s := store.New()
	r := start(t, Options{Store: s})

	lead := models.Lead{ID: uuid.New(), LastName: "Streamed", Stage: models.StageContacted, UpdatedAt: time.Now().UTC()}
	push(t, r, leadEvent(t, "u1", lead))
	require.Eventually(t, func() bool { _, ok := s.Lead(lead.ID); return ok }, time.Second, time.Millisecond)

	q := r.Queue()
	require.Len(t, q, 1)
	require.NotNil(t, q[0].EntityID)
	assert.Equal(t, lead.ID, *q[0].EntityID)

	push(t, r, models.StreamEvent{ID: "r1", Type: "lead.deleted", Entity: &models.EntityChange{Kind: models.KindLead, ID: lead.ID, Op: models.OpRemove}})
	require.Eventually(t, func() bool { _, ok := s.Lead(lead.ID); return !ok }, time.Second, time.Millisecond)
}

func TestStaleUpsertDoesNotClobberNewerLocal(t *testing.T) {
	s := store.New()
	now := time.Now().UTC()
	local := models.Lead{ID: uuid.New(), LastName: "Local", UpdatedAt: now}
	s.Upsert(local)
	r := start(t, Options{Store: s})

	stale := local
	stale.LastName = "Stale"
	stale.UpdatedAt = now.Add(-time.Minute)
	push(t, r, leadEvent(t, "s1", stale))

	require.Eventually(t, func() bool { return len(r.Queue()) == 1 }, time.Second, time.Millisecond)
	got, _ := s.Lead(local.ID)
	assert.Equal(t, "Local", got.LastName)
}

func TestEventsForBusyEntityAreDeferred(t *testing.T) {
	s := store.New()
	busy := &busySet{ids: map[uuid.UUID]bool{}}
	r := start(t, Options{Store: s, Busy: busy})

	lead := models.Lead{ID: uuid.New(), LastName: "Before", UpdatedAt: time.Now().UTC()}
	s.Upsert(lead)
	busy.set(lead.ID, true)

	next := lead
	next.LastName = "After"
	next.UpdatedAt = lead.UpdatedAt.Add(time.Second)
	push(t, r, leadEvent(t, "d1", next))
	push(t, r, leadEvent(t, "d1", next))

	require.Eventually(t, func() bool { return r.Deferred() == 1 }, time.Second, time.Millisecond)
	got, _ := s.Lead(lead.ID)
	assert.Equal(t, "Before", got.LastName)
	assert.Empty(t, r.Queue())

	busy.set(lead.ID, false)
	r.Resolved(lead.ID)

	require.Eventually(t, func() bool { return r.Deferred() == 0 && len(r.Queue()) == 1 }, time.Second, time.Millisecond)
	got, _ = s.Lead(lead.ID)
	assert.Equal(t, "After", got.LastName)
}

func TestResolvedWhileStillBusyKeepsDeferring(t *testing.T) {
	s := store.New()
	busy := &busySet{ids: map[uuid.UUID]bool{}}
	r := start(t, Options{Store: s, Busy: busy})

	id := uuid.New()
	busy.set(id, true)
	push(t, r, leadEvent(t, "q1", models.Lead{ID: id, LastName: "X"}))
	require.Eventually(t, func() bool { return r.Deferred() == 1 }, time.Second, time.Millisecond)

	r.Resolved(id)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, r.Deferred())

	busy.set(id, false)
	r.Resolved(id)
	require.Eventually(t, func() bool { return r.Deferred() == 0 }, time.Second, time.Millisecond)
}

func TestTakeToastIsOneShot(t *testing.T) {
	j := &memJournal{seen: map[string]bool{}}
	r := NewReconciler(Options{Journal: j, Logger: zerolog.Nop()})

	_, ok := r.TakeToast()
	assert.False(t, ok)

	r.Notify(models.Notification{ID: "t1", Message: "first"})
	n, ok := r.TakeToast()
	require.True(t, ok)
	assert.Equal(t, "t1", n.ID)
	_, ok = r.TakeToast()
	assert.False(t, ok)
	assert.Equal(t, "t1", j.shown)

	restarted := NewReconciler(Options{Journal: j, Logger: zerolog.Nop()})
	restarted.Notify(models.Notification{ID: "t1", Message: "first"})
	_, ok = restarted.TakeToast()
	assert.False(t, ok)
}

func TestPushRespectsContext(t *testing.T) {
	r := NewReconciler(Options{Buffer: 1, Logger: zerolog.Nop()})
	require.NoError(t, r.Push(context.Background(), models.StreamEvent{ID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Push(ctx, models.StreamEvent{ID: "b"}), context.DeadlineExceeded)
}

func TestSubscribeReceivesNotifications(t *testing.T) {
	r := NewReconciler(Options{Logger: zerolog.Nop()})
	var got []string
	unsub := r.Subscribe(func(n models.Notification) { got = append(got, n.Message) })
	r.Notify(models.Notification{Message: "one"})
	unsub()
	r.Notify(models.Notification{Message: "two"})
	assert.Equal(t, []string{"one"}, got)
}

func TestReplayAppliesInOrderAndDedups(t *testing.T) {
	s := store.New()
	r := NewReconciler(Options{Store: s, Logger: zerolog.Nop()})
	lead := models.Lead{ID: uuid.New(), FirstName: "Grace", LastName: "Hopper", Stage: models.StageIdentified}

	r.Replay([]models.StreamEvent{
		leadEvent(t, "e1", lead),
		{ID: "e1", Type: "lead.updated"},
		{ID: "e2", Type: "lead.removed", Entity: &models.EntityChange{Kind: models.KindLead, ID: lead.ID, Op: models.OpRemove}},
	})

	q := r.Queue()
	require.Len(t, q, 2)
	assert.Equal(t, "e2", q[0].ID)
	assert.Equal(t, "e1", q[1].ID)
	_, ok := s.Lead(lead.ID)
	assert.False(t, ok)
}

func TestDeferredEventsApplyBeforeNewerEventForSameEntity(t *testing.T) {
	s := store.New()
	busy := &busySet{ids: map[uuid.UUID]bool{}}
	r := NewReconciler(Options{Store: s, Busy: busy, Logger: zerolog.Nop()})

	lead := models.Lead{ID: uuid.New(), LastName: "Hopper", UpdatedAt: time.Now().UTC()}
	busy.set(lead.ID, true)
	r.handle(leadEvent(t, "a", lead))
	require.Equal(t, 1, r.Deferred())

	// The command resolves but the wake-up loses the race to the next event.
	busy.set(lead.ID, false)
	r.Resolved(lead.ID)
	r.handle(models.StreamEvent{
		ID:     "b",
		Type:   "lead.deleted",
		Entity: &models.EntityChange{Kind: models.KindLead, ID: lead.ID, Op: models.OpRemove},
	})
	r.flush()

	_, ok := s.Lead(lead.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Deferred())
	q := r.Queue()
	require.Len(t, q, 2)
	assert.Equal(t, "b", q[0].ID)
	assert.Equal(t, "a", q[1].ID)
}
