// ABOUTME: Folds push-stream events into the store and the notification queue
// ABOUTME: Single consumer over a bounded channel with dedup, deferral for busy entities, and a toast pointer

package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/store"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultBuffer   = 64
	DefaultQueueCap = 50
)

// BusyChecker reports in-flight commands. command.Executor implements it.
type BusyChecker interface {
	Busy(id uuid.UUID) bool
}

// Journal persists seen event ids and the toast pointer across restarts.
type Journal interface {
	Seen(id string) (bool, error)
	Mark(id string) error
	LastShown() (string, error)
	SetLastShown(id string) error
}

type Options struct {
	Store          *store.Store
	Busy           BusyChecker
	Journal        Journal
	Buffer         int
	RecentCapacity int
	QueueCap       int
	Logger         zerolog.Logger
}

// Reconciler owns the notification queue. Push may be called from any
// goroutine; Run must be called by exactly one.
type Reconciler struct {
	store    *store.Store
	busy     BusyChecker
	journal  Journal
	queueCap int
	log      zerolog.Logger

	events chan models.StreamEvent
	wake   chan struct{}
	recent *RecentIDs

	mu        sync.Mutex
	queue     []models.Notification
	deferred  map[uuid.UUID][]models.StreamEvent
	ready     map[uuid.UUID]struct{}
	lastShown string
	subs      map[int]func(models.Notification)
	nextSub   int
}

func NewReconciler(opts Options) *Reconciler {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	queueCap := opts.QueueCap
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	r := &Reconciler{
		store:    opts.Store,
		busy:     opts.Busy,
		journal:  opts.Journal,
		queueCap: queueCap,
		log:      opts.Logger.With().Str("component", "reconciler").Logger(),
		events:   make(chan models.StreamEvent, buffer),
		wake:     make(chan struct{}, 1),
		recent:   NewRecentIDs(opts.RecentCapacity),
		deferred: map[uuid.UUID][]models.StreamEvent{},
		ready:    map[uuid.UUID]struct{}{},
		subs:     map[int]func(models.Notification){},
	}
	if r.journal != nil {
		last, err := r.journal.LastShown()
		if err != nil {
			r.log.Warn().Err(err).Msg("failed to load last shown toast")
		}
		r.lastShown = last
	}
	return r
}

// SetBusy installs the in-flight checker when it is built after the reconciler.
func (r *Reconciler) SetBusy(b BusyChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = b
}

func (r *Reconciler) busyChecker() BusyChecker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Push hands ev to the consumer. It blocks while the buffer is full.
func (r *Reconciler) Push(ctx context.Context, ev models.StreamEvent) error {
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolved tells the consumer that id's command finished so its deferred
// events can be applied. Safe to call from any goroutine.
func (r *Reconciler) Resolved(id uuid.UUID) {
	r.mu.Lock()
	_, pending := r.deferred[id]
	if pending {
		r.ready[id] = struct{}{}
	}
	r.mu.Unlock()
	if !pending {
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains the channel until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.events:
			r.handle(ev)
		case <-r.wake:
			r.flush()
		}
	}
}

// Replay handles events on the caller's goroutine, in order. It must not be
// used while Run is consuming.
func (r *Reconciler) Replay(events []models.StreamEvent) {
	for _, ev := range events {
		r.handle(ev)
	}
	r.flush()
}

func (r *Reconciler) handle(ev models.StreamEvent) {
	if ev.ID != "" {
		if r.recent.Contains(ev.ID) || r.journalSeen(ev.ID) {
			r.log.Debug().Str("event_id", ev.ID).Msg("dropping duplicate event")
			return
		}
		r.recent.Add(ev.ID)
		r.journalMark(ev.ID)
	}

	busy := r.busyChecker()
	if ev.Entity != nil && busy != nil && busy.Busy(ev.Entity.ID) {
		r.mu.Lock()
		r.deferred[ev.Entity.ID] = append(r.deferred[ev.Entity.ID], ev)
		r.mu.Unlock()
		r.log.Info().
			Str("event_id", ev.ID).
			Str("entity_id", ev.Entity.ID.String()).
			Msg("deferring event for entity with command in flight")
		// The command may have resolved between the check and the append.
		if !busy.Busy(ev.Entity.ID) {
			r.Resolved(ev.Entity.ID)
		}
		return
	}

	// Events deferred for this entity go first, even if the wake-up that
	// would flush them has not been handled yet.
	if ev.Entity != nil {
		for _, older := range r.takeDeferred(ev.Entity.ID) {
			r.apply(older)
		}
	}
	r.apply(ev)
}

func (r *Reconciler) takeDeferred(id uuid.UUID) []models.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.deferred[id]
	delete(r.deferred, id)
	delete(r.ready, id)
	return events
}

func (r *Reconciler) flush() {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.ready))
	for id := range r.ready {
		ids = append(ids, id)
	}
	r.ready = map[uuid.UUID]struct{}{}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	busy := r.busyChecker()
	for _, id := range ids {
		// A queued command may already hold the id again.
		if busy != nil && busy.Busy(id) {
			continue
		}
		events := r.takeDeferred(id)
		for _, ev := range events {
			r.apply(ev)
		}
		if len(events) > 0 {
			r.log.Debug().Str("entity_id", id.String()).Int("events", len(events)).Msg("applied deferred events")
		}
	}
}

func (r *Reconciler) apply(ev models.StreamEvent) {
	n := models.Notification{
		ID:        ev.ID,
		Type:      ev.Type,
		Message:   ev.Message,
		Severity:  Classify(ev),
		Source:    models.SourceStream,
		CreatedAt: ev.CreatedAt,
	}

	if ch := ev.Entity; ch != nil {
		id := ch.ID
		n.EntityKind = ch.Kind
		n.EntityID = &id
		r.applyEntity(ch)
	}

	r.push(n)
}

func (r *Reconciler) applyEntity(ch *models.EntityChange) {
	if r.store == nil {
		return
	}
	switch ch.Op {
	case models.OpRemove:
		r.store.Remove(ch.Kind, ch.ID)
	case models.OpUpsert:
		if len(ch.Record) == 0 {
			return
		}
		rec, err := models.Decode(ch.Kind, ch.Record)
		if err != nil {
			r.log.Warn().Err(err).Str("entity_id", ch.ID.String()).Msg("skipping undecodable record")
			return
		}
		if local, ok := r.store.Get(ch.Kind, rec.EntityID()); ok && local.Touched().After(rec.Touched()) {
			r.log.Debug().Str("entity_id", ch.ID.String()).Msg("local record is newer, keeping it")
			return
		}
		r.store.Upsert(rec)
	default:
		r.log.Warn().Str("op", string(ch.Op)).Msg("unknown entity op")
	}
}

// Notify queues a locally raised notification.
func (r *Reconciler) Notify(n models.Notification) {
	if n.Source == "" {
		n.Source = models.SourceLocal
	}
	if n.Severity == "" {
		n.Severity = models.SeverityInfo
	}
	r.push(n)
}

func (r *Reconciler) push(n models.Notification) {
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.queue = append([]models.Notification{n}, r.queue...)
	if len(r.queue) > r.queueCap {
		r.queue = r.queue[:r.queueCap]
	}
	fns := r.subscribers()
	r.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// Queue returns notifications most recent first.
func (r *Reconciler) Queue() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.queue...)
}

// Deferred counts events waiting on in-flight commands.
func (r *Reconciler) Deferred() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evs := range r.deferred {
		n += len(evs)
	}
	return n
}

// TakeToast returns the newest notification if it has not been shown yet.
func (r *Reconciler) TakeToast() (models.Notification, bool) {
	r.mu.Lock()
	if len(r.queue) == 0 || r.queue[0].ID == r.lastShown {
		r.mu.Unlock()
		return models.Notification{}, false
	}
	n := r.queue[0]
	r.lastShown = n.ID
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.SetLastShown(n.ID); err != nil {
			r.log.Warn().Err(err).Msg("failed to persist last shown toast")
		}
	}
	return n, true
}

// Subscribe registers fn for every queued notification.
func (r *Reconciler) Subscribe(fn func(models.Notification)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Reconciler) subscribers() []func(models.Notification) {
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(models.Notification), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.subs[id])
	}
	return fns
}

func (r *Reconciler) journalSeen(id string) bool {
	if r.journal == nil {
		return false
	}
	seen, err := r.journal.Seen(id)
	if err != nil {
		r.log.Warn().Err(err).Str("event_id", id).Msg("journal lookup failed")
		return false
	}
	return seen
}

func (r *Reconciler) journalMark(id string) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Mark(id); err != nil {
		r.log.Warn().Err(err).Str("event_id", id).Msg("failed to journal event id")
	}
}
