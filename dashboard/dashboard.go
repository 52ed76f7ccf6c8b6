// ABOUTME: App shell that wires the store, executor, projection, reconciler, and drag coordinator
// ABOUTME: Mount bulk-loads every entity kind and starts the stream; Unmount stops it and fences late resolutions

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/command"
	"github.com/harperreed/pipedash/config"
	"github.com/harperreed/pipedash/drag"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/pipeline"
	"github.com/harperreed/pipedash/store"
	"github.com/harperreed/pipedash/stream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMounted                = errors.New("dashboard already mounted")
	ErrUnmounted              = errors.New("dashboard unmounted")
	ErrDealRequiresClosedLead = errors.New("deals can only be created for closed leads")
)

// StreamSource delivers push events into a sink until ctx is cancelled.
// backend.Subscriber implements it.
type StreamSource interface {
	Run(ctx context.Context, sink backend.Sink) error
}

type Options struct {
	Config  *config.Config
	Backend command.Backend
	Stream  StreamSource
	Journal stream.Journal
	Logger  zerolog.Logger
}

// Dashboard is one mounted pipeline view.
type Dashboard struct {
	store   *store.Store
	backend command.Backend
	source  StreamSource
	exec    *command.Executor
	proj    *pipeline.Projection
	recon   *stream.Reconciler
	drag    *drag.Coordinator
	log     zerolog.Logger

	mu        sync.Mutex
	mounted   bool
	unmounted bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	captures  []models.Lead
	onCapture []func(models.Lead)
}

func New(opts Options) *Dashboard {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger

	s := store.New()
	d := &Dashboard{
		store:   s,
		backend: opts.Backend,
		source:  opts.Stream,
		log:     log.With().Str("component", "dashboard").Logger(),
	}

	d.recon = stream.NewReconciler(stream.Options{
		Store:          s,
		Journal:        opts.Journal,
		Buffer:         cfg.StreamBuffer,
		RecentCapacity: cfg.RecentCapacity,
		QueueCap:       cfg.QueueCap,
		Logger:         log,
	})
	d.exec = command.NewExecutor(command.Options{
		Store:    s,
		Backend:  opts.Backend,
		Notifier: d.recon,
		Timeout:  cfg.CommandTimeout,
		Policy:   command.ParsePolicy(cfg.SameIDPolicy),
		Logger:   log,
	})
	d.recon.SetBusy(d.exec)
	d.exec.OnResolve(d.recon.Resolved)

	d.proj = pipeline.NewProjection(s)
	d.drag = drag.NewCoordinator(s, d.exec, d.queueCapture, log)
	return d
}

// Mount fetches every entity kind in parallel, loads them, and starts the
// stream consumer and subscription. A dashboard mounts once.
func (d *Dashboard) Mount(ctx context.Context) error {
	d.mu.Lock()
	if d.mounted || d.unmounted {
		d.mu.Unlock()
		return ErrMounted
	}
	d.mounted = true
	d.mu.Unlock()

	if err := d.load(ctx, models.Kinds...); err != nil {
		d.mu.Lock()
		d.mounted = false
		d.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return d.recon.Run(gctx) })
	if d.source != nil {
		g.Go(func() error { return d.source.Run(gctx, d.recon.Push) })
	}

	d.mu.Lock()
	d.cancel = cancel
	d.group = g
	d.mu.Unlock()

	d.log.Info().Int("leads", d.store.Len(models.KindLead)).Msg("dashboard mounted")
	return nil
}

// Unmount stops the stream and fences the executor so in-flight commands
// resolve without touching state.
func (d *Dashboard) Unmount() error {
	d.mu.Lock()
	if d.unmounted {
		d.mu.Unlock()
		return nil
	}
	d.unmounted = true
	cancel, g := d.cancel, d.group
	d.mu.Unlock()

	d.exec.Close()
	d.proj.Close()
	if cancel == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	d.log.Info().Msg("dashboard unmounted")
	return err
}

// Refresh refetches kinds from the backend. Records with a command in
// flight keep their local value.
func (d *Dashboard) Refresh(ctx context.Context, kinds ...models.Kind) error {
	if d.isUnmounted() {
		return ErrUnmounted
	}
	if len(kinds) == 0 {
		kinds = models.Kinds
	}
	return d.load(ctx, kinds...)
}

func (d *Dashboard) load(ctx context.Context, kinds ...models.Kind) error {
	if d.backend == nil {
		return fmt.Errorf("no backend configured")
	}

	var mu sync.Mutex
	fetched := make(map[models.Kind][]models.Record, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		kind := kind
		g.Go(func() error {
			raws, err := d.backend.List(gctx, kind)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", kind.Resource(), err)
			}
			recs, err := models.DecodeList(kind, raws)
			if err != nil {
				return err
			}
			mu.Lock()
			fetched[kind] = recs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, kind := range kinds {
		recs := fetched[kind]
		kept := make([]models.Record, 0, len(recs))
		fresh := make(map[uuid.UUID]bool, len(recs))
		for _, rec := range recs {
			fresh[rec.EntityID()] = true
			if d.exec.Busy(rec.EntityID()) {
				if local, ok := d.store.Get(kind, rec.EntityID()); ok {
					kept = append(kept, local)
					continue
				}
			}
			kept = append(kept, rec)
		}
		for _, local := range d.store.List(kind) {
			if !fresh[local.EntityID()] && d.exec.Busy(local.EntityID()) {
				kept = append(kept, local)
			}
		}
		d.store.Replace(kind, kept)
	}
	return nil
}

func (d *Dashboard) isUnmounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unmounted
}

func (d *Dashboard) queueCapture(lead models.Lead) {
	d.mu.Lock()
	if d.unmounted {
		d.mu.Unlock()
		return
	}
	d.captures = append(d.captures, lead)
	fns := append([]func(models.Lead){}, d.onCapture...)
	d.mu.Unlock()

	d.log.Info().Str("lead_id", lead.ID.String()).Msg("lead closed, deal capture requested")
	for _, fn := range fns {
		fn(lead)
	}
}

// OnDealCapture registers fn to run once per lead transition into Closed.
func (d *Dashboard) OnDealCapture(fn func(models.Lead)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCapture = append(d.onCapture, fn)
}

// PendingCaptures lists closed leads still waiting for their deal form.
func (d *Dashboard) PendingCaptures() []models.Lead {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Lead(nil), d.captures...)
}

// DismissCapture drops a pending deal capture without creating a deal.
func (d *Dashboard) DismissCapture(leadID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.captures[:0]
	for _, l := range d.captures {
		if l.ID != leadID {
			out = append(out, l)
		}
	}
	d.captures = out
}

func (d *Dashboard) Store() *store.Store { return d.store }
func (d *Dashboard) Projection() *pipeline.Projection { return d.proj }
func (d *Dashboard) Drag() *drag.Coordinator { return d.drag }
func (d *Dashboard) Reconciler() *stream.Reconciler { return d.recon }
func (d *Dashboard) Board() pipeline.Board { return d.proj.Board() }
func (d *Dashboard) Trash() []models.Lead { return d.proj.Trash() }
func (d *Dashboard) Summary() []pipeline.StageSummary { return d.proj.Summary() }
func (d *Dashboard) Statuses() []command.Status { return d.exec.Statuses() }
func (d *Dashboard) Dismiss(cmdID uuid.UUID) { d.exec.Dismiss(cmdID) }
func (d *Dashboard) Notifications() []models.Notification { return d.recon.Queue() }

// TakeToast returns the newest notification once.
func (d *Dashboard) TakeToast() (models.Notification, bool) {
	return d.recon.TakeToast()
}
