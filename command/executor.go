// ABOUTME: Generic command executor with optimistic apply, server-wins reconciliation, and rollback
// ABOUTME: Serializes commands per entity id and ignores resolutions after Close

package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/store"
	"github.com/rs/zerolog"
)

// Policy decides what happens to a second command for a busy entity id.
type Policy string

const (
	PolicyQueue  Policy = "queue"
	PolicyReject Policy = "reject"
)

// ParsePolicy maps a config string to a Policy, defaulting to queue.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyReject {
		return PolicyReject
	}
	return PolicyQueue
}

const defaultTimeout = 15 * time.Second

type Options struct {
	Store    *store.Store
	Backend  Backend
	Notifier Notifier
	Timeout  time.Duration
	Policy   Policy
	Logger   zerolog.Logger
}

type token struct {
	cmdID uuid.UUID
	done  chan struct{}
}

// Executor runs commands. It is the only writer of the store besides the
// stream reconciler.
type Executor struct {
	store    *store.Store
	backend  Backend
	notifier Notifier
	timeout  time.Duration
	policy   Policy
	log      zerolog.Logger

	mu        sync.Mutex
	inflight  map[uuid.UUID]*token
	statuses  map[uuid.UUID]*Status
	resolvers []func(uuid.UUID)
	closed    bool
}

func NewExecutor(opts Options) *Executor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyQueue
	}
	return &Executor{
		store:    opts.Store,
		backend:  opts.Backend,
		notifier: opts.Notifier,
		timeout:  timeout,
		policy:   policy,
		log:      opts.Logger.With().Str("component", "executor").Logger(),
		inflight: map[uuid.UUID]*token{},
		statuses: map[uuid.UUID]*Status{},
	}
}

// Busy reports whether id has a command in flight.
func (e *Executor) Busy(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[id]
	return ok
}

// OnResolve registers fn to run after a command on an entity id resolves and
// the store has been reconciled.
func (e *Executor) OnResolve(fn func(id uuid.UUID)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolvers = append(e.resolvers, fn)
}

// Close stops the executor from touching the store. Commands still in flight
// drop their resolutions.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *Executor) alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Statuses returns pending and failed commands, oldest first.
func (e *Executor) Statuses() []Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Status, 0, len(e.statuses))
	for _, st := range e.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CommandID.String() < out[j].CommandID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Dismiss clears a failed status row.
func (e *Executor) Dismiss(cmdID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.statuses[cmdID]; ok && st.State == StateFailed {
		delete(e.statuses, cmdID)
	}
}

// Submit runs cmd on its own goroutine and delivers the result on the
// returned channel.
func (e *Executor) Submit(ctx context.Context, cmd Command) <-chan Result {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	out := make(chan Result, 1)
	go func() {
		rec, err := e.Execute(ctx, cmd)
		out <- Result{CommandID: cmd.ID, Record: rec, Err: err}
	}()
	return out
}

// Execute runs cmd to completion and returns the server's record.
func (e *Executor) Execute(ctx context.Context, cmd Command) (models.Record, error) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	key := cmd.key()
	log := e.log.With().
		Str("command_id", cmd.ID.String()).
		Str("op", string(cmd.Op)).
		Str("kind", string(cmd.Kind)).
		Str("target", key.String()).
		Logger()

	tok, err := e.acquire(ctx, key, cmd.ID)
	if err != nil {
		log.Debug().Err(err).Msg("command not started")
		return nil, err
	}
	defer e.release(key, tok)

	e.setStatus(cmd, StatePending, nil)
	log.Debug().Msg("command started")

	prior, hadPrior := e.applyOptimistic(cmd, key)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	rec, err := e.call(callCtx, cmd)
	if err != nil && callCtx.Err() != nil {
		err = &backend.Error{Kind: backend.KindNetworkUnavailable, Message: "request timed out", Err: err}
	}
	cancel()

	if !e.alive() {
		log.Debug().Msg("executor closed, dropping resolution")
		e.clearStatus(cmd.ID)
		return nil, ErrClosed
	}

	if err == nil {
		e.reconcile(cmd, key, rec)
		e.clearStatus(cmd.ID)
		log.Debug().Msg("command succeeded")
		return rec, nil
	}

	return nil, e.fail(cmd, key, prior, hadPrior, err, log)
}

func (e *Executor) acquire(ctx context.Context, key, cmdID uuid.UUID) (*token, error) {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, ErrClosed
		}
		if key == uuid.Nil {
			e.mu.Unlock()
			return nil, nil
		}
		live, ok := e.inflight[key]
		if !ok {
			tok := &token{cmdID: cmdID, done: make(chan struct{})}
			e.inflight[key] = tok
			e.mu.Unlock()
			return tok, nil
		}
		e.mu.Unlock()

		if e.policy == PolicyReject {
			return nil, ErrBusy
		}
		select {
		case <-live.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *Executor) release(key uuid.UUID, tok *token) {
	if tok == nil {
		return
	}
	e.mu.Lock()
	if e.inflight[key] == tok {
		delete(e.inflight, key)
	}
	close(tok.done)
	resolvers := append([]func(uuid.UUID){}, e.resolvers...)
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return
	}
	for _, fn := range resolvers {
		fn(key)
	}
}

func (e *Executor) applyOptimistic(cmd Command, key uuid.UUID) (models.Record, bool) {
	var prior models.Record
	hadPrior := false
	if key != uuid.Nil {
		prior, hadPrior = e.store.Get(cmd.Kind, key)
	}
	switch {
	case cmd.RemoveOptimistic && key != uuid.Nil:
		e.store.Remove(cmd.Kind, key)
	case cmd.Mutate != nil && hadPrior:
		if next := cmd.Mutate(prior); next != nil {
			e.store.Upsert(next)
		}
	case cmd.Optimistic != nil:
		e.store.Upsert(cmd.Optimistic)
	}
	return prior, hadPrior
}

func (e *Executor) call(ctx context.Context, cmd Command) (models.Record, error) {
	if e.backend == nil {
		return nil, &backend.Error{Kind: backend.KindNetworkUnavailable, Message: "no backend configured"}
	}
	switch cmd.Op {
	case OpCreate:
		raw, err := e.backend.Create(ctx, cmd.Kind, cmd.Payload)
		if err != nil {
			return nil, err
		}
		return models.Decode(cmd.Kind, raw)
	case OpUpdate, OpMove:
		raw, err := e.backend.Update(ctx, cmd.Kind, cmd.TargetID, cmd.Payload)
		if err != nil {
			return nil, err
		}
		return models.Decode(cmd.Kind, raw)
	case OpDelete:
		return nil, e.backend.Delete(ctx, cmd.Kind, cmd.TargetID)
	default:
		return nil, fmt.Errorf("unknown command op: %q", cmd.Op)
	}
}

// reconcile writes the authoritative result. The server wins on every field.
func (e *Executor) reconcile(cmd Command, key uuid.UUID, rec models.Record) {
	switch cmd.Op {
	case OpDelete:
		e.store.Remove(cmd.Kind, key)
	case OpCreate:
		if cmd.Optimistic != nil && rec != nil && cmd.Optimistic.EntityID() != rec.EntityID() {
			e.store.Remove(cmd.Kind, cmd.Optimistic.EntityID())
		}
		if rec != nil {
			e.store.Upsert(rec)
		}
	default:
		if rec != nil {
			e.store.Upsert(rec)
		}
	}
}

func (e *Executor) fail(cmd Command, key uuid.UUID, prior models.Record, hadPrior bool, err error, log zerolog.Logger) error {
	kind := backend.KindOf(err)

	if kind == backend.KindNotFound && cmd.Op != OpCreate && key != uuid.Nil {
		e.store.Remove(cmd.Kind, key)
		e.clearStatus(cmd.ID)
		if cmd.Op == OpDelete {
			log.Debug().Msg("delete target already gone")
			return nil
		}
		log.Info().Msg("command target no longer exists, removed locally")
		e.notify(cmd, models.SeverityInfo, fmt.Sprintf("%s: record no longer exists", cmd.label()))
		return err
	}

	e.rollback(cmd, key, prior, hadPrior)

	if kind == backend.KindValidationRejected {
		// Surfaced inline by the originating form.
		e.clearStatus(cmd.ID)
		log.Debug().Err(err).Msg("command rejected by validation")
		return err
	}

	log.Warn().Err(err).Str("error_kind", string(kind)).Msg("command failed, rolled back")
	e.setStatus(cmd, StateFailed, err)
	e.notify(cmd, models.SeverityError, fmt.Sprintf("%s failed: %s", cmd.label(), describe(err)))
	return err
}

func (e *Executor) rollback(cmd Command, key uuid.UUID, prior models.Record, hadPrior bool) {
	switch {
	case hadPrior:
		e.store.Upsert(prior)
	case cmd.Optimistic != nil:
		e.store.Remove(cmd.Kind, cmd.Optimistic.EntityID())
	}
}

func (e *Executor) notify(cmd Command, sev models.Severity, msg string) {
	if e.notifier == nil {
		return
	}
	n := models.Notification{
		Type:       "command." + string(cmd.Op),
		Message:    msg,
		Severity:   sev,
		Source:     models.SourceLocal,
		CreatedAt:  time.Now().UTC(),
		EntityKind: cmd.Kind,
	}
	if key := cmd.key(); key != uuid.Nil {
		n.EntityID = &key
	}
	e.notifier.Notify(n)
}

func (e *Executor) setStatus(cmd Command, state State, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.statuses[cmd.ID]
	if !ok {
		st = &Status{
			CommandID: cmd.ID,
			Op:        cmd.Op,
			Kind:      cmd.Kind,
			TargetID:  cmd.key(),
			Label:     cmd.label(),
			StartedAt: time.Now().UTC(),
		}
		e.statuses[cmd.ID] = st
	}
	st.State = state
	st.Err = err
}

func (e *Executor) clearStatus(cmdID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.statuses, cmdID)
}

func describe(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}
