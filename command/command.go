// ABOUTME: Command value types for state-changing intents against the backend
// ABOUTME: Create, Update, Move, and Delete commands carrying payload and optimistic value

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/models"
)

var (
	// ErrBusy is returned under PolicyReject when the target already has a
	// command in flight.
	ErrBusy = fmt.Errorf("entity has a command in flight: %w", backend.ErrConflict)
	// ErrClosed is returned when the executor was closed before the command
	// resolved. The resolution is discarded.
	ErrClosed = errors.New("executor closed")
)

// Op is the intent a command carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpMove   Op = "move"
	OpDelete Op = "delete"
)

// Command is one state-changing intent. Optimistic, when set, is written to
// the store before the network call and is provisional until the call
// resolves. Mutate derives the optimistic value from the record as it is
// when the command starts, so a queued command sees its predecessor's
// result. RemoveOptimistic removes the target before the call instead.
type Command struct {
	ID               uuid.UUID
	Op               Op
	Kind             models.Kind
	TargetID         uuid.UUID
	Payload          any
	Optimistic       models.Record
	Mutate           func(current models.Record) models.Record
	RemoveOptimistic bool
	Label            string
}

// key is the entity id the command serializes on.
func (c Command) key() uuid.UUID {
	if c.TargetID != uuid.Nil {
		return c.TargetID
	}
	if c.Optimistic != nil {
		return c.Optimistic.EntityID()
	}
	return uuid.Nil
}

func (c Command) label() string {
	if c.Label != "" {
		return c.Label
	}
	return fmt.Sprintf("%s %s", c.Op, c.Kind)
}

// Result is delivered by Submit.
type Result struct {
	CommandID uuid.UUID
	Record    models.Record
	Err       error
}

// State of an outstanding command.
type State string

const (
	StatePending State = "pending"
	StateFailed  State = "failed"
)

// Status is one row of the flat busy/error list shown by the UI.
type Status struct {
	CommandID uuid.UUID
	Op        Op
	Kind      models.Kind
	TargetID  uuid.UUID
	Label     string
	State     State
	Err       error
	StartedAt time.Time
}

// Backend is the CRUD collaborator. backend.Client implements it.
type Backend interface {
	List(ctx context.Context, kind models.Kind) ([]json.RawMessage, error)
	Get(ctx context.Context, kind models.Kind, id uuid.UUID) (json.RawMessage, error)
	Create(ctx context.Context, kind models.Kind, payload any) (json.RawMessage, error)
	Update(ctx context.Context, kind models.Kind, id uuid.UUID, payload any) (json.RawMessage, error)
	Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error
}

// Notifier receives user-visible failure notices.
type Notifier interface {
	Notify(n models.Notification)
}

// NewCreate builds a create command. placeholder may be nil.
func NewCreate(kind models.Kind, payload any, placeholder models.Record, label string) Command {
	return Command{
		ID:         uuid.New(),
		Op:         OpCreate,
		Kind:       kind,
		Payload:    payload,
		Optimistic: placeholder,
		Label:      label,
	}
}

// NewUpdate builds a partial update. optimistic is the locally edited record.
func NewUpdate(optimistic models.Record, payload any, label string) Command {
	return Command{
		ID:         uuid.New(),
		Op:         OpUpdate,
		Kind:       optimistic.EntityKind(),
		TargetID:   optimistic.EntityID(),
		Payload:    payload,
		Optimistic: optimistic,
		Label:      label,
	}
}

// NewPatch sends payload and applies mutate to the live record optimistically.
func NewPatch(kind models.Kind, id uuid.UUID, payload any, mutate func(models.Record) models.Record, label string) Command {
	return Command{
		ID:       uuid.New(),
		Op:       OpUpdate,
		Kind:     kind,
		TargetID: id,
		Payload:  payload,
		Mutate:   mutate,
		Label:    label,
	}
}

// NewMove changes only the pipeline stage of lead.
func NewMove(lead models.Lead, to models.Stage) Command {
	return Command{
		ID:       uuid.New(),
		Op:       OpMove,
		Kind:     models.KindLead,
		TargetID: lead.ID,
		Payload:  map[string]any{"pipelineStage": to},
		Mutate: func(cur models.Record) models.Record {
			if l, ok := cur.(models.Lead); ok {
				return l.WithStage(to)
			}
			return cur
		},
		Label: fmt.Sprintf("Move %s to %s", lead.FullName(), to),
	}
}

// NewDelete builds a hard delete. optimistic removes the record before the call.
func NewDelete(kind models.Kind, id uuid.UUID, optimistic bool, label string) Command {
	return Command{
		ID:               uuid.New(),
		Op:               OpDelete,
		Kind:             kind,
		TargetID:         id,
		RemoveOptimistic: optimistic,
		Label:            label,
	}
}
