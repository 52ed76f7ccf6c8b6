// ABOUTME: Drag-and-drop state machine for moving lead cards between stages
// ABOUTME: Issues Move commands, gates trash drops behind confirmation, and signals deal capture on Closed

package drag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/command"
	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/store"
	"github.com/rs/zerolog"
)

var (
	ErrNotDragging  = errors.New("no drag in progress")
	ErrUnknownLead  = errors.New("lead not found")
	ErrInvalidStage = errors.New("invalid drop stage")
	ErrNotTrashed   = errors.New("lead is not in trash")
)

// Phase of the current gesture.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDragging       Phase = "dragging"
	PhaseDroppedOnStage Phase = "dropped_on_stage"
	PhaseDroppedOnTrash Phase = "dropped_on_trash"
	PhaseCancelled      Phase = "cancelled"
)

// Executor runs commands. command.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) (models.Record, error)
}

// DealCapture is invoked with the just-closed lead.
type DealCapture func(lead models.Lead)

// Confirmer asks the user to confirm a trash drop. It must answer synchronously.
type Confirmer func(lead models.Lead) bool

// Outcome describes how a gesture ended.
type Outcome struct {
	Phase  Phase
	Issued bool
	Lead   models.Lead
}

// Coordinator tracks one drag gesture at a time. It holds no undo state;
// failed moves are rolled back by the executor.
type Coordinator struct {
	store    *store.Store
	exec     Executor
	onClosed DealCapture
	log      zerolog.Logger

	mu     sync.Mutex
	phase  Phase
	leadID uuid.UUID
}

func NewCoordinator(s *store.Store, exec Executor, onClosed DealCapture, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    s,
		exec:     exec,
		onClosed: onClosed,
		log:      log.With().Str("component", "drag").Logger(),
		phase:    PhaseIdle,
	}
}

// Phase returns the phase of the latest gesture.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Dragging returns the lead being dragged, if any.
func (c *Coordinator) Dragging() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leadID, c.phase == PhaseDragging
}

// Begin picks up a card.
func (c *Coordinator) Begin(id uuid.UUID) error {
	lead, ok := c.store.Lead(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLead, id)
	}
	if !lead.Stage.IsPipeline() {
		return fmt.Errorf("%w: lead is in %s", ErrInvalidStage, lead.Stage)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseDragging
	c.leadID = id
	return nil
}

// Cancel abandons the gesture without issuing anything.
func (c *Coordinator) Cancel() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseDragging {
		return Outcome{Phase: c.phase}
	}
	lead, _ := c.store.Lead(c.leadID)
	c.phase = PhaseCancelled
	return Outcome{Phase: PhaseCancelled, Lead: lead}
}

// finish ends the gesture and returns the dragged lead as it is now.
func (c *Coordinator) finish(phase Phase) (models.Lead, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseDragging {
		return models.Lead{}, ErrNotDragging
	}
	c.phase = phase
	lead, ok := c.store.Lead(c.leadID)
	if !ok {
		return models.Lead{}, fmt.Errorf("%w: %s", ErrUnknownLead, c.leadID)
	}
	return lead, nil
}

// DropOnStage ends the gesture over a stage column. Dropping onto the
// current stage issues nothing.
func (c *Coordinator) DropOnStage(ctx context.Context, stage models.Stage) (Outcome, error) {
	if !stage.IsPipeline() {
		return Outcome{Phase: c.Phase()}, fmt.Errorf("%w: %q", ErrInvalidStage, stage)
	}
	lead, err := c.finish(PhaseDroppedOnStage)
	if err != nil {
		return Outcome{Phase: c.Phase()}, err
	}
	if lead.Stage == stage {
		return Outcome{Phase: PhaseDroppedOnStage, Lead: lead}, nil
	}
	return c.move(ctx, lead, stage, PhaseDroppedOnStage)
}

// DropOnTrash ends the gesture over the trash target. The lead leaves the
// board only after confirm answers yes.
func (c *Coordinator) DropOnTrash(ctx context.Context, confirm Confirmer) (Outcome, error) {
	lead, err := c.finish(PhaseDroppedOnTrash)
	if err != nil {
		return Outcome{Phase: c.Phase()}, err
	}
	if confirm == nil || !confirm(lead) {
		c.mu.Lock()
		c.phase = PhaseCancelled
		c.mu.Unlock()
		c.log.Debug().Str("lead_id", lead.ID.String()).Msg("trash drop declined")
		return Outcome{Phase: PhaseCancelled, Lead: lead}, nil
	}
	return c.move(ctx, lead, models.StageTrash, PhaseDroppedOnTrash)
}

// Move is a whole gesture in one call, used by keyboard and CLI moves.
func (c *Coordinator) Move(ctx context.Context, id uuid.UUID, stage models.Stage) (Outcome, error) {
	if err := c.Begin(id); err != nil {
		return Outcome{Phase: c.Phase()}, err
	}
	return c.DropOnStage(ctx, stage)
}

// Restore brings a soft-deleted lead back to the first pipeline stage.
func (c *Coordinator) Restore(ctx context.Context, id uuid.UUID) (models.Lead, error) {
	lead, ok := c.store.Lead(id)
	if !ok {
		return models.Lead{}, fmt.Errorf("%w: %s", ErrUnknownLead, id)
	}
	if lead.Stage != models.StageTrash {
		return lead, ErrNotTrashed
	}
	cmd := command.NewMove(lead, models.StageIdentified)
	cmd.Label = fmt.Sprintf("Restore %s", lead.FullName())
	rec, err := c.exec.Execute(ctx, cmd)
	if err != nil {
		return lead, err
	}
	restored, _ := rec.(models.Lead)
	return restored, nil
}

func (c *Coordinator) move(ctx context.Context, lead models.Lead, to models.Stage, phase Phase) (Outcome, error) {
	from := lead.Stage
	cmd := command.NewMove(lead, to)
	if to == models.StageTrash {
		cmd.Label = fmt.Sprintf("Move %s to trash", lead.FullName())
	}

	c.log.Debug().
		Str("lead_id", lead.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("issuing move")

	rec, err := c.exec.Execute(ctx, cmd)
	if err != nil {
		return Outcome{Phase: phase, Issued: true, Lead: lead}, err
	}

	moved, ok := rec.(models.Lead)
	if !ok {
		moved = lead.WithStage(to)
	}
	if to == models.StageClosed && from != models.StageClosed && c.onClosed != nil {
		c.onClosed(moved)
	}
	return Outcome{Phase: phase, Issued: true, Lead: moved}, nil
}
