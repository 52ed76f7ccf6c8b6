// ABOUTME: Task model for follow-up work attached to leads
// ABOUTME: Provides status transitions, completion tracking, and due date checks
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"
)

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	LeadID      *uuid.UUID `json:"leadId,omitempty"`
	AssigneeID  *uuid.UUID `json:"assigneeId,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (t Task) EntityKind() Kind { return KindTask }
func (t Task) EntityID() uuid.UUID { return t.ID }
func (t Task) Touched() time.Time { return t.UpdatedAt }

// NewTask creates a todo task, optionally linked to a lead.
func NewTask(title string, leadID, assigneeID *uuid.UUID, dueAt *time.Time) Task {
	now := time.Now().UTC()
	return Task{
		ID:         uuid.New(),
		Title:      title,
		Status:     TaskStatusTodo,
		LeadID:     leadID,
		AssigneeID: assigneeID,
		DueAt:      dueAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition validates newStatus and returns the task in that status.
func (t Task) Transition(newStatus string) (Task, error) {
	validStatuses := map[string]bool{
		TaskStatusTodo:       true,
		TaskStatusInProgress: true,
		TaskStatusDone:       true,
		TaskStatusCancelled:  true,
	}

	if !validStatuses[newStatus] {
		return t, fmt.Errorf("invalid task status: %s", newStatus)
	}

	oldStatus := t.Status
	t.Status = newStatus
	now := time.Now().UTC()
	t.UpdatedAt = now

	// Track completion
	if newStatus == TaskStatusDone && oldStatus != TaskStatusDone {
		t.CompletedAt = &now
	} else if newStatus != TaskStatusDone {
		t.CompletedAt = nil
	}

	return t, nil
}

// IsOverdue returns true if the task is past its due date and not completed.
func (t Task) IsOverdue() bool {
	if t.Status == TaskStatusDone || t.Status == TaskStatusCancelled {
		return false
	}
	if t.DueAt == nil {
		return false
	}
	return time.Now().UTC().After(*t.DueAt)
}

// IsDueSoon returns true if the task is due within the specified number of days.
func (t Task) IsDueSoon(days int) bool {
	if t.Status == TaskStatusDone || t.Status == TaskStatusCancelled {
		return false
	}
	if t.DueAt == nil {
		return false
	}

	now := time.Now().UTC()
	threshold := now.Add(time.Duration(days) * 24 * time.Hour)
	return t.DueAt.Before(threshold) && t.DueAt.After(now)
}
