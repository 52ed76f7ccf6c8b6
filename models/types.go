// ABOUTME: Data models for pipeline entities
// ABOUTME: Defines Lead, Deal, Project, Comment, File, and User plus the stage and kind enums
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names an entity table.
type Kind string

const (
	KindLead    Kind = "lead"
	KindDeal    Kind = "deal"
	KindProject Kind = "project"
	KindTask    Kind = "task"
	KindComment Kind = "comment"
	KindUser    Kind = "user"
)

// Kinds lists every entity kind in load order.
var Kinds = []Kind{KindUser, KindProject, KindLead, KindDeal, KindTask, KindComment}

// Resource returns the REST collection name for the kind.
func (k Kind) Resource() string {
	return string(k) + "s"
}

// ParseKind accepts singular or plural kind names.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind: %q", s)
}

// Record is implemented by every entity stored in the entity store.
type Record interface {
	EntityKind() Kind
	EntityID() uuid.UUID
	// Touched is the last time the server changed the record.
	Touched() time.Time
}

// Stage is a pipeline stage a lead occupies.
type Stage string

const (
	StageIdentified  Stage = "Identified"
	StageContacted   Stage = "Contacted"
	StageQualified   Stage = "Qualified"
	StageNegotiation Stage = "Negotiation"
	StageClosed      Stage = "Closed"
	StageTrash       Stage = "Trash"
)

// PipelineStages is the display order of the board. Trash is not a pipeline stage.
var PipelineStages = []Stage{
	StageIdentified,
	StageContacted,
	StageQualified,
	StageNegotiation,
	StageClosed,
}

var allStages = []Stage{
	StageIdentified,
	StageContacted,
	StageQualified,
	StageNegotiation,
	StageClosed,
	StageTrash,
}

// ParseStage matches a stage name case-insensitively.
func ParseStage(s string) (Stage, error) {
	s = strings.TrimSpace(s)
	for _, st := range allStages {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid pipeline stage: %q", s)
}

// Valid reports whether s is one of the known stages, Trash included.
func (s Stage) Valid() bool {
	_, err := ParseStage(string(s))
	return err == nil
}

// IsPipeline reports whether leads in this stage appear on the board.
func (s Stage) IsPipeline() bool {
	return s.Valid() && s != StageTrash
}

// Index is the column position of the stage, or -1 for Trash and unknown values.
func (s Stage) Index() int {
	for i, st := range PipelineStages {
		if st == s {
			return i
		}
	}
	return -1
}

type SocialLinks struct {
	LinkedIn string `json:"linkedin,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Website  string `json:"website,omitempty"`
}

type File struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Size      int64     `json:"size,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Lead struct {
	ID           uuid.UUID   `json:"id"`
	FirstName    string      `json:"firstName"`
	LastName     string      `json:"lastName"`
	Email        string      `json:"email,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Company      string      `json:"company,omitempty"`
	OwnerID      *uuid.UUID  `json:"ownerId,omitempty"`
	ProjectID    *uuid.UUID  `json:"projectId,omitempty"`
	Stage        Stage       `json:"pipelineStage"`
	SocialLinks  SocialLinks `json:"socialLinks"`
	CommentCount int         `json:"commentCount"`
	Files        []File      `json:"files,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (l Lead) EntityKind() Kind { return KindLead }
func (l Lead) EntityID() uuid.UUID { return l.ID }
func (l Lead) Touched() time.Time { return l.UpdatedAt }

// FullName joins first and last name.
func (l Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// WithStage returns a copy of the lead moved to stage.
func (l Lead) WithStage(stage Stage) Lead {
	l.Stage = stage
	return l
}

// DealType enumerates the kinds of engagement a deal represents.
type DealType string

const (
	DealConsulting     DealType = "Consulting"
	DealOnlineTraining DealType = "OnlineTraining"
	DealOffsite        DealType = "Offsite"
)

type Deal struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      uuid.UUID  `json:"leadId"`
	ProjectID   *uuid.UUID `json:"projectId,omitempty"`
	TotalAmount int64      `json:"totalAmount"` // in cents
	Currency    string     `json:"currency"`
	Type        DealType   `json:"type"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (d Deal) EntityKind() Kind { return KindDeal }
func (d Deal) EntityID() uuid.UUID { return d.ID }
func (d Deal) Touched() time.Time { return d.UpdatedAt }

// Validate checks the fields a deal form must supply.
func (d Deal) Validate() error {
	if d.LeadID == uuid.Nil {
		return fmt.Errorf("deal requires a lead")
	}
	switch d.Type {
	case DealConsulting, DealOnlineTraining, DealOffsite:
	default:
		return fmt.Errorf("invalid deal type: %q", d.Type)
	}
	if d.TotalAmount < 0 {
		return fmt.Errorf("total amount cannot be negative")
	}
	if len(d.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code, got %q", d.Currency)
	}
	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		return fmt.Errorf("deal ends before it starts")
	}
	return nil
}

type Project struct {
	ID        uuid.UUID   `json:"id"`
	Title     string      `json:"title"`
	ManagerID *uuid.UUID  `json:"managerId,omitempty"`
	LeadIDs   []uuid.UUID `json:"leadIds"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (p Project) EntityKind() Kind { return KindProject }
func (p Project) EntityID() uuid.UUID { return p.ID }
func (p Project) Touched() time.Time { return p.UpdatedAt }

// HasLead reports whether id is a member of the project.
func (p Project) HasLead(id uuid.UUID) bool {
	for _, l := range p.LeadIDs {
		if l == id {
			return true
		}
	}
	return false
}

type Comment struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"leadId"`
	AuthorID  *uuid.UUID `json:"authorId,omitempty"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (c Comment) EntityKind() Kind { return KindComment }
func (c Comment) EntityID() uuid.UUID { return c.ID }
func (c Comment) Touched() time.Time { return c.CreatedAt }

// User is a lead owner, project manager, or task assignee.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u User) EntityKind() Kind { return KindUser }
func (u User) EntityID() uuid.UUID { return u.ID }
func (u User) Touched() time.Time { return u.UpdatedAt }

// FormatAmount renders cents as a decimal amount followed by the currency code.
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
