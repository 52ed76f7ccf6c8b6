// ABOUTME: Form-level operations on leads, comments, deals, projects, and tasks
// ABOUTME: Each operation validates input and funnels the write through the command executor

package dashboard

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/backend"
	"github.com/harperreed/pipedash/command"
	"github.com/harperreed/pipedash/drag"
	"github.com/harperreed/pipedash/models"
)

func invalid(fields map[string]string) error {
	return &backend.Error{Kind: backend.KindValidationRejected, Message: "invalid input", Fields: fields}
}

// LeadInput is the new-lead form.
type LeadInput struct {
	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	Email       string             `json:"email,omitempty"`
	Phone       string             `json:"phone,omitempty"`
	Company     string             `json:"company,omitempty"`
	OwnerID     *uuid.UUID         `json:"ownerId,omitempty"`
	ProjectID   *uuid.UUID         `json:"projectId,omitempty"`
	Stage       models.Stage       `json:"pipelineStage"`
	SocialLinks models.SocialLinks `json:"socialLinks"`
}

func (in LeadInput) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.FirstName) == "" && strings.TrimSpace(in.LastName) == "" {
		fields["lastName"] = "a name is required"
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			fields["email"] = "must be a valid email address"
		}
	}
	if in.Stage != "" && !in.Stage.IsPipeline() {
		fields["pipelineStage"] = "must be a pipeline stage"
	}
	if len(fields) > 0 {
		return invalid(fields)
	}
	return nil
}

// CreateLead adds a lead, shown immediately as a placeholder card.
func (d *Dashboard) CreateLead(ctx context.Context, in LeadInput) (models.Lead, error) {
	if in.Stage == "" {
		in.Stage = models.StageIdentified
	}
	if err := in.validate(); err != nil {
		return models.Lead{}, err
	}

	now := time.Now().UTC()
	placeholder := models.Lead{
		ID:          uuid.New(),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		Phone:       in.Phone,
		Company:     in.Company,
		OwnerID:     in.OwnerID,
		ProjectID:   in.ProjectID,
		Stage:       in.Stage,
		SocialLinks: in.SocialLinks,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec, err := d.exec.Execute(ctx, command.NewCreate(models.KindLead, in, placeholder, "Create "+placeholder.FullName()))
	if err != nil {
		return models.Lead{}, err
	}
	lead, _ := rec.(models.Lead)
	return lead, nil
}

// LeadPatch holds the fields an edit form changed. Stage is not editable
// here; stage changes go through the drag coordinator.
type LeadPatch struct {
	FirstName   *string
	LastName    *string
	Email       *string
	Phone       *string
	Company     *string
	OwnerID     *uuid.UUID
	ProjectID   *uuid.UUID
	SocialLinks *models.SocialLinks
}

func (p LeadPatch) payload() map[string]any {
	out := map[string]any{}
	if p.FirstName != nil {
		out["firstName"] = *p.FirstName
	}
	if p.LastName != nil {
		out["lastName"] = *p.LastName
	}
	if p.Email != nil {
		out["email"] = *p.Email
	}
	if p.Phone != nil {
		out["phone"] = *p.Phone
	}
	if p.Company != nil {
		out["company"] = *p.Company
	}
	if p.OwnerID != nil {
		out["ownerId"] = *p.OwnerID
	}
	if p.ProjectID != nil {
		out["projectId"] = *p.ProjectID
	}
	if p.SocialLinks != nil {
		out["socialLinks"] = *p.SocialLinks
	}
	return out
}

func (p LeadPatch) apply(l models.Lead) models.Lead {
	if p.FirstName != nil {
		l.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		l.LastName = *p.LastName
	}
	if p.Email != nil {
		l.Email = *p.Email
	}
	if p.Phone != nil {
		l.Phone = *p.Phone
	}
	if p.Company != nil {
		l.Company = *p.Company
	}
	if p.OwnerID != nil {
		id := *p.OwnerID
		l.OwnerID = &id
	}
	if p.ProjectID != nil {
		id := *p.ProjectID
		l.ProjectID = &id
	}
	if p.SocialLinks != nil {
		l.SocialLinks = *p.SocialLinks
	}
	return l
}

// UpdateLead sends only the changed fields; the server's record replaces
// the optimistic edit.
func (d *Dashboard) UpdateLead(ctx context.Context, id uuid.UUID, patch LeadPatch) (models.Lead, error) {
	lead, ok := d.store.Lead(id)
	if !ok {
		return models.Lead{}, fmt.Errorf("%w: %s", drag.ErrUnknownLead, id)
	}
	payload := patch.payload()
	if len(payload) == 0 {
		return lead, nil
	}
	if patch.Email != nil && *patch.Email != "" {
		if _, err := mail.ParseAddress(*patch.Email); err != nil {
			return models.Lead{}, invalid(map[string]string{"email": "must be a valid email address"})
		}
	}

	cmd := command.NewPatch(models.KindLead, id, payload, func(cur models.Record) models.Record {
		if l, ok := cur.(models.Lead); ok {
			return patch.apply(l)
		}
		return cur
	}, "Update "+lead.FullName())
	rec, err := d.exec.Execute(ctx, cmd)
	if err != nil {
		return models.Lead{}, err
	}
	updated, _ := rec.(models.Lead)
	return updated, nil
}

// MoveLead moves a lead between pipeline stages.
func (d *Dashboard) MoveLead(ctx context.Context, id uuid.UUID, stage models.Stage) (drag.Outcome, error) {
	return d.drag.Move(ctx, id, stage)
}

// SoftDeleteLead moves a lead to Trash after confirm answers yes.
func (d *Dashboard) SoftDeleteLead(ctx context.Context, id uuid.UUID, confirm drag.Confirmer) (drag.Outcome, error) {
	if err := d.drag.Begin(id); err != nil {
		return drag.Outcome{}, err
	}
	return d.drag.DropOnTrash(ctx, confirm)
}

// RestoreLead returns a trashed lead to Identified.
func (d *Dashboard) RestoreLead(ctx context.Context, id uuid.UUID) (models.Lead, error) {
	return d.drag.Restore(ctx, id)
}

// PurgeLead permanently deletes a trashed lead together with its deals and
// comments.
func (d *Dashboard) PurgeLead(ctx context.Context, id uuid.UUID) error {
	lead, ok := d.store.Lead(id)
	if !ok {
		return fmt.Errorf("%w: %s", drag.ErrUnknownLead, id)
	}
	if lead.Stage != models.StageTrash {
		return drag.ErrNotTrashed
	}

	for _, deal := range d.store.DealsForLead(id) {
		if err := d.DeleteDeal(ctx, deal.ID); err != nil {
			return fmt.Errorf("failed to delete deal %s: %w", deal.ID, err)
		}
	}
	for _, c := range d.store.CommentsForLead(id) {
		if err := d.DeleteComment(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete comment %s: %w", c.ID, err)
		}
	}

	_, err := d.exec.Execute(ctx, command.NewDelete(models.KindLead, id, true, "Delete "+lead.FullName()))
	return err
}

// AddComment posts a comment on a lead.
func (d *Dashboard) AddComment(ctx context.Context, leadID uuid.UUID, body string, author *uuid.UUID) (models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Comment{}, invalid(map[string]string{"body": "comment cannot be empty"})
	}
	if _, ok := d.store.Lead(leadID); !ok {
		return models.Comment{}, fmt.Errorf("%w: %s", drag.ErrUnknownLead, leadID)
	}

	placeholder := models.Comment{
		ID:        uuid.New(),
		LeadID:    leadID,
		AuthorID:  author,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	payload := map[string]any{"leadId": leadID, "body": body}
	if author != nil {
		payload["authorId"] = *author
	}
	rec, err := d.exec.Execute(ctx, command.NewCreate(models.KindComment, payload, placeholder, "Add comment"))
	if err != nil {
		return models.Comment{}, err
	}
	c, _ := rec.(models.Comment)
	d.syncCommentCount(leadID)
	return c, nil
}

func (d *Dashboard) DeleteComment(ctx context.Context, id uuid.UUID) error {
	var leadID uuid.UUID
	if rec, ok := d.store.Get(models.KindComment, id); ok {
		leadID = rec.(models.Comment).LeadID
	}
	_, err := d.exec.Execute(ctx, command.NewDelete(models.KindComment, id, true, "Delete comment"))
	if err != nil {
		return err
	}
	if leadID != uuid.Nil {
		d.syncCommentCount(leadID)
	}
	return nil
}

// syncCommentCount recomputes the lead's comment count from the stored comments.
func (d *Dashboard) syncCommentCount(leadID uuid.UUID) {
	lead, ok := d.store.Lead(leadID)
	if !ok {
		return
	}
	n := len(d.store.CommentsForLead(leadID))
	if lead.CommentCount == n {
		return
	}
	lead.CommentCount = n
	d.store.Upsert(lead)
}

// Comments lists a lead's comments, most recent first.
func (d *Dashboard) Comments(leadID uuid.UUID) []models.Comment {
	return d.store.CommentsForLead(leadID)
}

// DealInput is the deal-capture form.
type DealInput struct {
	TotalAmount int64
	Currency    string
	Type        models.DealType
	ProjectID   *uuid.UUID
	StartDate   *time.Time
	EndDate     *time.Time
}

// CreateDeal records a deal for a closed lead.
func (d *Dashboard) CreateDeal(ctx context.Context, leadID uuid.UUID, in DealInput) (models.Deal, error) {
	lead, ok := d.store.Lead(leadID)
	if !ok {
		return models.Deal{}, fmt.Errorf("%w: %s", drag.ErrUnknownLead, leadID)
	}
	if lead.Stage != models.StageClosed {
		return models.Deal{}, ErrDealRequiresClosedLead
	}

	now := time.Now().UTC()
	deal := models.Deal{
		LeadID:      leadID,
		ProjectID:   in.ProjectID,
		TotalAmount: in.TotalAmount,
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
		Type:        in.Type,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	}
	if err := deal.Validate(); err != nil {
		return models.Deal{}, invalid(map[string]string{"deal": err.Error()})
	}

	placeholder := deal
	placeholder.ID = uuid.New()
	placeholder.CreatedAt = now
	placeholder.UpdatedAt = now

	rec, err := d.exec.Execute(ctx, command.NewCreate(models.KindDeal, deal, placeholder, "Create deal for "+lead.FullName()))
	if err != nil {
		return models.Deal{}, err
	}
	created, _ := rec.(models.Deal)
	return created, nil
}

// CaptureDeal completes a pending capture raised by a Closed transition.
func (d *Dashboard) CaptureDeal(ctx context.Context, leadID uuid.UUID, in DealInput) (models.Deal, error) {
	deal, err := d.CreateDeal(ctx, leadID, in)
	if err != nil {
		return deal, err
	}
	d.DismissCapture(leadID)
	return deal, nil
}

func (d *Dashboard) DeleteDeal(ctx context.Context, id uuid.UUID) error {
	_, err := d.exec.Execute(ctx, command.NewDelete(models.KindDeal, id, true, "Delete deal"))
	return err
}

// MembershipEdit is an open project-membership form with the member set as
// it was when the form opened.
type MembershipEdit struct {
	ProjectID uuid.UUID
	Snapshot  []uuid.UUID
}

func (d *Dashboard) BeginMembershipEdit(projectID uuid.UUID) (MembershipEdit, error) {
	p, ok := d.store.Project(projectID)
	if !ok {
		return MembershipEdit{}, fmt.Errorf("project not found: %s", projectID)
	}
	return MembershipEdit{
		ProjectID: projectID,
		Snapshot:  append([]uuid.UUID(nil), p.LeadIDs...),
	}, nil
}

// CommitMembership sends only the members added and removed relative to the
// snapshot, so concurrent edits to other members survive.
func (d *Dashboard) CommitMembership(ctx context.Context, edit MembershipEdit, edited []uuid.UUID) (models.Project, error) {
	diff := models.DiffMembership(edit.Snapshot, edited)
	if diff.Empty() {
		p, _ := d.store.Project(edit.ProjectID)
		return p, nil
	}

	payload := map[string]any{
		"addLeadIds":    diff.Added,
		"removeLeadIds": diff.Removed,
	}
	cmd := command.NewPatch(models.KindProject, edit.ProjectID, payload, func(cur models.Record) models.Record {
		if p, ok := cur.(models.Project); ok {
			p.LeadIDs = models.ApplyMembership(p.LeadIDs, diff)
			return p
		}
		return cur
	}, "Update project members")
	rec, err := d.exec.Execute(ctx, cmd)
	if err != nil {
		return models.Project{}, err
	}
	p, _ := rec.(models.Project)
	return p, nil
}

// CreateTask adds a follow-up task.
func (d *Dashboard) CreateTask(ctx context.Context, title string, leadID, assigneeID *uuid.UUID, dueAt *time.Time) (models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Task{}, invalid(map[string]string{"title": "title is required"})
	}
	placeholder := models.NewTask(title, leadID, assigneeID, dueAt)
	payload := map[string]any{"title": title, "status": placeholder.Status}
	if leadID != nil {
		payload["leadId"] = *leadID
	}
	if assigneeID != nil {
		payload["assigneeId"] = *assigneeID
	}
	if dueAt != nil {
		payload["dueAt"] = *dueAt
	}
	rec, err := d.exec.Execute(ctx, command.NewCreate(models.KindTask, payload, placeholder, "Create task"))
	if err != nil {
		return models.Task{}, err
	}
	t, _ := rec.(models.Task)
	return t, nil
}

// TransitionTask changes a task's status.
func (d *Dashboard) TransitionTask(ctx context.Context, id uuid.UUID, status string) (models.Task, error) {
	task, ok := d.store.Task(id)
	if !ok {
		return models.Task{}, fmt.Errorf("task not found: %s", id)
	}
	if _, err := task.Transition(status); err != nil {
		return models.Task{}, invalid(map[string]string{"status": err.Error()})
	}

	cmd := command.NewPatch(models.KindTask, id, map[string]any{"status": status}, func(cur models.Record) models.Record {
		if t, ok := cur.(models.Task); ok {
			if next, err := t.Transition(status); err == nil {
				return next
			}
		}
		return cur
	}, "Update task "+task.Title)
	rec, err := d.exec.Execute(ctx, cmd)
	if err != nil {
		return models.Task{}, err
	}
	t, _ := rec.(models.Task)
	return t, nil
}
