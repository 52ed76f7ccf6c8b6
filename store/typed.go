// ABOUTME: Typed accessors over the kind-generic entity store
// ABOUTME: Lead, deal, project, task, comment, and user lookups plus per-lead derived lists

package store

import (
	"sort"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
)

func (s *Store) Lead(id uuid.UUID) (models.Lead, bool) {
	rec, ok := s.Get(models.KindLead, id)
	if !ok {
		return models.Lead{}, false
	}
	lead, ok := rec.(models.Lead)
	return lead, ok
}

func (s *Store) Leads() []models.Lead {
	return listOf[models.Lead](s, models.KindLead)
}

func (s *Store) Deal(id uuid.UUID) (models.Deal, bool) {
	rec, ok := s.Get(models.KindDeal, id)
	if !ok {
		return models.Deal{}, false
	}
	deal, ok := rec.(models.Deal)
	return deal, ok
}

func (s *Store) Deals() []models.Deal {
	return listOf[models.Deal](s, models.KindDeal)
}

// DealsForLead returns the deals owned by the lead.
func (s *Store) DealsForLead(leadID uuid.UUID) []models.Deal {
	var out []models.Deal
	for _, d := range s.Deals() {
		if d.LeadID == leadID {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) Project(id uuid.UUID) (models.Project, bool) {
	rec, ok := s.Get(models.KindProject, id)
	if !ok {
		return models.Project{}, false
	}
	p, ok := rec.(models.Project)
	return p, ok
}

func (s *Store) Projects() []models.Project {
	return listOf[models.Project](s, models.KindProject)
}

func (s *Store) Task(id uuid.UUID) (models.Task, bool) {
	rec, ok := s.Get(models.KindTask, id)
	if !ok {
		return models.Task{}, false
	}
	t, ok := rec.(models.Task)
	return t, ok
}

// TasksForLead returns tasks that reference the lead.
func (s *Store) TasksForLead(leadID uuid.UUID) []models.Task {
	var out []models.Task
	for _, t := range listOf[models.Task](s, models.KindTask) {
		if t.LeadID != nil && *t.LeadID == leadID {
			out = append(out, t)
		}
	}
	return out
}

// CommentsForLead returns the lead's comments, most recent first.
func (s *Store) CommentsForLead(leadID uuid.UUID) []models.Comment {
	var out []models.Comment
	for _, c := range listOf[models.Comment](s, models.KindComment) {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *Store) User(id uuid.UUID) (models.User, bool) {
	rec, ok := s.Get(models.KindUser, id)
	if !ok {
		return models.User{}, false
	}
	u, ok := rec.(models.User)
	return u, ok
}

func (s *Store) Users() []models.User {
	return listOf[models.User](s, models.KindUser)
}

func listOf[T models.Record](s *Store, kind models.Kind) []T {
	recs := s.List(kind)
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		if v, ok := rec.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
