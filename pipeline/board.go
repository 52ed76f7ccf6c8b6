// ABOUTME: Pure projection of leads into stage columns for the kanban board
// ABOUTME: Applies search, owner, and project filters and a deterministic sort

package pipeline

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Filter narrows the board. Zero value matches every lead.
type Filter struct {
	Search    string
	OwnerID   *uuid.UUID
	ProjectID *uuid.UUID
}

// Active reports whether any criterion is set.
func (f Filter) Active() bool {
	return strings.TrimSpace(f.Search) != "" || f.OwnerID != nil || f.ProjectID != nil
}

type SortField string

const (
	SortLastName  SortField = "lastName"
	SortCreatedAt SortField = "createdAt"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type Sort struct {
	Field     SortField
	Direction Direction
}

// DefaultSort orders by last name, A to Z.
var DefaultSort = Sort{Field: SortLastName, Direction: Asc}

// Toggle flips the direction when field is already active, otherwise
// switches to field ascending.
func (s Sort) Toggle(field SortField) Sort {
	if s.Field == field {
		if s.Direction == Asc {
			return Sort{Field: field, Direction: Desc}
		}
		return Sort{Field: field, Direction: Asc}
	}
	return Sort{Field: field, Direction: Asc}
}

func (s Sort) normalized() Sort {
	if s.Field != SortCreatedAt {
		s.Field = SortLastName
	}
	if s.Direction != Desc {
		s.Direction = Asc
	}
	return s
}

type Column struct {
	Stage models.Stage
	Leads []models.Lead
}

// Board is the grouped-by-stage view. Columns follow models.PipelineStages.
type Board struct {
	Version uint64
	Columns []Column
}

// Column returns the leads in stage, or nil for Trash and unknown stages.
func (b Board) Column(stage models.Stage) []models.Lead {
	for _, c := range b.Columns {
		if c.Stage == stage {
			return c.Leads
		}
	}
	return nil
}

// Locate finds the column and row of a lead.
func (b Board) Locate(id uuid.UUID) (models.Stage, int, bool) {
	for _, c := range b.Columns {
		for i, l := range c.Leads {
			if l.ID == id {
				return c.Stage, i, true
			}
		}
	}
	return "", -1, false
}

func (b Board) Total() int {
	n := 0
	for _, c := range b.Columns {
		n += len(c.Leads)
	}
	return n
}

// Build groups leads by pipeline stage. Trash is excluded. The result depends
// only on its inputs.
func Build(leads []models.Lead, projects []models.Project, f Filter, s Sort) Board {
	m := newMatcher(f, projects)
	byStage := make(map[models.Stage][]models.Lead, len(models.PipelineStages))
	for _, l := range leads {
		if !l.Stage.IsPipeline() || !m.match(l) {
			continue
		}
		byStage[l.Stage] = append(byStage[l.Stage], l)
	}

	less := comparator(s)
	board := Board{Columns: make([]Column, 0, len(models.PipelineStages))}
	for _, st := range models.PipelineStages {
		col := byStage[st]
		sort.SliceStable(col, func(i, j int) bool { return less(col[i], col[j]) })
		if col == nil {
			col = []models.Lead{}
		}
		board.Columns = append(board.Columns, Column{Stage: st, Leads: col})
	}
	return board
}

// TrashList returns the soft-deleted leads with the same filter and sort.
func TrashList(leads []models.Lead, projects []models.Project, f Filter, s Sort) []models.Lead {
	m := newMatcher(f, projects)
	out := []models.Lead{}
	for _, l := range leads {
		if l.Stage == models.StageTrash && m.match(l) {
			out = append(out, l)
		}
	}
	less := comparator(s)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type matcher struct {
	query   string
	fold    cases.Caser
	owner   *uuid.UUID
	project *uuid.UUID
	members map[uuid.UUID]bool
}

func newMatcher(f Filter, projects []models.Project) *matcher {
	m := &matcher{
		fold:    cases.Fold(),
		owner:   f.OwnerID,
		project: f.ProjectID,
	}
	m.query = m.fold.String(strings.TrimSpace(f.Search))
	if f.ProjectID != nil {
		m.members = map[uuid.UUID]bool{}
		for _, p := range projects {
			if p.ID != *f.ProjectID {
				continue
			}
			for _, id := range p.LeadIDs {
				m.members[id] = true
			}
		}
	}
	return m
}

func (m *matcher) match(l models.Lead) bool {
	if m.owner != nil && (l.OwnerID == nil || *l.OwnerID != *m.owner) {
		return false
	}
	if m.project != nil {
		direct := l.ProjectID != nil && *l.ProjectID == *m.project
		if !direct && !m.members[l.ID] {
			return false
		}
	}
	if m.query == "" {
		return true
	}
	for _, field := range []string{l.FirstName, l.LastName, l.FullName(), l.Email, l.Company} {
		if strings.Contains(m.fold.String(field), m.query) {
			return true
		}
	}
	return false
}

func comparator(s Sort) func(a, b models.Lead) bool {
	s = s.normalized()
	col := collate.New(language.Und, collate.IgnoreCase)

	return func(a, b models.Lead) bool {
		var c int
		switch s.Field {
		case SortCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		default:
			c = col.CompareString(a.LastName, b.LastName)
		}
		if c != 0 {
			if s.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return a.ID.String() < b.ID.String()
	}
}
