// ABOUTME: Tests for the pure board projection
// ABOUTME: Covers grouping, trash exclusion, filters, sort direction, and deterministic tie-breaks

package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func lead(first, last string, stage models.Stage, age int) models.Lead {
	return models.Lead{
		ID:        uuid.New(),
		FirstName: first,
		LastName:  last,
		Stage:     stage,
		CreatedAt: base.Add(time.Duration(age) * time.Hour),
	}
}

func names(leads []models.Lead) []string {
	out := make([]string, 0, len(leads))
	for _, l := range leads {
		out = append(out, l.LastName)
	}
	return out
}

func TestBuildGroupsByStageAndExcludesTrash(t *testing.T) {
	leads := []models.Lead{
		lead("A", "Zed", models.StageIdentified, 1),
		lead("B", "Young", models.StageClosed, 2),
		lead("C", "Xu", models.StageTrash, 3),
		lead("D", "Abbot", models.StageIdentified, 4),
	}

	board := Build(leads, nil, Filter{}, DefaultSort)
	require.Len(t, board.Columns, len(models.PipelineStages))
	assert.Equal(t, []string{"Abbot", "Zed"}, names(board.Column(models.StageIdentified)))
	assert.Equal(t, []string{"Young"}, names(board.Column(models.StageClosed)))
	assert.Empty(t, board.Column(models.StageContacted))
	assert.Nil(t, board.Column(models.StageTrash))
	assert.Equal(t, 3, board.Total())

	_, _, found := board.Locate(leads[2].ID)
	assert.False(t, found)
	stage, row, found := board.Locate(leads[0].ID)
	require.True(t, found)
	assert.Equal(t, models.StageIdentified, stage)
	assert.Equal(t, 1, row)

	assert.Equal(t, []string{"Xu"}, names(TrashList(leads, nil, Filter{}, DefaultSort)))
}

func TestBuildIsIdempotent(t *testing.T) {
	leads := []models.Lead{
		lead("A", "Same", models.StageQualified, 1),
		lead("B", "Same", models.StageQualified, 1),
		lead("C", "Same", models.StageQualified, 1),
	}
	first := Build(leads, nil, Filter{}, DefaultSort)
	reversed := []models.Lead{leads[2], leads[1], leads[0]}
	second := Build(reversed, nil, Filter{}, DefaultSort)
	assert.Equal(t, first, second)
	assert.Equal(t, first, Build(leads, nil, Filter{}, DefaultSort))
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	leads := []models.Lead{
		lead("A", "Zed", models.StageIdentified, 1),
		lead("B", "Abbot", models.StageIdentified, 2),
	}
	Build(leads, nil, Filter{}, DefaultSort)
	assert.Equal(t, "Zed", leads[0].LastName)
}

func TestSortByCreatedAtAndToggle(t *testing.T) {
	leads := []models.Lead{
		lead("A", "Old", models.StageContacted, 1),
		lead("B", "New", models.StageContacted, 5),
		lead("C", "Mid", models.StageContacted, 3),
	}

	s := DefaultSort.Toggle(SortCreatedAt)
	assert.Equal(t, Sort{Field: SortCreatedAt, Direction: Asc}, s)
	assert.Equal(t, []string{"Old", "Mid", "New"}, names(Build(leads, nil, Filter{}, s).Column(models.StageContacted)))

	s = s.Toggle(SortCreatedAt)
	assert.Equal(t, Desc, s.Direction)
	assert.Equal(t, []string{"New", "Mid", "Old"}, names(Build(leads, nil, Filter{}, s).Column(models.StageContacted)))
}

func TestLastNameSortIsCaseInsensitive(t *testing.T) {
	leads := []models.Lead{
		lead("A", "beta", models.StageContacted, 1),
		lead("B", "Alpha", models.StageContacted, 2),
		lead("C", "Çelik", models.StageContacted, 3),
	}
	got := names(Build(leads, nil, Filter{}, DefaultSort).Column(models.StageContacted))
	assert.Equal(t, []string{"Alpha", "beta", "Çelik"}, got)
}

func TestSearchFilter(t *testing.T) {
	a := lead("Grace", "Hopper", models.StageIdentified, 1)
	a.Company = "Navy"
	b := lead("Alan", "Turing", models.StageQualified, 2)
	b.Email = "alan@example.com"
	leads := []models.Lead{a, b}

	assert.Equal(t, 1, Build(leads, nil, Filter{Search: "navy"}, DefaultSort).Total())
	assert.Equal(t, 1, Build(leads, nil, Filter{Search: "ALAN@"}, DefaultSort).Total())
	assert.Equal(t, 1, Build(leads, nil, Filter{Search: "grace hopper"}, DefaultSort).Total())
	assert.Equal(t, 0, Build(leads, nil, Filter{Search: "lovelace"}, DefaultSort).Total())
	assert.Equal(t, 2, Build(leads, nil, Filter{Search: "  "}, DefaultSort).Total())
}

func TestOwnerAndProjectFilters(t *testing.T) {
	owner := uuid.New()
	projectID := uuid.New()

	a := lead("A", "Owned", models.StageIdentified, 1)
	a.OwnerID = &owner
	b := lead("B", "Member", models.StageIdentified, 2)
	c := lead("C", "Direct", models.StageIdentified, 3)
	c.ProjectID = &projectID
	leads := []models.Lead{a, b, c}
	projects := []models.Project{{ID: projectID, LeadIDs: []uuid.UUID{b.ID}}}

	assert.Equal(t, []string{"Owned"}, names(Build(leads, projects, Filter{OwnerID: &owner}, DefaultSort).Column(models.StageIdentified)))
	assert.Equal(t, []string{"Direct", "Member"}, names(Build(leads, projects, Filter{ProjectID: &projectID}, DefaultSort).Column(models.StageIdentified)))
	assert.True(t, Filter{OwnerID: &owner}.Active())
	assert.False(t, Filter{}.Active())
}

func TestSummarize(t *testing.T) {
	closed := lead("A", "Won", models.StageClosed, 1)
	open := lead("B", "Open", models.StageQualified, 2)
	trashed := lead("C", "Gone", models.StageTrash, 3)
	deals := []models.Deal{
		{ID: uuid.New(), LeadID: closed.ID, TotalAmount: 1000, Currency: "EUR"},
		{ID: uuid.New(), LeadID: closed.ID, TotalAmount: 500, Currency: "EUR"},
		{ID: uuid.New(), LeadID: closed.ID, TotalAmount: 700, Currency: "USD"},
		{ID: uuid.New(), LeadID: trashed.ID, TotalAmount: 999, Currency: "EUR"},
	}

	sum := Summarize([]models.Lead{closed, open, trashed}, deals)
	require.Len(t, sum, len(models.PipelineStages))
	last := sum[len(sum)-1]
	assert.Equal(t, models.StageClosed, last.Stage)
	assert.Equal(t, 1, last.Leads)
	assert.Equal(t, int64(1500), last.DealValue["EUR"])
	assert.Equal(t, []string{"EUR", "USD"}, last.Currencies())
	assert.Equal(t, 1, sum[models.StageQualified.Index()].Leads)
}
