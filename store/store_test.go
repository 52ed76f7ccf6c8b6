// ABOUTME: Tests for the entity store
// ABOUTME: Covers upsert/remove/get/list semantics, insertion order, and change notifications

package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lead(first, last string, stage models.Stage) models.Lead {
	return models.Lead{ID: uuid.New(), FirstName: first, LastName: last, Stage: stage}
}

func TestUpsertGetRemove(t *testing.T) {
	s := New()
	l := lead("Grace", "Hopper", models.StageIdentified)

	s.Upsert(l)
	got, ok := s.Lead(l.ID)
	require.True(t, ok)
	assert.Equal(t, l, got)

	moved := l.WithStage(models.StageQualified)
	s.Upsert(moved)
	got, _ = s.Lead(l.ID)
	assert.Equal(t, models.StageQualified, got.Stage)
	assert.Equal(t, 1, s.Len(models.KindLead))

	removed, ok := s.Remove(models.KindLead, l.ID)
	require.True(t, ok)
	assert.Equal(t, moved, removed)

	_, ok = s.Get(models.KindLead, l.ID)
	assert.False(t, ok)

	_, ok = s.Remove(models.KindLead, l.ID)
	assert.False(t, ok, "removing twice reports absence")
}

func TestListKeepsFirstInsertionOrder(t *testing.T) {
	s := New()
	a := lead("A", "A", models.StageIdentified)
	b := lead("B", "B", models.StageIdentified)
	c := lead("C", "C", models.StageIdentified)
	s.Upsert(a)
	s.Upsert(b)
	s.Upsert(c)

	// Updating a does not move it to the end.
	s.Upsert(a.WithStage(models.StageClosed))

	leads := s.Leads()
	require.Len(t, leads, 3)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, []uuid.UUID{leads[0].ID, leads[1].ID, leads[2].ID})
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := New()
	var changes []Change
	cancel := s.Subscribe(func(ch Change) { changes = append(changes, ch) })

	l := lead("Ada", "Lovelace", models.StageContacted)
	s.Upsert(l)
	s.Remove(models.KindLead, l.ID)
	s.Replace(models.KindUser, []models.Record{models.User{ID: uuid.New(), Name: "Owner"}})

	require.Len(t, changes, 3)
	assert.Equal(t, ChangeUpsert, changes[0].Op)
	assert.Equal(t, ChangeRemove, changes[1].Op)
	assert.Equal(t, ChangeReplace, changes[2].Op)
	assert.Equal(t, models.KindUser, changes[2].Kind)
	assert.Less(t, changes[0].Version, changes[1].Version)

	cancel()
	s.Upsert(l)
	assert.Len(t, changes, 3, "no notifications after unsubscribe")
}

func TestSubscriberCanReadStore(t *testing.T) {
	s := New()
	l := lead("Ada", "Lovelace", models.StageContacted)

	var seen models.Stage
	s.Subscribe(func(ch Change) {
		if got, ok := s.Lead(ch.ID); ok {
			seen = got.Stage
		}
	})
	s.Upsert(l)
	assert.Equal(t, models.StageContacted, seen)
}

func TestReplaceDropsOtherKinds(t *testing.T) {
	s := New()
	s.Upsert(lead("Old", "Lead", models.StageIdentified))

	fresh := lead("New", "Lead", models.StageContacted)
	s.Replace(models.KindLead, []models.Record{fresh, models.User{ID: uuid.New()}})

	leads := s.Leads()
	require.Len(t, leads, 1)
	assert.Equal(t, fresh.ID, leads[0].ID)
	assert.Equal(t, 0, s.Len(models.KindUser))
}

func TestCommentsForLeadMostRecentFirst(t *testing.T) {
	s := New()
	l := lead("Ada", "Lovelace", models.StageContacted)
	s.Upsert(l)

	now := time.Now()
	older := models.Comment{ID: uuid.New(), LeadID: l.ID, Body: "first", CreatedAt: now.Add(-time.Hour)}
	newer := models.Comment{ID: uuid.New(), LeadID: l.ID, Body: "second", CreatedAt: now}
	other := models.Comment{ID: uuid.New(), LeadID: uuid.New(), Body: "elsewhere", CreatedAt: now}
	s.Upsert(older)
	s.Upsert(newer)
	s.Upsert(other)

	comments := s.CommentsForLead(l.ID)
	require.Len(t, comments, 2)
	assert.Equal(t, "second", comments[0].Body)
	assert.Equal(t, "first", comments[1].Body)
}

func TestDealsAndTasksForLead(t *testing.T) {
	s := New()
	l := lead("Ada", "Lovelace", models.StageClosed)
	s.Upsert(l)
	s.Upsert(models.Deal{ID: uuid.New(), LeadID: l.ID, Type: models.DealOffsite})
	s.Upsert(models.Deal{ID: uuid.New(), LeadID: uuid.New(), Type: models.DealConsulting})
	s.Upsert(models.NewTask("Kickoff", &l.ID, nil, nil))
	s.Upsert(models.NewTask("Unrelated", nil, nil, nil))

	assert.Len(t, s.DealsForLead(l.ID), 1)
	assert.Len(t, s.TasksForLead(l.ID), 1)
	assert.Len(t, s.Deals(), 2)
}

func TestVersionIncrements(t *testing.T) {
	s := New()
	v0 := s.Version()
	s.Upsert(lead("A", "B", models.StageIdentified))
	assert.Equal(t, v0+1, s.Version())
}
