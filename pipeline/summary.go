// ABOUTME: Derived per-stage counts and deal totals for the board header
// ABOUTME: Recomputed from the store like the board itself

package pipeline

import (
	"sort"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
)

type StageSummary struct {
	Stage models.Stage
	Leads int
	// DealValue is the sum of deal amounts in cents, per currency.
	DealValue map[string]int64
}

// Summarize counts leads per pipeline stage and totals the deals of those leads.
func Summarize(leads []models.Lead, deals []models.Deal) []StageSummary {
	stageOf := make(map[uuid.UUID]models.Stage, len(leads))
	out := make([]StageSummary, len(models.PipelineStages))
	for i, st := range models.PipelineStages {
		out[i] = StageSummary{Stage: st, DealValue: map[string]int64{}}
	}

	for _, l := range leads {
		stageOf[l.ID] = l.Stage
		if i := l.Stage.Index(); i >= 0 {
			out[i].Leads++
		}
	}
	for _, d := range deals {
		st, ok := stageOf[d.LeadID]
		if !ok {
			continue
		}
		if i := st.Index(); i >= 0 {
			out[i].DealValue[d.Currency] += d.TotalAmount
		}
	}
	return out
}

// Currencies lists the currencies present in a summary, sorted.
func (s StageSummary) Currencies() []string {
	out := make([]string, 0, len(s.DealValue))
	for c := range s.DealValue {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
