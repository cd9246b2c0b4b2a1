package circle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/store"
)

// Status summarises recent cycle history for a business unit.
// EfficiencyTrend is the newest cycle's efficiency minus the oldest's within
// the window.
type Status struct {
	BusinessUnitID    string               `json:"business_unit_id"`
	Cycles            int                  `json:"cycles"`
	Failures          int                  `json:"failures"`
	AverageEfficiency float64              `json:"average_efficiency"`
	EfficiencyTrend   float64              `json:"efficiency_trend"`
	TotalRevenue      float64              `json:"total_revenue"`
	TotalProposals    int                  `json:"total_proposals"`
	LastCycleAt       *time.Time           `json:"last_cycle_at,omitempty"`
	NextCycleDue      *time.Time           `json:"next_cycle_due,omitempty"`
	Recent            []model.CycleMetrics `json:"recent"`
	RecentFailures    []model.CycleFailure `json:"recent_failures,omitempty"`
}

// Status reports on the last n completed cycles of a business unit and the
// failures recorded over the same period.
func (o *Orchestrator) Status(ctx context.Context, businessUnitID string, n int) (*Status, error) {
	return StatusOf(ctx, o.store, o.policy.NextCycleHours, businessUnitID, n)
}

// StatusOf builds a Status straight from history, for callers without an
// orchestrator. The next cycle is due nextCycleHours after the last one.
func StatusOf(ctx context.Context, h History, nextCycleHours int, businessUnitID string, n int) (*Status, error) {
	bu := businessUnitID
	if bu == "" {
		bu = model.DefaultBusinessUnit
	}
	if n <= 0 {
		n = 10
	}

	cycles, err := h.ListCycles(ctx, store.CycleFilter{BusinessUnitID: bu, Limit: n})
	if err != nil {
		return nil, eris.Wrap(err, "circle: list cycles")
	}

	st := &Status{BusinessUnitID: bu, Recent: cycles, Cycles: len(cycles)}
	filter := store.CycleFilter{BusinessUnitID: bu, Limit: n}
	if len(cycles) > 0 {
		filter.Since = cycles[len(cycles)-1].StartTime
	}
	failures, err := h.ListFailures(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "circle: list failures")
	}
	st.RecentFailures = failures
	st.Failures = len(failures)

	if len(cycles) == 0 {
		return st, nil
	}
	var effSum float64
	for _, c := range cycles {
		effSum += c.CircleEfficiency
		st.TotalRevenue += c.RevenueGenerated
		st.TotalProposals += c.ProposalsGenerated
	}
	st.TotalRevenue = round2(st.TotalRevenue)
	st.AverageEfficiency = effSum / float64(len(cycles))
	st.EfficiencyTrend = cycles[0].CircleEfficiency - cycles[len(cycles)-1].CircleEfficiency

	last := cycles[0].StartTime
	if cycles[0].EndTime != nil {
		last = *cycles[0].EndTime
	}
	st.LastCycleAt = &last
	hours := nextCycleHours
	if hours <= 0 {
		hours = 24
	}
	due := last.Add(time.Duration(hours) * time.Hour)
	st.NextCycleDue = &due
	return st, nil
}
