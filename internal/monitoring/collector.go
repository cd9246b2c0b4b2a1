// Package monitoring watches cycle health across business units and raises
// webhook alerts when it degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/store"
)

// defaultLookback is the number of cycles considered when none is given.
const defaultLookback = 10

// TrendSnapshot summarizes the recent cycles of one business unit.
type TrendSnapshot struct {
	BusinessUnitID string `json:"business_unit_id"`

	Cycles      int     `json:"cycles"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failure_rate"`

	AvgEfficiency   float64 `json:"avg_efficiency"`
	EfficiencyTrend float64 `json:"efficiency_trend"`
	AvgDataQuality  float64 `json:"avg_data_quality"`
	Revenue         float64 `json:"revenue"`
	Proposals       int     `json:"proposals"`
	APICostUSD      float64 `json:"api_cost_usd"`

	// ZeroProposalStreak counts the most recent consecutive cycles that
	// generated no proposal.
	ZeroProposalStreak int `json:"zero_proposal_streak"`

	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LookbackCycles int        `json:"lookback_cycles"`
	CollectedAt    time.Time  `json:"collected_at"`
}

// History is the part of the store the collector reads.
type History interface {
	store.CycleStore
	store.FailureStore
}

// Collector builds trend snapshots from stored cycles and failures.
type Collector struct {
	store History
	now   func() time.Time
}

// NewCollector creates a new collector.
func NewCollector(st History) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect summarizes the last lookback completed cycles of bu. Failures are
// counted over the same window, from the oldest of those cycles onward.
func (c *Collector) Collect(ctx context.Context, bu string, lookback int) (*TrendSnapshot, error) {
	if lookback <= 0 {
		lookback = defaultLookback
	}
	snap := &TrendSnapshot{
		BusinessUnitID: bu,
		LookbackCycles: lookback,
		CollectedAt:    c.now().UTC(),
	}

	cycles, err := c.store.ListCycles(ctx, store.CycleFilter{BusinessUnitID: bu, Limit: lookback})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list cycles")
	}

	failFilter := store.CycleFilter{BusinessUnitID: bu, Limit: lookback}
	if len(cycles) > 0 {
		failFilter.Since = cycles[len(cycles)-1].StartTime
	}
	failures, err := c.store.ListFailures(ctx, failFilter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failures")
	}

	snap.Cycles = len(cycles)
	snap.Failures = len(failures)
	if total := snap.Cycles + snap.Failures; total > 0 {
		snap.FailureRate = float64(snap.Failures) / float64(total)
	}
	if snap.Cycles == 0 {
		return snap, nil
	}

	var eff, dq float64
	streak := true
	for _, m := range cycles {
		eff += m.CircleEfficiency
		dq += m.DataQualityScore
		snap.Revenue += m.RevenueGenerated
		snap.Proposals += m.ProposalsGenerated
		snap.APICostUSD += m.APICostUSD
		if streak && m.ProposalsGenerated == 0 {
			snap.ZeroProposalStreak++
		} else {
			streak = false
		}
	}
	n := float64(snap.Cycles)
	snap.AvgEfficiency = eff / n
	snap.AvgDataQuality = dq / n
	snap.EfficiencyTrend = cycles[0].CircleEfficiency - cycles[len(cycles)-1].CircleEfficiency

	last := cycles[0].StartTime
	if cycles[0].EndTime != nil {
		last = *cycles[0].EndTime
	}
	snap.LastCycleAt = &last
	return snap, nil
}
