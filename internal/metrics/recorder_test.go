package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/huntred/circle/internal/model"
)

func TestRecorder_Phases(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.PhaseStarted("VC_1", "acme", model.PhaseProposalGeneration)
	assert.InDelta(t, 4, testutil.ToFloat64(r.activePhase.WithLabelValues("acme")), 0.001)

	r.PhaseFinished("VC_1", "acme", model.PhaseResult{
		Name:     model.PhaseProposalGeneration,
		Status:   model.PhaseStatusComplete,
		Duration: 1500,
	})
	assert.InDelta(t, 1, testutil.ToFloat64(r.phasesTotal.WithLabelValues("acme", "proposal_generation", "complete")), 0.001)
	assert.Equal(t, 1, testutil.CollectAndCount(r.phaseDuration))
}

func TestRecorder_CycleFinished(t *testing.T) {
	r := New(prometheus.NewRegistry())
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r.CycleFinished(&model.CycleReport{
		Success:              true,
		BusinessUnitID:       "acme",
		ExecutionTimeSeconds: 42,
		Metrics: &model.CycleMetrics{
			EndTime:            &end,
			CircleEfficiency:   0.72,
			DataQualityScore:   0.8,
			ROIImprovement:     1.3,
			RevenueGenerated:   250000,
			ProposalsGenerated: 5,
			ProposalsSent:      3,
			ProposalsAccepted:  1,
		},
	})
	r.CycleFinished(&model.CycleReport{Success: false, BusinessUnitID: "acme", Error: "boom"})

	assert.InDelta(t, 1, testutil.ToFloat64(r.cyclesTotal.WithLabelValues("acme", "success")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(r.cyclesTotal.WithLabelValues("acme", "failure")), 0.001)
	assert.InDelta(t, 0.72, testutil.ToFloat64(r.efficiency.WithLabelValues("acme")), 0.001)
	assert.InDelta(t, 250000, testutil.ToFloat64(r.revenueTotal.WithLabelValues("acme")), 0.001)
	assert.InDelta(t, 3, testutil.ToFloat64(r.proposalsTotal.WithLabelValues("acme", "sent")), 0.001)
	assert.InDelta(t, float64(end.Unix()), testutil.ToFloat64(r.lastSuccess.WithLabelValues("acme")), 0.001)
	assert.Zero(t, testutil.ToFloat64(r.activePhase.WithLabelValues("acme")))
}
