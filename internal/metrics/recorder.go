// Package metrics exports cycle progress to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/huntred/circle/internal/model"
)

// Recorder implements circle.PhaseObserver using Prometheus.
type Recorder struct {
	cyclesTotal    *prometheus.CounterVec
	phasesTotal    *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	cycleDuration  *prometheus.HistogramVec
	activePhase    *prometheus.GaugeVec
	efficiency     *prometheus.GaugeVec
	dataQuality    *prometheus.GaugeVec
	roi            *prometheus.GaugeVec
	revenueTotal   *prometheus.CounterVec
	proposalsTotal *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
}

// New creates a Recorder registered with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		cyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circle_cycles_total",
				Help: "Cycles finished, by business unit and result",
			},
			[]string{"business_unit", "result"},
		),
		phasesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circle_phases_total",
				Help: "Phases finished, by phase and status",
			},
			[]string{"business_unit", "phase", "status"},
		),
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "circle_phase_duration_seconds",
				Help:    "Duration of circle phases in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
			},
			[]string{"phase"},
		),
		cycleDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "circle_cycle_duration_seconds",
				Help:    "Wall-clock duration of cycles in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"business_unit", "result"},
		),
		activePhase: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circle_active_phase",
				Help: "Index of the running phase (1-7), 0 when idle",
			},
			[]string{"business_unit"},
		),
		efficiency: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circle_last_efficiency",
				Help: "Circle efficiency of the last completed cycle",
			},
			[]string{"business_unit"},
		),
		dataQuality: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circle_last_data_quality",
				Help: "Data quality score of the last completed cycle",
			},
			[]string{"business_unit"},
		),
		roi: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circle_last_roi_improvement",
				Help: "ROI improvement of the last completed cycle",
			},
			[]string{"business_unit"},
		),
		revenueTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circle_revenue_total",
				Help: "Revenue attributed to accepted proposals",
			},
			[]string{"business_unit"},
		),
		proposalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circle_proposals_total",
				Help: "Proposals by outcome",
			},
			[]string{"business_unit", "outcome"},
		),
		lastSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circle_last_success_timestamp_seconds",
				Help: "Unix time of the last successful cycle",
			},
			[]string{"business_unit"},
		),
	}
}

func (r *Recorder) PhaseStarted(_, bu string, phase model.CirclePhase) {
	r.activePhase.WithLabelValues(bu).Set(float64(phase.Index() + 1))
}

func (r *Recorder) PhaseFinished(_, bu string, result model.PhaseResult) {
	r.phasesTotal.WithLabelValues(bu, result.Name.String(), string(result.Status)).Inc()
	r.phaseDuration.WithLabelValues(result.Name.String()).Observe(float64(result.Duration) / 1000)
}

func (r *Recorder) CycleFinished(report *model.CycleReport) {
	bu := report.BusinessUnitID
	r.activePhase.WithLabelValues(bu).Set(0)

	result := "failure"
	if report.Success {
		result = "success"
	}
	r.cyclesTotal.WithLabelValues(bu, result).Inc()
	r.cycleDuration.WithLabelValues(bu, result).Observe(report.ExecutionTimeSeconds)

	m := report.Metrics
	if !report.Success || m == nil {
		return
	}
	r.efficiency.WithLabelValues(bu).Set(m.CircleEfficiency)
	r.dataQuality.WithLabelValues(bu).Set(m.DataQualityScore)
	r.roi.WithLabelValues(bu).Set(m.ROIImprovement)
	r.revenueTotal.WithLabelValues(bu).Add(m.RevenueGenerated)
	r.proposalsTotal.WithLabelValues(bu, "generated").Add(float64(m.ProposalsGenerated))
	r.proposalsTotal.WithLabelValues(bu, "sent").Add(float64(m.ProposalsSent))
	r.proposalsTotal.WithLabelValues(bu, "accepted").Add(float64(m.ProposalsAccepted))

	end := time.Now()
	if m.EndTime != nil {
		end = *m.EndTime
	}
	r.lastSuccess.WithLabelValues(bu).Set(float64(end.Unix()))
}
