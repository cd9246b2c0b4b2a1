// Package circle runs the virtuous circle: scrape labor-market signals,
// score them, detect opportunities, propose, track conversion, collect
// feedback and improve the models, once per cycle per business unit.
package circle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/cost"
	"github.com/huntred/circle/internal/lock"
	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/store"
)

// ErrCycleInProgress is reported when a business unit already has a cycle
// in flight.
var ErrCycleInProgress = eris.New("cycle already in progress")

// TargetSource yields the base scraping targets of a business unit.
type TargetSource interface {
	For(businessUnitID string) model.TargetSpec
}

// Scraper collects records for every target group of a spec.
type Scraper interface {
	Run(ctx context.Context, spec model.TargetSpec) (*model.ScrapeResult, error)
}

// MLProcessor is the ML collaborator consulted during scraping and ML
// processing.
type MLProcessor interface {
	PrioritizeTargets(ctx context.Context, bu string, base model.TargetSpec) (model.TargetSpec, error)
	CurrentAccuracy(ctx context.Context, bu string) (float64, error)
	Process(ctx context.Context, bu string, scraped *model.ScrapeResult) (*model.MLInsights, error)
	Retrain(ctx context.Context, bu string, scraped *model.ScrapeResult, patterns []string) (*model.RetrainResult, error)
}

// ModelTuner applies the improvement phase's updates.
type ModelTuner interface {
	TuneTargets(ctx context.Context, bu string, insights *model.MLInsights, feedback *model.FeedbackBundle) (int, error)
	ApplyOutcomes(ctx context.Context, bu string, outcomes []model.Outcome) (int, error)
	CalibrateProposals(ctx context.Context, bu string, conv *model.ConversionResult) (int, error)
}

// ProposalSender dispatches auto-sent proposals.
type ProposalSender interface {
	Send(ctx context.Context, p model.Proposal) (*model.DeliveryReceipt, error)
}

// ReviewQueue receives proposals that need a human before sending.
type ReviewQueue interface {
	Enqueue(ctx context.Context, p model.Proposal) error
}

// AcceptanceSource reports whether a proposal has been won, lost or is
// still open.
type AcceptanceSource interface {
	Status(ctx context.Context, p model.Proposal) (model.AcceptanceStatus, error)
}

// OutcomeLedger remembers sent proposals whose outcome is not known yet.
type OutcomeLedger interface {
	PendingOutcomes(ctx context.Context, bu string) ([]model.Outcome, error)
}

// History is the slice of the store the orchestrator writes to.
type History interface {
	store.CycleStore
	store.FailureStore
}

// Deps wires an Orchestrator. Review, Ledger, Feedback, Observer, Costs
// and Now are optional.
type Deps struct {
	Store      History
	Locker     lock.Locker
	Targets    TargetSource
	Scraper    Scraper
	ML         MLProcessor
	Tuner      ModelTuner
	Sender     ProposalSender
	Review     ReviewQueue
	Acceptance AcceptanceSource
	Ledger     OutcomeLedger
	Feedback   []FeedbackSource
	Observer   PhaseObserver
	Costs      *cost.Calculator
	Policy     config.CircleConfig
	// Rates are the expected acceptance rates per tier, used for
	// calibration feedback.
	Rates map[model.ValueTier]float64
	Now   func() time.Time
}

// Orchestrator runs complete cycles.
type Orchestrator struct {
	store     History
	locker    lock.Locker
	targets   TargetSource
	scraper   Scraper
	ml        MLProcessor
	detector  *Detector
	generator *Generator
	tracker   *Tracker
	ledger    OutcomeLedger
	collector *Collector
	improver  *Improver
	observer  PhaseObserver
	costs     *cost.Calculator
	policy    config.CircleConfig
	now       func() time.Time
}

// New validates d and builds an Orchestrator.
func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Store == nil:
		return nil, eris.New("circle: store is required")
	case d.Locker == nil:
		return nil, eris.New("circle: locker is required")
	case d.Targets == nil:
		return nil, eris.New("circle: target source is required")
	case d.Scraper == nil:
		return nil, eris.New("circle: scraper is required")
	case d.ML == nil:
		return nil, eris.New("circle: ml processor is required")
	case d.Tuner == nil:
		return nil, eris.New("circle: model tuner is required")
	case d.Sender == nil:
		return nil, eris.New("circle: proposal sender is required")
	case d.Acceptance == nil:
		return nil, eris.New("circle: acceptance source is required")
	}
	if err := d.Policy.Validate(); err != nil {
		return nil, err
	}

	now := d.Now
	if now == nil {
		now = time.Now
	}
	observer := d.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	gen := NewGenerator(d.Policy, d.Sender, d.Review)
	gen.now = now
	return &Orchestrator{
		store:     d.Store,
		locker:    d.Locker,
		targets:   d.Targets,
		scraper:   d.Scraper,
		ml:        d.ML,
		detector:  NewDetector(d.Policy),
		generator: gen,
		tracker:   NewTracker(d.Acceptance, d.Rates),
		ledger:    d.Ledger,
		collector: NewCollector(d.Feedback...),
		improver:  NewImprover(d.Tuner),
		observer:  observer,
		costs:     d.Costs,
		policy:    d.Policy,
		now:       now,
	}, nil
}

// RatesFromConfig converts the conversion.rates config section into
// per-tier rates.
func RatesFromConfig(rates map[string]float64) map[model.ValueTier]float64 {
	out := make(map[model.ValueTier]float64, len(rates))
	for k, v := range rates {
		out[model.ValueTier(k)] = v
	}
	return out
}

func newFailureID() string {
	return uuid.New().String()
}
