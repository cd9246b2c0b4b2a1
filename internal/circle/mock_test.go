package circle

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/huntred/circle/internal/model"
)

// --- Targets ---

type staticTargets struct {
	spec model.TargetSpec
}

func (s staticTargets) For(bu string) model.TargetSpec {
	out := s.spec.Clone()
	out.BusinessUnitID = bu
	return out
}

// --- Scraper Mock ---

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Run(ctx context.Context, spec model.TargetSpec) (*model.ScrapeResult, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScrapeResult), args.Error(1)
}

// --- ML Mock ---

type mockML struct {
	mock.Mock
}

func (m *mockML) PrioritizeTargets(ctx context.Context, bu string, base model.TargetSpec) (model.TargetSpec, error) {
	args := m.Called(ctx, bu, base)
	return args.Get(0).(model.TargetSpec), args.Error(1)
}

func (m *mockML) CurrentAccuracy(ctx context.Context, bu string) (float64, error) {
	args := m.Called(ctx, bu)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockML) Process(ctx context.Context, bu string, scraped *model.ScrapeResult) (*model.MLInsights, error) {
	args := m.Called(ctx, bu, scraped)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MLInsights), args.Error(1)
}

func (m *mockML) Retrain(ctx context.Context, bu string, scraped *model.ScrapeResult, patterns []string) (*model.RetrainResult, error) {
	args := m.Called(ctx, bu, scraped, patterns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RetrainResult), args.Error(1)
}

// --- Tuner Mock ---

type mockTuner struct {
	mock.Mock
}

func (m *mockTuner) TuneTargets(ctx context.Context, bu string, insights *model.MLInsights, feedback *model.FeedbackBundle) (int, error) {
	args := m.Called(ctx, bu, insights, feedback)
	return args.Int(0), args.Error(1)
}

func (m *mockTuner) ApplyOutcomes(ctx context.Context, bu string, outcomes []model.Outcome) (int, error) {
	args := m.Called(ctx, bu, outcomes)
	return args.Int(0), args.Error(1)
}

func (m *mockTuner) CalibrateProposals(ctx context.Context, bu string, conv *model.ConversionResult) (int, error) {
	args := m.Called(ctx, bu, conv)
	return args.Int(0), args.Error(1)
}

// --- Sender Mock ---

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, p model.Proposal) (*model.DeliveryReceipt, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryReceipt), args.Error(1)
}

// --- Review Queue Mock ---

type mockReview struct {
	mock.Mock
}

func (m *mockReview) Enqueue(ctx context.Context, p model.Proposal) error {
	return m.Called(ctx, p).Error(0)
}

// --- Acceptance Mock ---

type mockAcceptance struct {
	mock.Mock
}

func (m *mockAcceptance) Status(ctx context.Context, p model.Proposal) (model.AcceptanceStatus, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(model.AcceptanceStatus), args.Error(1)
}

// --- Ledger Mock ---

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) PendingOutcomes(ctx context.Context, bu string) ([]model.Outcome, error) {
	args := m.Called(ctx, bu)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Outcome), args.Error(1)
}

// --- Feedback Source Mock ---

type mockFeedbackSource struct {
	mock.Mock
	name string
}

func (m *mockFeedbackSource) Name() string { return m.name }

func (m *mockFeedbackSource) Collect(ctx context.Context, cc *CycleContext) (*model.SourceFeedback, error) {
	args := m.Called(ctx, cc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SourceFeedback), args.Error(1)
}

// --- Observer ---

type recordingObserver struct {
	mu       sync.Mutex
	started  []model.CirclePhase
	finished []model.PhaseResult
	reports  []*model.CycleReport
}

func (r *recordingObserver) PhaseStarted(_, _ string, phase model.CirclePhase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, phase)
}

func (r *recordingObserver) PhaseFinished(_, _ string, result model.PhaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, result)
}

func (r *recordingObserver) CycleFinished(report *model.CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}
