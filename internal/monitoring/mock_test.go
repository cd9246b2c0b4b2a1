package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/store"
)

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) SaveCycle(ctx context.Context, c *model.CycleMetrics) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockHistory) GetCycle(ctx context.Context, id string) (*model.CycleMetrics, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CycleMetrics), args.Error(1)
}

func (m *mockHistory) ListCycles(ctx context.Context, f store.CycleFilter) ([]model.CycleMetrics, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CycleMetrics), args.Error(1)
}

func (m *mockHistory) SaveFailure(ctx context.Context, f model.CycleFailure) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockHistory) ListFailures(ctx context.Context, f store.CycleFilter) ([]model.CycleFailure, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CycleFailure), args.Error(1)
}

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func saveCycle(t *testing.T, st *store.MemoryStore, id, bu string, start time.Time, eff float64, proposals int) {
	t.Helper()
	end := start.Add(10 * time.Minute)
	require.NoError(t, st.SaveCycle(context.Background(), &model.CycleMetrics{
		CycleID:            id,
		BusinessUnitID:     bu,
		StartTime:          start,
		EndTime:            &end,
		Phase:              model.PhaseModelImprovement,
		CircleEfficiency:   eff,
		DataQualityScore:   0.8,
		ProposalsGenerated: proposals,
		RevenueGenerated:   float64(proposals) * 10000,
	}))
}

func saveFailure(t *testing.T, st *store.MemoryStore, bu string, at time.Time) {
	t.Helper()
	require.NoError(t, st.SaveFailure(context.Background(), model.CycleFailure{
		ID:             "f-" + at.Format(time.RFC3339),
		CycleID:        "VC_failed",
		BusinessUnitID: bu,
		Phase:          model.PhaseScraping,
		Error:          "boom",
		StartedAt:      at.Add(-time.Minute),
		FailedAt:       at,
	}))
}

// seededStore holds three acme cycles, one in-window and one stale acme
// failure, and an unrelated business unit.
func seededStore(t *testing.T) *store.MemoryStore {
	st := store.NewMemory()
	day := 24 * time.Hour
	saveCycle(t, st, "VC_1", "acme", t0, 0.4, 3)
	saveCycle(t, st, "VC_2", "acme", t0.Add(day), 0.5, 0)
	saveCycle(t, st, "VC_3", "acme", t0.Add(2*day), 0.7, 0)
	saveCycle(t, st, "VC_9", "globex", t0, 0.9, 5)
	saveFailure(t, st, "acme", t0.Add(36*time.Hour))
	saveFailure(t, st, "acme", t0.Add(-day))
	return st
}
