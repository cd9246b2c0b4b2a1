package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestMemory(t *testing.T) Store {
	t.Helper()
	return NewMemory()
}

var baseTime = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func completedCycle(id, bu string, offset time.Duration) *model.CycleMetrics {
	start := baseTime.Add(offset)
	end := start.Add(2 * time.Minute)
	return &model.CycleMetrics{
		CycleID:               id,
		BusinessUnitID:        bu,
		StartTime:             start,
		EndTime:               &end,
		Phase:                 model.PhaseModelImprovement,
		ProfilesExtracted:     420,
		OpportunitiesDetected: 12,
		ConversionRate:        0.25,
		RevenueGenerated:      187500,
		CircleEfficiency:      0.61,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetCycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m := completedCycle("VC_1", "executive", 0)
		require.NoError(t, s.SaveCycle(ctx, m))

		got, err := s.GetCycle(ctx, "VC_1")
		require.NoError(t, err)
		assert.Equal(t, "VC_1", got.CycleID)
		assert.Equal(t, "executive", got.BusinessUnitID)
		assert.Equal(t, 420, got.ProfilesExtracted)
		assert.InDelta(t, 187500, got.RevenueGenerated, 0.001)
		require.NotNil(t, got.EndTime)
		assert.True(t, got.EndTime.Equal(*m.EndTime))
		assert.Equal(t, model.PhaseModelImprovement, got.Phase)
	})

	t.Run("GetCycleNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetCycle(context.Background(), "VC_missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("SaveCycleAppendOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SaveCycle(ctx, completedCycle("VC_1", "executive", 0)))

		changed := completedCycle("VC_1", "executive", 0)
		changed.RevenueGenerated = 1
		err := s.SaveCycle(ctx, changed)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCycleExists))

		got, err := s.GetCycle(ctx, "VC_1")
		require.NoError(t, err)
		assert.InDelta(t, 187500, got.RevenueGenerated, 0.001)
	})

	t.Run("SaveCycleRejectsIncomplete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m := completedCycle("VC_2", "executive", 0)
		m.EndTime = nil
		err := s.SaveCycle(ctx, m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIncomplete))

		_, err = s.GetCycle(ctx, "VC_2")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("SaveCycleRequiresID", func(t *testing.T) {
		s := newStore(t)
		err := s.SaveCycle(context.Background(), &model.CycleMetrics{})
		assert.Error(t, err)
	})

	t.Run("SavedCycleIsNotAliased", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m := completedCycle("VC_3", "executive", 0)
		require.NoError(t, s.SaveCycle(ctx, m))
		m.ProfilesExtracted = 0

		got, err := s.GetCycle(ctx, "VC_3")
		require.NoError(t, err)
		assert.Equal(t, 420, got.ProfilesExtracted)
	})

	t.Run("ListCyclesNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			bu := "executive"
			if i%2 == 1 {
				bu = "amigro"
			}
			require.NoError(t, s.SaveCycle(ctx, completedCycle(fmt.Sprintf("VC_%d", i), bu, time.Duration(i)*24*time.Hour)))
		}

		all, err := s.ListCycles(ctx, CycleFilter{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, "VC_4", all[0].CycleID)
		assert.Equal(t, "VC_0", all[4].CycleID)

		exec, err := s.ListCycles(ctx, CycleFilter{BusinessUnitID: "executive"})
		require.NoError(t, err)
		require.Len(t, exec, 3)
		for _, m := range exec {
			assert.Equal(t, "executive", m.BusinessUnitID)
		}

		recent, err := s.ListCycles(ctx, CycleFilter{Since: baseTime.Add(72 * time.Hour)})
		require.NoError(t, err)
		assert.Len(t, recent, 2)

		page, err := s.ListCycles(ctx, CycleFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "VC_3", page[0].CycleID)
		assert.Equal(t, "VC_2", page[1].CycleID)
	})

	t.Run("Failures", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i, bu := range []string{"executive", "amigro", "executive"} {
			require.NoError(t, s.SaveFailure(ctx, model.CycleFailure{
				ID:             fmt.Sprintf("f-%d", i),
				CycleID:        fmt.Sprintf("VC_%d", i),
				BusinessUnitID: bu,
				Phase:          model.PhaseMLProcessing,
				Error:          "ml processing: model unavailable",
				StartedAt:      baseTime.Add(time.Duration(i) * time.Hour),
				FailedAt:       baseTime.Add(time.Duration(i)*time.Hour + time.Minute),
			}))
		}

		got, err := s.ListFailures(ctx, CycleFilter{BusinessUnitID: "executive"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "VC_2", got[0].CycleID)
		assert.Equal(t, model.PhaseMLProcessing, got[0].Phase)
		assert.True(t, got[0].FailedAt.Equal(baseTime.Add(2*time.Hour+time.Minute)))

		// Failures never surface as completed cycles.
		_, err = s.GetCycle(ctx, "VC_0")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ModelState", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		state, err := s.GetModelState(ctx, "executive")
		require.NoError(t, err)
		assert.Nil(t, state)

		require.NoError(t, s.SaveModelState(ctx, "executive", []byte(`{"version":1}`)))
		require.NoError(t, s.SaveModelState(ctx, "executive", []byte(`{"version":2}`)))

		state, err = s.GetModelState(ctx, "executive")
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":2}`, string(state))

		other, err := s.GetModelState(ctx, "amigro")
		require.NoError(t, err)
		assert.Nil(t, other)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestMemoryStore(t *testing.T) {
	storeTestSuite(t, newTestMemory)
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_OpenBadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}
