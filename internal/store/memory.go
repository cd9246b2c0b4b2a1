package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
)

// MemoryStore implements Store in process memory. History is lost on exit;
// it backs dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	cycles   map[string]model.CycleMetrics
	failures []model.CycleFailure
	states   map[string][]byte
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		cycles: make(map[string]model.CycleMetrics),
		states: make(map[string][]byte),
	}
}

func copyMetrics(m model.CycleMetrics) model.CycleMetrics {
	if m.EndTime != nil {
		end := *m.EndTime
		m.EndTime = &end
	}
	return m
}

func (s *MemoryStore) SaveCycle(_ context.Context, m *model.CycleMetrics) error {
	if err := validateCycle(m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cycles[m.CycleID]; ok {
		return eris.Wrapf(ErrCycleExists, "cycle %s", m.CycleID)
	}
	s.cycles[m.CycleID] = copyMetrics(*m)
	return nil
}

func (s *MemoryStore) GetCycle(_ context.Context, cycleID string) (*model.CycleMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.cycles[cycleID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "cycle %s", cycleID)
	}
	out := copyMetrics(m)
	return &out, nil
}

func (s *MemoryStore) ListCycles(_ context.Context, filter CycleFilter) ([]model.CycleMetrics, error) {
	s.mu.RLock()
	var out []model.CycleMetrics
	for _, m := range s.cycles {
		if filter.BusinessUnitID != "" && m.BusinessUnitID != filter.BusinessUnitID {
			continue
		}
		if !filter.Since.IsZero() && m.StartTime.Before(filter.Since) {
			continue
		}
		out = append(out, copyMetrics(m))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].CycleID > out[j].CycleID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return paginate(out, filter), nil
}

func (s *MemoryStore) SaveFailure(_ context.Context, f model.CycleFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return nil
}

func (s *MemoryStore) ListFailures(_ context.Context, filter CycleFilter) ([]model.CycleFailure, error) {
	s.mu.RLock()
	var out []model.CycleFailure
	for i := len(s.failures) - 1; i >= 0; i-- {
		f := s.failures[i]
		if filter.BusinessUnitID != "" && f.BusinessUnitID != filter.BusinessUnitID {
			continue
		}
		if !filter.Since.IsZero() && f.FailedAt.Before(filter.Since) {
			continue
		}
		out = append(out, f)
	}
	s.mu.RUnlock()
	return paginate(out, filter), nil
}

func (s *MemoryStore) GetModelState(_ context.Context, businessUnitID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[businessUnitID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), state...), nil
}

func (s *MemoryStore) SaveModelState(_ context.Context, businessUnitID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[businessUnitID] = append([]byte(nil), state...)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error    { return nil }
func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func paginate[T any](items []T, filter CycleFilter) []T {
	if filter.Offset >= len(items) {
		return nil
	}
	items = items[filter.Offset:]
	if l := filter.limit(); len(items) > l {
		items = items[:l]
	}
	return items
}
