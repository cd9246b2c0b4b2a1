package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
)

var (
	// ErrNotFound is returned when a cycle or record does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrCycleExists is returned when a cycle id was already saved. Finished
	// cycles are append-only.
	ErrCycleExists = eris.New("store: cycle already exists")
	// ErrIncomplete is returned when saving a cycle without an end time.
	ErrIncomplete = eris.New("store: cycle is not complete")
)

// CycleFilter specifies criteria for listing cycles and failures.
type CycleFilter struct {
	BusinessUnitID string    `json:"business_unit_id,omitempty"`
	Since          time.Time `json:"since,omitempty"`
	Limit          int       `json:"limit,omitempty"`
	Offset         int       `json:"offset,omitempty"`
}

func (f CycleFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// CycleStore persists completed cycle metrics keyed by cycle id.
type CycleStore interface {
	SaveCycle(ctx context.Context, m *model.CycleMetrics) error
	GetCycle(ctx context.Context, cycleID string) (*model.CycleMetrics, error)
	// ListCycles returns cycles newest first.
	ListCycles(ctx context.Context, filter CycleFilter) ([]model.CycleMetrics, error)
}

// FailureStore records aborted cycles for operators.
type FailureStore interface {
	SaveFailure(ctx context.Context, f model.CycleFailure) error
	ListFailures(ctx context.Context, filter CycleFilter) ([]model.CycleFailure, error)
}

// ModelStateStore persists the serialized ML state of each business unit.
type ModelStateStore interface {
	// GetModelState returns nil, nil when no state has been saved yet.
	GetModelState(ctx context.Context, businessUnitID string) ([]byte, error)
	SaveModelState(ctx context.Context, businessUnitID string, state []byte) error
}

// Store defines the persistence interface for the circle.
type Store interface {
	CycleStore
	FailureStore
	ModelStateStore

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func validateCycle(m *model.CycleMetrics) error {
	if m == nil || m.CycleID == "" {
		return eris.New("store: cycle id is required")
	}
	if !m.Completed() {
		return eris.Wrapf(ErrIncomplete, "cycle %s", m.CycleID)
	}
	return nil
}
