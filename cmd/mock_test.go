package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/huntred/circle/internal/circle"
	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/store"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) ExecuteCompleteCycle(ctx context.Context, businessUnitID string) *model.CycleReport {
	args := m.Called(ctx, businessUnitID)
	return args.Get(0).(*model.CycleReport)
}

func (m *mockRunner) Status(ctx context.Context, businessUnitID string, n int) (*circle.Status, error) {
	args := m.Called(ctx, businessUnitID, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*circle.Status), args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) SaveCycle(ctx context.Context, c *model.CycleMetrics) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockHistory) GetCycle(ctx context.Context, cycleID string) (*model.CycleMetrics, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CycleMetrics), args.Error(1)
}

func (m *mockHistory) ListCycles(ctx context.Context, filter store.CycleFilter) ([]model.CycleMetrics, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CycleMetrics), args.Error(1)
}

func (m *mockHistory) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
