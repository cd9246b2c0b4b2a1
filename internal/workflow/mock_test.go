package workflow

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/client"

	"github.com/huntred/circle/internal/model"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) ExecuteCompleteCycle(ctx context.Context, bu string) *model.CycleReport {
	return m.Called(ctx, bu).Get(0).(*model.CycleReport)
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Create(ctx context.Context, opts client.ScheduleOptions) (client.ScheduleHandle, error) {
	args := m.Called(ctx, opts)
	return nil, args.Error(0)
}
