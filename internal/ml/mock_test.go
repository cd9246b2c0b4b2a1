package ml

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/huntred/circle/pkg/anthropic"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockStateStore struct {
	mock.Mock
}

func (m *mockStateStore) GetModelState(ctx context.Context, bu string) ([]byte, error) {
	args := m.Called(ctx, bu)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockStateStore) SaveModelState(ctx context.Context, bu string, state []byte) error {
	return m.Called(ctx, bu, state).Error(0)
}
