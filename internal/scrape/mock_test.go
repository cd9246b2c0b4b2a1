package scrape

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/pkg/jina"
)

type mockJina struct {
	mock.Mock
}

func (m *mockJina) Read(ctx context.Context, targetURL string) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

func (m *mockJina) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

type mockCategoryScraper struct {
	mock.Mock
}

func (m *mockCategoryScraper) Scrape(ctx context.Context, group model.TargetGroup) (*model.CategoryResult, error) {
	args := m.Called(ctx, group.Category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CategoryResult), args.Error(1)
}
