package circle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/model"
)

func feedbackContext() *CycleContext {
	return &CycleContext{
		CycleID:        "VC_1",
		BusinessUnitID: "bu",
		Metrics:        &model.CycleMetrics{MLAccuracyBefore: 0.7, MLAccuracyAfter: 0.6},
		Scrape: &model.ScrapeResult{
			QualityScore: 0.5,
			Categories: []model.CategoryResult{
				{Category: model.CategoryJobBoards, QualityScore: 0.9},
				{Category: model.CategorySocial, QualityScore: 0.1},
				{Category: model.CategoryGovernment, Error: "timeout"},
				{Category: model.CategoryCompanyWebsites, QualityScore: 0.5},
			},
		},
		Insights: &model.MLInsights{
			CompanyAnalysis: []model.CompanyAnalysis{{CompanyID: "a"}, {CompanyID: "b"}},
			MarketTrends: []model.MarketTrend{
				{Sector: "technology", Direction: model.TrendRising},
				{Sector: "retail", Direction: model.TrendFlat},
			},
		},
		Opportunities: &model.OpportunitySet{All: make([]model.Opportunity, 4), ProposalTriggers: 1},
		Conversion: &model.ConversionResult{
			Proposals:      4,
			ConversionRate: 0.5,
			ByTier: map[model.ValueTier]model.TierConversion{
				model.TierHigh:   {Proposals: 2, Accepted: 2, ExpectedRate: 0.25},
				model.TierMedium: {Proposals: 2, Accepted: 0, ExpectedRate: 0.02},
			},
		},
	}
}

func TestCollect_BuiltInSources(t *testing.T) {
	bundle := NewCollector().Collect(context.Background(), feedbackContext())

	require.Len(t, bundle.Sources, 4)
	names := make([]string, len(bundle.Sources))
	for i, s := range bundle.Sources {
		names[i] = s.Source
	}
	assert.Equal(t, []string{"scraping_quality", "ml_accuracy", "opportunity_precision", "conversion_rates"}, names)
	assert.Equal(t, 4+2+4+4, bundle.TotalCount)
	assert.InDelta(t, (0.5+0.6+0.25+0.5)/4, bundle.AverageQuality, 1e-9)

	assert.Contains(t, bundle.Suggestions, "boost:job_boards")
	assert.Contains(t, bundle.Suggestions, "reduce:social_platforms")
	assert.Contains(t, bundle.Suggestions, "reduce:government_sources")
	assert.NotContains(t, bundle.Suggestions, "boost:company_websites")
	assert.NotContains(t, bundle.Suggestions, "reduce:company_websites")
	assert.Contains(t, bundle.Suggestions, "model accuracy fell from 0.70 to 0.60")

	assert.Contains(t, bundle.PatternChanges, "trend:technology:rising")
	assert.Contains(t, bundle.PatternChanges, "conversion:high:1.00 vs 0.25 expected")
	assert.NotContains(t, bundle.PatternChanges, "trend:retail:flat")
}

func TestCollect_EmptyCycle(t *testing.T) {
	cc := &CycleContext{CycleID: "VC_1", Metrics: &model.CycleMetrics{}}
	bundle := NewCollector().Collect(context.Background(), cc)
	assert.Zero(t, bundle.TotalCount)
	assert.Zero(t, bundle.AverageQuality)
	assert.Empty(t, bundle.Suggestions)
}

func TestCollect_FailingSourceIsSkipped(t *testing.T) {
	broken := &mockFeedbackSource{name: "client_responses"}
	broken.On("Collect", mock.Anything, mock.Anything).Return(nil, errors.New("crm down"))
	silent := &mockFeedbackSource{name: "engagement"}
	silent.On("Collect", mock.Anything, mock.Anything).Return(nil, nil)
	good := &mockFeedbackSource{name: "review_decisions"}
	good.On("Collect", mock.Anything, mock.Anything).Return(&model.SourceFeedback{
		Count:        3,
		QualityScore: 0.9,
		Suggestions:  []string{"shorten proposal copy"},
	}, nil)

	cc := &CycleContext{CycleID: "VC_1", Metrics: &model.CycleMetrics{}}
	bundle := NewCollector(broken, silent, good, nil).Collect(context.Background(), cc)

	require.Len(t, bundle.Sources, 5)
	assert.Equal(t, "review_decisions", bundle.Sources[4].Source)
	assert.Equal(t, 3, bundle.TotalCount)
	assert.InDelta(t, 0.9, bundle.AverageQuality, 1e-9)
	assert.Equal(t, []string{"shorten proposal copy"}, bundle.Suggestions)
	broken.AssertExpectations(t)
}
