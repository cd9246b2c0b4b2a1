package circle

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huntred/circle/internal/model"
)

// Quality bands that turn a category's scrape quality into a suggestion.
const (
	boostQuality  = 0.7
	reduceQuality = 0.3
	// rateDrift is how far a tier's observed acceptance may stray from its
	// expected rate before it is reported as a pattern change.
	rateDrift = 0.05
)

// FeedbackSource contributes quality signals at the end of a cycle. A
// source with nothing to say returns a zero Count.
type FeedbackSource interface {
	Name() string
	Collect(ctx context.Context, cc *CycleContext) (*model.SourceFeedback, error)
}

// Collector polls every feedback source. Sources are independent and run
// concurrently; one that fails or returns nothing is skipped.
type Collector struct {
	sources []FeedbackSource
}

// NewCollector creates a Collector over the built-in phase sources plus any
// external ones.
func NewCollector(extra ...FeedbackSource) *Collector {
	sources := []FeedbackSource{
		scrapingQualitySource{},
		mlAccuracySource{},
		opportunityPrecisionSource{},
		conversionRateSource{},
	}
	for _, s := range extra {
		if s != nil {
			sources = append(sources, s)
		}
	}
	return &Collector{sources: sources}
}

// Collect merges every source's feedback in source order.
func (c *Collector) Collect(ctx context.Context, cc *CycleContext) *model.FeedbackBundle {
	log := zap.L().With(zap.String("cycle_id", cc.CycleID), zap.String("business_unit", cc.BusinessUnitID))

	results := make([]*model.SourceFeedback, len(c.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		g.Go(func() error {
			fb, err := src.Collect(gctx, cc)
			if err != nil {
				log.Warn("circle: feedback source failed", zap.String("source", src.Name()), zap.Error(err))
				return nil
			}
			if fb != nil {
				fb.Source = src.Name()
			}
			results[i] = fb
			return nil
		})
	}
	_ = g.Wait()

	bundle := &model.FeedbackBundle{Sources: []model.SourceFeedback{}}
	var qualitySum float64
	var scored int
	for _, fb := range results {
		if fb == nil {
			continue
		}
		bundle.Sources = append(bundle.Sources, *fb)
		bundle.TotalCount += fb.Count
		bundle.Suggestions = append(bundle.Suggestions, fb.Suggestions...)
		bundle.PatternChanges = append(bundle.PatternChanges, fb.PatternChanges...)
		if fb.Count > 0 {
			qualitySum += fb.QualityScore
			scored++
		}
	}
	if scored > 0 {
		bundle.AverageQuality = qualitySum / float64(scored)
	}
	return bundle
}

type scrapingQualitySource struct{}

func (scrapingQualitySource) Name() string { return "scraping_quality" }

func (scrapingQualitySource) Collect(_ context.Context, cc *CycleContext) (*model.SourceFeedback, error) {
	fb := &model.SourceFeedback{}
	if cc.Scrape == nil {
		return fb, nil
	}
	fb.Count = len(cc.Scrape.Categories)
	fb.QualityScore = cc.Scrape.QualityScore
	for _, cat := range cc.Scrape.Categories {
		switch {
		case cat.Error != "" || cat.QualityScore < reduceQuality:
			fb.Suggestions = append(fb.Suggestions, model.Suggestion(model.SuggestReduce, cat.Category))
		case cat.QualityScore >= boostQuality:
			fb.Suggestions = append(fb.Suggestions, model.Suggestion(model.SuggestBoost, cat.Category))
		}
	}
	return fb, nil
}

type mlAccuracySource struct{}

func (mlAccuracySource) Name() string { return "ml_accuracy" }

func (mlAccuracySource) Collect(_ context.Context, cc *CycleContext) (*model.SourceFeedback, error) {
	fb := &model.SourceFeedback{}
	if cc.Insights == nil {
		return fb, nil
	}
	fb.Count = len(cc.Insights.CompanyAnalysis)
	fb.QualityScore = cc.Metrics.MLAccuracyAfter
	if cc.Metrics.MLAccuracyAfter < cc.Metrics.MLAccuracyBefore {
		fb.Suggestions = append(fb.Suggestions, fmt.Sprintf("model accuracy fell from %.2f to %.2f", cc.Metrics.MLAccuracyBefore, cc.Metrics.MLAccuracyAfter))
	}
	for _, t := range cc.Insights.MarketTrends {
		if t.Direction != model.TrendFlat {
			fb.PatternChanges = append(fb.PatternChanges, fmt.Sprintf("trend:%s:%s", t.Sector, t.Direction))
		}
	}
	return fb, nil
}

type opportunityPrecisionSource struct{}

func (opportunityPrecisionSource) Name() string { return "opportunity_precision" }

// Collect scores detection by the share of detected opportunities that
// reached the proposal bar.
func (opportunityPrecisionSource) Collect(_ context.Context, cc *CycleContext) (*model.SourceFeedback, error) {
	fb := &model.SourceFeedback{}
	if cc.Opportunities == nil || len(cc.Opportunities.All) == 0 {
		return fb, nil
	}
	fb.Count = len(cc.Opportunities.All)
	fb.QualityScore = float64(cc.Opportunities.ProposalTriggers) / float64(fb.Count)
	if cc.Opportunities.ProposalTriggers == 0 {
		fb.Suggestions = append(fb.Suggestions, "no opportunity reached the proposal threshold")
	}
	return fb, nil
}

type conversionRateSource struct{}

func (conversionRateSource) Name() string { return "conversion_rates" }

func (conversionRateSource) Collect(_ context.Context, cc *CycleContext) (*model.SourceFeedback, error) {
	fb := &model.SourceFeedback{}
	if cc.Conversion == nil || cc.Conversion.Proposals == 0 {
		return fb, nil
	}
	fb.Count = cc.Conversion.Proposals
	fb.QualityScore = cc.Conversion.ConversionRate
	for _, tier := range []model.ValueTier{model.TierHigh, model.TierMedium, model.TierLow} {
		tc, ok := cc.Conversion.ByTier[tier]
		if !ok || tc.Proposals == 0 {
			continue
		}
		if math.Abs(tc.Rate()-tc.ExpectedRate) > rateDrift {
			fb.PatternChanges = append(fb.PatternChanges, fmt.Sprintf("conversion:%s:%.2f vs %.2f expected", tier, tc.Rate(), tc.ExpectedRate))
		}
	}
	return fb, nil
}
