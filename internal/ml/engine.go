// Package ml learns which companies convert. It turns scraped records into
// company, market, sentiment and turnover insights, keeps a per-business-unit
// logistic model trained on proposal outcomes, and steers the next cycle's
// scraping targets.
package ml

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/cost"
	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/resilience"
	"github.com/huntred/circle/internal/store"
	"github.com/huntred/circle/pkg/anthropic"
)

// Config tunes the engine.
type Config struct {
	UseLLM       bool
	Model        string
	MaxTokens    int64
	MaxCompanies int
	Concurrency  int
	LearningRate float64
	Epochs       int
	MaxOutcomes  int
	MaxPatterns  int
}

// ConfigFrom builds a Config from the application config sections.
func ConfigFrom(ml config.MLConfig, ai config.AnthropicConfig) Config {
	return Config{
		UseLLM:       ml.UseLLM,
		Model:        ai.Model,
		MaxTokens:    ai.MaxTokens,
		MaxCompanies: ml.MaxCompanies,
		Concurrency:  ml.Concurrency,
		LearningRate: ml.LearningRate,
		Epochs:       ml.Epochs,
		MaxOutcomes:  ml.MaxOutcomes,
		MaxPatterns:  ml.MaxPatterns,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.Epochs <= 0 {
		c.Epochs = 25
	}
	if c.MaxOutcomes <= 0 {
		c.MaxOutcomes = 2000
	}
	if c.MaxPatterns <= 0 {
		c.MaxPatterns = 200
	}
	return c
}

// Engine is the ML collaborator of the circle.
type Engine struct {
	store store.ModelStateStore
	cfg   Config
	llm   anthropic.Client
	guard *resilience.Guard
	costs *cost.Calculator
	now   func() time.Time

	// mu serialises load-modify-save of model state.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLLM enables Claude company analysis through client, guarded by g.
func WithLLM(client anthropic.Client, g *resilience.Guard) Option {
	return func(e *Engine) {
		e.llm = client
		e.guard = g
	}
}

// WithCost prices Claude usage in the returned insights.
func WithCost(calc *cost.Calculator) Option {
	return func(e *Engine) { e.costs = calc }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine backed by st.
func NewEngine(st store.ModelStateStore, cfg Config, opts ...Option) *Engine {
	e := &Engine{store: st, cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CurrentAccuracy evaluates the stored model against its labelled outcomes.
func (e *Engine) CurrentAccuracy(ctx context.Context, bu string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.load(ctx, bu)
	if err != nil {
		return 0, err
	}
	return s.accuracy(), nil
}

// Process turns scraped records into insights. It reads but never writes
// model state; learning happens in Retrain and the tuning methods.
func (e *Engine) Process(ctx context.Context, bu string, scraped *model.ScrapeResult) (*model.MLInsights, error) {
	log := zap.L().With(zap.String("business_unit", bu), zap.String("component", "ml"))

	e.mu.Lock()
	s, err := e.load(ctx, bu)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	records := scraped.Records()
	companies := groupCompanies(records, e.cfg.MaxCompanies)
	analyses, usage, err := e.analyse(ctx, companies)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*companyEvidence, len(companies))
	for _, c := range companies {
		byKey[c.key] = c
	}

	acc := s.accuracy()
	insights := &model.MLInsights{
		AccuracyBefore: acc,
		AccuracyAfter:  acc,
		TokenUsage:     usage,
		Calibration:    make(map[model.ValueTier]float64, len(s.Calibration)),
	}
	for tier, v := range s.Calibration {
		insights.Calibration[tier] = v
	}

	confSum := 0.0
	for i := range analyses {
		a := &analyses[i]
		a.ConversionLikelihood = s.predict(features(a.EmployeeCount, a.RevenueEstimate, a.GrowthIndicators))
		confSum += a.Confidence
		insights.TurnoverPredictions = append(insights.TurnoverPredictions, model.TurnoverPrediction{
			CompanyID: a.CompanyID,
			Name:      a.Name,
			Risk:      turnoverRisk(*a, byKey[a.CompanyID]),
		})
	}
	insights.CompanyAnalysis = analyses
	insights.MarketTrends = marketTrends(records, analyses, s)
	insights.Sentiment = sectorSentiment(analyses, s)

	insights.Patterns = patternsOf(analyses)
	for _, p := range insights.Patterns {
		if _, ok := s.Patterns[p]; !ok {
			insights.NewPatterns++
		}
	}

	avgConf := 0.0
	if len(analyses) > 0 {
		avgConf = confSum / float64(len(analyses))
	}
	insights.ConfidenceScore = clamp01(0.6*avgConf + 0.4*acc)

	log.Info("ml processing complete",
		zap.Int("records", len(records)),
		zap.Int("companies", len(analyses)),
		zap.Int("new_patterns", insights.NewPatterns),
		zap.Float64("confidence", insights.ConfidenceScore),
		zap.Int("input_tokens", usage.InputTokens),
	)
	return insights, nil
}

// analyse profiles every company, through Claude when enabled. A company
// whose Claude call fails falls back to the keyword heuristic.
func (e *Engine) analyse(ctx context.Context, companies []*companyEvidence) ([]model.CompanyAnalysis, model.TokenUsage, error) {
	out := make([]model.CompanyAnalysis, len(companies))
	var usage model.TokenUsage
	if !e.cfg.UseLLM || e.llm == nil {
		for i, c := range companies {
			out[i] = heuristicAnalysis(c)
		}
		return out, usage, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, c := range companies {
		g.Go(func() error {
			a, u, err := e.claudeAnalysis(gctx, c)
			mu.Lock()
			usage.Add(e.costs.Usage(e.cfg.Model,
				int(u.InputTokens), int(u.OutputTokens),
				int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens)))
			mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("claude analysis failed, using heuristics",
					zap.String("company", c.name), zap.Error(err))
				a = heuristicAnalysis(c)
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, usage, eris.Wrap(err, "ml: company analysis")
	}
	return out, usage, nil
}

// Retrain records the cycle's patterns, folds this cycle's job volumes into
// the sector baselines, and retrains the model when outcomes arrived since
// the last pass. Accuracy is measured the same way as CurrentAccuracy.
func (e *Engine) Retrain(ctx context.Context, bu string, scraped *model.ScrapeResult, patterns []string) (*model.RetrainResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load(ctx, bu)
	if err != nil {
		return nil, err
	}

	res := &model.RetrainResult{}
	for _, p := range patterns {
		if _, ok := s.Patterns[p]; !ok {
			res.PatternsAdded++
		}
		s.Patterns[p]++
	}
	prunePatterns(s.Patterns, e.cfg.MaxPatterns)

	for sector, n := range sectorJobs(scraped.Records()) {
		if base, ok := s.SectorJobs[sector]; ok {
			s.SectorJobs[sector] = 0.7*base + 0.3*float64(n)
		} else {
			s.SectorJobs[sector] = float64(n)
		}
	}

	if len(s.Outcomes) > s.Trained {
		s.train(e.cfg.Epochs, e.cfg.LearningRate)
		res.Epochs = e.cfg.Epochs
	}
	res.Examples = len(s.Outcomes)
	res.AccuracyAfter = s.accuracy()

	if err := e.save(ctx, bu, s); err != nil {
		return nil, err
	}

	zap.L().Info("ml retrain complete",
		zap.String("business_unit", bu),
		zap.Int("epochs", res.Epochs),
		zap.Int("examples", res.Examples),
		zap.Int("patterns_added", res.PatternsAdded),
		zap.Float64("accuracy_after", res.AccuracyAfter),
	)
	return res, nil
}

// prunePatterns drops the least-seen patterns beyond limit.
func prunePatterns(patterns map[string]int, limit int) {
	for len(patterns) > limit {
		victim, fewest := "", 0
		for p, n := range patterns {
			if victim == "" || n < fewest || (n == fewest && p < victim) {
				victim, fewest = p, n
			}
		}
		delete(patterns, victim)
	}
}
