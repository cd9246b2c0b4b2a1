// Package scrape collects labor-market records (profiles, jobs, companies)
// for a business unit's target catalogue.
package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huntred/circle/internal/model"
)

// CategoryScraper scrapes one target group.
type CategoryScraper interface {
	Scrape(ctx context.Context, group model.TargetGroup) (*model.CategoryResult, error)
}

// Runner scrapes every category of a TargetSpec and aggregates the results.
type Runner struct {
	Scraper     CategoryScraper
	Policy      QualityPolicy
	Concurrency int
	// Timeout bounds each category; zero means no per-category limit.
	Timeout time.Duration
}

// Run scrapes all groups concurrently. A failed category contributes zero
// counts and a quality of 0; only cancellation of ctx fails the whole run.
// Categories appear in the result in spec order.
func (r *Runner) Run(ctx context.Context, spec model.TargetSpec) (*model.ScrapeResult, error) {
	results := make([]model.CategoryResult, len(spec.Groups))

	g, gctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, group := range spec.Groups {
		g.Go(func() error {
			results[i] = r.scrapeOne(gctx, group)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scrape: cancelled")
	}

	policy := r.Policy
	if policy == nil {
		policy = AverageQuality
	}
	return Aggregate(results, policy), nil
}

func (r *Runner) scrapeOne(ctx context.Context, group model.TargetGroup) model.CategoryResult {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := r.Scraper.Scrape(ctx, group)
	if err == nil && res == nil {
		err = eris.New("scraper returned no result")
	}
	if err != nil {
		zap.L().Warn("scrape: category failed",
			zap.String("category", string(group.Category)),
			zap.Error(err),
		)
		return model.CategoryResult{
			Category: group.Category,
			Priority: group.Priority,
			Error:    err.Error(),
		}
	}

	out := *res
	out.Category = group.Category
	out.Priority = group.Priority
	zap.L().Info("scrape: category complete",
		zap.String("category", string(group.Category)),
		zap.Int("domains", out.DomainsScraped),
		zap.Int("records", len(out.Records)),
		zap.Float64("quality", out.QualityScore),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return out
}

// Aggregate sums per-category counts into cycle totals and scores overall
// quality with policy.
func Aggregate(categories []model.CategoryResult, policy QualityPolicy) *model.ScrapeResult {
	out := &model.ScrapeResult{Categories: categories}
	for _, c := range categories {
		out.DomainsScraped += c.DomainsScraped
		out.ProfilesExtracted += c.ProfilesScraped
		out.JobsDiscovered += c.JobsScraped
		out.CompaniesFound += c.CompaniesScraped
		out.Tokens += c.Tokens
	}
	out.QualityScore = policy(categories)
	return out
}
