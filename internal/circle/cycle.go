package circle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/lock"
	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/internal/store"
)

// CycleContext carries one cycle's state from phase to phase. Each phase
// reads the outputs of earlier phases and sets its own.
type CycleContext struct {
	CycleID        string
	BusinessUnitID string
	StartedAt      time.Time
	Metrics        *model.CycleMetrics

	Targets       model.TargetSpec
	Scrape        *model.ScrapeResult
	Insights      *model.MLInsights
	Retrain       *model.RetrainResult
	Opportunities *model.OpportunitySet
	Proposals     *model.ProposalBatch
	Conversion    *model.ConversionResult
	Feedback      *model.FeedbackBundle
	Improvement   *model.ImprovementResult

	Phases []model.PhaseResult
}

func (o *Orchestrator) newCycle(bu string) *CycleContext {
	start := o.now().UTC()
	id := fmt.Sprintf("VC_%d", start.UnixNano())
	return &CycleContext{
		CycleID:        id,
		BusinessUnitID: bu,
		StartedAt:      start,
		Metrics: &model.CycleMetrics{
			CycleID:        id,
			BusinessUnitID: bu,
			StartTime:      start,
			Phase:          model.PhaseScraping,
		},
	}
}

// ExecuteCompleteCycle runs the seven phases once for a business unit. It
// never returns an error: failures are reported in the CycleReport, logged,
// and recorded as a CycleFailure. Only fully completed cycles are saved.
func (o *Orchestrator) ExecuteCompleteCycle(ctx context.Context, businessUnitID string) *model.CycleReport {
	bu := businessUnitID
	if bu == "" {
		bu = model.DefaultBusinessUnit
	}
	log := zap.L().With(zap.String("business_unit", bu))

	release, err := o.locker.Acquire(ctx, bu)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			log.Warn("circle: cycle rejected", zap.Error(err))
			return &model.CycleReport{Success: false, BusinessUnitID: bu, Error: ErrCycleInProgress.Error()}
		}
		log.Error("circle: acquire cycle lock", zap.Error(err))
		return &model.CycleReport{Success: false, BusinessUnitID: bu, Error: "acquire cycle lock: " + err.Error()}
	}
	defer release()

	cc := o.newCycle(bu)
	log = log.With(zap.String("cycle_id", cc.CycleID))
	log.Info("circle: cycle started")

	if err := o.runPhases(ctx, cc); err != nil {
		return o.fail(ctx, cc, err)
	}

	report, err := o.finalize(context.WithoutCancel(ctx), cc)
	if err != nil {
		return o.fail(ctx, cc, err)
	}

	log.Info("circle: cycle complete",
		zap.Float64("execution_time_seconds", report.ExecutionTimeSeconds),
		zap.Float64("circle_efficiency", cc.Metrics.CircleEfficiency),
		zap.Int("proposals_generated", cc.Metrics.ProposalsGenerated),
	)
	o.observer.CycleFinished(report)
	return report
}

// runPhase times one phase and records its result. The context is checked
// before the phase starts; fn runs on a context that ignores cancellation,
// so a running phase is never interrupted.
func (o *Orchestrator) runPhase(ctx context.Context, cc *CycleContext, phase model.CirclePhase, fn func(context.Context) (map[string]any, error)) error {
	cc.Metrics.Phase = phase
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "circle: %s", phase)
	}
	o.observer.PhaseStarted(cc.CycleID, cc.BusinessUnitID, phase)

	start := time.Now()
	meta, err := fn(context.WithoutCancel(ctx))
	duration := time.Since(start).Milliseconds()

	result := model.PhaseResult{Name: phase, Duration: duration, Metadata: meta}
	log := zap.L().With(
		zap.String("cycle_id", cc.CycleID),
		zap.String("business_unit", cc.BusinessUnitID),
		zap.String("phase", phase.String()),
		zap.Int64("duration_ms", duration),
	)
	if err != nil {
		result.Status = model.PhaseStatusFailed
		result.Error = err.Error()
		log.Error("circle: phase failed", zap.Error(err))
	} else {
		result.Status = model.PhaseStatusComplete
		log.Info("circle: phase complete")
	}
	cc.Phases = append(cc.Phases, result)
	o.observer.PhaseFinished(cc.CycleID, cc.BusinessUnitID, result)

	if err != nil {
		return eris.Wrapf(err, "circle: %s", phase)
	}
	return nil
}

func (o *Orchestrator) runPhases(ctx context.Context, cc *CycleContext) error {
	phases := []struct {
		phase model.CirclePhase
		fn    func(context.Context, *CycleContext) (map[string]any, error)
	}{
		{model.PhaseScraping, o.scrapePhase},
		{model.PhaseMLProcessing, o.mlPhase},
		{model.PhaseOpportunityDetection, o.detectPhase},
		{model.PhaseProposalGeneration, o.proposalPhase},
		{model.PhaseClientAcquisition, o.acquisitionPhase},
		{model.PhaseFeedbackCollection, o.feedbackPhase},
		{model.PhaseModelImprovement, o.improvementPhase},
	}
	for _, p := range phases {
		if err := o.runPhase(ctx, cc, p.phase, func(phaseCtx context.Context) (map[string]any, error) {
			return p.fn(phaseCtx, cc)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) scrapePhase(ctx context.Context, cc *CycleContext) (map[string]any, error) {
	base := o.targets.For(cc.BusinessUnitID)
	spec, err := o.ml.PrioritizeTargets(ctx, cc.BusinessUnitID, base)
	if err != nil {
		zap.L().Warn("circle: target prioritization failed, using base targets",
			zap.String("cycle_id", cc.CycleID),
			zap.Error(err),
		)
		spec = base
	}
	cc.Targets = spec

	res, err := o.scraper.Run(ctx, spec)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, eris.New("scraper returned no result")
	}
	cc.Scrape = res

	m := cc.Metrics
	m.DomainsScraped = res.DomainsScraped
	m.ProfilesExtracted = res.ProfilesExtracted
	m.JobsDiscovered = res.JobsDiscovered
	m.CompaniesIdentified = distinctCompanies(res)
	m.ScrapeQualityScore = res.QualityScore
	m.APICostUSD += o.costs.Jina(res.Tokens)

	failed := 0
	for _, c := range res.Categories {
		if c.Error != "" {
			failed++
		}
	}
	return map[string]any{
		"categories":        len(res.Categories),
		"failed_categories": failed,
		"quality_score":     res.QualityScore,
	}, nil
}

// distinctCompanies counts companies across records by folded name, falling
// back to the scraper's own count when no record names a company.
func distinctCompanies(res *model.ScrapeResult) int {
	seen := make(map[string]struct{})
	for _, r := range res.Records() {
		if r.CompanyName == "" {
			continue
		}
		if key := model.CompanyKey(r.CompanyName); key != "" {
			seen[key] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return res.CompaniesFound
	}
	return len(seen)
}

func (o *Orchestrator) mlPhase(ctx context.Context, cc *CycleContext) (map[string]any, error) {
	before, err := o.ml.CurrentAccuracy(ctx, cc.BusinessUnitID)
	if err != nil {
		return nil, eris.Wrap(err, "current accuracy")
	}
	ins, err := o.ml.Process(ctx, cc.BusinessUnitID, cc.Scrape)
	if err != nil {
		return nil, eris.Wrap(err, "process")
	}
	if ins == nil {
		return nil, eris.New("process returned no insights")
	}
	rt, err := o.ml.Retrain(ctx, cc.BusinessUnitID, cc.Scrape, ins.Patterns)
	if err != nil {
		return nil, eris.Wrap(err, "retrain")
	}
	if rt == nil {
		return nil, eris.New("retrain returned no result")
	}
	ins.AccuracyBefore = before
	ins.AccuracyAfter = rt.AccuracyAfter
	cc.Insights = ins
	cc.Retrain = rt

	m := cc.Metrics
	m.MLAccuracyBefore = before
	m.MLAccuracyAfter = rt.AccuracyAfter
	m.PatternsDiscovered = ins.NewPatterns
	m.ModelConfidenceScore = ins.ConfidenceScore
	m.APICostUSD += ins.TokenUsage.Cost

	return map[string]any{
		"companies_analyzed": len(ins.CompanyAnalysis),
		"examples":           rt.Examples,
		"input_tokens":       ins.TokenUsage.InputTokens,
		"output_tokens":      ins.TokenUsage.OutputTokens,
	}, nil
}

func (o *Orchestrator) detectPhase(_ context.Context, cc *CycleContext) (map[string]any, error) {
	set := o.detector.Detect(cc.Insights)
	cc.Opportunities = set
	cc.Metrics.OpportunitiesDetected = len(set.All)
	cc.Metrics.HighValueOpportunities = len(set.High)
	return map[string]any{
		"high":              len(set.High),
		"medium":            len(set.Medium),
		"low":               len(set.Low),
		"proposal_triggers": set.ProposalTriggers,
	}, nil
}

func (o *Orchestrator) proposalPhase(ctx context.Context, cc *CycleContext) (map[string]any, error) {
	batch, err := o.generator.Generate(ctx, cc.CycleID, cc.BusinessUnitID, cc.Opportunities)
	if err != nil {
		return nil, err
	}
	cc.Proposals = batch
	cc.Metrics.ProposalsGenerated = batch.Generated
	cc.Metrics.ProposalsSent = batch.Sent
	return map[string]any{"queued": batch.Queued, "deferred": batch.Deferred}, nil
}

func (o *Orchestrator) acquisitionPhase(ctx context.Context, cc *CycleContext) (map[string]any, error) {
	var earlier []model.Outcome
	if o.ledger != nil {
		pending, err := o.ledger.PendingOutcomes(ctx, cc.BusinessUnitID)
		if err != nil {
			zap.L().Warn("circle: pending outcomes unavailable",
				zap.String("cycle_id", cc.CycleID),
				zap.Error(err),
			)
		}
		earlier = pending
	}

	conv, err := o.tracker.Track(ctx, cc.Proposals.Proposals, earlier)
	if err != nil {
		return nil, err
	}
	cc.Conversion = conv
	m := cc.Metrics
	m.ProposalsAccepted = conv.Accepted
	m.ConversionRate = conv.ConversionRate
	m.NewClients = conv.NewClients
	m.RevenueGenerated = conv.Revenue
	return map[string]any{
		"average_deal_size": conv.AverageDealSize,
		"pending":           conv.Pending,
		"resolved":          conv.Resolved,
	}, nil
}

func (o *Orchestrator) feedbackPhase(ctx context.Context, cc *CycleContext) (map[string]any, error) {
	fb := o.collector.Collect(ctx, cc)
	cc.Feedback = fb
	cc.Metrics.FeedbackCollected = fb.TotalCount
	return map[string]any{
		"sources":         len(fb.Sources),
		"average_quality": fb.AverageQuality,
		"suggestions":     len(fb.Suggestions),
	}, nil
}

func (o *Orchestrator) improvementPhase(ctx context.Context, cc *CycleContext) (map[string]any, error) {
	imp, err := o.improver.Improve(ctx, cc)
	if err != nil {
		return nil, err
	}
	cc.Improvement = imp
	cc.Metrics.ModelUpdatesApplied = imp.UpdatesApplied
	return map[string]any{
		"scraping_updates": imp.ScrapingUpdates,
		"model_updates":    imp.ModelUpdates,
		"proposal_updates": imp.ProposalUpdates,
	}, nil
}

// finalize computes derived scores, saves the metrics and builds the
// success report.
func (o *Orchestrator) finalize(ctx context.Context, cc *CycleContext) (*model.CycleReport, error) {
	m := cc.Metrics
	end := o.now().UTC()
	m.EndTime = &end
	ComputeScores(*m, o.policy.Scores).apply(m)

	var qualityDelta float64
	prev, err := o.store.ListCycles(ctx, store.CycleFilter{BusinessUnitID: cc.BusinessUnitID, Limit: 1})
	if err != nil {
		zap.L().Warn("circle: previous cycle lookup failed",
			zap.String("cycle_id", cc.CycleID),
			zap.Error(err),
		)
	} else if len(prev) > 0 {
		qualityDelta = m.DataQualityScore - prev[0].DataQualityScore
	}

	if err := o.store.SaveCycle(ctx, m); err != nil {
		return nil, eris.Wrap(err, "circle: save cycle")
	}

	hours := o.policy.NextCycleHours
	if hours <= 0 {
		hours = 24
	}
	next := end.Add(time.Duration(hours) * time.Hour)

	return &model.CycleReport{
		Success:              true,
		CycleID:              cc.CycleID,
		BusinessUnitID:       cc.BusinessUnitID,
		PhaseReached:         m.Phase,
		ExecutionTimeSeconds: end.Sub(cc.StartedAt).Seconds(),
		Metrics:              m,
		PhasesCompleted:      len(cc.Phases),
		Phases:               cc.Phases,
		NextCycleScheduled:   &next,
		ImprovementsDetected: &model.ImprovementSummary{
			MLAccuracyGain:         m.MLAccuracyAfter - m.MLAccuracyBefore,
			NewPatterns:            m.PatternsDiscovered,
			ROIImprovement:         m.ROIImprovement,
			DataQualityImprovement: qualityDelta,
		},
		BusinessImpact: &model.BusinessImpact{
			OpportunitiesGenerated: m.OpportunitiesDetected,
			ProposalsCreated:       m.ProposalsGenerated,
			ConversionRate:         m.ConversionRate,
			RevenueGenerated:       m.RevenueGenerated,
			NewClients:             m.NewClients,
		},
	}, nil
}

// fail records an aborted cycle and builds its report. The failure record
// is written even when ctx was cancelled.
func (o *Orchestrator) fail(ctx context.Context, cc *CycleContext, cause error) *model.CycleReport {
	failedAt := o.now().UTC()
	log := zap.L().With(
		zap.String("cycle_id", cc.CycleID),
		zap.String("business_unit", cc.BusinessUnitID),
		zap.String("phase", cc.Metrics.Phase.String()),
	)
	log.Error("circle: cycle failed", zap.Error(cause), zap.String("trace", eris.ToString(cause, true)))

	f := model.CycleFailure{
		ID:             newFailureID(),
		CycleID:        cc.CycleID,
		BusinessUnitID: cc.BusinessUnitID,
		Phase:          cc.Metrics.Phase,
		Error:          cause.Error(),
		StartedAt:      cc.StartedAt,
		FailedAt:       failedAt,
	}
	if err := o.store.SaveFailure(context.WithoutCancel(ctx), f); err != nil {
		log.Warn("circle: record failure", zap.Error(err))
	}

	report := &model.CycleReport{
		Success:              false,
		CycleID:              cc.CycleID,
		BusinessUnitID:       cc.BusinessUnitID,
		Error:                cause.Error(),
		PhaseReached:         cc.Metrics.Phase,
		ExecutionTimeSeconds: failedAt.Sub(cc.StartedAt).Seconds(),
	}
	o.observer.CycleFinished(report)
	return report
}
