package ml

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/huntred/circle/internal/model"
)

// Target priority multipliers.
const (
	boostFactor   = 1.1
	reduceFactor  = 0.9
	minMultiplier = 0.5
	maxMultiplier = 2.0
	promoteAt     = 1.2
	demoteAt      = 0.8
)

// Calibration bounds and smoothing.
const (
	maxCalibration   = 0.2
	calibrationAlpha = 0.2
)

// minTrendForTerms is the rising-trend strength at which a sector's search
// term is added to the job boards.
const minTrendForTerms = 0.5

const maxLearnedTerms = 10

var sectorTerms = map[string]string{
	"technology":    "director de tecnología",
	"finance":       "director financiero",
	"manufacturing": "gerente de planta",
	"logistics":     "gerente de logística",
	"retail":        "gerente comercial",
	"healthcare":    "director médico",
	"energy":        "gerente de operaciones",
}

// PrioritizeTargets applies what the model learned to the base catalogue:
// categories with a high multiplier are promoted, low ones demoted, and
// learned search terms are appended.
func (e *Engine) PrioritizeTargets(ctx context.Context, bu string, base model.TargetSpec) (model.TargetSpec, error) {
	e.mu.Lock()
	s, err := e.load(ctx, bu)
	e.mu.Unlock()
	if err != nil {
		return model.TargetSpec{}, err
	}

	spec := base.Clone()
	spec.BusinessUnitID = bu
	for i := range spec.Groups {
		g := &spec.Groups[i]
		switch m := s.priority(g.Category); {
		case m >= promoteAt:
			g.Priority = g.Priority.Promote()
		case m <= demoteAt:
			g.Priority = g.Priority.Demote()
		}
		for _, term := range s.SearchTerms[g.Category] {
			g.SearchTerms = appendUnique(g.SearchTerms, term)
		}
	}
	return spec, nil
}

// TuneTargets applies scraping feedback: boost/reduce suggestions move
// category multipliers, sector sentiment becomes next cycle's baseline, and
// strongly rising sectors contribute job-board search terms. It returns the
// number of changes.
func (e *Engine) TuneTargets(ctx context.Context, bu string, insights *model.MLInsights, feedback *model.FeedbackBundle) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load(ctx, bu)
	if err != nil {
		return 0, err
	}

	updates := 0
	if feedback != nil {
		for _, sug := range feedback.Suggestions {
			action, cat, ok := model.ParseSuggestion(sug)
			if !ok {
				continue
			}
			factor := boostFactor
			if action == model.SuggestReduce {
				factor = reduceFactor
			}
			old := s.priority(cat)
			next := math.Max(minMultiplier, math.Min(maxMultiplier, old*factor))
			if next != old {
				s.TargetPriority[cat] = next
				updates++
			}
		}
	}

	if insights != nil {
		for _, sig := range insights.Sentiment {
			if old, ok := s.SectorSentiment[sig.Sector]; !ok || old != sig.Score {
				s.SectorSentiment[sig.Sector] = sig.Score
				updates++
			}
		}
		for _, t := range insights.MarketTrends {
			if t.Direction != model.TrendRising || t.Strength < minTrendForTerms {
				continue
			}
			term, ok := sectorTerms[t.Sector]
			if !ok {
				continue
			}
			terms := s.SearchTerms[model.CategoryJobBoards]
			if len(terms) >= maxLearnedTerms {
				continue
			}
			if next := appendUnique(terms, term); len(next) != len(terms) {
				s.SearchTerms[model.CategoryJobBoards] = next
				updates++
			}
		}
	}

	if updates == 0 {
		return 0, nil
	}
	if err := e.save(ctx, bu, s); err != nil {
		return 0, err
	}
	zap.L().Debug("ml targets tuned", zap.String("business_unit", bu), zap.Int("updates", updates))
	return updates, nil
}

// ApplyOutcomes stores proposal outcomes for the next retrain. Labelled
// outcomes are added once per proposal; a known proposal that comes back
// with a different label is relabelled and the model retrains. Pending
// outcomes are remembered until a label arrives for them. Both lists keep
// only the newest MaxOutcomes. It returns the number of labels added or
// changed.
func (e *Engine) ApplyOutcomes(ctx context.Context, bu string, outcomes []model.Outcome) (int, error) {
	if len(outcomes) == 0 {
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load(ctx, bu)
	if err != nil {
		return 0, err
	}

	labelled := make(map[string]int, len(s.Outcomes))
	for i, o := range s.Outcomes {
		labelled[o.ProposalID] = i
	}
	pending := make(map[string]bool, len(s.Pending))
	for _, o := range s.Pending {
		pending[o.ProposalID] = true
	}

	changed, dirty := 0, false
	for _, o := range outcomes {
		id := o.ProposalID
		if id == "" {
			continue
		}
		if o.Pending {
			if _, ok := labelled[id]; ok || pending[id] {
				continue
			}
			pending[id] = true
			s.Pending = append(s.Pending, o)
			dirty = true
			continue
		}
		if i, ok := labelled[id]; ok {
			if s.Outcomes[i].Converted != o.Converted {
				s.Outcomes[i] = o
				s.Trained = min(s.Trained, i)
				changed++
			}
			continue
		}
		labelled[id] = len(s.Outcomes)
		s.Outcomes = append(s.Outcomes, o)
		changed++
	}

	kept := s.Pending[:0]
	for _, o := range s.Pending {
		if _, ok := labelled[o.ProposalID]; ok {
			dirty = true
			continue
		}
		kept = append(kept, o)
	}
	s.Pending = kept

	if changed == 0 && !dirty {
		return 0, nil
	}
	if over := len(s.Outcomes) - e.cfg.MaxOutcomes; over > 0 {
		s.Outcomes = append([]model.Outcome(nil), s.Outcomes[over:]...)
		s.Trained = max(0, s.Trained-over)
	}
	if over := len(s.Pending) - e.cfg.MaxOutcomes; over > 0 {
		s.Pending = append([]model.Outcome(nil), s.Pending[over:]...)
	}

	if err := e.save(ctx, bu, s); err != nil {
		return 0, err
	}
	return changed, nil
}

// PendingOutcomes returns the sent proposals of a business unit that are
// still awaiting an answer, oldest first.
func (e *Engine) PendingOutcomes(ctx context.Context, bu string) ([]model.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load(ctx, bu)
	if err != nil {
		return nil, err
	}
	return append([]model.Outcome(nil), s.Pending...), nil
}

// CalibrateProposals nudges each tier's confidence offset toward the gap
// between observed and expected acceptance. It returns the number of tiers
// changed.
func (e *Engine) CalibrateProposals(ctx context.Context, bu string, conv *model.ConversionResult) (int, error) {
	if conv == nil || len(conv.ByTier) == 0 {
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load(ctx, bu)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, tier := range []model.ValueTier{model.TierHigh, model.TierMedium, model.TierLow} {
		tc, ok := conv.ByTier[tier]
		if !ok || tc.Proposals == 0 {
			continue
		}
		old := s.Calibration[tier]
		delta := tc.Rate() - tc.ExpectedRate
		next := (1-calibrationAlpha)*old + calibrationAlpha*delta
		next = math.Max(-maxCalibration, math.Min(maxCalibration, next))
		if math.Abs(next-old) > 1e-9 {
			s.Calibration[tier] = next
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := e.save(ctx, bu, s); err != nil {
		return 0, err
	}
	return changed, nil
}
