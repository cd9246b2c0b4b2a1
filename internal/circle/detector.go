package circle

import (
	"math"
	"sort"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/model"
)

// Scoring adjustments applied on top of a tier's base score.
const (
	matchBonus     = 0.05
	partialPenalty = 0.2
)

// Detector turns ML insights into scored, tiered opportunities.
type Detector struct {
	policy config.CircleConfig
}

// NewDetector creates a Detector with the given scoring policy.
func NewDetector(policy config.CircleConfig) *Detector {
	return &Detector{policy: policy}
}

type tierRule struct {
	tier    model.ValueTier
	rule    config.TierRule
	ceiling float64
}

// rules lists the scoring table high to low. Each tier's score stays below
// the next tier's base so a tier match never outranks a better tier.
func (d *Detector) rules() []tierRule {
	t := d.policy.Tiers
	return []tierRule{
		{model.TierHigh, t.High, 1.0},
		{model.TierMedium, t.Medium, t.High.BaseScore - 0.01},
		{model.TierLow, t.Low, t.Medium.BaseScore - 0.01},
	}
}

// ScoreCompany computes a company's value score. ok is false when the
// company matches no tier's size or signals, which excludes it.
func (d *Detector) ScoreCompany(a model.CompanyAnalysis) (score float64, ok bool) {
	type match struct {
		sizeOK  bool
		signals int
	}
	rules := d.rules()
	matches := make([]match, len(rules))
	for i, r := range rules {
		matches[i] = match{
			sizeOK:  a.EmployeeCount >= r.rule.MinEmployees && a.RevenueEstimate >= r.rule.MinRevenue,
			signals: countMatches(a.GrowthIndicators, r.rule.Signals),
		}
	}

	for i, r := range rules {
		m := matches[i]
		if !m.sizeOK || m.signals == 0 {
			continue
		}
		s := r.rule.BaseScore
		if r.rule.MinRevenue > 0 && a.RevenueEstimate >= 2*r.rule.MinRevenue {
			s += matchBonus
		}
		if r.rule.MinEmployees > 0 && a.EmployeeCount >= 2*r.rule.MinEmployees {
			s += matchBonus
		}
		s += matchBonus * float64(m.signals-1)
		return math.Min(s, r.ceiling), true
	}

	for i, r := range rules {
		m := matches[i]
		if m.sizeOK || m.signals > 0 {
			return math.Max(r.rule.BaseScore-partialPenalty, 0), true
		}
	}
	return 0, false
}

func countMatches(have, want []string) int {
	n := 0
	for _, w := range want {
		for _, h := range have {
			if h == w {
				n++
				break
			}
		}
	}
	return n
}

// Tier buckets a value score by the configured thresholds.
func (d *Detector) Tier(score float64) model.ValueTier {
	switch {
	case score >= d.policy.HighValueThreshold:
		return model.TierHigh
	case score >= d.policy.MediumValueThreshold:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

func (d *Detector) confidence(value, evidence, likelihood float64) float64 {
	w := d.policy.Confidence
	return clamp01(w.Value*value + w.Analysis*evidence + w.Likelihood*clamp01(likelihood))
}

// Detect scores every company analysis and scans trends, sentiment and
// turnover for further opportunities. Each company yields at most one
// opportunity, the highest-valued.
func (d *Detector) Detect(ins *model.MLInsights) *model.OpportunitySet {
	set := &model.OpportunitySet{}
	if ins == nil {
		return set
	}

	best := make(map[string]model.Opportunity)
	var order []string
	add := func(o model.Opportunity) {
		prev, seen := best[o.CompanyID]
		if !seen {
			order = append(order, o.CompanyID)
		}
		if !seen || o.ValueScore > prev.ValueScore {
			best[o.CompanyID] = o
		}
	}

	bySector := make(map[string][]model.CompanyAnalysis)
	byID := make(map[string]model.CompanyAnalysis, len(ins.CompanyAnalysis))
	for _, a := range ins.CompanyAnalysis {
		byID[a.CompanyID] = a
		bySector[a.Sector] = append(bySector[a.Sector], a)

		score, ok := d.ScoreCompany(a)
		if !ok {
			continue
		}
		tier := d.Tier(score)
		likelihood := a.ConversionLikelihood + ins.Calibration[tier]
		add(model.Opportunity{
			CompanyID:            a.CompanyID,
			CompanyName:          a.Name,
			Sector:               a.Sector,
			Type:                 model.OpportunityCompanyGrowth,
			Tier:                 tier,
			ValueScore:           score,
			ProposalConfidence:   d.confidence(score, a.Confidence, likelihood),
			ConversionLikelihood: clamp01(likelihood),
			EmployeeCount:        a.EmployeeCount,
			RevenueEstimate:      a.RevenueEstimate,
			Signals:              a.GrowthIndicators,
		})
	}

	for _, t := range ins.MarketTrends {
		if t.Direction != model.TrendRising || t.Strength < d.policy.TrendMinStrength {
			continue
		}
		add(d.sectorOpportunity(t.Sector, model.OpportunityMarketTrend, t.Strength, bySector[t.Sector], ins.Calibration))
	}
	for _, s := range ins.Sentiment {
		shift := math.Abs(s.Shift)
		if shift < d.policy.SentimentMinShift || shift == 0 {
			continue
		}
		add(d.sectorOpportunity(s.Sector, model.OpportunitySentimentShift, math.Min(shift, 1), bySector[s.Sector], ins.Calibration))
	}
	for _, p := range ins.TurnoverPredictions {
		if p.Risk < d.policy.TurnoverMinRisk {
			continue
		}
		a := byID[p.CompanyID]
		value := clamp01(0.4 + 0.4*p.Risk)
		tier := d.Tier(value)
		likelihood := a.ConversionLikelihood + ins.Calibration[tier]
		add(model.Opportunity{
			CompanyID:            p.CompanyID,
			CompanyName:          p.Name,
			Sector:               a.Sector,
			Type:                 model.OpportunityTurnoverRisk,
			Tier:                 tier,
			ValueScore:           value,
			ProposalConfidence:   d.confidence(value, p.Risk, likelihood),
			ConversionLikelihood: clamp01(likelihood),
			EmployeeCount:        a.EmployeeCount,
			RevenueEstimate:      a.RevenueEstimate,
			Signals:              a.GrowthIndicators,
		})
	}

	for _, id := range order {
		set.All = append(set.All, best[id])
	}
	sort.SliceStable(set.All, func(i, j int) bool {
		return set.All[i].ValueScore > set.All[j].ValueScore
	})
	for _, o := range set.All {
		switch o.Tier {
		case model.TierHigh:
			set.High = append(set.High, o)
		case model.TierMedium:
			set.Medium = append(set.Medium, o)
		default:
			set.Low = append(set.Low, o)
		}
		if o.ProposalConfidence >= d.policy.ProposalThreshold {
			set.ProposalTriggers++
		}
	}
	return set
}

// sectorOpportunity builds a sector-wide opportunity whose value grows with
// the strength of the signal.
func (d *Detector) sectorOpportunity(sector string, typ model.OpportunityType, strength float64, companies []model.CompanyAnalysis, calibration map[model.ValueTier]float64) model.Opportunity {
	value := clamp01(0.5 + 0.4*strength)
	tier := d.Tier(value)

	likelihood := 0.5
	if len(companies) > 0 {
		sum := 0.0
		for _, a := range companies {
			sum += a.ConversionLikelihood
		}
		likelihood = sum / float64(len(companies))
	}
	likelihood += calibration[tier]

	return model.Opportunity{
		CompanyID:            "sector:" + sector,
		CompanyName:          sector,
		Sector:               sector,
		Type:                 typ,
		Tier:                 tier,
		ValueScore:           value,
		ProposalConfidence:   d.confidence(value, strength, likelihood),
		ConversionLikelihood: clamp01(likelihood),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
