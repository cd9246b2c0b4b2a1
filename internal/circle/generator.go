package circle

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/model"
)

// Generator converts qualifying opportunities into proposals and dispatches
// the ones confident enough to skip human review.
type Generator struct {
	policy config.CircleConfig
	sender ProposalSender
	review ReviewQueue
	now    func() time.Time
	newID  func() string
}

// NewGenerator creates a Generator. review may be nil, in which case
// proposals below the auto-send bar are only recorded.
func NewGenerator(policy config.CircleConfig, sender ProposalSender, review ReviewQueue) *Generator {
	return &Generator{
		policy: policy,
		sender: sender,
		review: review,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Generate walks high-value opportunities then medium-value ones and
// creates a proposal for each that meets its tier's threshold. A delivery
// error aborts generation; a receipt reporting no success leaves the
// proposal unsent.
func (g *Generator) Generate(ctx context.Context, cycleID, bu string, set *model.OpportunitySet) (*model.ProposalBatch, error) {
	batch := &model.ProposalBatch{Proposals: []model.Proposal{}}
	if set == nil {
		return batch, nil
	}
	log := zap.L().With(zap.String("cycle_id", cycleID), zap.String("business_unit", bu))

	batch.Deferred = len(set.Low)
	passes := []struct {
		opps      []model.Opportunity
		threshold float64
	}{
		{set.High, g.policy.ProposalThreshold},
		{set.Medium, g.policy.MediumProposalThreshold},
	}

	for _, pass := range passes {
		for _, o := range pass.opps {
			if o.ProposalConfidence < pass.threshold {
				batch.Deferred++
				continue
			}
			p := g.proposal(cycleID, bu, o)
			if p.AutoSend {
				receipt, err := g.sender.Send(ctx, p)
				if err != nil {
					return nil, eris.Wrapf(err, "send proposal %s to %s", p.ID, p.CompanyName)
				}
				if receipt != nil && receipt.Success {
					sentAt := receipt.SentAt
					if sentAt.IsZero() {
						sentAt = g.now().UTC()
					}
					p.Sent = true
					p.SentAt = &sentAt
					p.ExternalID = receipt.ExternalID
					batch.Sent++
				} else {
					log.Warn("circle: proposal delivery not confirmed",
						zap.String("proposal_id", p.ID),
						zap.String("company", p.CompanyName),
					)
				}
			} else if g.review != nil {
				if err := g.review.Enqueue(ctx, p); err != nil {
					log.Warn("circle: review queue rejected proposal",
						zap.String("proposal_id", p.ID),
						zap.Error(err),
					)
				} else {
					batch.Queued++
				}
			}
			batch.Proposals = append(batch.Proposals, p)
		}
	}

	batch.Generated = len(batch.Proposals)
	log.Info("circle: proposals generated",
		zap.Int("generated", batch.Generated),
		zap.Int("sent", batch.Sent),
		zap.Int("queued", batch.Queued),
		zap.Int("deferred", batch.Deferred),
	)
	return batch, nil
}

func (g *Generator) proposal(cycleID, bu string, o model.Opportunity) model.Proposal {
	return model.Proposal{
		ID:                   g.newID(),
		CycleID:              cycleID,
		BusinessUnitID:       bu,
		CompanyID:            o.CompanyID,
		CompanyName:          o.CompanyName,
		Type:                 o.Type,
		Tier:                 o.Tier,
		ValueScore:           o.ValueScore,
		Confidence:           o.ProposalConfidence,
		ConversionLikelihood: o.ConversionLikelihood,
		TotalValue:           g.totalValue(o),
		EmployeeCount:        o.EmployeeCount,
		RevenueEstimate:      o.RevenueEstimate,
		Signals:              o.Signals,
		AutoSend:             o.ProposalConfidence >= g.policy.AutoSendThreshold,
		CreatedAt:            g.now().UTC(),
	}
}

// totalValue scales the tier's base engagement value by the value score.
func (g *Generator) totalValue(o model.Opportunity) float64 {
	var base float64
	switch o.Tier {
	case model.TierHigh:
		base = g.policy.Tiers.High.BaseValue
	case model.TierMedium:
		base = g.policy.Tiers.Medium.BaseValue
	default:
		base = g.policy.Tiers.Low.BaseValue
	}
	return round2(base * (0.5 + o.ValueScore))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
