package circle

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/model"
)

// Tracker resolves which proposals converted and aggregates revenue.
type Tracker struct {
	source AcceptanceSource
	rates  map[model.ValueTier]float64
}

// NewTracker creates a Tracker. rates are the expected acceptance rates per
// tier, carried into the result for calibration.
func NewTracker(source AcceptanceSource, rates map[model.ValueTier]float64) *Tracker {
	return &Tracker{source: source, rates: rates}
}

// Track asks the acceptance source about every proposal of the cycle and
// about the still-pending proposals of earlier cycles. Each won proposal
// counts as one new client. Decided proposals become labelled outcomes;
// sent proposals without an answer become pending outcomes. Proposals that
// were never sent and have no answer yield nothing.
func (t *Tracker) Track(ctx context.Context, proposals []model.Proposal, earlier []model.Outcome) (*model.ConversionResult, error) {
	res := &model.ConversionResult{
		Proposals: len(proposals),
		ByTier:    make(map[model.ValueTier]model.TierConversion),
	}

	for _, p := range proposals {
		status, err := t.source.Status(ctx, p)
		if err != nil {
			return nil, eris.Wrapf(err, "acceptance for proposal %s", p.ID)
		}
		switch {
		case status.Decided():
			won := status == model.AcceptanceWon
			t.tally(res, p, won)
			if won {
				res.Accepted++
			}
			res.Outcomes = append(res.Outcomes, outcomeOf(p, won))
		case p.Sent && p.ExternalID != "":
			res.Pending++
			o := outcomeOf(p, false)
			o.Pending = true
			res.Outcomes = append(res.Outcomes, o)
		}
	}

	for _, o := range earlier {
		p := o.Proposal()
		status, err := t.source.Status(ctx, p)
		if err != nil {
			zap.L().Warn("circle: pending proposal lookup failed",
				zap.String("proposal_id", o.ProposalID),
				zap.Error(err),
			)
			continue
		}
		if !status.Decided() {
			continue
		}
		won := status == model.AcceptanceWon
		t.tally(res, p, won)
		res.Resolved++
		if won {
			res.LateAccepted++
		}
		res.Outcomes = append(res.Outcomes, outcomeOf(p, won))
	}

	res.NewClients = res.Accepted + res.LateAccepted
	res.Revenue = round2(res.Revenue)
	if res.Proposals > 0 {
		res.ConversionRate = float64(res.Accepted) / float64(res.Proposals)
	}
	if res.NewClients > 0 {
		res.AverageDealSize = round2(res.Revenue / float64(res.NewClients))
	}
	return res, nil
}

func (t *Tracker) tally(res *model.ConversionResult, p model.Proposal, won bool) {
	tc := res.ByTier[p.Tier]
	tc.Proposals++
	tc.ExpectedRate = t.rates[p.Tier]
	if won {
		tc.Accepted++
		res.Revenue += p.TotalValue
	}
	res.ByTier[p.Tier] = tc
}

func outcomeOf(p model.Proposal, converted bool) model.Outcome {
	return model.Outcome{
		ProposalID:      p.ID,
		CompanyID:       p.CompanyID,
		Tier:            p.Tier,
		EmployeeCount:   p.EmployeeCount,
		RevenueEstimate: p.RevenueEstimate,
		Signals:         p.Signals,
		Predicted:       p.ConversionLikelihood,
		Converted:       converted,
		ExternalID:      p.ExternalID,
		Value:           p.TotalValue,
		SentAt:          p.SentAt,
	}
}
