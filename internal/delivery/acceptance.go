package delivery

import (
	"context"
	"hash/fnv"

	"github.com/rotisserie/eris"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/pkg/salesforce"
)

// SalesforceAcceptance reads conversion from the opportunity a proposal was
// sent as. A proposal never sent to Salesforce, or whose opportunity is
// still open or missing, is pending.
type SalesforceAcceptance struct {
	client salesforce.Client
}

// NewSalesforceAcceptance creates a SalesforceAcceptance.
func NewSalesforceAcceptance(client salesforce.Client) *SalesforceAcceptance {
	return &SalesforceAcceptance{client: client}
}

// Status maps the proposal's opportunity stage: closed won is won, closed
// lost is lost, anything else is pending.
func (a *SalesforceAcceptance) Status(ctx context.Context, p model.Proposal) (model.AcceptanceStatus, error) {
	if !p.Sent || p.ExternalID == "" {
		return model.AcceptancePending, nil
	}
	opps, err := salesforce.FindOpportunities(ctx, a.client, []string{p.ExternalID})
	if err != nil {
		return model.AcceptancePending, eris.Wrapf(err, "delivery: acceptance of proposal %s", p.ID)
	}
	for _, o := range opps {
		if o.ID != p.ExternalID || !o.IsClosed {
			continue
		}
		if o.IsWon {
			return model.AcceptanceWon, nil
		}
		return model.AcceptanceLost, nil
	}
	return model.AcceptancePending, nil
}

// SimulatedAcceptance decides acceptance from a hash of the proposal id
// against the tier's rate. Every proposal is decided at once and the same
// proposal always gets the same answer.
// It stands in for a CRM in dry runs and tests.
type SimulatedAcceptance struct {
	rates map[model.ValueTier]float64
}

// NewSimulatedAcceptance creates a SimulatedAcceptance with per-tier rates.
func NewSimulatedAcceptance(rates map[model.ValueTier]float64) *SimulatedAcceptance {
	return &SimulatedAcceptance{rates: rates}
}

func (s *SimulatedAcceptance) Status(_ context.Context, p model.Proposal) (model.AcceptanceStatus, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p.ID))
	if float64(h.Sum32()%100) < s.rates[p.Tier]*100 {
		return model.AcceptanceWon, nil
	}
	return model.AcceptanceLost, nil
}
