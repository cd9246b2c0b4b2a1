// Package delivery connects proposals to the outside world: Salesforce for
// sending and acceptance tracking, Notion for human review.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/pkg/salesforce"
)

// proposalValidity is how long a sent proposal stays open before its
// Salesforce close date.
const proposalValidity = 30 * 24 * time.Hour

// SalesforceSender records auto-sent proposals as Salesforce opportunities.
type SalesforceSender struct {
	client     salesforce.Client
	leadSource string
	now        func() time.Time
}

// NewSalesforceSender creates a sender that tags opportunities with
// leadSource.
func NewSalesforceSender(client salesforce.Client, leadSource string) *SalesforceSender {
	return &SalesforceSender{client: client, leadSource: leadSource, now: time.Now}
}

// Send creates the opportunity. The opportunity ID becomes the receipt's
// external ID, which acceptance tracking later looks up.
func (s *SalesforceSender) Send(ctx context.Context, p model.Proposal) (*model.DeliveryReceipt, error) {
	now := s.now().UTC()
	id, err := salesforce.CreateOpportunity(ctx, s.client, salesforce.OpportunityInput{
		Name:        opportunityName(p),
		Amount:      p.TotalValue,
		CloseDate:   now.Add(proposalValidity),
		LeadSource:  s.leadSource,
		Description: describe(p),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "delivery: send proposal %s", p.ID)
	}

	zap.L().Info("delivery: proposal sent",
		zap.String("proposal_id", p.ID),
		zap.String("company", p.CompanyName),
		zap.String("opportunity_id", id),
	)
	return &model.DeliveryReceipt{Success: true, ExternalID: id, SentAt: now}, nil
}

func opportunityName(p model.Proposal) string {
	return fmt.Sprintf("huntRED %s proposal: %s", p.Tier, p.CompanyName)
}

func describe(p model.Proposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposal %s (cycle %s)\n", p.ID, p.CycleID)
	fmt.Fprintf(&b, "Opportunity: %s, value score %.2f, confidence %.2f\n", p.Type, p.ValueScore, p.Confidence)
	if p.EmployeeCount > 0 {
		fmt.Fprintf(&b, "Employees: %d\n", p.EmployeeCount)
	}
	if len(p.Signals) > 0 {
		fmt.Fprintf(&b, "Signals: %s\n", strings.Join(p.Signals, ", "))
	}
	return b.String()
}

// DryRunSender logs proposals instead of sending them. Every send succeeds.
type DryRunSender struct {
	now func() time.Time
}

// NewDryRunSender creates a DryRunSender.
func NewDryRunSender() *DryRunSender {
	return &DryRunSender{now: time.Now}
}

func (d *DryRunSender) Send(_ context.Context, p model.Proposal) (*model.DeliveryReceipt, error) {
	zap.L().Info("delivery: dry run, proposal not sent",
		zap.String("proposal_id", p.ID),
		zap.String("company", p.CompanyName),
		zap.Float64("total_value", p.TotalValue),
	)
	return &model.DeliveryReceipt{Success: true, ExternalID: "dryrun-" + p.ID, SentAt: d.now().UTC()}, nil
}
