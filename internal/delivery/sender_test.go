package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/model"
)

func sampleProposal() model.Proposal {
	return model.Proposal{
		ID:            "prop-1",
		CycleID:       "VC_1",
		CompanyID:     "acme",
		CompanyName:   "Acme Corp",
		Type:          "company",
		Tier:          model.TierHigh,
		ValueScore:    0.85,
		Confidence:    0.9,
		TotalValue:    202500,
		EmployeeCount: 1200,
		Signals:       []string{"expansion", "funding"},
	}
}

func TestSalesforceSender_Send(t *testing.T) {
	sf := new(mockSalesforce)
	sf.On("InsertOne", mock.Anything, "Opportunity", mock.MatchedBy(func(rec map[string]any) bool {
		return rec["Name"] == "huntRED high proposal: Acme Corp" &&
			rec["Amount"] == 202500.0 &&
			rec["CloseDate"] == "2026-03-31" &&
			rec["LeadSource"] == "huntRED Circle"
	})).Return("006abc", nil)

	s := NewSalesforceSender(sf, "huntRED Circle")
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	receipt, err := s.Send(context.Background(), sampleProposal())
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "006abc", receipt.ExternalID)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), receipt.SentAt)
	sf.AssertExpectations(t)
}

func TestSalesforceSender_SendError(t *testing.T) {
	sf := new(mockSalesforce)
	sf.On("InsertOne", mock.Anything, "Opportunity", mock.Anything).Return("", errors.New("INVALID_SESSION_ID"))

	_, err := NewSalesforceSender(sf, "").Send(context.Background(), sampleProposal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send proposal prop-1")
}

func TestDescribe(t *testing.T) {
	d := describe(sampleProposal())
	assert.Contains(t, d, "Proposal prop-1 (cycle VC_1)")
	assert.Contains(t, d, "value score 0.85, confidence 0.90")
	assert.Contains(t, d, "Employees: 1200")
	assert.Contains(t, d, "Signals: expansion, funding")

	p := sampleProposal()
	p.EmployeeCount = 0
	p.Signals = nil
	d = describe(p)
	assert.NotContains(t, d, "Employees")
	assert.NotContains(t, d, "Signals")
}

func TestDryRunSender(t *testing.T) {
	receipt, err := NewDryRunSender().Send(context.Background(), sampleProposal())
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "dryrun-prop-1", receipt.ExternalID)
	assert.False(t, receipt.SentAt.IsZero())
}
