package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/model"
	"github.com/huntred/circle/pkg/salesforce"
)

func returnOpportunities(opps ...salesforce.Opportunity) func(mock.Arguments) {
	return func(args mock.Arguments) {
		out := args.Get(2).(*[]salesforce.Opportunity)
		*out = opps
	}
}

func TestSalesforceAcceptance(t *testing.T) {
	sf := new(mockSalesforce)
	sf.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Run(returnOpportunities(salesforce.Opportunity{ID: "006won", IsWon: true, IsClosed: true})).
		Return(nil).Once()
	sf.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Run(returnOpportunities(salesforce.Opportunity{ID: "006open", StageName: "Negotiation"})).
		Return(nil).Once()
	sf.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Run(returnOpportunities(salesforce.Opportunity{ID: "006lost", IsClosed: true})).
		Return(nil).Once()
	sf.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Run(returnOpportunities()).
		Return(nil).Once()

	a := NewSalesforceAcceptance(sf)
	ctx := context.Background()

	st, err := a.Status(ctx, model.Proposal{ID: "p1", Sent: true, ExternalID: "006won"})
	require.NoError(t, err)
	assert.Equal(t, model.AcceptanceWon, st)

	st, err = a.Status(ctx, model.Proposal{ID: "p2", Sent: true, ExternalID: "006open"})
	require.NoError(t, err)
	assert.Equal(t, model.AcceptancePending, st)

	st, err = a.Status(ctx, model.Proposal{ID: "p3", Sent: true, ExternalID: "006lost"})
	require.NoError(t, err)
	assert.Equal(t, model.AcceptanceLost, st)

	st, err = a.Status(ctx, model.Proposal{ID: "p4", Sent: true, ExternalID: "006gone"})
	require.NoError(t, err)
	assert.Equal(t, model.AcceptancePending, st)

	st, err = a.Status(ctx, model.Proposal{ID: "p5"})
	require.NoError(t, err)
	assert.Equal(t, model.AcceptancePending, st)
	sf.AssertNumberOfCalls(t, "Query", 4)
}

func TestSalesforceAcceptance_QueryError(t *testing.T) {
	sf := new(mockSalesforce)
	sf.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout"))

	_, err := NewSalesforceAcceptance(sf).Status(context.Background(), model.Proposal{ID: "p1", Sent: true, ExternalID: "006x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acceptance of proposal p1")
}

func TestSimulatedAcceptance(t *testing.T) {
	s := NewSimulatedAcceptance(map[model.ValueTier]float64{
		model.TierHigh: 1,
		model.TierLow:  0,
	})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		st, err := s.Status(ctx, model.Proposal{ID: id, Tier: model.TierHigh})
		require.NoError(t, err)
		assert.Equal(t, model.AcceptanceWon, st)

		st, _ = s.Status(ctx, model.Proposal{ID: id, Tier: model.TierLow})
		assert.Equal(t, model.AcceptanceLost, st)
	}

	mid := NewSimulatedAcceptance(map[model.ValueTier]float64{model.TierMedium: 0.5})
	p := model.Proposal{ID: "stable", Tier: model.TierMedium}
	first, _ := mid.Status(ctx, p)
	second, _ := mid.Status(ctx, p)
	assert.Equal(t, first, second)
	assert.True(t, first.Decided())
}
