package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhaseOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phase CirclePhase
		want  int
	}{
		{PhaseScraping, 0},
		{PhaseMLProcessing, 1},
		{PhaseOpportunityDetection, 2},
		{PhaseProposalGeneration, 3},
		{PhaseClientAcquisition, 4},
		{PhaseFeedbackCollection, 5},
		{PhaseModelImprovement, 6},
		{CirclePhase("bogus"), -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.phase.Index())
			assert.Equal(t, tt.want >= 0, tt.phase.Valid())
		})
	}
	assert.Len(t, Phases, 7)
}

func TestPhaseNext(t *testing.T) {
	t.Parallel()

	p := PhaseScraping
	seen := []CirclePhase{p}
	for {
		next, ok := p.Next()
		if !ok {
			break
		}
		seen = append(seen, next)
		p = next
	}
	assert.Equal(t, Phases, seen)

	_, ok := CirclePhase("bogus").Next()
	assert.False(t, ok)
	assert.Equal(t, "ml_processing", PhaseMLProcessing.String())
}

func TestCycleMetrics_Completed(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := &CycleMetrics{CycleID: "VC_1", StartTime: start}
	assert.False(t, m.Completed())
	assert.Zero(t, m.Duration())

	end := start.Add(90 * time.Second)
	m.EndTime = &end
	assert.True(t, m.Completed())
	assert.Equal(t, 90*time.Second, m.Duration())
}

func TestPriority(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3.0, PriorityHigh.Weight())
	assert.Equal(t, 2.0, PriorityMedium.Weight())
	assert.Equal(t, 1.0, PriorityLow.Weight())
	assert.Equal(t, 1.0, Priority("").Weight())

	assert.Equal(t, PriorityMedium, PriorityLow.Promote())
	assert.Equal(t, PriorityHigh, PriorityMedium.Promote())
	assert.Equal(t, PriorityHigh, PriorityHigh.Promote())
	assert.Equal(t, PriorityMedium, PriorityHigh.Demote())
	assert.Equal(t, PriorityLow, PriorityMedium.Demote())
	assert.Equal(t, PriorityLow, PriorityLow.Demote())
}

func TestTargetSpec_Clone(t *testing.T) {
	t.Parallel()

	spec := TargetSpec{Groups: []TargetGroup{{
		Category: CategoryJobBoards, Priority: PriorityHigh,
		Domains: []string{"occ.com.mx"}, SearchTerms: []string{"ingeniero"},
	}}}
	cp := spec.Clone()
	cp.Groups[0].Domains[0] = "changed"
	cp.Groups[0].Priority = PriorityLow

	assert.Equal(t, "occ.com.mx", spec.Groups[0].Domains[0])
	assert.Equal(t, PriorityHigh, spec.Groups[0].Priority)
}

func TestScrapeResult_Records(t *testing.T) {
	t.Parallel()

	var nilResult *ScrapeResult
	assert.Nil(t, nilResult.Records())

	r := &ScrapeResult{Categories: []CategoryResult{
		{Records: []ScrapedRecord{{Kind: RecordJob}, {Kind: RecordProfile}}},
		{Records: []ScrapedRecord{{Kind: RecordCompany}}},
	}}
	assert.Len(t, r.Records(), 3)
}

func TestCompanyKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"Acme Corp", "acme"},
		{"Grupo Logístico del Norte S.A. de C.V.", "grupo-logistico-del-norte"},
		{"  Tecnología Ágil, Inc. ", "tecnologia-agil"},
		{"Foo & Bar LLC", "foo-bar"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CompanyKey(tt.name))
		})
	}
}

func TestTierConversion_Rate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, TierConversion{}.Rate())
	assert.InDelta(t, 0.25, TierConversion{Proposals: 4, Accepted: 1}.Rate(), 1e-9)
}

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 10, OutputTokens: 5, Cost: 0.1}
	u.Add(TokenUsage{InputTokens: 1, OutputTokens: 2, Cost: 0.05})
	assert.Equal(t, 11, u.InputTokens)
	assert.Equal(t, 7, u.OutputTokens)
	assert.InDelta(t, 0.15, u.Cost, 1e-9)
}

func TestSuggestion(t *testing.T) {
	t.Parallel()
	s := Suggestion(SuggestBoost, CategoryJobBoards)
	assert.Equal(t, "boost:job_boards", s)

	action, cat, ok := ParseSuggestion(s)
	assert.True(t, ok)
	assert.Equal(t, SuggestBoost, action)
	assert.Equal(t, CategoryJobBoards, cat)

	for _, bad := range []string{"", "boost", "boost:", "widen:job_boards", "retry failed sources"} {
		_, _, ok := ParseSuggestion(bad)
		assert.False(t, ok, bad)
	}
}

func TestAcceptanceStatus_Decided(t *testing.T) {
	assert.True(t, AcceptanceWon.Decided())
	assert.True(t, AcceptanceLost.Decided())
	assert.False(t, AcceptancePending.Decided())
	assert.False(t, AcceptanceStatus("").Decided())
}

func TestOutcome_Proposal(t *testing.T) {
	o := Outcome{ProposalID: "p1", Tier: TierHigh, ExternalID: "006A", Value: 90_000, Predicted: 0.7, Pending: true}
	p := o.Proposal()
	assert.Equal(t, "p1", p.ID)
	assert.True(t, p.Sent)
	assert.Equal(t, "006A", p.ExternalID)
	assert.Equal(t, 90_000.0, p.TotalValue)
	assert.Equal(t, 0.7, p.ConversionLikelihood)

	assert.False(t, Outcome{ProposalID: "p2"}.Proposal().Sent)
}
