package model

import (
	"strings"
	"time"
)

// ValueTier buckets opportunities by value score.
type ValueTier string

const (
	TierHigh   ValueTier = "high"
	TierMedium ValueTier = "medium"
	TierLow    ValueTier = "low"
)

// OpportunityType names the insight an opportunity came from.
type OpportunityType string

const (
	OpportunityCompanyGrowth  OpportunityType = "company_growth"
	OpportunityMarketTrend    OpportunityType = "market_trend"
	OpportunitySentimentShift OpportunityType = "sentiment_shift"
	OpportunityTurnoverRisk   OpportunityType = "turnover_risk"
)

// Opportunity is a scored prospect. ValueScore and ProposalConfidence are in
// [0,1].
type Opportunity struct {
	CompanyID            string          `json:"company_id"`
	CompanyName          string          `json:"company_name"`
	Sector               string          `json:"sector,omitempty"`
	Type                 OpportunityType `json:"opportunity_type"`
	Tier                 ValueTier       `json:"tier"`
	ValueScore           float64         `json:"value_score"`
	ProposalConfidence   float64         `json:"proposal_confidence"`
	ConversionLikelihood float64         `json:"conversion_likelihood"`
	EmployeeCount        int             `json:"employee_count,omitempty"`
	RevenueEstimate      float64         `json:"revenue_estimate,omitempty"`
	Signals              []string        `json:"signals,omitempty"`
}

// OpportunitySet partitions detected opportunities by tier. Every opportunity
// in All appears in exactly one tier slice.
type OpportunitySet struct {
	All              []Opportunity `json:"all"`
	High             []Opportunity `json:"high"`
	Medium           []Opportunity `json:"medium"`
	Low              []Opportunity `json:"low"`
	ProposalTriggers int           `json:"proposal_triggers"`
}

// Proposal is a generated commercial proposal.
type Proposal struct {
	ID                   string          `json:"id"`
	CycleID              string          `json:"cycle_id"`
	BusinessUnitID       string          `json:"business_unit_id,omitempty"`
	CompanyID            string          `json:"company_id"`
	CompanyName          string          `json:"company_name"`
	Type                 OpportunityType `json:"opportunity_type"`
	Tier                 ValueTier       `json:"tier"`
	ValueScore           float64         `json:"value_score"`
	Confidence           float64         `json:"confidence"`
	ConversionLikelihood float64         `json:"conversion_likelihood"`
	TotalValue           float64         `json:"total_value"`
	EmployeeCount        int             `json:"employee_count,omitempty"`
	RevenueEstimate      float64         `json:"revenue_estimate,omitempty"`
	Signals              []string        `json:"signals,omitempty"`
	AutoSend             bool            `json:"auto_send"`
	Sent                 bool            `json:"sent"`
	SentAt               *time.Time      `json:"sent_at,omitempty"`
	ExternalID           string          `json:"external_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// DeliveryReceipt is returned by a proposal sender.
type DeliveryReceipt struct {
	Success    bool      `json:"success"`
	ExternalID string    `json:"external_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// ProposalBatch is the output of proposal generation.
type ProposalBatch struct {
	Proposals []Proposal `json:"proposals"`
	Generated int        `json:"generated"`
	Sent      int        `json:"sent"`
	Queued    int        `json:"queued"`
	Deferred  int        `json:"deferred"`
}

// AcceptanceStatus is where a proposal stands with the prospect.
type AcceptanceStatus string

// Acceptance statuses. Only won and lost proposals are labelled outcomes.
const (
	AcceptancePending AcceptanceStatus = "pending"
	AcceptanceWon     AcceptanceStatus = "won"
	AcceptanceLost    AcceptanceStatus = "lost"
)

// Decided reports whether the prospect has answered.
func (s AcceptanceStatus) Decided() bool {
	return s == AcceptanceWon || s == AcceptanceLost
}

// Outcome is a training example produced by client acquisition. A pending
// outcome is a sent proposal still awaiting an answer; it carries what is
// needed to look it up again and is never trained on.
type Outcome struct {
	ProposalID      string     `json:"proposal_id"`
	CompanyID       string     `json:"company_id"`
	Tier            ValueTier  `json:"tier"`
	EmployeeCount   int        `json:"employee_count"`
	RevenueEstimate float64    `json:"revenue_estimate"`
	Signals         []string   `json:"signals,omitempty"`
	Predicted       float64    `json:"predicted"`
	Converted       bool       `json:"converted"`
	Pending         bool       `json:"pending,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
	Value           float64    `json:"value,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
}

// Proposal rebuilds enough of the sent proposal behind a pending outcome to
// ask an acceptance source about it again.
func (o Outcome) Proposal() Proposal {
	return Proposal{
		ID:                   o.ProposalID,
		CompanyID:            o.CompanyID,
		Tier:                 o.Tier,
		EmployeeCount:        o.EmployeeCount,
		RevenueEstimate:      o.RevenueEstimate,
		Signals:              o.Signals,
		ConversionLikelihood: o.Predicted,
		TotalValue:           o.Value,
		Sent:                 o.ExternalID != "",
		SentAt:               o.SentAt,
		ExternalID:           o.ExternalID,
	}
}

// TierConversion tallies decided proposals for one value tier.
type TierConversion struct {
	Proposals    int     `json:"proposals"`
	Accepted     int     `json:"accepted"`
	ExpectedRate float64 `json:"expected_rate"`
}

// Rate returns the observed acceptance rate, or 0 with no proposals.
func (t TierConversion) Rate() float64 {
	if t.Proposals == 0 {
		return 0
	}
	return float64(t.Accepted) / float64(t.Proposals)
}

// ConversionResult is the output of client acquisition tracking.
type ConversionResult struct {
	Proposals       int                          `json:"proposals"`
	Accepted        int                          `json:"accepted"`
	ConversionRate  float64                      `json:"conversion_rate"`
	NewClients      int                          `json:"new_clients"`
	Revenue         float64                      `json:"revenue"`
	AverageDealSize float64                      `json:"average_deal_size"`
	// Pending counts this cycle's proposals still awaiting an answer.
	Pending         int                          `json:"pending"`
	// Resolved and LateAccepted count proposals from earlier cycles that
	// were decided during this one.
	Resolved        int                          `json:"resolved"`
	LateAccepted    int                          `json:"late_accepted"`
	ByTier          map[ValueTier]TierConversion `json:"by_tier,omitempty"`
	Outcomes        []Outcome                    `json:"outcomes,omitempty"`
}

// SourceFeedback is the contribution of one feedback source.
type SourceFeedback struct {
	Source         string   `json:"source"`
	Count          int      `json:"count"`
	QualityScore   float64  `json:"quality_score"`
	Suggestions    []string `json:"suggestions,omitempty"`
	PatternChanges []string `json:"pattern_changes,omitempty"`
}

// FeedbackBundle merges every source's feedback for a cycle.
type FeedbackBundle struct {
	Sources        []SourceFeedback `json:"sources"`
	TotalCount     int              `json:"total_count"`
	AverageQuality float64          `json:"average_quality"`
	Suggestions    []string         `json:"suggestions,omitempty"`
	PatternChanges []string         `json:"pattern_changes,omitempty"`
}

// ImprovementResult tallies the updates applied in model improvement.
type ImprovementResult struct {
	ScrapingUpdates int `json:"scraping_updates"`
	ModelUpdates    int `json:"model_updates"`
	ProposalUpdates int `json:"proposal_updates"`
	UpdatesApplied  int `json:"updates_applied"`
}

// Suggestion actions on a target category understood by the model improver.
const (
	SuggestBoost  = "boost"
	SuggestReduce = "reduce"
)

// Suggestion formats an action on a category, e.g. "boost:job_boards".
func Suggestion(action string, c TargetCategory) string {
	return action + ":" + string(c)
}

// ParseSuggestion splits a category suggestion. ok is false for free-text
// suggestions.
func ParseSuggestion(s string) (action string, c TargetCategory, ok bool) {
	action, rest, found := strings.Cut(s, ":")
	if !found || (action != SuggestBoost && action != SuggestReduce) || rest == "" {
		return "", "", false
	}
	return action, TargetCategory(rest), true
}
