package model

import (
	"time"
)

// CirclePhase identifies a stage of the virtuous circle.
type CirclePhase string

const (
	PhaseScraping             CirclePhase = "scraping"
	PhaseMLProcessing         CirclePhase = "ml_processing"
	PhaseOpportunityDetection CirclePhase = "opportunity_detection"
	PhaseProposalGeneration   CirclePhase = "proposal_generation"
	PhaseClientAcquisition    CirclePhase = "client_acquisition"
	PhaseFeedbackCollection   CirclePhase = "feedback_collection"
	PhaseModelImprovement     CirclePhase = "model_improvement"
)

// Phases lists every circle phase in execution order.
var Phases = []CirclePhase{
	PhaseScraping,
	PhaseMLProcessing,
	PhaseOpportunityDetection,
	PhaseProposalGeneration,
	PhaseClientAcquisition,
	PhaseFeedbackCollection,
	PhaseModelImprovement,
}

// Index returns the position of p in the execution order, or -1 if p is unknown.
func (p CirclePhase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the seven circle phases.
func (p CirclePhase) Valid() bool {
	return p.Index() >= 0
}

// Next returns the phase after p. The second return is false for the last
// phase and for unknown phases.
func (p CirclePhase) Next() (CirclePhase, bool) {
	i := p.Index()
	if i < 0 || i == len(Phases)-1 {
		return "", false
	}
	return Phases[i+1], true
}

func (p CirclePhase) String() string {
	return string(p)
}

// PhaseStatus represents the current state of a circle phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// PhaseResult holds the outcome of a single phase execution.
type PhaseResult struct {
	Name     CirclePhase    `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CycleMetrics is the running record of one cycle. Each phase writes its own
// block of fields once; derived scores are filled in after the last phase.
type CycleMetrics struct {
	CycleID        string      `json:"cycle_id"`
	BusinessUnitID string      `json:"business_unit_id,omitempty"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        *time.Time  `json:"end_time,omitempty"`
	Phase          CirclePhase `json:"phase"`

	// Scraping
	DomainsScraped      int     `json:"domains_scraped"`
	ProfilesExtracted   int     `json:"profiles_extracted"`
	JobsDiscovered      int     `json:"jobs_discovered"`
	CompaniesIdentified int     `json:"companies_identified"`
	ScrapeQualityScore  float64 `json:"scrape_quality_score"`

	// ML processing
	MLAccuracyBefore     float64 `json:"ml_accuracy_before"`
	MLAccuracyAfter      float64 `json:"ml_accuracy_after"`
	PatternsDiscovered   int     `json:"patterns_discovered"`
	ModelConfidenceScore float64 `json:"model_confidence_score"`

	// Opportunity detection
	OpportunitiesDetected  int `json:"opportunities_detected"`
	HighValueOpportunities int `json:"high_value_opportunities"`

	// Proposals and acquisition
	ProposalsGenerated int     `json:"proposals_generated"`
	ProposalsSent      int     `json:"proposals_sent"`
	ProposalsAccepted  int     `json:"proposals_accepted"`
	ConversionRate     float64 `json:"conversion_rate"`
	NewClients         int     `json:"new_clients"`
	RevenueGenerated   float64 `json:"revenue_generated"`

	// Feedback and improvement
	FeedbackCollected   int `json:"feedback_collected"`
	ModelUpdatesApplied int `json:"model_updates_applied"`

	APICostUSD float64 `json:"api_cost_usd"`

	// Derived
	CircleEfficiency float64 `json:"circle_efficiency"`
	ROIImprovement   float64 `json:"roi_improvement"`
	DataQualityScore float64 `json:"data_quality_score"`
}

// Completed reports whether the cycle has an end time.
func (m *CycleMetrics) Completed() bool {
	return m.EndTime != nil
}

// Duration returns the wall-clock time of a completed cycle, or zero.
func (m *CycleMetrics) Duration() time.Duration {
	if m.EndTime == nil {
		return 0
	}
	return m.EndTime.Sub(m.StartTime)
}

// ImprovementSummary captures what this cycle improved.
type ImprovementSummary struct {
	MLAccuracyGain         float64 `json:"ml_accuracy_gain"`
	NewPatterns            int     `json:"new_patterns"`
	ROIImprovement         float64 `json:"roi_improvement"`
	DataQualityImprovement float64 `json:"data_quality_improvement"`
}

// BusinessImpact captures the commercial outcome of a cycle.
type BusinessImpact struct {
	OpportunitiesGenerated int     `json:"opportunities_generated"`
	ProposalsCreated       int     `json:"proposals_created"`
	ConversionRate         float64 `json:"conversion_rate"`
	RevenueGenerated       float64 `json:"revenue_generated"`
	NewClients             int     `json:"new_clients"`
}

// CycleReport is returned to the caller of a cycle. Failed cycles carry no
// metrics, phases or summaries.
type CycleReport struct {
	Success              bool                `json:"success"`
	CycleID              string              `json:"cycle_id,omitempty"`
	BusinessUnitID       string              `json:"business_unit_id,omitempty"`
	Error                string              `json:"error,omitempty"`
	PhaseReached         CirclePhase         `json:"phase_reached,omitempty"`
	ExecutionTimeSeconds float64             `json:"execution_time_seconds"`
	Metrics              *CycleMetrics       `json:"metrics,omitempty"`
	PhasesCompleted      int                 `json:"phases_completed"`
	Phases               []PhaseResult       `json:"phases,omitempty"`
	NextCycleScheduled   *time.Time          `json:"next_cycle_scheduled,omitempty"`
	ImprovementsDetected *ImprovementSummary `json:"improvements_detected,omitempty"`
	BusinessImpact       *BusinessImpact     `json:"business_impact,omitempty"`
}

// CycleFailure is persisted when a cycle aborts.
type CycleFailure struct {
	ID             string      `json:"id"`
	CycleID        string      `json:"cycle_id"`
	BusinessUnitID string      `json:"business_unit_id,omitempty"`
	Phase          CirclePhase `json:"phase"`
	Error          string      `json:"error"`
	StartedAt      time.Time   `json:"started_at"`
	FailedAt       time.Time   `json:"failed_at"`
}

// TokenUsage tracks LLM token consumption and its estimated cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}

// DefaultBusinessUnit scopes cycles triggered without a business unit.
const DefaultBusinessUnit = "default"
