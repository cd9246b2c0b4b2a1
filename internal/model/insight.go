package model

// Growth indicators the analysis recognises in company signals.
const (
	SignalHiringSurge      = "hiring_surge"
	SignalExpansion        = "expansion"
	SignalNewLocations     = "new_locations"
	SignalStableGrowth     = "stable_growth"
	SignalConsistentHiring = "consistent_hiring"
	SignalStartup          = "startup"
	SignalSmallBusiness    = "small_business"
)

// CompanyAnalysis is the ML view of one company seen during scraping.
type CompanyAnalysis struct {
	CompanyID        string   `json:"company_id"`
	Name             string   `json:"name"`
	Sector           string   `json:"sector,omitempty"`
	EmployeeCount    int      `json:"employee_count"`
	RevenueEstimate  float64  `json:"revenue_estimate"`
	GrowthIndicators []string `json:"growth_indicators,omitempty"`
	OpenJobs         int      `json:"open_jobs"`
	Sentiment        float64  `json:"sentiment"`
	Confidence       float64  `json:"confidence"`
	// ConversionLikelihood is the model's predicted probability that a
	// proposal to this company converts.
	ConversionLikelihood float64 `json:"conversion_likelihood"`
}

// Trend directions.
const (
	TrendRising    = "rising"
	TrendFlat      = "flat"
	TrendDeclining = "declining"
)

// MarketTrend summarises hiring movement in one sector.
type MarketTrend struct {
	Sector      string   `json:"sector"`
	Direction   string   `json:"direction"`
	Strength    float64  `json:"strength"`
	JobPostings int      `json:"job_postings"`
	Companies   []string `json:"companies,omitempty"`
}

// SentimentSignal is the aggregate tone of one sector and its shift since the
// previous cycle.
type SentimentSignal struct {
	Sector  string  `json:"sector"`
	Score   float64 `json:"score"`
	Shift   float64 `json:"shift"`
	Samples int     `json:"samples"`
}

// TurnoverPrediction estimates the attrition risk at one company.
type TurnoverPrediction struct {
	CompanyID string  `json:"company_id"`
	Name      string  `json:"name"`
	Risk      float64 `json:"risk"`
}

// MLInsights is the output of the ML processing phase.
type MLInsights struct {
	AccuracyBefore      float64              `json:"accuracy_before"`
	AccuracyAfter       float64              `json:"accuracy_after"`
	NewPatterns         int                  `json:"new_patterns"`
	Patterns            []string             `json:"patterns,omitempty"`
	ConfidenceScore     float64              `json:"confidence_score"`
	CompanyAnalysis     []CompanyAnalysis    `json:"company_analysis,omitempty"`
	MarketTrends        []MarketTrend        `json:"market_trends,omitempty"`
	Sentiment           []SentimentSignal    `json:"sentiment,omitempty"`
	TurnoverPredictions []TurnoverPrediction `json:"turnover_predictions,omitempty"`
	// Calibration holds per-tier offsets the detector adds to conversion
	// likelihood, learned from past acceptance rates.
	Calibration map[ValueTier]float64 `json:"calibration,omitempty"`
	TokenUsage  TokenUsage            `json:"token_usage"`
}

// RetrainResult is the outcome of a retraining pass.
type RetrainResult struct {
	AccuracyAfter float64 `json:"accuracy_after"`
	Epochs        int     `json:"epochs"`
	Examples      int     `json:"examples"`
	PatternsAdded int     `json:"patterns_added"`
}
