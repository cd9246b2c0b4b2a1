package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Circle     CircleConfig     `yaml:"circle" mapstructure:"circle"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	ML         MLConfig         `yaml:"ml" mapstructure:"ml"`
	Conversion ConversionConfig `yaml:"conversion" mapstructure:"conversion"`
	Lock       LockConfig       `yaml:"lock" mapstructure:"lock"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// TierRule is one row of the opportunity scoring table.
type TierRule struct {
	MinEmployees int      `yaml:"min_employees" mapstructure:"min_employees"`
	MinRevenue   float64  `yaml:"min_revenue" mapstructure:"min_revenue"`
	Signals      []string `yaml:"signals" mapstructure:"signals"`
	BaseScore    float64  `yaml:"base_score" mapstructure:"base_score"`
	BaseValue    float64  `yaml:"base_value" mapstructure:"base_value"`
}

// TierTable holds the scoring rule for each value tier.
type TierTable struct {
	High   TierRule `yaml:"high" mapstructure:"high"`
	Medium TierRule `yaml:"medium" mapstructure:"medium"`
	Low    TierRule `yaml:"low" mapstructure:"low"`
}

// ConfidenceWeights blend the inputs of proposal confidence.
type ConfidenceWeights struct {
	Value      float64 `yaml:"value" mapstructure:"value"`
	Analysis   float64 `yaml:"analysis" mapstructure:"analysis"`
	Likelihood float64 `yaml:"likelihood" mapstructure:"likelihood"`
}

// ScoreConfig holds the derived-score policy applied at cycle finalization.
type ScoreConfig struct {
	ProfileNorm         float64 `yaml:"profile_norm" mapstructure:"profile_norm"`
	QualityProfileNorm  float64 `yaml:"quality_profile_norm" mapstructure:"quality_profile_norm"`
	OpportunityNorm     float64 `yaml:"opportunity_norm" mapstructure:"opportunity_norm"`
	EfficiencyWeight    float64 `yaml:"efficiency_weight" mapstructure:"efficiency_weight"`
	ROIBase             float64 `yaml:"roi_base" mapstructure:"roi_base"`
	ROIAccuracyWeight   float64 `yaml:"roi_accuracy_weight" mapstructure:"roi_accuracy_weight"`
	ROIEfficiencyWeight float64 `yaml:"roi_efficiency_weight" mapstructure:"roi_efficiency_weight"`
	ROIConversionWeight float64 `yaml:"roi_conversion_weight" mapstructure:"roi_conversion_weight"`
	Freshness           float64 `yaml:"freshness" mapstructure:"freshness"`
}

// CircleConfig is the business policy of the circle: scoring table,
// thresholds gating automated actions, and derived-score weights.
type CircleConfig struct {
	Tiers                   TierTable         `yaml:"tiers" mapstructure:"tiers"`
	HighValueThreshold      float64           `yaml:"high_value_threshold" mapstructure:"high_value_threshold"`
	MediumValueThreshold    float64           `yaml:"medium_value_threshold" mapstructure:"medium_value_threshold"`
	ProposalThreshold       float64           `yaml:"proposal_threshold" mapstructure:"proposal_threshold"`
	MediumProposalThreshold float64           `yaml:"medium_proposal_threshold" mapstructure:"medium_proposal_threshold"`
	AutoSendThreshold       float64           `yaml:"auto_send_threshold" mapstructure:"auto_send_threshold"`
	TrendMinStrength        float64           `yaml:"trend_min_strength" mapstructure:"trend_min_strength"`
	SentimentMinShift       float64           `yaml:"sentiment_min_shift" mapstructure:"sentiment_min_shift"`
	TurnoverMinRisk         float64           `yaml:"turnover_min_risk" mapstructure:"turnover_min_risk"`
	Confidence              ConfidenceWeights `yaml:"confidence" mapstructure:"confidence"`
	Scores                  ScoreConfig       `yaml:"scores" mapstructure:"scores"`
	NextCycleHours          int               `yaml:"next_cycle_hours" mapstructure:"next_cycle_hours"`
	Currency                string            `yaml:"currency" mapstructure:"currency"`
}

// ScrapeConfig configures the scraping phase.
type ScrapeConfig struct {
	TargetsFile       string  `yaml:"targets_file" mapstructure:"targets_file"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimit         float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResultsPerTerm int     `yaml:"max_results_per_term" mapstructure:"max_results_per_term"`
	QualityPolicy     string  `yaml:"quality_policy" mapstructure:"quality_policy"`
}

// MLConfig configures the ML engine.
type MLConfig struct {
	UseLLM       bool    `yaml:"use_llm" mapstructure:"use_llm"`
	MaxCompanies int     `yaml:"max_companies" mapstructure:"max_companies"`
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	LearningRate float64 `yaml:"learning_rate" mapstructure:"learning_rate"`
	Epochs       int     `yaml:"epochs" mapstructure:"epochs"`
	MaxOutcomes  int     `yaml:"max_outcomes" mapstructure:"max_outcomes"`
	MaxPatterns  int     `yaml:"max_patterns" mapstructure:"max_patterns"`
}

// Conversion sources.
const (
	ConversionSalesforce = "salesforce"
	ConversionSimulated  = "simulated"
)

// ConversionConfig selects where acceptance signals come from.
type ConversionConfig struct {
	Source string             `yaml:"source" mapstructure:"source"`
	Rates  map[string]float64 `yaml:"rates" mapstructure:"rates"`
}

// LockConfig configures the per-business-unit cycle lock.
type LockConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	TTLMinutes    int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// JinaConfig holds Jina AI settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID   string  `yaml:"client_id" mapstructure:"client_id"`
	Username   string  `yaml:"username" mapstructure:"username"`
	KeyPath    string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string  `yaml:"login_url" mapstructure:"login_url"`
	LeadSource string  `yaml:"lead_source" mapstructure:"lead_source"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// TemporalConfig configures the scheduled cycle worker.
type TemporalConfig struct {
	HostPort      string   `yaml:"host_port" mapstructure:"host_port"`
	Namespace     string   `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue     string   `yaml:"task_queue" mapstructure:"task_queue"`
	Schedule      string   `yaml:"schedule" mapstructure:"schedule"`
	BusinessUnits []string `yaml:"business_units" mapstructure:"business_units"`
	TimeoutMins   int      `yaml:"timeout_mins" mapstructure:"timeout_mins"`
}

// MonitoringConfig configures cycle health alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	EfficiencyFloor      float64 `yaml:"efficiency_floor" mapstructure:"efficiency_floor"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ZeroProposalStreak   int     `yaml:"zero_proposal_streak" mapstructure:"zero_proposal_streak"`
	LookbackCycles       int     `yaml:"lookback_cycles" mapstructure:"lookback_cycles"`
	IntervalMins         int     `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaPricing             `yaml:"jina" mapstructure:"jina"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// JinaPricing holds Jina pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CIRCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Circle.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Defaults returns the built-in configuration without reading any file or
// environment variable.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(eris.Wrap(err, "config: unmarshal defaults"))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "circle.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("circle.tiers.high.min_employees", 100)
	v.SetDefault("circle.tiers.high.min_revenue", 1_000_000)
	v.SetDefault("circle.tiers.high.signals", []string{"hiring_surge", "expansion", "new_locations"})
	v.SetDefault("circle.tiers.high.base_score", 0.8)
	v.SetDefault("circle.tiers.high.base_value", 150_000)
	v.SetDefault("circle.tiers.medium.min_employees", 50)
	v.SetDefault("circle.tiers.medium.min_revenue", 500_000)
	v.SetDefault("circle.tiers.medium.signals", []string{"consistent_hiring", "stable_growth"})
	v.SetDefault("circle.tiers.medium.base_score", 0.6)
	v.SetDefault("circle.tiers.medium.base_value", 75_000)
	v.SetDefault("circle.tiers.low.min_employees", 10)
	v.SetDefault("circle.tiers.low.min_revenue", 100_000)
	v.SetDefault("circle.tiers.low.signals", []string{"startup", "small_business"})
	v.SetDefault("circle.tiers.low.base_score", 0.4)
	v.SetDefault("circle.tiers.low.base_value", 25_000)
	v.SetDefault("circle.high_value_threshold", 0.8)
	v.SetDefault("circle.medium_value_threshold", 0.6)
	v.SetDefault("circle.proposal_threshold", 0.75)
	v.SetDefault("circle.medium_proposal_threshold", 0.70)
	v.SetDefault("circle.auto_send_threshold", 0.9)
	v.SetDefault("circle.trend_min_strength", 0.6)
	v.SetDefault("circle.sentiment_min_shift", 0.3)
	v.SetDefault("circle.turnover_min_risk", 0.7)
	v.SetDefault("circle.confidence.value", 0.4)
	v.SetDefault("circle.confidence.analysis", 0.3)
	v.SetDefault("circle.confidence.likelihood", 0.3)
	v.SetDefault("circle.scores.profile_norm", 1000)
	v.SetDefault("circle.scores.quality_profile_norm", 500)
	v.SetDefault("circle.scores.opportunity_norm", 100)
	v.SetDefault("circle.scores.efficiency_weight", 0.25)
	v.SetDefault("circle.scores.roi_base", 1.0)
	v.SetDefault("circle.scores.roi_accuracy_weight", 0.5)
	v.SetDefault("circle.scores.roi_efficiency_weight", 0.3)
	v.SetDefault("circle.scores.roi_conversion_weight", 0.2)
	v.SetDefault("circle.scores.freshness", 1.0)
	v.SetDefault("circle.next_cycle_hours", 24)
	v.SetDefault("circle.currency", "MXN")

	v.SetDefault("scrape.targets_file", "targets.yaml")
	v.SetDefault("scrape.concurrency", 4)
	v.SetDefault("scrape.rate_limit", 2.0)
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.max_results_per_term", 10)
	v.SetDefault("scrape.quality_policy", "weighted")

	v.SetDefault("ml.use_llm", true)
	v.SetDefault("ml.max_companies", 50)
	v.SetDefault("ml.concurrency", 5)
	v.SetDefault("ml.learning_rate", 0.1)
	v.SetDefault("ml.epochs", 25)
	v.SetDefault("ml.max_outcomes", 2000)
	v.SetDefault("ml.max_patterns", 200)

	v.SetDefault("conversion.source", "salesforce")
	v.SetDefault("conversion.rates", map[string]float64{"high": 0.25, "medium": 0.15, "low": 0.08})

	v.SetDefault("lock.driver", "memory")
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.ttl_minutes", 120)

	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.lead_source", "huntRED Circle")
	v.SetDefault("salesforce.rate_limit", 25.0)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "virtuous-circle")
	v.SetDefault("temporal.schedule", "0 6 * * *")
	v.SetDefault("temporal.timeout_mins", 90)

	v.SetDefault("monitoring.efficiency_floor", 0.3)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.zero_proposal_streak", 3)
	v.SetDefault("monitoring.lookback_cycles", 10)
	v.SetDefault("monitoring.interval_mins", 60)

	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]float64{"input": 0.80, "output": 4.00},
		"claude-sonnet-4-5-20250929": map[string]float64{"input": 3.00, "output": 15.00},
	})
	v.SetDefault("pricing.jina.per_mtok", 0.02)
}

// Validate checks that the circle policy is internally consistent.
func (c CircleConfig) Validate() error {
	var problems []string
	fraction := func(name string, v float64) {
		if v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("circle.%s must be in [0,1], got %g", name, v))
		}
	}
	fraction("high_value_threshold", c.HighValueThreshold)
	fraction("medium_value_threshold", c.MediumValueThreshold)
	fraction("proposal_threshold", c.ProposalThreshold)
	fraction("medium_proposal_threshold", c.MediumProposalThreshold)
	fraction("auto_send_threshold", c.AutoSendThreshold)

	if c.MediumValueThreshold > c.HighValueThreshold {
		problems = append(problems, "circle.medium_value_threshold must not exceed circle.high_value_threshold")
	}
	if c.AutoSendThreshold < c.ProposalThreshold || c.AutoSendThreshold < c.MediumProposalThreshold {
		problems = append(problems, "circle.auto_send_threshold must be at least the proposal thresholds")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks that the settings a command needs are present.
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, key string) {
		if !ok {
			problems = append(problems, key+" is required")
		}
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url")
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	if c.Lock.Driver == "redis" {
		require(c.Lock.RedisAddr != "", "lock.redis_addr")
	}

	switch c.Conversion.Source {
	case ConversionSimulated:
	case ConversionSalesforce:
		require(c.Salesforce.ClientID != "", "salesforce.client_id")
		require(c.Salesforce.Username != "", "salesforce.username")
		require(c.Salesforce.KeyPath != "", "salesforce.key_path")
	default:
		problems = append(problems, fmt.Sprintf("conversion.source %q is not supported", c.Conversion.Source))
	}

	switch mode {
	case "run", "worker", "serve":
		require(c.Jina.Key != "", "jina.key")
		if c.ML.UseLLM {
			require(c.Anthropic.Key != "", "anthropic.key")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	case "monitor":
		require(c.Monitoring.LookbackCycles > 0, "monitoring.lookback_cycles")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
