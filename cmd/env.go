package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/circle"
	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/cost"
	"github.com/huntred/circle/internal/db"
	"github.com/huntred/circle/internal/delivery"
	"github.com/huntred/circle/internal/lock"
	"github.com/huntred/circle/internal/metrics"
	"github.com/huntred/circle/internal/ml"
	"github.com/huntred/circle/internal/resilience"
	"github.com/huntred/circle/internal/scrape"
	"github.com/huntred/circle/internal/store"
	anthropicpkg "github.com/huntred/circle/pkg/anthropic"
	"github.com/huntred/circle/pkg/jina"
	"github.com/huntred/circle/pkg/notion"
	sfpkg "github.com/huntred/circle/pkg/salesforce"
)

// circleEnv holds the store, clients and orchestrator needed by the run,
// serve and worker commands.
type circleEnv struct {
	Store        store.Store
	Orchestrator *circle.Orchestrator
	Metrics      *metrics.Recorder
	Guards       *resilience.Registry

	closers []func()
}

// Close releases resources held by the environment.
func (e *circleEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// envOptions select how an environment is built.
type envOptions struct {
	// Mode is passed to config validation.
	Mode string
	// DryRun logs proposals instead of sending them and simulates
	// acceptance.
	DryRun bool
	// Registerer receives the cycle metrics. Nil uses the default registry.
	Registerer prometheus.Registerer
}

// initStore opens the configured store and migrates it.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemory()
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initLocker builds the cycle lock. The returned func closes any client it
// opened.
func initLocker() (lock.Locker, func(), error) {
	switch cfg.Lock.Driver {
	case "", "memory":
		return lock.NewMemory(), func() {}, nil
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword,
			DB:       cfg.Lock.RedisDB,
		})
		ttl := time.Duration(cfg.Lock.TTLMinutes) * time.Minute
		return lock.NewRedis(rc, ttl), func() { _ = rc.Close() }, nil
	}
	return nil, nil, eris.Errorf("unsupported lock driver: %s", cfg.Lock.Driver)
}

func salesforceConfigured() bool {
	return cfg.Salesforce.ClientID != "" && cfg.Salesforce.Username != ""
}

func initSalesforce(guards *resilience.Registry) (sfpkg.Client, error) {
	c, err := sfpkg.Connect(sfpkg.Credentials{
		LoginURL: cfg.Salesforce.LoginURL,
		Username: cfg.Salesforce.Username,
		ClientID: cfg.Salesforce.ClientID,
		KeyPath:  cfg.Salesforce.KeyPath,
	},
		sfpkg.WithRateLimit(cfg.Salesforce.RateLimit),
		sfpkg.WithGuard(guards.Guard("salesforce")),
	)
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}
	return c, nil
}

// initCircle validates the config for opts.Mode and wires the orchestrator.
// Callers should defer env.Close().
func initCircle(ctx context.Context, opts envOptions) (*circleEnv, error) {
	if opts.DryRun {
		cfg.Conversion.Source = config.ConversionSimulated
	}
	if err := cfg.Validate(opts.Mode); err != nil {
		return nil, err
	}

	env := &circleEnv{
		Guards: resilience.NewRegistry(resilience.Policy{}, resilience.BreakerSettings{}),
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, func() { _ = st.Close() })

	locker, closeLock, err := initLocker()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, closeLock)

	catalogue, err := scrape.LoadCatalogue(cfg.Scrape.TargetsFile)
	if err != nil {
		env.Close()
		return nil, err
	}
	policy, err := scrape.PolicyByName(cfg.Scrape.QualityPolicy)
	if err != nil {
		env.Close()
		return nil, err
	}

	jinaOpts := []jina.Option{
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithGuard(env.Guards.Guard("jina")),
		jina.WithRateLimit(cfg.Scrape.RateLimit),
	}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)
	runner := &scrape.Runner{
		Scraper:     scrape.NewJinaScraper(jinaClient, cfg.Scrape.MaxResultsPerTerm, cfg.Scrape.Concurrency),
		Policy:      policy,
		Concurrency: cfg.Scrape.Concurrency,
		Timeout:     time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
	}

	costs := cost.NewCalculator(cfg.Pricing)
	mlOpts := []ml.Option{ml.WithCost(costs)}
	if cfg.ML.UseLLM && cfg.Anthropic.Key != "" {
		mlOpts = append(mlOpts, ml.WithLLM(anthropicpkg.NewClient(cfg.Anthropic.Key), env.Guards.Guard("anthropic")))
	} else if cfg.ML.UseLLM {
		zap.L().Warn("anthropic key not set, company analysis uses scraped records only")
	}
	engine := ml.NewEngine(st, ml.ConfigFrom(cfg.ML, cfg.Anthropic), mlOpts...)

	rates := circle.RatesFromConfig(cfg.Conversion.Rates)
	deps := circle.Deps{
		Store:   st,
		Locker:  locker,
		Targets: catalogue,
		Scraper: runner,
		ML:      engine,
		Tuner:   engine,
		Ledger:  engine,
		Costs:   costs,
		Policy:  cfg.Circle,
		Rates:   rates,
	}

	var sf sfpkg.Client
	if !opts.DryRun && salesforceConfigured() {
		sf, err = initSalesforce(env.Guards)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	switch {
	case sf != nil:
		deps.Sender = delivery.NewSalesforceSender(sf, cfg.Salesforce.LeadSource)
		deps.Feedback = append(deps.Feedback,
			delivery.NewClientResponseSource(sf),
			delivery.NewEngagementSource(sf),
		)
	default:
		if !opts.DryRun {
			zap.L().Warn("salesforce not configured, proposals are logged only")
		}
		deps.Sender = delivery.NewDryRunSender()
	}

	switch cfg.Conversion.Source {
	case config.ConversionSimulated:
		deps.Acceptance = delivery.NewSimulatedAcceptance(rates)
	case config.ConversionSalesforce:
		if sf == nil {
			env.Close()
			return nil, eris.New("conversion.source salesforce needs a configured salesforce client")
		}
		deps.Acceptance = delivery.NewSalesforceAcceptance(sf)
	default:
		env.Close()
		return nil, eris.Errorf("conversion.source %q is not supported", cfg.Conversion.Source)
	}

	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		nc := notion.NewClient(cfg.Notion.Token, notion.WithGuard(env.Guards.Guard("notion")))
		if !opts.DryRun {
			deps.Review = delivery.NewNotionReviewQueue(nc, cfg.Notion.ReviewDB)
		}
		deps.Feedback = append(deps.Feedback, delivery.NewReviewDecisionSource(nc, cfg.Notion.ReviewDB))
	} else {
		zap.L().Debug("notion not configured, proposals below auto-send stay unqueued")
	}

	env.Metrics = metrics.New(opts.Registerer)
	deps.Observer = env.Metrics

	orch, err := circle.New(deps)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Orchestrator = orch

	zap.L().Info("circle ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("lock", cfg.Lock.Driver),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("feedback_sources", len(deps.Feedback)),
		zap.Bool("review_queue", deps.Review != nil),
	)
	return env, nil
}
