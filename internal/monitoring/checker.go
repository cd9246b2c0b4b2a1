package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/model"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	units     []string
}

// NewChecker creates a background alert checker over the given business
// units. No units means the default one.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, units []string) *Checker {
	if len(units) == 0 {
		units = []string{model.DefaultBusinessUnit}
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		units:     units,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.IntervalMins) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_cycles", c.cfg.LookbackCycles),
		zap.Strings("business_units", c.units),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

// CheckOnce evaluates every business unit once and returns the alerts raised.
func (c *Checker) CheckOnce(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	var all []Alert
	for _, bu := range c.units {
		snap, err := c.collector.Collect(ctx, bu, c.cfg.LookbackCycles)
		if err != nil {
			log.Error("monitoring: failed to collect trends",
				zap.String("business_unit", bu),
				zap.Error(err),
			)
			continue
		}
		all = append(all, c.alerter.Evaluate(snap)...)
	}
	if len(all) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, all)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(all)),
		zap.Int("alerts_sent", sent),
	)
	return all
}
