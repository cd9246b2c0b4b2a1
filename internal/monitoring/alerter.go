package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowEfficiency      AlertType = "low_efficiency"
	AlertCycleFailureRate   AlertType = "cycle_failure_rate"
	AlertZeroProposalStreak AlertType = "zero_proposal_streak"
)

// minFinishedCycles is the sample below which the failure rate is too noisy
// to alert on.
const minFinishedCycles = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type           AlertType      `json:"type"`
	Severity       string         `json:"severity"`
	BusinessUnitID string         `json:"business_unit_id"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Alerter evaluates a TrendSnapshot against configured thresholds and sends
// alerts via webhook when they are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.Policy
}

// NewAlerter creates a new Alerter with the given monitoring config.
// Webhook posts are retried on throttling and server errors.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.Policy{Attempts: 3, Backoff: time.Second, MaxBackoff: 5 * time.Second, Jitter: 0.2},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *TrendSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.EfficiencyFloor > 0 && snap.Cycles > 0 && snap.AvgEfficiency < a.cfg.EfficiencyFloor {
		alerts = append(alerts, Alert{
			Type:           AlertLowEfficiency,
			Severity:       "medium",
			BusinessUnitID: snap.BusinessUnitID,
			Message: fmt.Sprintf(
				"%s: average circle efficiency %.2f below floor %.2f over last %d cycles",
				snap.BusinessUnitID, snap.AvgEfficiency, a.cfg.EfficiencyFloor, snap.Cycles,
			),
			Details: map[string]any{
				"avg_efficiency":   snap.AvgEfficiency,
				"efficiency_trend": snap.EfficiencyTrend,
				"floor":            a.cfg.EfficiencyFloor,
			},
			Timestamp: now,
		})
	}

	finished := snap.Cycles + snap.Failures
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinishedCycles && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:           AlertCycleFailureRate,
			Severity:       "high",
			BusinessUnitID: snap.BusinessUnitID,
			Message: fmt.Sprintf(
				"%s: cycle failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				snap.BusinessUnitID, snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failures, finished,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failures,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ZeroProposalStreak > 0 && snap.ZeroProposalStreak >= a.cfg.ZeroProposalStreak {
		alerts = append(alerts, Alert{
			Type:           AlertZeroProposalStreak,
			Severity:       "medium",
			BusinessUnitID: snap.BusinessUnitID,
			Message: fmt.Sprintf(
				"%s: no proposals generated in the last %d cycles",
				snap.BusinessUnitID, snap.ZeroProposalStreak,
			),
			Details: map[string]any{
				"streak":    snap.ZeroProposalStreak,
				"threshold": a.cfg.ZeroProposalStreak,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("business_unit", alert.BusinessUnitID),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("business_unit", alert.BusinessUnitID),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	_, err = resilience.Retry(ctx, a.retry, "monitoring.webhook", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.post(ctx, payload)
	})
	return err
}

// post makes one delivery attempt.
func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.Transient(eris.Wrap(err, "monitoring: webhook request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return &resilience.StatusError{Service: "monitoring webhook", StatusCode: resp.StatusCode}
	}
	return nil
}
