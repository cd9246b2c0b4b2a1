package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/config"
	"github.com/huntred/circle/internal/resilience"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		EfficiencyFloor:      0.3,
		FailureRateThreshold: 0.2,
		ZeroProposalStreak:   3,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	alerts := a.Evaluate(&TrendSnapshot{
		BusinessUnitID:     "acme",
		Cycles:             10,
		Failures:           1,
		FailureRate:        1.0 / 11,
		AvgEfficiency:      0.65,
		ZeroProposalStreak: 1,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_LowEfficiency(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	alerts := a.Evaluate(&TrendSnapshot{BusinessUnitID: "acme", Cycles: 4, AvgEfficiency: 0.12})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowEfficiency, alerts[0].Type)
	assert.Equal(t, "acme", alerts[0].BusinessUnitID)
	assert.Contains(t, alerts[0].Message, "0.12 below floor 0.30")
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	alerts := a.Evaluate(&TrendSnapshot{
		BusinessUnitID: "acme",
		Cycles:         3,
		Failures:       2,
		FailureRate:    0.4,
		AvgEfficiency:  0.5,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCycleFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_MinimumCyclesRequired(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	alerts := a.Evaluate(&TrendSnapshot{Failures: 2, FailureRate: 1})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ZeroProposalStreak(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	alerts := a.Evaluate(&TrendSnapshot{
		BusinessUnitID:     "acme",
		Cycles:             5,
		AvgEfficiency:      0.5,
		ZeroProposalStreak: 3,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertZeroProposalStreak, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "last 3 cycles")
}

func TestAlerter_Evaluate_DisabledThresholds(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&TrendSnapshot{
		Cycles:             5,
		Failures:           5,
		FailureRate:        0.5,
		ZeroProposalStreak: 5,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = ts.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertLowEfficiency, Severity: "medium", Message: "low"},
		{Type: AlertCycleFailureRate, Severity: "high", Message: "failing"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func fastRetry(a *Alerter) *Alerter {
	a.retry = resilience.Policy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return a
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := fastRetry(NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}))
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertLowEfficiency}})
	assert.Zero(t, sent)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_SendAlerts_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := fastRetry(NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}))
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertZeroProposalStreak}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := fastRetry(NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL}))
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertLowEfficiency}}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertLowEfficiency}}))
}
