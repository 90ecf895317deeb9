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

	"github.com/sells-group/evidence-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertIngestFailureRate    AlertType = "ingest_failure_rate"
	AlertOverduePilots        AlertType = "overdue_pilots"
	AlertContradictionBacklog AlertType = "contradiction_backlog"
)

// The failure-rate alert needs at least this many finished jobs.
const minFinishedJobsForFailRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.JobsCompleted + snap.JobsFailed
	if finished >= minFinishedJobsForFailRate && snap.JobFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertIngestFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Ingestion failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.JobFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.JobsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.JobFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.JobsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.OverduePilots > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertOverduePilots,
			Severity: "medium",
			Message:  fmt.Sprintf("%d active pilot(s) past their end date", snap.OverduePilots),
			Details: map[string]any{
				"pilot_ids": snap.OverduePilotIDs,
			},
			Timestamp: now,
		})
	}

	if a.cfg.ContradictionBacklog > 0 && snap.UnresolvedContradictions > a.cfg.ContradictionBacklog {
		alerts = append(alerts, Alert{
			Type:     AlertContradictionBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d unresolved contradictions exceed the backlog limit of %d",
				snap.UnresolvedContradictions, a.cfg.ContradictionBacklog,
			),
			Details: map[string]any{
				"unresolved": snap.UnresolvedContradictions,
				"limit":      a.cfg.ContradictionBacklog,
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
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
