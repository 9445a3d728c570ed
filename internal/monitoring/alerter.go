// Package monitoring evaluates run outcomes against data-quality
// thresholds and posts alerts to an operations webhook. These alerts
// are about the radar itself (feeds down, suspiciously small dataset),
// not about vulnerabilities.
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

	"github.com/vulnradar/vulnradar/internal/config"
	"github.com/vulnradar/vulnradar/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFeedUnavailable AlertType = "feed_unavailable"
	AlertDatasetShrunk   AlertType = "dataset_shrunk"
	AlertNotifyFailures  AlertType = "notify_failures"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run stats against configured thresholds and sends
// alerts via webhook when they are breached.
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

// Evaluate checks one run's stats and returns any alerts.
func (a *Alerter) Evaluate(stats *model.RunStats) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if len(stats.FeedsFailed) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertFeedUnavailable,
			Severity: "high",
			Message: fmt.Sprintf("%d feed(s) unavailable this run: %v",
				len(stats.FeedsFailed), stats.FeedsFailed),
			Details: map[string]any{
				"feeds": stats.FeedsFailed,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinMergedRecords > 0 && stats.RecordsMerged < a.cfg.MinMergedRecords {
		alerts = append(alerts, Alert{
			Type:     AlertDatasetShrunk,
			Severity: "high",
			Message: fmt.Sprintf("merged dataset has %d records, below the %d floor",
				stats.RecordsMerged, a.cfg.MinMergedRecords),
			Details: map[string]any{
				"records_merged": stats.RecordsMerged,
				"floor":          a.cfg.MinMergedRecords,
			},
			Timestamp: now,
		})
	}

	if stats.NotifyFailures > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNotifyFailures,
			Severity: "medium",
			Message:  fmt.Sprintf("%d notification(s) failed after retries", stats.NotifyFailures),
			Details: map[string]any{
				"failures": stats.NotifyFailures,
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
		return eris.Wrap(err, "monitoring: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post alert")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned %d", resp.StatusCode)
	}
	return nil
}
