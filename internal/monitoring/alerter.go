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

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDriversOutOfBounds AlertType = "drivers_out_of_bounds"
	AlertNoCityBoundary     AlertType = "no_city_boundary"
	AlertSurgeBurst         AlertType = "surge_burst"
)

// maxListedIDs caps the driver ids carried in an alert.
const maxListedIDs = 50

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

	// Without a boundary every positioned driver is anomalous, so this
	// replaces the out-of-bounds alert rather than adding to it.
	if snap.BoundaryZones == 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNoCityBoundary,
			Severity: "high",
			Message: fmt.Sprintf(
				"No city boundary zone defined; all %d positioned drivers are flagged anomalous",
				snap.PositionedDrivers,
			),
			Details: map[string]any{
				"zones":              snap.Zones,
				"positioned_drivers": snap.PositionedDrivers,
			},
			Timestamp: now,
		})
	} else if a.cfg.AnomalyThreshold > 0 && snap.AnomalousDrivers >= a.cfg.AnomalyThreshold {
		ids := snap.AnomalousIDs
		if len(ids) > maxListedIDs {
			ids = ids[:maxListedIDs]
		}
		alerts = append(alerts, Alert{
			Type:     AlertDriversOutOfBounds,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d of %d drivers are outside the city boundary",
				snap.AnomalousDrivers, snap.PositionedDrivers,
			),
			Details: map[string]any{
				"anomalous":  snap.AnomalousDrivers,
				"positioned": snap.PositionedDrivers,
				"driver_ids": ids,
			},
			Timestamp: now,
		})
	}

	if a.cfg.HotspotThreshold > 0 && snap.Hotspots >= a.cfg.HotspotThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSurgeBurst,
			Severity: "low",
			Message: fmt.Sprintf(
				"%d surge hotspots recorded in last %dm (threshold %d)",
				snap.Hotspots, snap.LookbackMinutes, a.cfg.HotspotThreshold,
			),
			Details: map[string]any{
				"hotspots":  snap.Hotspots,
				"threshold": a.cfg.HotspotThreshold,
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

// sendWebhook posts a single alert to the webhook URL.
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
