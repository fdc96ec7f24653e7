package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/config"
)

// Guard sweeps the fleet and zone catalog on an interval and raises an alert
// when a geo-guard condition starts: drivers leaving the city, the boundary
// zone going missing, or a burst of surge hotspots.
//
// An alert is delivered once when its condition appears. It is not re-sent on
// later sweeps while the condition holds, and is raised again only after a
// sweep in which it cleared.
type Guard struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	// active holds the alert types raised by the previous sweep. Only the
	// Run goroutine touches it.
	active map[AlertType]bool
}

// NewGuard creates a background geo-guard.
func NewGuard(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Guard {
	return &Guard{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[AlertType]bool),
	}
}

// Run sweeps once immediately, then every CheckIntervalSecs (default one
// minute), until ctx is cancelled.
func (g *Guard) Run(ctx context.Context) {
	interval := time.Duration(g.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.guard"))
	log.Info("geo-guard started",
		zap.Duration("interval", interval),
		zap.Int("lookback_minutes", g.cfg.LookbackMinutes),
		zap.Int("anomaly_threshold", g.cfg.AnomalyThreshold),
		zap.Int("hotspot_threshold", g.cfg.HotspotThreshold),
	)

	if ctx.Err() == nil {
		g.sweep(ctx, log)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("geo-guard stopped")
			return
		case <-ticker.C:
			g.sweep(ctx, log)
		}
	}
}

// sweep collects one snapshot, delivers alerts whose condition is new since
// the previous sweep and returns how many were sent.
func (g *Guard) sweep(ctx context.Context, log *zap.Logger) int {
	snap, err := g.collector.Collect(ctx, g.cfg.LookbackMinutes)
	if err != nil {
		log.Error("geo-guard: collect failed", zap.Error(err))
		return 0
	}
	log.Debug("geo-guard: swept",
		zap.Int("zones", snap.Zones),
		zap.Int("boundary_zones", snap.BoundaryZones),
		zap.Int("positioned_drivers", snap.PositionedDrivers),
		zap.Int("anomalous_drivers", snap.AnomalousDrivers),
		zap.Int("hotspots", snap.Hotspots),
	)

	alerts := g.alerter.Evaluate(snap)
	raised := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		raised[a.Type] = true
		if !g.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range g.active {
		if !raised[t] {
			log.Info("geo-guard: condition cleared", zap.String("type", string(t)))
		}
	}
	g.active = raised

	if len(fresh) == 0 {
		return 0
	}
	sent := g.alerter.SendAlerts(ctx, fresh)
	log.Info("geo-guard: alerts raised",
		zap.Int("raised", len(fresh)),
		zap.Int("ongoing", len(alerts)-len(fresh)),
		zap.Int("sent", sent),
	)
	return sent
}
