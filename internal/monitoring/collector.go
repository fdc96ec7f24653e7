// Package monitoring watches the geo-guard signals (drivers outside the city,
// a missing boundary, bursts of surge hotspots) and alerts via webhook.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// MetricsSnapshot holds a point-in-time view of fleet and catalog health.
type MetricsSnapshot struct {
	// Catalog.
	Zones         int `json:"zones"`
	BoundaryZones int `json:"boundary_zones"`

	// Drivers.
	PositionedDrivers int     `json:"positioned_drivers"`
	AnomalousDrivers  int     `json:"anomalous_drivers"`
	AnomalousIDs      []int64 `json:"anomalous_ids,omitempty"`

	// Hotspots within the lookback window.
	Hotspots      int        `json:"hotspots"`
	LastHotspotAt *time.Time `json:"last_hotspot_at,omitempty"`

	// Metadata.
	LookbackMinutes int       `json:"lookback_minutes"`
	CollectedAt     time.Time `json:"collected_at"`
}

// ZoneLister reads the zone catalog.
type ZoneLister interface {
	ListZones(ctx context.Context, f zone.Filter) ([]zone.Zone, error)
}

// AnomalyLister classifies positioned drivers.
type AnomalyLister interface {
	Anomalies(ctx context.Context) ([]driver.Status, error)
}

// HotspotLister reads the hotspot ledger.
type HotspotLister interface {
	History(ctx context.Context, f hotspot.HistoryFilter) ([]hotspot.Hotspot, error)
}

// Collector gathers metrics from the catalog, tracker and ledger.
type Collector struct {
	zones            ZoneLister
	anomalies        AnomalyLister
	hotspots         HotspotLister
	boundaryCategory string
	now              func() time.Time
}

// NewCollector creates a new metrics collector. An empty boundaryCategory
// means city_boundary.
func NewCollector(zones ZoneLister, anomalies AnomalyLister, hotspots HotspotLister, boundaryCategory string) *Collector {
	if boundaryCategory == "" {
		boundaryCategory = zone.CategoryCityBoundary
	}
	return &Collector{
		zones:            zones,
		anomalies:        anomalies,
		hotspots:         hotspots,
		boundaryCategory: boundaryCategory,
		now:              time.Now,
	}
}

// Collect gathers a snapshot of metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackMinutes int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackMinutes: lookbackMinutes,
		CollectedAt:     now,
	}

	zones, err := c.zones.ListZones(ctx, zone.Filter{})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list zones")
	}
	snap.Zones = len(zones)
	for _, z := range zones {
		if z.Category == c.boundaryCategory {
			snap.BoundaryZones++
		}
	}

	statuses, err := c.anomalies.Anomalies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: classify drivers")
	}
	snap.PositionedDrivers = len(statuses)
	for _, s := range statuses {
		if s.IsAnomalous {
			snap.AnomalousIDs = append(snap.AnomalousIDs, s.DriverID)
		}
	}
	sort.Slice(snap.AnomalousIDs, func(i, j int) bool { return snap.AnomalousIDs[i] < snap.AnomalousIDs[j] })
	snap.AnomalousDrivers = len(snap.AnomalousIDs)

	cutoff := now.Add(-time.Duration(lookbackMinutes) * time.Minute)
	hs, err := c.hotspots.History(ctx, hotspot.HistoryFilter{Since: &cutoff})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list hotspots")
	}
	snap.Hotspots = len(hs)
	for i := range hs {
		if snap.LastHotspotAt == nil || hs[i].CreatedAt.After(*snap.LastHotspotAt) {
			at := hs[i].CreatedAt
			snap.LastHotspotAt = &at
		}
	}

	return snap, nil
}
