// Package store persists the zone catalog, orders, driver positions and the
// hotspot ledger.
package store

import (
	"context"
	"time"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// Snapshot is a consistent read of the zone catalog and recent orders.
type Snapshot struct {
	Zones   []zone.Zone
	Orders  []surge.Order
	TakenAt time.Time
}

// Store defines the persistence interface for the authorization engine.
type Store interface {
	// Zones
	ListZones(ctx context.Context, f zone.Filter) ([]zone.Zone, error)
	InsertZone(ctx context.Context, z *zone.Zone) (int64, error)
	ZoneExists(ctx context.Context, name string) (bool, error)

	// Orders. A zero window returns every order.
	RecentOrders(ctx context.Context, window time.Duration) ([]surge.Order, error)
	InsertOrders(ctx context.Context, orders []surge.Order) (int64, error)

	// Drivers
	UpsertDriverPosition(ctx context.Context, id int64, p geometry.Point, at time.Time) error
	GetDriver(ctx context.Context, id int64) (*driver.Driver, error)
	ListPositionedDrivers(ctx context.Context) ([]driver.Driver, error)

	// Hotspots
	AppendHotspot(ctx context.Context, h *hotspot.Hotspot) (int64, error)
	ListHotspots(ctx context.Context, f hotspot.HistoryFilter) ([]hotspot.Hotspot, error)

	// Snapshot reads zones and orders in one read transaction.
	Snapshot(ctx context.Context, window time.Duration) (*Snapshot, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// since converts an order window into a lower bound on created_at.
func since(window time.Duration, now time.Time) *time.Time {
	if window <= 0 {
		return nil
	}
	t := now.Add(-window)
	return &t
}
