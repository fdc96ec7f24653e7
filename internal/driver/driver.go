// Package driver tracks driver positions and classifies them against the
// city boundary.
package driver

import (
	"context"
	"time"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// Driver is the last known state of a driver. LastPosition is nil until the
// first report and never returns to nil afterwards.
type Driver struct {
	ID           int64           `json:"id"`
	LastPosition *geometry.Point `json:"last_position,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Status is one row of the anomaly report.
type Status struct {
	DriverID    int64   `json:"driver_id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	IsAnomalous bool    `json:"is_anomalous"`
}

// Store is the persistence the tracker needs.
type Store interface {
	UpsertDriverPosition(ctx context.Context, id int64, p geometry.Point, at time.Time) error
	// GetDriver returns nil, nil for an unknown id.
	GetDriver(ctx context.Context, id int64) (*Driver, error)
	ListPositionedDrivers(ctx context.Context) ([]Driver, error)
	ListZones(ctx context.Context, f zone.Filter) ([]zone.Zone, error)
}
