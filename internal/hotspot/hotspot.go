// Package hotspot keeps the append-only history of surge zones.
package hotspot

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"
)

// DefaultMultiplier is the fixed surge price multiplier. It is not derived
// from demand.
const DefaultMultiplier = 1.5

// Hotspot is a recorded surge zone. Records are never updated or deleted.
type Hotspot struct {
	ID              int64         `json:"id"`
	Geom            *geom.Polygon `json:"-"`
	OrderCount      int           `json:"order_count"`
	SurgeMultiplier float64       `json:"surge_multiplier"`
	CreatedAt       time.Time     `json:"created_at"`
}

// HistoryFilter narrows a history listing. Zero values mean no bound.
type HistoryFilter struct {
	Since *time.Time `json:"since,omitempty"`
	Limit int        `json:"limit,omitempty"`
}

// Store is the persistence the ledger needs.
type Store interface {
	AppendHotspot(ctx context.Context, h *Hotspot) (int64, error)
	ListHotspots(ctx context.Context, f HistoryFilter) ([]Hotspot, error)
}
