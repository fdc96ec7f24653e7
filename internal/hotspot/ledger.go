package hotspot

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

// Ledger appends surge zones to the hotspot history.
type Ledger struct {
	store      Store
	multiplier float64
	log        *zap.Logger
	now        func() time.Time
}

// NewLedger creates a Ledger. A non-positive multiplier means DefaultMultiplier.
func NewLedger(store Store, multiplier float64) *Ledger {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	return &Ledger{
		store:      store,
		multiplier: multiplier,
		log:        zap.L().With(zap.String("component", "hotspot.ledger")),
		now:        time.Now,
	}
}

// Multiplier is the surge multiplier applied to recorded zones.
func (l *Ledger) Multiplier() float64 { return l.multiplier }

// Record appends a hotspot for hull and returns its id. A degenerate hull
// (fewer than three vertices) is not a zone: nothing is written and the id is
// nil. A non-positive multiplier uses the ledger's, and a zero at means now.
func (l *Ledger) Record(ctx context.Context, hull geometry.Hull, memberCount int, multiplier float64, at time.Time) (*int64, error) {
	if hull.Degenerate() {
		return nil, nil
	}
	poly, err := hull.Polygon()
	if err != nil {
		return nil, eris.Wrap(err, "hotspot: hull polygon")
	}
	if multiplier <= 0 {
		multiplier = l.multiplier
	}
	if at.IsZero() {
		at = l.now()
	}

	id, err := l.store.AppendHotspot(ctx, &Hotspot{
		Geom:            poly,
		OrderCount:      memberCount,
		SurgeMultiplier: multiplier,
		CreatedAt:       at,
	})
	if err != nil {
		return nil, eris.Wrap(err, "hotspot: record")
	}
	l.log.Debug("hotspot recorded",
		zap.Int64("hotspot_id", id),
		zap.Int("order_count", memberCount),
		zap.Float64("multiplier", multiplier),
	)
	return &id, nil
}

// History lists recorded hotspots, newest first.
func (l *Ledger) History(ctx context.Context, f HistoryFilter) ([]Hotspot, error) {
	if f.Limit < 0 {
		return nil, eris.Errorf("hotspot: negative limit %d", f.Limit)
	}
	hs, err := l.store.ListHotspots(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "hotspot: history")
	}
	return hs, nil
}
