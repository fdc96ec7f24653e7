package driver

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// ErrInvalidPosition is returned for coordinates outside WGS84 bounds.
var ErrInvalidPosition = eris.New("driver: invalid position")

// ValidatePosition checks that p is a finite WGS84 coordinate.
func ValidatePosition(p geometry.Point) error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return eris.Wrapf(ErrInvalidPosition, "non-finite coordinate %s", p)
	}
	if p.Lon < -180 || p.Lon > 180 || p.Lat < -90 || p.Lat > 90 {
		return eris.Wrapf(ErrInvalidPosition, "coordinate %s out of range", p)
	}
	return nil
}

// Tracker records driver positions and flags drivers outside the city
// boundary.
type Tracker struct {
	store    Store
	boundary string
	locks    *keyedMutex
	log      *zap.Logger
	now      func() time.Time
}

// NewTracker creates a Tracker. boundaryCategory names the zone category that
// defines the service area; empty means zone.CategoryCityBoundary.
func NewTracker(store Store, boundaryCategory string) *Tracker {
	if boundaryCategory == "" {
		boundaryCategory = zone.CategoryCityBoundary
	}
	return &Tracker{
		store:    store,
		boundary: boundaryCategory,
		locks:    newKeyedMutex(),
		log:      zap.L().With(zap.String("component", "driver.tracker")),
		now:      time.Now,
	}
}

// RecordPosition stores p as the driver's last position, creating the driver
// on first report. Calls for the same driver are serialized so the last call
// wins; calls for different drivers run in parallel. A zero at means now.
func (t *Tracker) RecordPosition(ctx context.Context, id int64, p geometry.Point, at time.Time) error {
	if err := ValidatePosition(p); err != nil {
		return err
	}
	if at.IsZero() {
		at = t.now()
	}

	unlock := t.locks.lock(id)
	defer unlock()

	if err := t.store.UpsertDriverPosition(ctx, id, p, at); err != nil {
		return eris.Wrapf(err, "driver: record position %d", id)
	}
	return nil
}

// IsAnomalous reports whether the driver's last position lies outside every
// boundary zone. Unknown drivers and drivers without a position are not
// anomalous. With no boundary zone configured every positioned driver is
// anomalous.
func (t *Tracker) IsAnomalous(ctx context.Context, id int64) (bool, error) {
	d, err := t.store.GetDriver(ctx, id)
	if err != nil {
		return false, eris.Wrapf(err, "driver: load %d", id)
	}
	if d == nil || d.LastPosition == nil {
		return false, nil
	}

	boundaries, err := t.boundaries(ctx)
	if err != nil {
		return false, err
	}
	return t.outside(boundaries, *d.LastPosition), nil
}

// Anomalies classifies every driver that has reported a position.
func (t *Tracker) Anomalies(ctx context.Context) ([]Status, error) {
	drivers, err := t.store.ListPositionedDrivers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "driver: list drivers")
	}
	boundaries, err := t.boundaries(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(drivers))
	for _, d := range drivers {
		if d.LastPosition == nil {
			continue
		}
		out = append(out, Status{
			DriverID:    d.ID,
			Lat:         d.LastPosition.Lat,
			Lon:         d.LastPosition.Lon,
			IsAnomalous: t.outside(boundaries, *d.LastPosition),
		})
	}
	return out, nil
}

func (t *Tracker) boundaries(ctx context.Context) ([]zone.Zone, error) {
	zones, err := t.store.ListZones(ctx, zone.Filter{Category: t.boundary})
	if err != nil {
		return nil, eris.Wrap(err, "driver: list boundary zones")
	}
	if len(zones) == 0 {
		t.log.Warn("no boundary zones configured, every driver is anomalous",
			zap.String("category", t.boundary))
	}
	return zones, nil
}

// outside fails closed: a point is outside unless some valid boundary
// contains it.
func (t *Tracker) outside(boundaries []zone.Zone, p geometry.Point) bool {
	for i := range boundaries {
		in, err := boundaries[i].Contains(p)
		if err != nil {
			t.log.Warn("skipping boundary with invalid geometry",
				zap.Int64("zone_id", boundaries[i].ID), zap.Error(err))
			continue
		}
		if in {
			return false
		}
	}
	return true
}
