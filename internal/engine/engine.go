// Package engine combines zone authorization, surge detection and the
// hotspot ledger into a single per-request decision.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/store"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// NoSurge is the multiplier returned when no surge zone covers the point.
const NoSurge = 1.0

// Store is everything a decision reads or writes.
type Store interface {
	driver.Store
	hotspot.Store
	Snapshot(ctx context.Context, window time.Duration) (*store.Snapshot, error)
}

// Config tunes the engine.
type Config struct {
	Surge surge.Params
	// Window limits clustering to orders created in the last Window. Zero
	// uses every order.
	Window time.Duration
	// MaxOrders keeps only the most recent orders before clustering.
	MaxOrders int
	// Multiplier is the surge price multiplier. Zero means
	// hotspot.DefaultMultiplier.
	Multiplier float64
	// BoundaryCategory is the zone category checked by anomaly detection.
	BoundaryCategory string
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		Surge:            surge.DefaultParams(),
		MaxOrders:        50000,
		Multiplier:       hotspot.DefaultMultiplier,
		BoundaryCategory: zone.CategoryCityBoundary,
	}
}

// Request is an authorization request for a driver at a point.
type Request struct {
	DriverID int64
	Position geometry.Point
	// At filters zones by validity window; nil disables the filter. The
	// driver's position is stamped with At, or now when nil.
	At *time.Time
	// Weather filters zones by weather condition; nil disables the filter.
	Weather *string
}

// Decision is the combined outcome of a request.
type Decision struct {
	Authorized  bool        `json:"authorized"`
	SurgeActive bool        `json:"surge_active"`
	Multiplier  float64     `json:"multiplier"`
	Zone        *zone.Zone  `json:"zone,omitempty"`
	Surge       *surge.Zone `json:"surge,omitempty"`
	HotspotID   *int64      `json:"hotspot_id,omitempty"`
}

// Engine answers authorization requests. It is safe for concurrent use.
type Engine struct {
	store      Store
	tracker    *driver.Tracker
	authorizer *zone.Authorizer
	detector   *surge.Detector
	ledger     *hotspot.Ledger
	cfg        Config
	log        *zap.Logger
	now        func() time.Time
}

// New creates an Engine over st.
func New(st Store, cfg Config) (*Engine, error) {
	det, err := surge.NewDetector(cfg.Surge)
	if err != nil {
		return nil, eris.Wrap(err, "engine: surge detector")
	}
	if cfg.MaxOrders < 0 {
		return nil, eris.Errorf("engine: max_orders must not be negative, got %d", cfg.MaxOrders)
	}
	ledger := hotspot.NewLedger(st, cfg.Multiplier)
	cfg.Multiplier = ledger.Multiplier()

	return &Engine{
		store:      st,
		tracker:    driver.NewTracker(st, cfg.BoundaryCategory),
		authorizer: zone.NewAuthorizer(),
		detector:   det,
		ledger:     ledger,
		cfg:        cfg,
		log:        zap.L().With(zap.String("component", "engine")),
		now:        time.Now,
	}, nil
}

// Tracker exposes the driver tracker for anomaly queries.
func (e *Engine) Tracker() *driver.Tracker { return e.tracker }

// Ledger exposes the hotspot ledger for history queries.
func (e *Engine) Ledger() *hotspot.Ledger { return e.ledger }

// Detector exposes the surge detector.
func (e *Engine) Detector() *surge.Detector { return e.detector }

// CheckDriver records the driver's position, then decides whether the
// driver may take an order at that point and whether a surge applies.
//
// Zones and orders come from one store snapshot. Static authorization and
// surge detection run concurrently over it. When detection yields a zone it
// is appended to the hotspot ledger, whether or not it covers the driver.
// Store failures are returned as errors and never as an unauthorized
// decision.
func (e *Engine) CheckDriver(ctx context.Context, req Request) (*Decision, error) {
	stamp := e.now()
	if req.At != nil {
		stamp = *req.At
	}
	if err := e.tracker.RecordPosition(ctx, req.DriverID, req.Position, stamp); err != nil {
		return nil, err
	}

	snap, err := e.store.Snapshot(ctx, e.cfg.Window)
	if err != nil {
		return nil, eris.Wrap(err, "engine: snapshot")
	}
	orders := e.capOrders(snap.Orders)

	var (
		auth zone.Result
		sz   *surge.Zone
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		auth = e.authorizer.Authorize(snap.Zones, req.Position, zone.Query{At: req.At, Weather: req.Weather})
		return nil
	})
	g.Go(func() error {
		var err error
		sz, err = e.detector.Detect(surge.Points(orders))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "engine: detect surge")
	}

	d := &Decision{
		Authorized: auth.Authorized,
		Zone:       auth.Zone,
		Multiplier: NoSurge,
	}
	if sz == nil {
		e.log.Debug("driver checked",
			zap.Int64("driver_id", req.DriverID),
			zap.Bool("authorized", d.Authorized),
		)
		return d, nil
	}

	d.Surge = sz
	if sz.Contains(req.Position) {
		d.SurgeActive = true
		d.Multiplier = e.cfg.Multiplier
	}
	d.HotspotID, err = e.ledger.Record(ctx, sz.Hull, sz.MemberCount, e.cfg.Multiplier, snap.TakenAt)
	if err != nil {
		return nil, eris.Wrap(err, "engine: record hotspot")
	}

	e.log.Debug("driver checked",
		zap.Int64("driver_id", req.DriverID),
		zap.Bool("authorized", d.Authorized),
		zap.Bool("surge_active", d.SurgeActive),
		zap.Int("surge_members", sz.MemberCount),
	)
	return d, nil
}

// capOrders keeps the most recent orders when the snapshot is larger than
// the configured or detector limit. Orders arrive sorted oldest first.
func (e *Engine) capOrders(orders []surge.Order) []surge.Order {
	limit := e.cfg.MaxOrders
	if ceiling := e.cfg.Surge.MaxInput; ceiling > 0 && (limit == 0 || ceiling < limit) {
		limit = ceiling
	}
	if limit == 0 || len(orders) <= limit {
		return orders
	}
	e.log.Warn("order set exceeds clustering limit, keeping most recent",
		zap.Int("orders", len(orders)),
		zap.Int("limit", limit),
	)
	return orders[len(orders)-limit:]
}
