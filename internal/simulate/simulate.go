// Package simulate moves synthetic drivers outward from a city centre and
// reports their positions, so anomaly detection can be exercised live.
package simulate

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

// NairobiCentre is the default starting point.
var NairobiCentre = geometry.Pt(36.817223, -1.286389)

// Config controls the simulated fleet. Speeds are degrees per step.
type Config struct {
	Drivers  int
	FirstID  int64
	Center   geometry.Point
	MaxStart float64
	MinSpeed float64
	MaxSpeed float64
	// Every FastEvery-th driver moves at FastSpeed and soon leaves the city.
	// Zero disables fast drivers.
	FastEvery int
	FastSpeed float64
	// Concurrency bounds parallel position writes per step.
	Concurrency int
}

// DefaultConfig is 15 drivers around Nairobi, a third of them fast.
func DefaultConfig() Config {
	return Config{
		Drivers:     15,
		FirstID:     1,
		Center:      NairobiCentre,
		MaxStart:    0.05,
		MinSpeed:    0.0005,
		MaxSpeed:    0.002,
		FastEvery:   5,
		FastSpeed:   0.005,
		Concurrency: 4,
	}
}

// Position is one simulated report.
type Position struct {
	DriverID int64
	Point    geometry.Point
}

// Recorder accepts driver positions.
type Recorder interface {
	RecordPosition(ctx context.Context, id int64, p geometry.Point, at time.Time) error
}

// Simulator holds the fleet state. It is not safe for concurrent use.
type Simulator struct {
	cfg       Config
	rng       *rand.Rand
	angles    []float64
	distances []float64
}

// New places cfg.Drivers drivers at random headings and distances from the
// centre.
func New(cfg Config, rng *rand.Rand) (*Simulator, error) {
	if cfg.Drivers <= 0 {
		return nil, eris.Errorf("simulate: drivers must be positive, got %d", cfg.Drivers)
	}
	if cfg.MinSpeed < 0 || cfg.MaxSpeed < cfg.MinSpeed {
		return nil, eris.Errorf("simulate: invalid speed range [%g, %g]", cfg.MinSpeed, cfg.MaxSpeed)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	s := &Simulator{
		cfg:       cfg,
		rng:       rng,
		angles:    make([]float64, cfg.Drivers),
		distances: make([]float64, cfg.Drivers),
	}
	for i := range cfg.Drivers {
		s.angles[i] = rng.Float64() * 2 * math.Pi
		s.distances[i] = rng.Float64() * cfg.MaxStart
	}
	return s, nil
}

// Fast reports whether driver index i is one of the fast drivers.
func (s *Simulator) Fast(i int) bool {
	return s.cfg.FastEvery > 0 && i%s.cfg.FastEvery == 0
}

// Step advances every driver along its heading and returns the new
// positions.
func (s *Simulator) Step() []Position {
	out := make([]Position, len(s.angles))
	for i := range s.angles {
		speed := s.cfg.MinSpeed + s.rng.Float64()*(s.cfg.MaxSpeed-s.cfg.MinSpeed)
		if s.Fast(i) {
			speed = s.cfg.FastSpeed
		}
		s.distances[i] += speed
		out[i] = Position{
			DriverID: s.cfg.FirstID + int64(i),
			Point: geometry.Pt(
				s.cfg.Center.Lon+s.distances[i]*math.Cos(s.angles[i]),
				s.cfg.Center.Lat+s.distances[i]*math.Sin(s.angles[i]),
			),
		}
	}
	return out
}

// Run records a step every interval until ctx is done or steps steps have
// run. steps <= 0 runs until cancelled, which is not an error.
func (s *Simulator) Run(ctx context.Context, rec Recorder, interval time.Duration, steps int) error {
	log := zap.L().With(zap.String("component", "simulate"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; steps <= 0 || n < steps; n++ {
		if err := s.record(ctx, rec, s.Step()); err != nil {
			return err
		}
		log.Debug("positions updated", zap.Int("step", n+1), zap.Int("drivers", len(s.angles)))

		if steps > 0 && n+1 == steps {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Simulator) record(ctx context.Context, rec Recorder, positions []Position) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	now := time.Now()
	for _, p := range positions {
		g.Go(func() error {
			if err := rec.RecordPosition(gctx, p.DriverID, p.Point, now); err != nil {
				return eris.Wrapf(err, "simulate: driver %d", p.DriverID)
			}
			return nil
		})
	}
	return g.Wait()
}
