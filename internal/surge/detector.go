package surge

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

// Order is an immutable order signal feeding the clustering window.
type Order struct {
	ID        int64          `json:"id"`
	Position  geometry.Point `json:"position"`
	CreatedAt time.Time      `json:"created_at"`
}

// Points extracts order positions, keeping input order.
func Points(orders []Order) []geometry.Point {
	pts := make([]geometry.Point, len(orders))
	for i, o := range orders {
		pts[i] = o.Position
	}
	return pts
}

// ErrTooManyPoints is returned when the input exceeds Params.MaxInput. The
// caller should sample or narrow its window rather than block on an O(n²)
// worst case.
var ErrTooManyPoints = eris.New("surge: too many points")

// Params tunes detection.
type Params struct {
	// Eps is the neighborhood radius in planar degrees.
	Eps float64
	// MinPoints is the DBSCAN density threshold, self included.
	MinPoints int
	// MinInput short-circuits detection below this many points.
	MinInput int
	// MaxInput rejects larger inputs. Zero disables the bound.
	MaxInput int
}

// DefaultParams returns eps=0.002 (about 220 m at the equator), minPoints=5,
// a 5 point floor, and a 50 000 point ceiling.
func DefaultParams() Params {
	return Params{Eps: 0.002, MinPoints: 5, MinInput: 5, MaxInput: 50000}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Eps <= 0 {
		return eris.Errorf("surge: eps must be positive, got %g", p.Eps)
	}
	if p.MinPoints < 1 {
		return eris.Errorf("surge: min_points must be at least 1, got %d", p.MinPoints)
	}
	if p.MaxInput < 0 {
		return eris.Errorf("surge: max_input must not be negative, got %d", p.MaxInput)
	}
	return nil
}

// Zone is the surge candidate derived from the densest cluster.
type Zone struct {
	Hull        geometry.Hull    `json:"hull"`
	Centroid    geometry.Point   `json:"centroid"`
	MemberCount int              `json:"member_count"`
	Label       int              `json:"label"`
	Members     []geometry.Point `json:"-"`
}

// Contains reports whether p is covered by the surge hull. Degenerate hulls
// cover nothing.
func (z *Zone) Contains(p geometry.Point) bool {
	return z != nil && z.Hull.Contains(p)
}

// Detector finds surge zones. It holds no state between calls.
type Detector struct {
	params Params
	log    *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(p Params) (*Detector, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		params: p,
		log:    zap.L().With(zap.String("component", "surge.detector")),
	}, nil
}

// Params returns the detector configuration.
func (d *Detector) Params() Params {
	return d.params
}

// Detect clusters points and returns the largest cluster with its hull and
// centroid, or nil when there are fewer than MinInput points or every point
// is noise. Ties on size go to the lowest cluster label.
func (d *Detector) Detect(points []geometry.Point) (*Zone, error) {
	if len(points) < d.params.MinInput {
		d.log.Debug("not enough points to cluster",
			zap.Int("points", len(points)),
			zap.Int("min_input", d.params.MinInput),
		)
		return nil, nil
	}
	if d.params.MaxInput > 0 && len(points) > d.params.MaxInput {
		return nil, eris.Wrapf(ErrTooManyPoints, "%d points exceeds limit %d", len(points), d.params.MaxInput)
	}

	labels := Cluster(points, d.params.Eps, d.params.MinPoints)
	best, size := largest(labels)
	if best == Noise {
		d.log.Debug("no cluster found", zap.Int("points", len(points)))
		return nil, nil
	}

	members := make([]geometry.Point, 0, size)
	for i, l := range labels {
		if l == best {
			members = append(members, points[i])
		}
	}
	z := &Zone{
		Hull:        geometry.ConvexHull(members),
		Centroid:    geometry.Centroid(members),
		MemberCount: size,
		Label:       best,
		Members:     members,
	}
	d.log.Debug("surge cluster detected",
		zap.Int("label", best),
		zap.Int("members", size),
		zap.Int("hull_vertices", len(z.Hull.Vertices)),
	)
	return z, nil
}

// largest returns the label with the most members, lowest label on ties, or
// Noise when there is no cluster.
func largest(labels []int) (int, int) {
	counts := make(map[int]int)
	for _, l := range labels {
		if l != Noise {
			counts[l]++
		}
	}
	best, size := Noise, 0
	for l, n := range counts {
		if n > size || (n == size && l < best) {
			best, size = l, n
		}
	}
	return best, size
}
