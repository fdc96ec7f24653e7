package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/transform"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// minRingArea is the smallest |area| in degrees² a ring may enclose.
const minRingArea = 1e-24

// Contains reports whether p lies inside poly or on its boundary.
//
// Rings are located with go-geom's ray-crossing counter. A point on an edge or
// vertex of the exterior ring counts as contained. A point strictly inside an
// interior ring (hole) is not contained; a point on a hole's edge is.
//
// The whole polygon is validated first, so a ring with fewer than three
// distinct vertices, zero area or crossing edges yields ErrInvalidGeometry
// whatever p is.
func Contains(poly *geom.Polygon, p Point) (bool, error) {
	if err := ValidatePolygon(poly); err != nil {
		return false, err
	}

	c := p.Coord()
	switch xy.LocatePointInRing(geom.XY, c, flatRing(RingPoints(poly, 0))) {
	case location.Exterior:
		return false, nil
	case location.Boundary:
		return true, nil
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.LocatePointInRing(geom.XY, c, flatRing(RingPoints(poly, i))) == location.Interior {
			return false, nil
		}
	}
	return true, nil
}

// flatRing returns an open ring as closed XY flat coordinates.
func flatRing(ring []Point) []float64 {
	flat := make([]float64, 0, 2*len(ring)+2)
	for _, p := range ring {
		flat = append(flat, p.Lon, p.Lat)
	}
	if len(ring) > 0 {
		flat = append(flat, ring[0].Lon, ring[0].Lat)
	}
	return flat
}

// flatPoints converts XY flat coordinates to points.
func flatPoints(flat []float64) []Point {
	pts := make([]Point, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		pts = append(pts, Pt(flat[i], flat[i+1]))
	}
	return pts
}

// coordOrder orders coordinates lexicographically on (x, y) for
// transform.UniqueCoords.
type coordOrder struct{}

func (coordOrder) IsEquals(a, b geom.Coord) bool { return a[0] == b[0] && a[1] == b[1] }
func (coordOrder) IsLess(a, b geom.Coord) bool {
	return a[0] < b[0] || (a[0] == b[0] && a[1] < b[1])
}

func distinctCount(ring []Point) int {
	return len(transform.UniqueCoords(geom.XY, coordOrder{}, flatRing(ring))) / 2
}

// ringArea returns the unsigned planar area of an open ring.
func ringArea(ring []Point) float64 {
	return math.Abs(xy.SignedArea(geom.XY, flatRing(ring)))
}

func checkRing(ring []Point) error {
	if n := distinctCount(ring); n < 3 {
		return invalidf("ring has %d distinct vertices, need at least 3", n)
	}
	if ringArea(ring) <= minRingArea {
		return invalidf("ring encloses zero area")
	}
	return nil
}
