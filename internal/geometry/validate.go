package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// ValidatePolygon checks that every ring of poly is a simple polygon: at least
// three distinct vertices, non-zero area, and no two non-adjacent edges
// touching. Repeated consecutive vertices are ignored.
func ValidatePolygon(poly *geom.Polygon) error {
	if poly == nil || poly.NumLinearRings() == 0 {
		return invalidf("polygon has no rings")
	}
	for i := 0; i < poly.NumLinearRings(); i++ {
		ring := compact(RingPoints(poly, i))
		if err := checkRing(ring); err != nil {
			return eris.Wrapf(err, "ring %d", i)
		}
		if a, b, ok := selfIntersection(ring); ok {
			return invalidf("ring %d: edges %d and %d intersect", i, a, b)
		}
	}
	return nil
}

// compact drops vertices equal to their predecessor, including a trailing
// vertex equal to the first.
func compact(ring []Point) []Point {
	out := make([]Point, 0, len(ring))
	for _, p := range ring {
		if len(out) == 0 || out[len(out)-1] != p {
			out = append(out, p)
		}
	}
	for len(out) > 1 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}
	return out
}

// selfIntersection returns the first pair of intersecting non-adjacent edges.
// Edge k runs from ring[k] to ring[k+1].
func selfIntersection(ring []Point) (int, int, bool) {
	n := len(ring)
	strategy := lineintersector.RobustLineIntersector{}
	for i := 0; i < n; i++ {
		a1, a2 := ring[i].Coord(), ring[(i+1)%n].Coord()
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			b1, b2 := ring[j].Coord(), ring[(j+1)%n].Coord()
			res := lineintersector.LineIntersectsLine(strategy, a1, a2, b1, b2)
			if res.HasIntersection() {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}
