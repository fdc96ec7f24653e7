package geometry

import (
	"slices"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/transform"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Hull is a convex hull as an open, counter-clockwise vertex list.
//
// A hull is degenerate when go-geom's hull of the inputs is not a polygon:
// one distinct point gives one vertex, two distinct or any number of
// collinear points give the two segment endpoints. Degenerate hulls enclose
// no area and never contain a point.
type Hull struct {
	Vertices []Point `json:"vertices"`
}

// ConvexHull computes the convex hull of points. Duplicate points and
// collinear boundary points are dropped. The input slice is not modified.
func ConvexHull(points []Point) Hull {
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat)
	}
	// ConvexHullFlat needs three distinct coordinates once it gets past two
	// inputs.
	flat = transform.UniqueCoords(geom.XY, coordOrder{}, flat)
	if len(flat) < 6 {
		return Hull{Vertices: flatPoints(flat)}
	}

	switch g := xy.ConvexHullFlat(geom.XY, flat).(type) {
	case *geom.Polygon:
		ring := g.LinearRing(0).FlatCoords()
		vertices := flatPoints(ring[:len(ring)-2])
		if !xy.IsRingCounterClockwise(geom.XY, ring) {
			slices.Reverse(vertices)
		}
		return Hull{Vertices: vertices}
	case nil:
		return Hull{}
	default:
		return Hull{Vertices: flatPoints(g.FlatCoords())}
	}
}

// Degenerate reports whether the hull is a point or a segment rather than a
// polygon.
func (h Hull) Degenerate() bool {
	return len(h.Vertices) < 3
}

// Contains reports whether p is inside or on the hull. Degenerate hulls
// contain nothing.
func (h Hull) Contains(p Point) bool {
	if h.Degenerate() {
		return false
	}
	return xy.LocatePointInRing(geom.XY, p.Coord(), flatRing(h.Vertices)) != location.Exterior
}

// Polygon returns the hull as a closed go-geom polygon.
func (h Hull) Polygon() (*geom.Polygon, error) {
	if h.Degenerate() {
		return nil, invalidf("hull has %d vertices", len(h.Vertices))
	}
	return NewPolygon(h.Vertices)
}

// Area returns the enclosed planar area in degrees².
func (h Hull) Area() float64 {
	if h.Degenerate() {
		return 0
	}
	return ringArea(h.Vertices)
}
