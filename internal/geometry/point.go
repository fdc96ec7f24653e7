// Package geometry is the planar geometry kernel shared by zone authorization,
// surge detection, and anomaly classification.
//
// Coordinates are raw (lon, lat) degrees in SRID 4326 treated as a flat plane.
// No projection or geodesic correction is applied; at city scale the error is
// acceptable, but distances near the poles or across large areas are skewed.
package geometry

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference used for every stored geometry (WGS84).
const SRID = 4326

// Point is a planar (lon, lat) coordinate.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Pt builds a Point from lon, lat.
func Pt(lon, lat float64) Point {
	return Point{Lon: lon, Lat: lat}
}

// Coord returns the point as a go-geom XY coordinate.
func (p Point) Coord() geom.Coord {
	return geom.Coord{p.Lon, p.Lat}
}

// Geom returns the point as a go-geom point tagged with SRID 4326.
func (p Point) Geom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
}

func (p Point) String() string {
	return fmt.Sprintf("(%g %g)", p.Lon, p.Lat)
}

// FromCoord converts a go-geom coordinate to a Point.
func FromCoord(c geom.Coord) Point {
	return Point{Lon: c.X(), Lat: c.Y()}
}

// Dist2 returns the squared planar distance between a and b in degrees².
func Dist2(a, b Point) float64 {
	dx := a.Lon - b.Lon
	dy := a.Lat - b.Lat
	return dx*dx + dy*dy
}

// NewPolygon builds a single-ring polygon from an open or closed vertex list.
// The ring is closed automatically when the last vertex differs from the first.
func NewPolygon(ring []Point) (*geom.Polygon, error) {
	if len(ring) == 0 {
		return nil, invalidf("empty ring")
	}
	coords := make([]geom.Coord, 0, len(ring)+1)
	for _, p := range ring {
		coords = append(coords, p.Coord())
	}
	if ring[0] != ring[len(ring)-1] {
		coords = append(coords, ring[0].Coord())
	}
	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
	if err != nil {
		return nil, invalidf("set coords: %v", err)
	}
	return poly.SetSRID(SRID), nil
}

// RingPoints returns the vertices of ring i of poly with the closing vertex
// removed.
func RingPoints(poly *geom.Polygon, i int) []Point {
	coords := poly.LinearRing(i).Coords()
	if n := len(coords); n > 1 && coords[0].X() == coords[n-1].X() && coords[0].Y() == coords[n-1].Y() {
		coords = coords[:n-1]
	}
	pts := make([]Point, len(coords))
	for j, c := range coords {
		pts[j] = FromCoord(c)
	}
	return pts
}
