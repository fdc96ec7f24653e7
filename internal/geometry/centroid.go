package geometry

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Centroid returns the arithmetic mean of points. This is the plain average of
// the inputs, not the area-weighted centroid of their hull, and it is what
// callers report as the center of a surge zone. An empty input yields the
// zero Point.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat)
	}
	return FromCoord(xy.PointsCentroidFlat(geom.XY, flat))
}
