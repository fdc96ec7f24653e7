// Package surge detects the densest cluster of recent orders and derives the
// surge polygon drivers are tested against.
package surge

import (
	"math"
	"sort"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

// Noise is the label given to points that belong to no cluster.
const Noise = -1

const unvisited = -2

// Cluster runs DBSCAN over points with planar Euclidean distance.
//
// A point is a core point when at least minPoints points, itself included,
// lie within eps. Core points that are neighbors are joined transitively and
// border points attach to the first cluster that reaches them. The returned
// slice holds one label per input point: cluster labels count up from 0 in
// order of discovery along the input order, and Noise marks everything else.
// For a fixed input order and parameters the labeling is deterministic.
func Cluster(points []geometry.Point, eps float64, minPoints int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	if len(points) == 0 || eps <= 0 {
		for i := range labels {
			labels[i] = Noise
		}
		return labels
	}

	idx := newGrid(points, eps)
	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		nb := idx.neighbors(i)
		if len(nb) < minPoints {
			labels[i] = Noise
			continue
		}

		c := next
		next++
		labels[i] = c
		queue := nb
		for k := 0; k < len(queue); k++ {
			j := queue[k]
			if labels[j] == Noise {
				labels[j] = c
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = c
			if jn := idx.neighbors(j); len(jn) >= minPoints {
				queue = append(queue, jn...)
			}
		}
	}
	return labels
}

type cell struct{ x, y int64 }

// grid buckets points into eps-sized cells so a neighborhood query only scans
// the 3x3 block around the query point.
type grid struct {
	points []geometry.Point
	eps    float64
	eps2   float64
	cells  map[cell][]int
}

func newGrid(points []geometry.Point, eps float64) *grid {
	g := &grid{
		points: points,
		eps:    eps,
		eps2:   eps * eps,
		cells:  make(map[cell][]int),
	}
	for i, p := range points {
		k := g.cellOf(p)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *grid) cellOf(p geometry.Point) cell {
	return cell{
		x: int64(math.Floor(p.Lon / g.eps)),
		y: int64(math.Floor(p.Lat / g.eps)),
	}
}

// neighbors returns the indices within eps of point i, itself included, in
// ascending index order.
func (g *grid) neighbors(i int) []int {
	p := g.points[i]
	c := g.cellOf(p)
	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range g.cells[cell{c.x + dx, c.y + dy}] {
				if geometry.Dist2(p, g.points[j]) <= g.eps2 {
					out = append(out, j)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}
