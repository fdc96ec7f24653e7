package importer

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
)

// Cluster describes a group of synthetic orders scattered uniformly within
// Spread degrees of Center on each axis.
type Cluster struct {
	Name   string
	Center geometry.Point
	Count  int
	Spread float64
}

// DefaultClusters is a dense CBD cluster, a smaller Westlands cluster and a
// few scattered points that clustering should discard as noise.
func DefaultClusters() []Cluster {
	return []Cluster{
		{Name: "CBD", Center: geometry.Pt(36.823, -1.283), Count: 15, Spread: 0.005},
		{Name: "Westlands", Center: geometry.Pt(36.808, -1.265), Count: 10, Spread: 0.005},
		{Name: "noise", Center: geometry.Pt(36.750, -1.310), Count: 3, Spread: 0.02},
	}
}

// OrderWriter is the store surface SeedOrders writes through.
type OrderWriter interface {
	InsertOrders(ctx context.Context, orders []surge.Order) (int64, error)
}

// SyntheticOrders generates the orders for clusters, all stamped at.
func SyntheticOrders(rng *rand.Rand, clusters []Cluster, at time.Time) []surge.Order {
	var n int
	for _, c := range clusters {
		n += c.Count
	}
	orders := make([]surge.Order, 0, n)
	for _, c := range clusters {
		for range c.Count {
			orders = append(orders, surge.Order{
				Position: geometry.Pt(
					c.Center.Lon+(rng.Float64()*2-1)*c.Spread,
					c.Center.Lat+(rng.Float64()*2-1)*c.Spread,
				),
				CreatedAt: at,
			})
		}
	}
	return orders
}

// SeedOrders writes synthetic orders for clusters and returns the number
// inserted.
func SeedOrders(ctx context.Context, w OrderWriter, rng *rand.Rand, clusters []Cluster, at time.Time) (int64, error) {
	orders := SyntheticOrders(rng, clusters, at)
	if len(orders) == 0 {
		return 0, nil
	}
	n, err := w.InsertOrders(ctx, orders)
	if err != nil {
		return 0, eris.Wrap(err, "importer: insert orders")
	}
	zap.L().With(zap.String("component", "importer")).Info("orders seeded",
		zap.Int64("inserted", n),
		zap.Int("clusters", len(clusters)),
	)
	return n, nil
}
