package zone

import (
	"sort"

	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

// Result is the outcome of a static authorization check.
type Result struct {
	Authorized bool  `json:"authorized"`
	Zone       *Zone `json:"zone,omitempty"`
}

// Authorizer evaluates points against a zone catalog snapshot.
type Authorizer struct {
	log *zap.Logger
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer() *Authorizer {
	return &Authorizer{log: zap.L().With(zap.String("component", "zone.authorizer"))}
}

// Authorize returns the first zone, in ascending ID order, that contains p and
// whose time and weather scope admit q.
//
// Overlapping zones are not ranked by area or specificity: the lowest ID
// wins. A zone whose geometry is invalid never matches and is logged; it
// does not fail the request.
func (a *Authorizer) Authorize(zones []Zone, p geometry.Point, q Query) Result {
	for _, i := range byID(zones) {
		z := &zones[i]
		if !z.Applies(q) {
			continue
		}
		in, err := z.Contains(p)
		if err != nil {
			a.log.Warn("skipping zone with invalid geometry",
				zap.Int64("zone_id", z.ID),
				zap.String("zone", z.Name),
				zap.Error(err),
			)
			continue
		}
		if in {
			match := *z
			return Result{Authorized: true, Zone: &match}
		}
	}
	return Result{}
}

// byID returns the indices of zones sorted by ascending ID, keeping catalog
// order for equal IDs.
func byID(zones []Zone) []int {
	idx := make([]int, len(zones))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return zones[idx[a]].ID < zones[idx[b]].ID
	})
	return idx
}
