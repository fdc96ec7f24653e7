// Package zone evaluates driver positions against the delivery zone catalog.
package zone

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
)

// Well-known zone categories. Category is a free-form tag; only
// CategoryCityBoundary has special meaning (see driver anomaly checks).
const (
	CategoryDelivery     = "delivery"
	CategoryCityBoundary = "city_boundary"
)

// Zone is a catalog polygon, optionally scoped to a time window and a weather
// condition. Nil optional fields mean "unbounded" or "any".
type Zone struct {
	ID               int64         `json:"id"`
	Name             string        `json:"name"`
	Category         string        `json:"category"`
	Geom             *geom.Polygon `json:"-"`
	ValidFrom        *time.Time    `json:"valid_from,omitempty"`
	ValidTo          *time.Time    `json:"valid_to,omitempty"`
	WeatherCondition *string       `json:"weather_condition,omitempty"`
	// CongestionLevel (1-5) is stored for future filtering and is not
	// consulted by Authorize.
	CongestionLevel *int `json:"congestion_level,omitempty"`
}

// Validate checks the zone before it is written to the catalog.
func (z *Zone) Validate() error {
	if strings.TrimSpace(z.Name) == "" {
		return eris.New("zone: name is required")
	}
	if err := geometry.ValidatePolygon(z.Geom); err != nil {
		return eris.Wrapf(err, "zone: %s", z.Name)
	}
	if z.ValidFrom != nil && z.ValidTo != nil && z.ValidTo.Before(*z.ValidFrom) {
		return eris.Errorf("zone: %s: valid_to before valid_from", z.Name)
	}
	if z.CongestionLevel != nil && (*z.CongestionLevel < 1 || *z.CongestionLevel > 5) {
		return eris.Errorf("zone: %s: congestion_level %d out of range 1-5", z.Name, *z.CongestionLevel)
	}
	return nil
}

// Query carries the optional request context. A nil field disables the
// corresponding filter entirely; it is not treated as a wildcard value.
type Query struct {
	At      *time.Time
	Weather *string
}

// activeAt reports whether the zone's validity window admits t.
func (z *Zone) activeAt(t time.Time) bool {
	if z.ValidFrom != nil && z.ValidFrom.After(t) {
		return false
	}
	if z.ValidTo != nil && z.ValidTo.Before(t) {
		return false
	}
	return true
}

func (z *Zone) allowsWeather(w string) bool {
	return z.WeatherCondition == nil || *z.WeatherCondition == w
}

// Applies reports whether the zone's time and weather scope admit q.
func (z *Zone) Applies(q Query) bool {
	if q.At != nil && !z.activeAt(*q.At) {
		return false
	}
	if q.Weather != nil && !z.allowsWeather(*q.Weather) {
		return false
	}
	return true
}

// Contains reports whether p is inside or on the zone polygon.
func (z *Zone) Contains(p geometry.Point) (bool, error) {
	return geometry.Contains(z.Geom, p)
}

// Filter narrows a catalog listing. An empty Category lists every zone.
type Filter struct {
	Category string
}
