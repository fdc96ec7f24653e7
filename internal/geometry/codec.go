package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// ParsePolygonWKT decodes a WKT POLYGON, or a MULTIPOLYGON holding exactly one
// polygon, and tags it with SRID 4326.
func ParsePolygonWKT(s string) (*geom.Polygon, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: parse wkt")
	}
	return asPolygon(g)
}

// FormatWKT encodes g as WKT.
func FormatWKT(g geom.T) (string, error) {
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "geometry: format wkt")
	}
	return s, nil
}

// MarshalEWKB encodes g as little-endian EWKB carrying its SRID.
func MarshalEWKB(g geom.T) ([]byte, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode ewkb")
	}
	return data, nil
}

// UnmarshalPolygonEWKB decodes an EWKB polygon as returned by ST_AsEWKB.
func UnmarshalPolygonEWKB(data []byte) (*geom.Polygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode ewkb")
	}
	return asPolygon(g)
}

// UnmarshalPointEWKB decodes an EWKB point.
func UnmarshalPointEWKB(data []byte) (Point, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Point{}, eris.Wrap(err, "geometry: decode ewkb")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return Point{}, eris.Errorf("geometry: expected point, got %T", g)
	}
	return FromCoord(pt.Coords()), nil
}

// MarshalGeoJSON encodes g as a GeoJSON geometry object.
func MarshalGeoJSON(g geom.T) ([]byte, error) {
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode geojson")
	}
	return data, nil
}

func asPolygon(g geom.T) (*geom.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.SetSRID(SRID), nil
	case *geom.MultiPolygon:
		if t.NumPolygons() != 1 {
			return nil, invalidf("multipolygon has %d parts, want 1", t.NumPolygons())
		}
		return t.Polygon(0).SetSRID(SRID), nil
	default:
		return nil, invalidf("expected polygon, got %T", g)
	}
}
