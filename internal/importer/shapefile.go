package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// ShapefileOptions controls how shapefile records become zones.
type ShapefileOptions struct {
	// NameField is the DBF attribute holding the zone name. Default "NAME".
	NameField string
	// Category is assigned to every imported zone. Default delivery.
	Category string
	// Prefix names unnamed records "<Prefix> District N". Default "Nairobi".
	Prefix string
	// Encoding overrides the DBF code page from the .cpg sidecar.
	Encoding string
}

func (o ShapefileOptions) withDefaults() ShapefileOptions {
	if o.NameField == "" {
		o.NameField = "NAME"
	}
	if o.Category == "" {
		o.Category = zone.CategoryDelivery
	}
	if o.Prefix == "" {
		o.Prefix = "Nairobi"
	}
	return o
}

// ReadShapefile reads polygon records from path as zones. Non-polygon
// records and invalid rings are skipped with a warning. A record with more
// than one outer ring yields one zone per outer ring.
func ReadShapefile(path string, opts ShapefileOptions) ([]*zone.Zone, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "importer.shapefile"))

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dec, err := dbfDecoder(path, opts.Encoding)
	if err != nil {
		return nil, err
	}
	nameIdx := fieldIndex(reader, opts.NameField)
	if nameIdx < 0 {
		log.Warn("name field not found, using generated names", zap.String("field", opts.NameField))
	}

	var zones []*zone.Zone
	for reader.Next() {
		row, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			continue
		}

		name := ""
		if nameIdx >= 0 {
			name = decodeAttr(dec, reader.Attribute(nameIdx))
		}
		if name == "" {
			name = fmt.Sprintf("%s District %d", opts.Prefix, len(zones)+1)
		}

		parts := splitPolygon(poly)
		for i, g := range parts {
			z := &zone.Zone{Name: name, Category: opts.Category, Geom: g}
			if len(parts) > 1 {
				z.Name = fmt.Sprintf("%s #%d", name, i+1)
			}
			if err := z.Validate(); err != nil {
				log.Warn("skipping invalid shape", zap.Int("row", row), zap.String("name", z.Name), zap.Error(err))
				continue
			}
			zones = append(zones, z)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrap(err, "importer: read shapefile")
	}

	log.Info("shapefile read", zap.String("path", path), zap.Int("zones", len(zones)))
	return zones, nil
}

// ImportShapefile reads path and inserts every zone whose name is new.
func ImportShapefile(ctx context.Context, w ZoneWriter, path string, opts ShapefileOptions) (Result, error) {
	zones, err := ReadShapefile(path, opts)
	if err != nil {
		return Result{}, err
	}
	return insertNew(ctx, w, zones)
}

// splitPolygon turns shapefile parts into polygons. Clockwise rings are
// outer rings; each counter-clockwise ring is a hole of the preceding outer
// ring.
func splitPolygon(p *shp.Polygon) []*geom.Polygon {
	var (
		out   []*geom.Polygon
		rings [][]geom.Coord
	)
	flush := func() {
		if len(rings) == 0 {
			return
		}
		g, err := geom.NewPolygon(geom.XY).SetCoords(rings)
		if err == nil {
			out = append(out, g.SetSRID(geometry.SRID))
		}
		rings = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start >= end {
			continue
		}
		ring := make([]geom.Coord, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, geom.Coord{pt.X, pt.Y})
		}
		if len(rings) == 0 || !isHole(ring) {
			flush()
		}
		rings = append(rings, ring)
	}
	flush()
	return out
}

// isHole reports whether a closed shapefile ring winds counter-clockwise.
// Outer rings wind clockwise.
func isHole(ring []geom.Coord) bool {
	if len(ring) < 4 {
		return false
	}
	flat := make([]float64, 0, 2*len(ring))
	for _, c := range ring {
		flat = append(flat, c.X(), c.Y())
	}
	return xy.IsRingCounterClockwise(geom.XY, flat)
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// dbfDecoder resolves the DBF code page: the explicit override, then the
// .cpg sidecar, then UTF-8 (nil decoder).
func dbfDecoder(shpPath, override string) (*encoding.Decoder, error) {
	label := override
	if label == "" {
		cpg := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".cpg"
		if data, err := os.ReadFile(cpg); err == nil {
			label = strings.TrimSpace(string(data))
		}
	}
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: unsupported dbf encoding %q", label)
	}
	return enc.NewDecoder(), nil
}

func decodeAttr(dec *encoding.Decoder, raw string) string {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if dec == nil || raw == "" {
		return raw
	}
	s, err := dec.String(raw)
	if err != nil {
		return raw
	}
	return strings.TrimSpace(s)
}
