// Package importer loads zones and synthetic orders into a store: YAML seed
// files, ESRI shapefiles and generated order clusters.
package importer

import (
	"context"
	_ "embed"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

//go:embed nairobi.yaml
var nairobiSeed []byte

// ZoneSeed is one zone in a seed file. Geometry is WKT in lon/lat order.
type ZoneSeed struct {
	Name             string     `yaml:"name"`
	Category         string     `yaml:"category"`
	WKT              string     `yaml:"wkt"`
	ValidFrom        *time.Time `yaml:"valid_from,omitempty"`
	ValidTo          *time.Time `yaml:"valid_to,omitempty"`
	WeatherCondition *string    `yaml:"weather_condition,omitempty"`
	CongestionLevel  *int       `yaml:"congestion_level,omitempty"`
}

// SeedFile is the top-level seed document.
type SeedFile struct {
	Zones []ZoneSeed `yaml:"zones"`
}

// ZoneWriter is the store surface the importers write through.
type ZoneWriter interface {
	ZoneExists(ctx context.Context, name string) (bool, error)
	InsertZone(ctx context.Context, z *zone.Zone) (int64, error)
}

// Result counts what an import did.
type Result struct {
	Inserted int
	Skipped  int
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "importer: parse seed")
	}
	return &f, nil
}

// LoadSeedFile reads a YAML seed file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: read seed %s", path)
	}
	return ParseSeed(data)
}

// DefaultSeed returns the built-in Nairobi zones.
func DefaultSeed() *SeedFile {
	f, err := ParseSeed(nairobiSeed)
	if err != nil {
		panic(err)
	}
	return f
}

// Zone converts the seed to a validated catalog zone. An empty category
// means delivery.
func (s ZoneSeed) Zone() (*zone.Zone, error) {
	poly, err := geometry.ParsePolygonWKT(s.WKT)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: zone %q", s.Name)
	}
	cat := strings.TrimSpace(s.Category)
	if cat == "" {
		cat = zone.CategoryDelivery
	}
	z := &zone.Zone{
		Name:             strings.TrimSpace(s.Name),
		Category:         cat,
		Geom:             poly,
		ValidFrom:        s.ValidFrom,
		ValidTo:          s.ValidTo,
		WeatherCondition: s.WeatherCondition,
		CongestionLevel:  s.CongestionLevel,
	}
	if err := z.Validate(); err != nil {
		return nil, eris.Wrapf(err, "importer: zone %q", s.Name)
	}
	return z, nil
}

// SeedZones inserts each seed whose name is not already in the catalog.
// A seed that fails validation aborts the import before anything is
// written.
func SeedZones(ctx context.Context, w ZoneWriter, seeds []ZoneSeed) (Result, error) {
	zones := make([]*zone.Zone, 0, len(seeds))
	for _, s := range seeds {
		z, err := s.Zone()
		if err != nil {
			return Result{}, err
		}
		zones = append(zones, z)
	}
	return insertNew(ctx, w, zones)
}

func insertNew(ctx context.Context, w ZoneWriter, zones []*zone.Zone) (Result, error) {
	log := zap.L().With(zap.String("component", "importer"))

	var res Result
	for _, z := range zones {
		exists, err := w.ZoneExists(ctx, z.Name)
		if err != nil {
			return res, eris.Wrapf(err, "importer: check zone %q", z.Name)
		}
		if exists {
			log.Debug("zone exists, skipping", zap.String("name", z.Name))
			res.Skipped++
			continue
		}
		id, err := w.InsertZone(ctx, z)
		if err != nil {
			return res, eris.Wrapf(err, "importer: insert zone %q", z.Name)
		}
		z.ID = id
		log.Info("zone inserted",
			zap.Int64("id", id),
			zap.String("name", z.Name),
			zap.String("category", z.Category),
		)
		res.Inserted++
	}
	return res, nil
}
