package importer

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

type memZones struct {
	zones  []*zone.Zone
	orders []surge.Order
	err    error
}

func (m *memZones) ZoneExists(_ context.Context, name string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, z := range m.zones {
		if z.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memZones) InsertZone(_ context.Context, z *zone.Zone) (int64, error) {
	m.zones = append(m.zones, z)
	return int64(len(m.zones)), nil
}

func (m *memZones) InsertOrders(_ context.Context, orders []surge.Order) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.orders = append(m.orders, orders...)
	return int64(len(orders)), nil
}

func TestDefaultSeed(t *testing.T) {
	f := DefaultSeed()
	require.Len(t, f.Zones, 6)

	names := make(map[string]string)
	for _, s := range f.Zones {
		z, err := s.Zone()
		require.NoError(t, err, s.Name)
		names[z.Name] = z.Category
	}
	assert.Equal(t, zone.CategoryDelivery, names["CBD"])
	assert.Equal(t, zone.CategoryDelivery, names["Industrial Area"])
	assert.Equal(t, zone.CategoryCityBoundary, names["Nairobi"])
}

func TestDefaultSeed_BoundaryCoversDeliveryZones(t *testing.T) {
	var boundary *zone.Zone
	var delivery []*zone.Zone
	for _, s := range DefaultSeed().Zones {
		z, err := s.Zone()
		require.NoError(t, err)
		if z.Category == zone.CategoryCityBoundary {
			boundary = z
		} else {
			delivery = append(delivery, z)
		}
	}
	require.NotNil(t, boundary)
	for _, z := range delivery {
		for _, p := range geometry.RingPoints(z.Geom, 0) {
			in, err := boundary.Contains(p)
			require.NoError(t, err)
			assert.True(t, in, "%s vertex %v outside boundary", z.Name, p)
		}
	}
}

func TestParseSeed_OptionalFields(t *testing.T) {
	data := []byte(`
zones:
  - name: Rainy CBD
    wkt: POLYGON((0 0, 1 0, 1 1, 0 1, 0 0))
    valid_from: 2026-01-01T00:00:00Z
    valid_to: 2026-12-31T23:59:59Z
    weather_condition: rain
    congestion_level: 3
`)
	f, err := ParseSeed(data)
	require.NoError(t, err)
	require.Len(t, f.Zones, 1)

	z, err := f.Zones[0].Zone()
	require.NoError(t, err)
	assert.Equal(t, zone.CategoryDelivery, z.Category)
	require.NotNil(t, z.ValidFrom)
	assert.Equal(t, 2026, z.ValidFrom.Year())
	require.NotNil(t, z.WeatherCondition)
	assert.Equal(t, "rain", *z.WeatherCondition)
	require.NotNil(t, z.CongestionLevel)
	assert.Equal(t, 3, *z.CongestionLevel)
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := ParseSeed([]byte("zones: [unterminated"))
	assert.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte("zones:\n  - name: A\n    wkt: POLYGON((0 0, 1 0, 1 1, 0 0))\n"), 0o644))

	f, err := LoadSeedFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Zones, 1)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeedZones_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	w := &memZones{}

	res, err := SeedZones(ctx, w, DefaultSeed().Zones)
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 6}, res)

	res, err = SeedZones(ctx, w, DefaultSeed().Zones)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 6}, res)
	assert.Len(t, w.zones, 6)
	assert.Equal(t, int64(1), w.zones[0].ID)
}

func TestSeedZones_InvalidAbortsBeforeWriting(t *testing.T) {
	w := &memZones{}
	seeds := []ZoneSeed{
		{Name: "ok", WKT: "POLYGON((0 0, 1 0, 1 1, 0 0))"},
		{Name: "line", WKT: "POLYGON((0 0, 1 1, 2 2, 0 0))"},
	}
	_, err := SeedZones(context.Background(), w, seeds)
	require.Error(t, err)
	assert.True(t, geometry.IsInvalid(err))
	assert.Empty(t, w.zones)
}

func TestSeedZones_StoreError(t *testing.T) {
	w := &memZones{err: eris.New("down")}
	_, err := SeedZones(context.Background(), w, DefaultSeed().Zones[:1])
	assert.Error(t, err)
}

// writeShapefile writes polygons with a NAME attribute into dir.
func writeShapefile(t *testing.T, dir string, names []string, polys []*shp.Polygon) string {
	t.Helper()
	path := filepath.Join(dir, "districts.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 40)}))
	for i, p := range polys {
		row := w.Write(p)
		require.NoError(t, w.WriteAttribute(int(row), 0, names[i]))
	}
	w.Close()

	// go-shp v0.1.1 names the table "<base>dbf"; the reader opens "<base>.dbf".
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

// clockwise square, the shapefile convention for outer rings.
func cwSquare(x0, y0, size float64) []shp.Point {
	return []shp.Point{
		{X: x0, Y: y0}, {X: x0, Y: y0 + size}, {X: x0 + size, Y: y0 + size}, {X: x0 + size, Y: y0}, {X: x0, Y: y0},
	}
}

func ccwSquare(x0, y0, size float64) []shp.Point {
	return []shp.Point{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}, {X: x0, Y: y0},
	}
}

func TestReadShapefile(t *testing.T) {
	dir := t.TempDir()
	withHole := shp.NewPolyLine([][]shp.Point{cwSquare(0, 0, 10), ccwSquare(4, 4, 2)})
	path := writeShapefile(t, dir,
		[]string{"Westlands", "", "Islands"},
		[]*shp.Polygon{
			(*shp.Polygon)(withHole),
			(*shp.Polygon)(shp.NewPolyLine([][]shp.Point{cwSquare(20, 0, 1)})),
			(*shp.Polygon)(shp.NewPolyLine([][]shp.Point{cwSquare(30, 0, 1), cwSquare(40, 0, 1)})),
		})

	zones, err := ReadShapefile(path, ShapefileOptions{})
	require.NoError(t, err)
	require.Len(t, zones, 4)

	assert.Equal(t, "Westlands", zones[0].Name)
	assert.Equal(t, zone.CategoryDelivery, zones[0].Category)
	assert.Equal(t, 2, zones[0].Geom.NumLinearRings())
	in, err := zones[0].Contains(geometry.Pt(5, 5))
	require.NoError(t, err)
	assert.False(t, in, "hole is excluded")
	in, err = zones[0].Contains(geometry.Pt(1, 1))
	require.NoError(t, err)
	assert.True(t, in)

	assert.Equal(t, "Nairobi District 2", zones[1].Name)
	assert.Equal(t, "Islands #1", zones[2].Name)
	assert.Equal(t, "Islands #2", zones[3].Name)
}

func TestReadShapefile_NameFieldAndCodePage(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, []string{"Murang\x92a Road"},
		[]*shp.Polygon{(*shp.Polygon)(shp.NewPolyLine([][]shp.Point{cwSquare(36.8, -1.3, 0.01)}))})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "districts.cpg"), []byte("windows-1252\n"), 0o644))

	zones, err := ReadShapefile(path, ShapefileOptions{})
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "Murang’a Road", zones[0].Name)

	zones, err = ReadShapefile(path, ShapefileOptions{NameField: "MISSING"})
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "Nairobi District 1", zones[0].Name)
}

func TestImportShapefile_CategoryAndPrefix(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, []string{""},
		[]*shp.Polygon{(*shp.Polygon)(shp.NewPolyLine([][]shp.Point{cwSquare(36.6, -1.4, 0.4)}))})

	w := &memZones{}
	res, err := ImportShapefile(context.Background(), w, path, ShapefileOptions{
		Category: zone.CategoryCityBoundary,
		Prefix:   "Mombasa",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	require.Len(t, w.zones, 1)
	assert.Equal(t, "Mombasa District 1", w.zones[0].Name)
	assert.Equal(t, zone.CategoryCityBoundary, w.zones[0].Category)
	assert.Equal(t, geometry.SRID, w.zones[0].Geom.SRID())
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"), ShapefileOptions{})
	assert.Error(t, err)
}

func TestDBFDecoder(t *testing.T) {
	dir := t.TempDir()
	shpPath := filepath.Join(dir, "a.shp")

	dec, err := dbfDecoder(shpPath, "")
	require.NoError(t, err)
	assert.Nil(t, dec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cpg"), []byte("windows-1252\n"), 0o644))
	dec, err = dbfDecoder(shpPath, "")
	require.NoError(t, err)
	require.NotNil(t, dec)
	assert.Equal(t, "Muranga’s", decodeAttr(dec, "Muranga\x92s\x00\x00"))

	_, err = dbfDecoder(shpPath, "klingon")
	assert.Error(t, err)
}

func TestSyntheticOrders(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := SyntheticOrders(rand.New(rand.NewPCG(1, 2)), DefaultClusters(), at)
	require.Len(t, orders, 28)

	for i, o := range orders[:15] {
		assert.InDelta(t, 36.823, o.Position.Lon, 0.005, i)
		assert.InDelta(t, -1.283, o.Position.Lat, 0.005, i)
		assert.Equal(t, at, o.CreatedAt)
	}
	for _, o := range orders[15:25] {
		assert.InDelta(t, 36.808, o.Position.Lon, 0.005)
	}
}

func TestSyntheticOrders_DetectsCBDCluster(t *testing.T) {
	orders := SyntheticOrders(rand.New(rand.NewPCG(7, 7)), DefaultClusters()[:1], time.Now())
	det, err := surge.NewDetector(surge.Params{Eps: 0.015, MinPoints: 5})
	require.NoError(t, err)

	sz, err := det.Detect(surge.Points(orders))
	require.NoError(t, err)
	require.NotNil(t, sz)
	assert.Equal(t, 15, sz.MemberCount)
}

func TestSeedOrders(t *testing.T) {
	w := &memZones{}
	n, err := SeedOrders(context.Background(), w, rand.New(rand.NewPCG(1, 1)), DefaultClusters(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(28), n)
	assert.Len(t, w.orders, 28)

	n, err = SeedOrders(context.Background(), w, rand.New(rand.NewPCG(1, 1)), nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = SeedOrders(context.Background(), &memZones{err: eris.New("down")}, rand.New(rand.NewPCG(1, 1)), DefaultClusters(), time.Now())
	assert.Error(t, err)
}
