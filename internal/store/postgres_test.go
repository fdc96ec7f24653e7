package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: func() time.Time { return fixedNow }}
	return s, mock
}

func cbdEWKB(t *testing.T) []byte {
	t.Helper()
	poly, err := geometry.NewPolygon([]geometry.Point{
		geometry.Pt(36.81, -1.30), geometry.Pt(36.83, -1.30),
		geometry.Pt(36.83, -1.28), geometry.Pt(36.81, -1.28),
	})
	require.NoError(t, err)
	data, err := geometry.MarshalEWKB(poly)
	require.NoError(t, err)
	return data
}

var zoneCols = []string{"id", "name", "category", "st_asewkb", "valid_from", "valid_to", "weather_condition", "congestion_level"}

func TestPostgresStore_ListZones(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rain := "rain"
	level := int32(3)
	from := fixedNow.Add(-time.Hour)

	mock.ExpectQuery(`FROM zones`).
		WithArgs("").
		WillReturnRows(pgxmock.NewRows(zoneCols).
			AddRow(int64(1), "Nairobi CBD", "delivery", cbdEWKB(t), &from, (*time.Time)(nil), (*string)(nil), (*int32)(nil)).
			AddRow(int64(2), "CBD wet", "delivery", cbdEWKB(t), (*time.Time)(nil), (*time.Time)(nil), &rain, &level))

	zones, err := s.ListZones(context.Background(), zone.Filter{})
	require.NoError(t, err)
	require.Len(t, zones, 2)

	assert.Equal(t, "Nairobi CBD", zones[0].Name)
	require.NotNil(t, zones[0].ValidFrom)
	assert.True(t, zones[0].ValidFrom.Equal(from))
	assert.Nil(t, zones[0].CongestionLevel)
	assert.Equal(t, 1, zones[0].Geom.NumLinearRings())

	require.NotNil(t, zones[1].WeatherCondition)
	assert.Equal(t, "rain", *zones[1].WeatherCondition)
	require.NotNil(t, zones[1].CongestionLevel)
	assert.Equal(t, 3, *zones[1].CongestionLevel)

	in, err := zones[0].Contains(geometry.Pt(36.82, -1.29))
	require.NoError(t, err)
	assert.True(t, in)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListZones_Category(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM zones`).
		WithArgs(zone.CategoryCityBoundary).
		WillReturnRows(pgxmock.NewRows(zoneCols))

	zones, err := s.ListZones(context.Background(), zone.Filter{Category: zone.CategoryCityBoundary})
	require.NoError(t, err)
	assert.Empty(t, zones)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListZones_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM zones`).
		WithArgs("").
		WillReturnError(errors.New("relation \"zones\" does not exist"))

	_, err := s.ListZones(context.Background(), zone.Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list zones")
	assert.Contains(t, err.Error(), "does not exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertZone(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	poly, err := geometry.UnmarshalPolygonEWKB(cbdEWKB(t))
	require.NoError(t, err)
	z := &zone.Zone{Name: "Nairobi CBD", Geom: poly}

	mock.ExpectQuery(`INSERT INTO zones`).
		WithArgs("Nairobi CBD", zone.CategoryDelivery, pgxmock.AnyArg(), z.ValidFrom, z.ValidTo, z.WeatherCondition, z.CongestionLevel).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.InsertZone(context.Background(), z)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ZoneExists(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("Karen").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.ZoneExists(context.Background(), "Karen")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecentOrders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM orders`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "st_x", "st_y", "created_at"}).
			AddRow(int64(1), 36.823, -1.283, fixedNow.Add(-time.Minute)).
			AddRow(int64(2), 36.824, -1.284, fixedNow))

	orders, err := s.RecentOrders(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, geometry.Pt(36.823, -1.283), orders[0].Position)
	assert.Equal(t, int64(2), orders[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertOrders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_orders"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_orders"}, []string{"position", "created_at"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "orders"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.InsertOrders(context.Background(), []surge.Order{
		{Position: geometry.Pt(36.82, -1.28)},
		{Position: geometry.Pt(36.81, -1.26), CreatedAt: fixedNow},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDriverPosition(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO drivers .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(int64(42), 36.82, -1.29, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertDriverPosition(context.Background(), 42, geometry.Pt(36.82, -1.29), fixedNow)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDriver_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM drivers WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	d, err := s.GetDriver(context.Background(), 9)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDriver(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lon, lat := 39.668, -4.043
	mock.ExpectQuery(`FROM drivers WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "st_x", "st_y", "updated_at"}).
			AddRow(int64(5), &lon, &lat, fixedNow))

	d, err := s.GetDriver(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NotNil(t, d.LastPosition)
	assert.Equal(t, geometry.Pt(39.668, -4.043), *d.LastPosition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDriver_NoPosition(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM drivers WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "st_x", "st_y", "updated_at"}).
			AddRow(int64(5), (*float64)(nil), (*float64)(nil), fixedNow))

	d, err := s.GetDriver(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Nil(t, d.LastPosition)
}

func TestPostgresStore_ListPositionedDrivers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lon1, lat1 := 36.82, -1.29
	lon2, lat2 := 39.668, -4.043
	mock.ExpectQuery(`WHERE last_position IS NOT NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "st_x", "st_y", "updated_at"}).
			AddRow(int64(1), &lon1, &lat1, fixedNow).
			AddRow(int64(2), &lon2, &lat2, fixedNow))

	drivers, err := s.ListPositionedDrivers(context.Background())
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, int64(2), drivers[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendHotspot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	poly, err := geometry.UnmarshalPolygonEWKB(cbdEWKB(t))
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO hotspots`).
		WithArgs(pgxmock.AnyArg(), 20, hotspot.DefaultMultiplier, fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.AppendHotspot(context.Background(), &hotspot.Hotspot{
		Geom:            poly,
		OrderCount:      20,
		SurgeMultiplier: hotspot.DefaultMultiplier,
		CreatedAt:       fixedNow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListHotspots(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM hotspots`).
		WithArgs(pgxmock.AnyArg(), 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "st_asewkb", "order_count", "surge_multiplier", "created_at"}).
			AddRow(int64(3), cbdEWKB(t), int32(20), 1.5, fixedNow))

	hs, err := s.ListHotspots(context.Background(), hotspot.HistoryFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, 20, hs[0].OrderCount)
	assert.Equal(t, 1.5, hs[0].SurgeMultiplier)
	assert.NotNil(t, hs[0].Geom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Snapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(`FROM zones`).
		WithArgs("").
		WillReturnRows(pgxmock.NewRows(zoneCols).
			AddRow(int64(1), "Nairobi CBD", "delivery", cbdEWKB(t), (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), (*int32)(nil)))
	mock.ExpectQuery(`FROM orders`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "st_x", "st_y", "created_at"}).
			AddRow(int64(1), 36.823, -1.283, fixedNow))
	mock.ExpectCommit()

	snap, err := s.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, snap.Zones, 1)
	assert.Len(t, snap.Orders, 1)
	assert.Equal(t, fixedNow, snap.TakenAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Snapshot_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(`FROM zones`).
		WithArgs("").
		WillReturnError(errors.New("canceling statement due to conflict"))
	mock.ExpectRollback()

	_, err := s.Snapshot(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list zones")
	assert.Contains(t, err.Error(), "canceling statement due to conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_init.sql"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS hotspots`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("002_hotspots.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_Ordered(t *testing.T) {
	for _, dialect := range []string{"postgres", "sqlite"} {
		ms, err := migrations(dialect)
		require.NoError(t, err)
		require.Len(t, ms, 2)
		assert.Equal(t, "001_init.sql", ms[0].name)
		assert.Equal(t, "002_hotspots.sql", ms[1].name)
	}
}

func TestSince(t *testing.T) {
	assert.Nil(t, since(0, fixedNow))
	got := since(time.Hour, fixedNow)
	require.NotNil(t, got)
	assert.Equal(t, fixedNow.Add(-time.Hour), *got)
}
