package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// sqliteTime is a fixed-width UTC layout so text timestamps sort correctly.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite. Geometries are kept
// as WKT and points as lon/lat columns; all spatial tests run in Go.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The busy timeout is also set through the DSN so every pooled connection
// waits on locks instead of failing with SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "_pragma=busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, now: time.Now}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) ListZones(ctx context.Context, f zone.Filter) ([]zone.Zone, error) {
	return sqliteZones(ctx, s.db, f)
}

func sqliteZones(ctx context.Context, q sqlQuerier, f zone.Filter) ([]zone.Zone, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, category, geom_wkt, valid_from, valid_to, weather_condition, congestion_level
		FROM zones WHERE (? = '' OR category = ?) ORDER BY id`,
		f.Category, f.Category,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list zones")
	}
	defer rows.Close()

	var zones []zone.Zone
	for rows.Next() {
		var (
			z          zone.Zone
			wkt        string
			from, to   sql.NullString
			weather    sql.NullString
			congestion sql.NullInt64
		)
		if err := rows.Scan(&z.ID, &z.Name, &z.Category, &wkt, &from, &to, &weather, &congestion); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone")
		}
		if z.Geom, err = geometry.ParsePolygonWKT(wkt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode zone %d", z.ID)
		}
		if z.ValidFrom, err = parseTimePtr(from); err != nil {
			return nil, err
		}
		if z.ValidTo, err = parseTimePtr(to); err != nil {
			return nil, err
		}
		if weather.Valid {
			w := weather.String
			z.WeatherCondition = &w
		}
		if congestion.Valid {
			c := int(congestion.Int64)
			z.CongestionLevel = &c
		}
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "sqlite: iterate zones")
}

func (s *SQLiteStore) InsertZone(ctx context.Context, z *zone.Zone) (int64, error) {
	wkt, err := geometry.FormatWKT(z.Geom)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: encode zone %s", z.Name)
	}
	category := z.Category
	if category == "" {
		category = zone.CategoryDelivery
	}
	var congestion any
	if z.CongestionLevel != nil {
		congestion = *z.CongestionLevel
	}
	var weather any
	if z.WeatherCondition != nil {
		weather = *z.WeatherCondition
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO zones (name, category, geom_wkt, valid_from, valid_to, weather_condition, congestion_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		z.Name, category, wkt, formatTimePtr(z.ValidFrom), formatTimePtr(z.ValidTo), weather, congestion,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert zone %s", z.Name)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: zone id")
}

func (s *SQLiteStore) ZoneExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM zones WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: zone exists %s", name)
	}
	return n > 0, nil
}

func (s *SQLiteStore) RecentOrders(ctx context.Context, window time.Duration) ([]surge.Order, error) {
	return sqliteOrders(ctx, s.db, since(window, s.now()))
}

func sqliteOrders(ctx context.Context, q sqlQuerier, from *time.Time) ([]surge.Order, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, lon, lat, created_at FROM orders
		WHERE (? IS NULL OR created_at >= ?)
		ORDER BY created_at, id`,
		formatTimePtr(from), formatTimePtr(from),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent orders")
	}
	defer rows.Close()

	var orders []surge.Order
	for rows.Next() {
		var (
			o       surge.Order
			created string
		)
		if err := rows.Scan(&o.ID, &o.Position.Lon, &o.Position.Lat, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan order")
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, eris.Wrap(rows.Err(), "sqlite: iterate orders")
}

func (s *SQLiteStore) InsertOrders(ctx context.Context, orders []surge.Order) (int64, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert orders")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO orders (lon, lat, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert order")
	}
	defer stmt.Close()

	for _, o := range orders {
		created := o.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		if _, err := stmt.ExecContext(ctx, o.Position.Lon, o.Position.Lat, formatTime(created)); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert order")
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit orders")
	}
	return int64(len(orders)), nil
}

func (s *SQLiteStore) UpsertDriverPosition(ctx context.Context, id int64, p geometry.Point, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drivers (id, lon, lat, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET lon = excluded.lon, lat = excluded.lat, updated_at = excluded.updated_at`,
		id, p.Lon, p.Lat, formatTime(at),
	)
	return eris.Wrapf(err, "sqlite: upsert driver %d", id)
}

func (s *SQLiteStore) GetDriver(ctx context.Context, id int64) (*driver.Driver, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, lon, lat, updated_at FROM drivers WHERE id = ?`, id)
	d, err := scanSQLiteDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get driver %d", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListPositionedDrivers(ctx context.Context) ([]driver.Driver, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lon, lat, updated_at FROM drivers
		WHERE lon IS NOT NULL AND lat IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list drivers")
	}
	defer rows.Close()

	var out []driver.Driver
	for rows.Next() {
		d, err := scanSQLiteDriver(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan driver")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate drivers")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteDriver(row scannable) (*driver.Driver, error) {
	var (
		d        driver.Driver
		lon, lat sql.NullFloat64
		updated  string
	)
	if err := row.Scan(&d.ID, &lon, &lat, &updated); err != nil {
		return nil, err
	}
	t, err := parseTime(updated)
	if err != nil {
		return nil, err
	}
	d.UpdatedAt = t
	if lon.Valid && lat.Valid {
		p := geometry.Pt(lon.Float64, lat.Float64)
		d.LastPosition = &p
	}
	return &d, nil
}

func (s *SQLiteStore) AppendHotspot(ctx context.Context, h *hotspot.Hotspot) (int64, error) {
	wkt, err := geometry.FormatWKT(h.Geom)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: encode hotspot")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO hotspots (geom_wkt, order_count, surge_multiplier, created_at) VALUES (?, ?, ?, ?)`,
		wkt, h.OrderCount, h.SurgeMultiplier, formatTime(h.CreatedAt),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: append hotspot")
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: hotspot id")
}

func (s *SQLiteStore) ListHotspots(ctx context.Context, f hotspot.HistoryFilter) ([]hotspot.Hotspot, error) {
	limit := -1
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, geom_wkt, order_count, surge_multiplier, created_at FROM hotspots
		WHERE (? IS NULL OR created_at >= ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		formatTimePtr(f.Since), formatTimePtr(f.Since), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list hotspots")
	}
	defer rows.Close()

	var out []hotspot.Hotspot
	for rows.Next() {
		var (
			h       hotspot.Hotspot
			wkt     string
			created string
		)
		if err := rows.Scan(&h.ID, &wkt, &h.OrderCount, &h.SurgeMultiplier, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hotspot")
		}
		if h.Geom, err = geometry.ParsePolygonWKT(wkt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode hotspot %d", h.ID)
		}
		if h.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate hotspots")
}

// Snapshot reads zones and orders inside one transaction.
func (s *SQLiteStore) Snapshot(ctx context.Context, window time.Duration) (*Snapshot, error) {
	taken := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	zones, err := sqliteZones(ctx, tx, zone.Filter{})
	if err != nil {
		return nil, err
	}
	orders, err := sqliteOrders(ctx, tx, since(window, taken))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit snapshot")
	}
	return &Snapshot{Zones: zones, Orders: orders, TakenAt: taken}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrateSQLite(ctx, s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
