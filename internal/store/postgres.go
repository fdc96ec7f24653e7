package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/db"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// PostgresStore implements Store on PostgreSQL with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const pgListZones = `SELECT id, name, category, ST_AsEWKB(geom), valid_from, valid_to, weather_condition, congestion_level
FROM zones
WHERE ($1 = '' OR category = $1)
ORDER BY id`

const pgRecentOrders = `SELECT id, ST_X(position), ST_Y(position), created_at
FROM orders
WHERE ($1::timestamptz IS NULL OR created_at >= $1)
ORDER BY created_at, id`

func (s *PostgresStore) ListZones(ctx context.Context, f zone.Filter) ([]zone.Zone, error) {
	return pgZones(ctx, s.pool, f)
}

func pgZones(ctx context.Context, q querier, f zone.Filter) ([]zone.Zone, error) {
	rows, err := q.Query(ctx, pgListZones, f.Category)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list zones")
	}
	defer rows.Close()

	var zones []zone.Zone
	for rows.Next() {
		var (
			z          zone.Zone
			ewkb       []byte
			congestion *int32
		)
		if err := rows.Scan(&z.ID, &z.Name, &z.Category, &ewkb,
			&z.ValidFrom, &z.ValidTo, &z.WeatherCondition, &congestion); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone")
		}
		if z.Geom, err = geometry.UnmarshalPolygonEWKB(ewkb); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode zone %d", z.ID)
		}
		if congestion != nil {
			c := int(*congestion)
			z.CongestionLevel = &c
		}
		zones = append(zones, z)
	}
	return zones, eris.Wrap(rows.Err(), "postgres: iterate zones")
}

func (s *PostgresStore) InsertZone(ctx context.Context, z *zone.Zone) (int64, error) {
	ewkb, err := geometry.MarshalEWKB(z.Geom)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: encode zone %s", z.Name)
	}
	category := z.Category
	if category == "" {
		category = zone.CategoryDelivery
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO zones (name, category, geom, valid_from, valid_to, weather_condition, congestion_level)
		VALUES ($1, $2, ST_GeomFromEWKB($3), $4, $5, $6, $7) RETURNING id`,
		z.Name, category, ewkb, z.ValidFrom, z.ValidTo, z.WeatherCondition, z.CongestionLevel,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert zone %s", z.Name)
	}
	return id, nil
}

func (s *PostgresStore) ZoneExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM zones WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: zone exists %s", name)
	}
	return exists, nil
}

func (s *PostgresStore) RecentOrders(ctx context.Context, window time.Duration) ([]surge.Order, error) {
	return pgOrders(ctx, s.pool, since(window, s.now()))
}

func pgOrders(ctx context.Context, q querier, from *time.Time) ([]surge.Order, error) {
	rows, err := q.Query(ctx, pgRecentOrders, from)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent orders")
	}
	defer rows.Close()

	var orders []surge.Order
	for rows.Next() {
		var o surge.Order
		if err := rows.Scan(&o.ID, &o.Position.Lon, &o.Position.Lat, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan order")
		}
		orders = append(orders, o)
	}
	return orders, eris.Wrap(rows.Err(), "postgres: iterate orders")
}

// InsertOrders bulk-loads orders. Order IDs are assigned by the database.
func (s *PostgresStore) InsertOrders(ctx context.Context, orders []surge.Order) (int64, error) {
	rows := make([][]any, 0, len(orders))
	for _, o := range orders {
		ewkb, err := geometry.MarshalEWKB(o.Position.Geom())
		if err != nil {
			return 0, eris.Wrap(err, "postgres: encode order")
		}
		created := o.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		rows = append(rows, []any{ewkb, created})
	}

	n, err := db.StageInsert(ctx, s.pool, db.StageConfig{
		Table:   "orders",
		Columns: []string{"position", "created_at"},
		Stage: []db.StageColumn{
			{Name: "position", Type: "bytea"},
			{Name: "created_at", Type: "timestamptz"},
		},
		Select: []string{"ST_GeomFromEWKB(position)", "created_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert orders")
	}
	return n, nil
}

func (s *PostgresStore) UpsertDriverPosition(ctx context.Context, id int64, p geometry.Point, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO drivers (id, last_position, updated_at)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4)
		ON CONFLICT (id) DO UPDATE SET last_position = EXCLUDED.last_position, updated_at = EXCLUDED.updated_at`,
		id, p.Lon, p.Lat, at,
	)
	return eris.Wrapf(err, "postgres: upsert driver %d", id)
}

func (s *PostgresStore) GetDriver(ctx context.Context, id int64) (*driver.Driver, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, ST_X(last_position), ST_Y(last_position), updated_at FROM drivers WHERE id = $1`, id)
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get driver %d", id)
	}
	return d, nil
}

func (s *PostgresStore) ListPositionedDrivers(ctx context.Context) ([]driver.Driver, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ST_X(last_position), ST_Y(last_position), updated_at
		FROM drivers WHERE last_position IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list drivers")
	}
	defer rows.Close()

	var out []driver.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan driver")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate drivers")
}

func scanDriver(row pgx.Row) (*driver.Driver, error) {
	var (
		d        driver.Driver
		lon, lat *float64
	)
	if err := row.Scan(&d.ID, &lon, &lat, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if lon != nil && lat != nil {
		p := geometry.Pt(*lon, *lat)
		d.LastPosition = &p
	}
	return &d, nil
}

func (s *PostgresStore) AppendHotspot(ctx context.Context, h *hotspot.Hotspot) (int64, error) {
	ewkb, err := geometry.MarshalEWKB(h.Geom)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: encode hotspot")
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO hotspots (geom, order_count, surge_multiplier, created_at)
		VALUES (ST_GeomFromEWKB($1), $2, $3, $4) RETURNING id`,
		ewkb, h.OrderCount, h.SurgeMultiplier, h.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append hotspot")
	}
	return id, nil
}

func (s *PostgresStore) ListHotspots(ctx context.Context, f hotspot.HistoryFilter) ([]hotspot.Hotspot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ST_AsEWKB(geom), order_count, surge_multiplier, created_at
		FROM hotspots
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)`,
		f.Since, f.Limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list hotspots")
	}
	defer rows.Close()

	var out []hotspot.Hotspot
	for rows.Next() {
		var (
			h     hotspot.Hotspot
			ewkb  []byte
			count int32
		)
		if err := rows.Scan(&h.ID, &ewkb, &count, &h.SurgeMultiplier, &h.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan hotspot")
		}
		if h.Geom, err = geometry.UnmarshalPolygonEWKB(ewkb); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode hotspot %d", h.ID)
		}
		h.OrderCount = int(count)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate hotspots")
}

// Snapshot reads zones and orders inside one REPEATABLE READ, READ ONLY
// transaction so both come from the same database state.
func (s *PostgresStore) Snapshot(ctx context.Context, window time.Duration) (*Snapshot, error) {
	taken := s.now()
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin snapshot")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	zones, err := pgZones(ctx, tx, zone.Filter{})
	if err != nil {
		return nil, err
	}
	orders, err := pgOrders(ctx, tx, since(window, taken))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit snapshot")
	}
	return &Snapshot{Zones: zones, Orders: orders, TakenAt: taken}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
