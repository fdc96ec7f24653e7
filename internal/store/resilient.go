package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/resilience"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// Resilient decorates a Store with retries and a circuit breaker. Failures
// caused by the store being unreachable come back as *UnavailableError.
type Resilient struct {
	next    Store
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewResilient wraps next. A nil breaker gets the default configuration.
func NewResilient(next Store, policy resilience.Policy, breaker *resilience.Breaker) *Resilient {
	if breaker == nil {
		breaker = NewBreaker(resilience.BreakerConfig{})
	}
	return &Resilient{next: next, policy: policy, breaker: breaker}
}

// NewBreaker builds a circuit breaker that only counts unreachable-store
// errors and logs state changes. Callbacks already set in cfg are kept.
func NewBreaker(cfg resilience.BreakerConfig) *resilience.Breaker {
	if cfg.IsFailure == nil {
		cfg.IsFailure = unreachable
	}
	if cfg.OnStateChange == nil {
		log := zap.L().With(zap.String("component", "store.breaker"))
		cfg.OnStateChange = func(from, to resilience.State) {
			log.Warn("store circuit changed state",
				zap.Stringer("from", from), zap.Stringer("to", to))
		}
	}
	return resilience.NewBreaker(cfg)
}

// unreachable reports whether err means the store did not answer.
func unreachable(err error) bool {
	return resilience.IsTransient(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, resilience.ErrCircuitOpen)
}

// safeToRetry is the retry predicate for non-idempotent writes: only errors
// raised before the statement reached the server.
func safeToRetry(err error) bool {
	return pgconn.SafeToRetry(err)
}

func call[T any](ctx context.Context, r *Resilient, op string, retryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	p := r.policy
	p.OnRetry = resilience.LogRetry(op)
	if retryable != nil {
		p.Retryable = retryable
	}
	v, err := resilience.DoVal(ctx, p, func(ctx context.Context) (T, error) {
		return resilience.ExecuteVal(ctx, r.breaker, fn)
	})
	if err != nil && unreachable(err) {
		return v, &UnavailableError{Op: op, Err: err}
	}
	return v, err
}

func (r *Resilient) ListZones(ctx context.Context, f zone.Filter) ([]zone.Zone, error) {
	return call(ctx, r, "list zones", nil, func(ctx context.Context) ([]zone.Zone, error) {
		return r.next.ListZones(ctx, f)
	})
}

func (r *Resilient) InsertZone(ctx context.Context, z *zone.Zone) (int64, error) {
	return call(ctx, r, "insert zone", safeToRetry, func(ctx context.Context) (int64, error) {
		return r.next.InsertZone(ctx, z)
	})
}

func (r *Resilient) ZoneExists(ctx context.Context, name string) (bool, error) {
	return call(ctx, r, "zone exists", nil, func(ctx context.Context) (bool, error) {
		return r.next.ZoneExists(ctx, name)
	})
}

func (r *Resilient) RecentOrders(ctx context.Context, window time.Duration) ([]surge.Order, error) {
	return call(ctx, r, "recent orders", nil, func(ctx context.Context) ([]surge.Order, error) {
		return r.next.RecentOrders(ctx, window)
	})
}

func (r *Resilient) InsertOrders(ctx context.Context, orders []surge.Order) (int64, error) {
	return call(ctx, r, "insert orders", safeToRetry, func(ctx context.Context) (int64, error) {
		return r.next.InsertOrders(ctx, orders)
	})
}

// UpsertDriverPosition is idempotent, so every transient failure is retried.
func (r *Resilient) UpsertDriverPosition(ctx context.Context, id int64, p geometry.Point, at time.Time) error {
	_, err := call(ctx, r, "upsert driver", nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.UpsertDriverPosition(ctx, id, p, at)
	})
	return err
}

func (r *Resilient) GetDriver(ctx context.Context, id int64) (*driver.Driver, error) {
	return call(ctx, r, "get driver", nil, func(ctx context.Context) (*driver.Driver, error) {
		return r.next.GetDriver(ctx, id)
	})
}

func (r *Resilient) ListPositionedDrivers(ctx context.Context) ([]driver.Driver, error) {
	return call(ctx, r, "list drivers", nil, func(ctx context.Context) ([]driver.Driver, error) {
		return r.next.ListPositionedDrivers(ctx)
	})
}

func (r *Resilient) AppendHotspot(ctx context.Context, h *hotspot.Hotspot) (int64, error) {
	return call(ctx, r, "append hotspot", safeToRetry, func(ctx context.Context) (int64, error) {
		return r.next.AppendHotspot(ctx, h)
	})
}

func (r *Resilient) ListHotspots(ctx context.Context, f hotspot.HistoryFilter) ([]hotspot.Hotspot, error) {
	return call(ctx, r, "list hotspots", nil, func(ctx context.Context) ([]hotspot.Hotspot, error) {
		return r.next.ListHotspots(ctx, f)
	})
}

func (r *Resilient) Snapshot(ctx context.Context, window time.Duration) (*Snapshot, error) {
	return call(ctx, r, "snapshot", nil, func(ctx context.Context) (*Snapshot, error) {
		return r.next.Snapshot(ctx, window)
	})
}

func (r *Resilient) Ping(ctx context.Context) error {
	_, err := call(ctx, r, "ping", nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Ping(ctx)
	})
	return err
}

func (r *Resilient) Migrate(ctx context.Context) error {
	return r.next.Migrate(ctx)
}

func (r *Resilient) Close() error {
	return r.next.Close()
}
