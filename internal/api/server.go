// Package api exposes the authorization engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/monitoring"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

// Checker decides a single driver request.
type Checker interface {
	CheckDriver(ctx context.Context, req engine.Request) (*engine.Decision, error)
}

// AnomalyLister classifies every positioned driver.
type AnomalyLister interface {
	Anomalies(ctx context.Context) ([]driver.Status, error)
}

// HotspotLister reads the hotspot ledger.
type HotspotLister interface {
	History(ctx context.Context, f hotspot.HistoryFilter) ([]hotspot.Hotspot, error)
}

// ZoneLister reads the zone catalog.
type ZoneLister interface {
	ListZones(ctx context.Context, f zone.Filter) ([]zone.Zone, error)
}

// Pinger checks backing store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusCollector summarises fleet and catalog health.
type StatusCollector interface {
	Collect(ctx context.Context, lookbackMinutes int) (*monitoring.MetricsSnapshot, error)
}

// Deps are the collaborators behind the routes. Nil members disable their
// routes with 501.
type Deps struct {
	Checker   Checker
	Anomalies AnomalyLister
	Hotspots  HotspotLister
	Zones     ZoneLister
	Health    Pinger
	Status    StatusCollector
}

// Options tunes the middleware stack.
type Options struct {
	// RateLimit is the global request rate per second. Zero disables limiting.
	RateLimit      float64
	RateBurst      int
	CORSOrigins    []string
	RequestTimeout time.Duration

	// StatusLookbackMinutes is the hotspot window reported by /status.
	StatusLookbackMinutes int
	// Metrics enables request instrumentation and the /metrics route.
	Metrics *Metrics
}

// Server holds the HTTP handlers.
type Server struct {
	deps     Deps
	lookback int
	metrics  *Metrics
	log      *zap.Logger
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	return &Server{
		deps: deps,
		log:  zap.L().With(zap.String("component", "api")),
	}
}

// Router builds the chi router with the middleware stack and every route.
func (s *Server) Router(opts Options) http.Handler {
	s.lookback = opts.StatusLookbackMinutes
	if s.lookback <= 0 {
		s.lookback = 60
	}
	s.metrics = opts.Metrics
	r := chi.NewRouter()

	r.Use(requestID)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.middleware)
	}
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}
	if opts.RateLimit > 0 {
		r.Use(rateLimit(opts.RateLimit, opts.RateBurst))
	}
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/", s.handleWelcome)
	r.Get("/health", s.handleHealth)
	r.Post("/can_accept_order", s.handleCanAcceptOrder)
	r.Get("/drivers/anomalies", s.handleAnomalies)
	r.Get("/hotspots", s.handleHotspots)
	r.Get("/hotspots.xlsx", s.handleHotspotsXLSX)
	r.Get("/zones", s.handleZones)
	r.Get("/status", s.handleStatus)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	return r
}
