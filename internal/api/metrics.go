package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
)

// Metrics bundles the Prometheus collectors for the HTTP surface and the
// authorization decisions it serves.
type Metrics struct {
	gatherer prometheus.Gatherer

	Requests  *prometheus.CounterVec
	Durations *prometheus.HistogramVec
	Decisions *prometheus.CounterVec
	Surges    prometheus.Counter
}

// NewMetrics registers the collectors against reg, defaulting to the global
// registry when nil. Registering twice returns the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zones_http_requests_total",
		Help: "Handled HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"}))
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zones_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route"}))
	if err != nil {
		return nil, err
	}
	decisions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zones_decisions_total",
		Help: "Authorization decisions by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	surges, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zones_surge_decisions_total",
		Help: "Decisions that fell inside an active surge zone.",
	}))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:  gatherer,
		Requests:  requests,
		Durations: durations,
		Decisions: decisions,
		Surges:    surges,
	}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// observe records one decision. Safe on a nil receiver.
func (m *Metrics) observe(d *engine.Decision) {
	if m == nil || d == nil {
		return
	}
	outcome := "denied"
	if d.Authorized {
		outcome = "authorized"
	}
	m.Decisions.WithLabelValues(outcome).Inc()
	if d.SurgeActive {
		m.Surges.Inc()
	}
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.Durations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, eris.Errorf("api: collector %T already registered with another type", c)
		}
		return c, eris.Wrap(err, "api: register collector")
	}
	return c, nil
}
