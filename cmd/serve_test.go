package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/config"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/importer"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/monitoring"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/store"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/surge"
)

// newTestStack opens a migrated SQLite store seeded with the Nairobi zones.
func newTestStack(t *testing.T) (*engine.Engine, store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "zones.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	_, err = importer.SeedZones(ctx, st, importer.DefaultSeed().Zones)
	require.NoError(t, err)

	eng, err := engine.New(st, engine.DefaultConfig())
	require.NoError(t, err)
	return eng, st
}

// seedCBDCluster inserts 20 orders on a 0.0004° grid inside the CBD zone.
func seedCBDCluster(t *testing.T, st store.Store) {
	t.Helper()
	var orders []surge.Order
	for i := range 5 {
		for j := range 4 {
			orders = append(orders, surge.Order{
				Position:  geometry.Pt(36.824+float64(i)*0.0004, -1.2895+float64(j)*0.0004),
				CreatedAt: time.Now().UTC(),
			})
		}
	}
	_, err := st.InsertOrders(context.Background(), orders)
	require.NoError(t, err)
}

func postCheck(t *testing.T, h http.Handler, body map[string]any) (int, map[string]any) {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/can_accept_order", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	return rr.Code, out
}

func TestBuildHandler_HealthWithoutEngine(t *testing.T) {
	h := buildHandler(nil, nil, nil, &config.Config{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	code, _ := postCheck(t, h, map[string]any{"driver_id": 1, "lat": 0, "lon": 0})
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestBuildHandler_CanAcceptOrder(t *testing.T) {
	eng, st := newTestStack(t)
	h := buildHandler(eng, st, nil, &config.Config{Server: config.ServerConfig{CORSOrigins: []string{"*"}}})

	code, out := postCheck(t, h, map[string]any{"driver_id": 1, "lat": -1.288, "lon": 36.825})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["authorized"])
	assert.Equal(t, false, out["surge_active"])
	assert.Equal(t, 1.0, out["multiplier"])
	assert.Equal(t, "CBD", out["zone_name"])

	code, out = postCheck(t, h, map[string]any{"driver_id": 2, "lat": -1.0, "lon": 36.0})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["authorized"])
}

func TestBuildHandler_SurgeAndHotspots(t *testing.T) {
	eng, st := newTestStack(t)
	seedCBDCluster(t, st)
	h := buildHandler(eng, st, nil, &config.Config{})

	code, out := postCheck(t, h, map[string]any{"driver_id": 1, "lat": -1.289, "lon": 36.8248})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["authorized"])
	assert.Equal(t, true, out["surge_active"])
	assert.Equal(t, 1.5, out["multiplier"])
	assert.NotNil(t, out["hotspot_id"])

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/hotspots", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var hs []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hs))
	require.Len(t, hs, 1)
	assert.Equal(t, 20.0, hs[0]["order_count"])
}

func TestBuildHandler_Anomalies(t *testing.T) {
	eng, st := newTestStack(t)
	h := buildHandler(eng, st, nil, &config.Config{})

	_, _ = postCheck(t, h, map[string]any{"driver_id": 1, "lat": -1.288, "lon": 36.825})
	_, _ = postCheck(t, h, map[string]any{"driver_id": 2, "lat": -4.04, "lon": 39.67})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/drivers/anomalies", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var statuses []driver.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	byID := map[int64]bool{}
	for _, s := range statuses {
		byID[s.DriverID] = s.IsAnomalous
	}
	assert.False(t, byID[1])
	assert.True(t, byID[2], "Mombasa is outside Nairobi")
}

func TestBuildHandler_Zones(t *testing.T) {
	eng, st := newTestStack(t)
	h := buildHandler(eng, st, nil, &config.Config{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/zones?category=city_boundary", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var fc struct {
		Features []map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	require.Len(t, fc.Features, 1)
}

func TestBuildHandler_Status(t *testing.T) {
	eng, st := newTestStack(t)
	collector := monitoring.NewCollector(st, eng.Tracker(), eng.Ledger(), "city_boundary")
	h := buildHandler(eng, st, collector, &config.Config{Monitoring: config.MonitoringConfig{LookbackMinutes: 30}})

	_, _ = postCheck(t, h, map[string]any{"driver_id": 7, "lat": -4.04, "lon": 39.67})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.BoundaryZones)
	assert.Equal(t, 1, snap.AnomalousDrivers)
	assert.Equal(t, []int64{7}, snap.AnomalousIDs)
	assert.Equal(t, 30, snap.LookbackMinutes)
}

func TestBuildHandler_Metrics(t *testing.T) {
	eng, st := newTestStack(t)
	h := buildHandler(eng, st, nil, &config.Config{})

	_, _ = postCheck(t, h, map[string]any{"driver_id": 1, "lat": -1.288, "lon": 36.825})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "zones_decisions_total")
}
