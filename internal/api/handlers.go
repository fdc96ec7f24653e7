package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/engine"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/hotspot"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/zone"
)

const welcome = "Welcome to the Delivery Zone Authorization Engine"

// CheckRequest is the body of POST /can_accept_order.
type CheckRequest struct {
	DriverID    *int64     `json:"driver_id"`
	Lat         *float64   `json:"lat"`
	Lon         *float64   `json:"lon"`
	CurrentTime *time.Time `json:"current_time,omitempty"`
	Weather     *string    `json:"weather,omitempty"`
	// CongestionTolerance is accepted and ignored.
	CongestionTolerance *int `json:"congestion_tolerance,omitempty"`
}

// CheckResponse is the decision returned to the dispatcher.
type CheckResponse struct {
	Authorized  bool    `json:"authorized"`
	SurgeActive bool    `json:"surge_active"`
	Multiplier  float64 `json:"multiplier"`
	ZoneID      *int64  `json:"zone_id,omitempty"`
	ZoneName    string  `json:"zone_name,omitempty"`
	HotspotID   *int64  `json:"hotspot_id,omitempty"`
}

// HotspotResponse is one ledger entry with its hull as GeoJSON.
type HotspotResponse struct {
	ID              int64           `json:"id"`
	OrderCount      int             `json:"order_count"`
	SurgeMultiplier float64         `json:"surge_multiplier"`
	CreatedAt       time.Time       `json:"created_at"`
	Geometry        json.RawMessage `json:"geometry"`
}

func (s *Server) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": welcome})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			s.log.Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCanAcceptOrder(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		writeError(w, http.StatusNotImplemented, "authorization not configured", false)
		return
	}

	var req CheckRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", false)
		return
	}
	switch {
	case req.DriverID == nil:
		writeError(w, http.StatusBadRequest, "driver_id is required", false)
		return
	case req.Lat == nil || req.Lon == nil:
		writeError(w, http.StatusBadRequest, "lat and lon are required", false)
		return
	}

	d, err := s.deps.Checker.CheckDriver(r.Context(), engine.Request{
		DriverID: *req.DriverID,
		Position: geometry.Pt(*req.Lon, *req.Lat),
		At:       req.CurrentTime,
		Weather:  req.Weather,
	})
	if err != nil {
		s.fail(w, r, "can_accept_order", err)
		return
	}
	s.metrics.observe(d)

	resp := CheckResponse{
		Authorized:  d.Authorized,
		SurgeActive: d.SurgeActive,
		Multiplier:  d.Multiplier,
		HotspotID:   d.HotspotID,
	}
	if d.Zone != nil {
		resp.ZoneID = &d.Zone.ID
		resp.ZoneName = d.Zone.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if s.deps.Anomalies == nil {
		writeError(w, http.StatusNotImplemented, "anomaly detection not configured", false)
		return
	}
	statuses, err := s.deps.Anomalies.Anomalies(r.Context())
	if err != nil {
		s.fail(w, r, "anomalies", err)
		return
	}
	if statuses == nil {
		statuses = []driver.Status{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

// historyFilter parses ?since=RFC3339&limit=N.
func historyFilter(r *http.Request) (hotspot.HistoryFilter, error) {
	var f hotspot.HistoryFilter
	q := r.URL.Query()
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Since = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) ([]hotspot.Hotspot, bool) {
	if s.deps.Hotspots == nil {
		writeError(w, http.StatusNotImplemented, "hotspot history not configured", false)
		return nil, false
	}
	f, err := historyFilter(r)
	if err != nil || f.Limit < 0 {
		writeError(w, http.StatusBadRequest, "since must be RFC3339 and limit a non-negative integer", false)
		return nil, false
	}
	hs, err := s.deps.Hotspots.History(r.Context(), f)
	if err != nil {
		s.fail(w, r, "hotspots", err)
		return nil, false
	}
	return hs, true
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	hs, ok := s.history(w, r)
	if !ok {
		return
	}
	out := make([]HotspotResponse, 0, len(hs))
	for _, h := range hs {
		geo, err := geometry.MarshalGeoJSON(h.Geom)
		if err != nil {
			s.fail(w, r, "hotspots", err)
			return
		}
		out = append(out, HotspotResponse{
			ID:              h.ID,
			OrderCount:      h.OrderCount,
			SurgeMultiplier: h.SurgeMultiplier,
			CreatedAt:       h.CreatedAt,
			Geometry:        geo,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHotspotsXLSX(w http.ResponseWriter, r *http.Request) {
	hs, ok := s.history(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="hotspots.xlsx"`)
	if err := hotspot.WriteXLSX(w, hs); err != nil {
		s.log.Error("api: write hotspot workbook", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeError(w, http.StatusNotImplemented, "status not configured", false)
		return
	}
	snap, err := s.deps.Status.Collect(r.Context(), s.lookback)
	if err != nil {
		s.fail(w, r, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleZones returns the catalog as a GeoJSON FeatureCollection.
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	if s.deps.Zones == nil {
		writeError(w, http.StatusNotImplemented, "zone catalog not configured", false)
		return
	}
	zones, err := s.deps.Zones.ListZones(r.Context(), zone.Filter{Category: r.URL.Query().Get("category")})
	if err != nil {
		s.fail(w, r, "zones", err)
		return
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(zones))}
	for _, z := range zones {
		props := map[string]interface{}{
			"name":     z.Name,
			"category": z.Category,
		}
		if z.ValidFrom != nil {
			props["valid_from"] = z.ValidFrom
		}
		if z.ValidTo != nil {
			props["valid_to"] = z.ValidTo
		}
		if z.WeatherCondition != nil {
			props["weather_condition"] = *z.WeatherCondition
		}
		if z.CongestionLevel != nil {
			props["congestion_level"] = *z.CongestionLevel
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.FormatInt(z.ID, 10),
			Geometry:   z.Geom,
			Properties: props,
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		s.fail(w, r, "zones", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
