package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/driver"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/geometry"
	"github.com/frankyshakespeare-ops/Delivery-Zone-Authorization-Engine/internal/store"
)

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, retryable bool) {
	writeJSON(w, status, errorBody{
		Error:     msg,
		Retryable: retryable,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

// fail maps err to a status code. Store outages are 503 and retryable so
// callers never read them as a refusal.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, driver.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, err.Error(), false)
	case store.IsUnavailable(err):
		s.log.Warn("api: store unavailable",
			zap.String("op", op),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "store unavailable", true)
	case r.Context().Err() != nil:
		writeError(w, http.StatusServiceUnavailable, "request timed out", true)
	case geometry.IsInvalid(err):
		s.log.Error("api: invalid geometry", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "invalid stored geometry", false)
	default:
		s.log.Error("api: request failed",
			zap.String("op", op),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error", false)
	}
}
