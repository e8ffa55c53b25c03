package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/importer"
	"github.com/sells-group/catalog-importer/internal/session"
	"github.com/sells-group/catalog-importer/internal/validation"
)

const maxRequestBody = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	payload := map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		payload["request_id"] = id
	}
	for k, v := range details {
		payload[k] = v
	}
	writeJSON(w, status, payload)
}

// writeError maps service errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, "validation_failed", verr.Error(), map[string]any{"fields": verr.Fields})
	case eris.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "session not found", nil)
	case eris.Is(err, importer.ErrInvalidState), eris.Is(err, importer.ErrBusy):
		writeError(w, r, http.StatusConflict, "invalid_state", err.Error(), nil)
	default:
		s.log.Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "cannot read request body", nil)
		return false
	}
	if len(body) > maxRequestBody {
		writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds allowed size", nil)
		return false
	}
	if len(body) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "request body is required", nil)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload", nil)
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}
