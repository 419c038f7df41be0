package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-watchdog/internal/attribute"
	"github.com/nerrad567/gray-logic-watchdog/internal/audit"
)

// writeAttributeRequest is the body of PUT /attributes/{name}.
type writeAttributeRequest struct {
	Value json.RawMessage `json:"value"`
}

// handleListAttributes returns every published attribute.
func (s *Server) handleListAttributes(w http.ResponseWriter, _ *http.Request) {
	values := s.attributes.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"attributes": values,
		"count":      len(values),
	})
}

// handleGetAttribute returns one attribute.
func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, err := s.attributes.Read(name)
	if err != nil {
		writeNotFound(w, "attribute not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleWriteAttribute writes a writable attribute.
func (s *Server) handleWriteAttribute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req writeAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Value) == 0 {
		writeBadRequest(w, "value is required")
		return
	}
	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		writeBadRequest(w, "invalid value")
		return
	}

	if err := s.attributes.Write(r.Context(), name, value); err != nil {
		s.writeAttributeError(w, name, err)
		return
	}

	s.logger.Info("attribute written", "attribute", name, "value", value, "subject", subject(r.Context()))
	s.record(r.Context(), audit.ActionAttributeWrite, name, map[string]any{"value": value})

	v, err := s.attributes.Read(name)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"name": name})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeAttributeError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, attribute.ErrUnknownAttribute):
		writeNotFound(w, "attribute not found: "+name)
	case errors.Is(err, attribute.ErrReadOnly):
		writeError(w, http.StatusMethodNotAllowed, ErrCodeReadOnly, "attribute is read-only: "+name)
	case errors.Is(err, attribute.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Warn("attribute write failed", "attribute", name, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	}
}
