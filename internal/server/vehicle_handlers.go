package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/domain"
)

// errorBody is the error response shape. The domain error kind is
// carried verbatim; only the transport status is decided here.
type errorBody struct {
	StatusCode int            `json:"statusCode"`
	Path       string         `json:"path"`
	Timestamp  string         `json:"timestamp"`
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var nv domain.NewVehicle
	if err := json.NewDecoder(r.Body).Decode(&nv); err != nil {
		s.writeDomainError(w, r, domain.InvalidInput("invalid request body", nil))
		return
	}

	v, err := s.service.Create(r.Context(), nv)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.service.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if vehicles == nil {
		vehicles = []*domain.Vehicle{}
	}
	s.writeJSON(w, http.StatusOK, vehicles)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := s.service.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var upd domain.VehicleUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.writeDomainError(w, r, domain.InvalidInput("invalid request body", nil))
		return
	}

	v, err := s.service.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	de := domain.AsDomainError(err)
	status := statusForKind(de.Kind)

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(de.Kind)),
			zap.Error(err))
	}

	s.writeJSON(w, status, errorBody{
		StatusCode: status,
		Path:       r.URL.Path,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Kind:       string(de.Kind),
		Message:    de.Message,
		Details:    de.Details,
	})
}

// statusForKind maps the stable error taxonomy to transport statuses.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput, domain.KindIntegrityViolation:
		return http.StatusBadRequest
	case domain.KindSchemaMissing, domain.KindUnknownStoreError, domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
