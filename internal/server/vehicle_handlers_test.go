package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/config"
	"github.com/vehix/vehix/internal/domain"
	"github.com/vehix/vehix/internal/repository/memory"
	"github.com/vehix/vehix/internal/services/vehicle"
)

type noopPublisher struct{}

func (noopPublisher) Publish(kind domain.EventKind, payload any) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.CORS.AllowedMethods = []string{"GET", "POST", "PATCH", "DELETE"}

	service := vehicle.NewService(memory.NewVehicleRepository(), noopPublisher{}, zap.NewNop())
	return New(cfg, zap.NewNop(), service, nil, nil)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

const validVehicleJSON = `{
	"placa": "ABC1D23",
	"chassi": "9BWZZZ377VT004251",
	"renavam": "12345678901",
	"modelo": "Onix",
	"marca": "Chevrolet",
	"ano": 2023
}`

func createVehicle(t *testing.T, s *Server) domain.Vehicle {
	t.Helper()

	rec := doRequest(t, s, http.MethodPost, "/api/vehicles", validVehicleJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var v domain.Vehicle
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Response did not unmarshal: %v", err)
	}
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Error body did not unmarshal: %v", err)
	}
	return body
}

func TestCreateVehicle(t *testing.T) {
	s := newTestServer(t)

	v := createVehicle(t, s)
	if v.ID == "" {
		t.Error("Expected id in response")
	}
	if v.Placa != "ABC1D23" {
		t.Errorf("Expected placa 'ABC1D23', got %q", v.Placa)
	}
}

func TestCreateVehicle_DuplicateReturns409(t *testing.T) {
	s := newTestServer(t)
	createVehicle(t, s)

	rec := doRequest(t, s, http.MethodPost, "/api/vehicles", validVehicleJSON)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeError(t, rec)
	if body.Kind != string(domain.KindConflict) {
		t.Errorf("Expected kind CONFLICT, got %q", body.Kind)
	}
	if body.StatusCode != http.StatusConflict || body.Path != "/api/vehicles" {
		t.Errorf("Envelope mismatch: %+v", body)
	}
	if body.Details["target"] == nil {
		t.Errorf("Expected conflicting field in details, got %v", body.Details)
	}
}

func TestCreateVehicle_InvalidInputReturns400(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/vehicles",
		`{"placa":"NOPE","chassi":"x","renavam":"1","modelo":"","marca":"","ano":1800}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeError(t, rec)
	if body.Kind != string(domain.KindInvalidInput) {
		t.Errorf("Expected kind INVALID_INPUT, got %q", body.Kind)
	}
	if body.Details["fields"] == nil {
		t.Errorf("Expected per-field violations in details, got %v", body.Details)
	}
}

func TestCreateVehicle_MalformedBodyReturns400(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/vehicles", `{"placa":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestGetVehicle_MissingReturns404(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/vehicles/e9dcb1f7-0000-0000-0000-000000000000", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeError(t, rec)
	if body.Kind != string(domain.KindNotFound) {
		t.Errorf("Expected kind NOT_FOUND, got %q", body.Kind)
	}
}

func TestListVehicles_EmptyIsArray(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/vehicles", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("Expected empty json array, got %q", got)
	}
}

func TestUpdateVehicle(t *testing.T) {
	s := newTestServer(t)
	v := createVehicle(t, s)

	rec := doRequest(t, s, http.MethodPatch, "/api/vehicles/"+v.ID, `{"modelo":"Tracker"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated domain.Vehicle
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("Response did not unmarshal: %v", err)
	}
	if updated.Modelo != "Tracker" {
		t.Errorf("Expected modelo 'Tracker', got %q", updated.Modelo)
	}
	if updated.Placa != v.Placa {
		t.Errorf("Untouched field changed: placa %q", updated.Placa)
	}
}

func TestDeleteVehicle(t *testing.T) {
	s := newTestServer(t)
	v := createVehicle(t, s)

	rec := doRequest(t, s, http.MethodDelete, "/api/vehicles/"+v.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/vehicles/"+v.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestStatusForKind(t *testing.T) {
	cases := []struct {
		kind   domain.ErrorKind
		status int
	}{
		{domain.KindConflict, http.StatusConflict},
		{domain.KindNotFound, http.StatusNotFound},
		{domain.KindInvalidInput, http.StatusBadRequest},
		{domain.KindIntegrityViolation, http.StatusBadRequest},
		{domain.KindSchemaMissing, http.StatusInternalServerError},
		{domain.KindUnknownStoreError, http.StatusInternalServerError},
		{domain.KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusForKind(tc.kind); got != tc.status {
			t.Errorf("statusForKind(%s) = %d, expected %d", tc.kind, got, tc.status)
		}
	}
}
