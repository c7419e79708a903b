package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keylock-io/keylock/internal/licensing"
	"github.com/keylock-io/keylock/pkg/config"
	"github.com/keylock-io/keylock/pkg/logger"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error")})
	cfg := &config.Config{
		App:   config.AppConfig{Env: "test", Port: "8080"},
		Admin: config.AdminConfig{Secret: "letmein"},
	}

	seed := []licensing.SeedEntry{
		{LicenseKey: "KEY-AAAA-BBBB-CCCC-DDDD", CustomerName: "Acme Corp", MaxActivations: 1, ValidityDays: 365},
	}
	store := licensing.NewMemoryStore(seed, time.Now().UTC())

	svc, err := licensing.NewService(
		store,
		licensing.NewKeyGenerator(config.LicenseConfig{}),
		cfg.Admin,
		config.LicenseConfig{DefaultMaxActivations: 1},
		logg,
		nil,
	)
	if err != nil {
		t.Fatalf("building service: %v", err)
	}

	return NewRouter(cfg, logg, store, nil, svc, prometheus.NewRegistry())
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics", "/api/v1/ping"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestRouterValidateDispatch(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses/validate",
		strings.NewReader(`{"license_key":"KEY-AAAA-BBBB-CCCC-DDDD","hardware_fingerprint":"HW-A"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data struct {
			IsValid bool `json:"is_valid"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.IsValid {
		t.Fatal("expected valid verdict for seeded license")
	}
}

func TestRouterAdminSurface(t *testing.T) {
	router := newTestRouter(t)

	// Wrong secret on the admin surface.
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/licenses",
		strings.NewReader(`{"admin_secret":"wrong","customer_name":"Acme Corp","validity_days":30}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// Generation against the fallback store fails closed.
	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/licenses",
		strings.NewReader(`{"admin_secret":"letmein","customer_name":"Acme Corp","validity_days":30}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/licenses/status", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var envelope struct {
		Data struct {
			StorageMode string `json:"storage_mode"`
			Reachable   bool   `json:"reachable"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.StorageMode != "fallback" || !envelope.Data.Reachable {
		t.Fatalf("unexpected status %+v", envelope.Data)
	}
}
