package api_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/charlesng35/crewbell/internal/api"
	"github.com/charlesng35/crewbell/internal/app"
	"github.com/charlesng35/crewbell/internal/handlers/testutil"
)

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	// Health should be public
	for _, path := range []string{"/health", "/api/health"} {
		w := env.Request(http.MethodGet, path, nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"component":"database","status":"up"`) {
			t.Fatalf("expected database status in %s", w.Body.String())
		}
	}

	// Protected endpoints without auth should be 401
	for _, path := range []string{"/api/notifications", "/api/settings/notifications", "/api/sounds", "/api/service-requests"} {
		w := env.Request(http.MethodGet, path, nil, "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, w.Code)
		}
		if w.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("expected bearer challenge for %s", path)
		}
	}

	w := env.Request(http.MethodGet, "/api/notifications", nil, "garbage")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", w.Code)
	}

	w = env.Request(http.MethodGet, "/api/notifications", nil, env.CrewToken(1))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRouter_AdminRoutesRejectCrew(t *testing.T) {
	env := testutil.NewEnv(t)
	crew := env.CrewToken(1)

	cases := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/notifications", map[string]any{"recipients": []int64{1}, "category": "system", "title": "x"}},
		{http.MethodPost, "/api/settings/notifications/reset", nil},
		{http.MethodPut, "/api/duty/assignments", map[string]any{"recipient": 1, "date": "2026-03-14", "shift": "morning"}},
		{http.MethodDelete, "/api/duty/assignments", map[string]any{"recipient": 1, "date": "2026-03-14", "shift": "morning"}},
	}
	for _, tc := range cases {
		w := env.Request(tc.method, tc.path, tc.body, crew)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for %s %s, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestRouter_MetricsAndSecurityHeaders(t *testing.T) {
	env := testutil.NewEnv(t)

	env.Request(http.MethodGet, "/health", nil, "")

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for /metrics, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "crewbell_") {
		t.Fatal("expected crewbell metrics to be exported")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on every response")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("expected HSTS to be off by default")
	}
}

func TestRouter_NoRouteReturnsJSON(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/unknown", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	resp := testutil.DecodeResponse(t, w)
	if resp.Success || resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestNewRouterValidatesDependencies(t *testing.T) {
	if _, err := api.NewRouter(nil, api.Dependencies{}); err == nil {
		t.Fatal("expected error without config")
	}
	if _, err := api.NewRouter(&app.Config{}, api.Dependencies{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}
