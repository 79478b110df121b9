package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/rbac"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := rbac.NewService(rbac.LoaderFunc(func(_ context.Context, userID int64) (rbac.Grants, error) {
		if userID != 7 {
			return rbac.Grants{}, shared.ErrUnauthorized
		}
		return rbac.Grants{Role: "warehouse", Permissions: []string{shared.PermInventoryView}}, nil
	}), nil, 0, nil)
	return NewRouter(RouterParams{
		Config:             &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		RBACMiddleware:     rbac.Middleware{Service: svc},
		PermissionsHandler: rbac.NewPermissionsHandler(nil, svc),
		Metrics:            observability.NewMetrics(),
	})
}

func TestRouterHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rr.Code)
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected secure headers, got %v", rr.Header())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "odyssey_http_requests_total") {
		t.Fatalf("unexpected metrics response %d", rr.Code)
	}
}

func TestRouterAPIRequiresUser(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(rbac.UserHeader, "7")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		UserID      int64    `json:"user_id"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != 7 || len(body.Permissions) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRouterUnknownRouteIsProblem(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestRateLimitSkippedInTestMode(t *testing.T) {
	t.Cleanup(RefreshTestMode)
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()

	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test", RateLimitPerMinute: 1}})
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
}

func TestRateLimitAppliesOutsideTestMode(t *testing.T) {
	t.Cleanup(RefreshTestMode)
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()

	router := NewRouter(RouterParams{Config: &Config{AppEnv: "test", RateLimitPerMinute: 1}})
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
