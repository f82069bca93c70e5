package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sauber-detailing/pos-api/internal/platform/auth"
)

func TestNewRouterDefaultMounts(t *testing.T) {
	router := NewRouter()

	cases := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{name: "healthz", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "readyz without system service", method: http.MethodGet, path: "/readyz", status: http.StatusOK},
		{name: "unwired orders", method: http.MethodGet, path: "/api/v1/orders", status: http.StatusNotImplemented, code: "not_implemented"},
		{name: "unwired internal", method: http.MethodPost, path: "/api/v1/internal/jobs/daily-export", status: http.StatusNotImplemented, code: "not_implemented"},
		{name: "unknown route", method: http.MethodGet, path: "/nope", status: http.StatusNotFound, code: "route_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.code != "" {
				if got := errorCode(t, rr); got != tc.code {
					t.Fatalf("expected error %q, got %q", tc.code, got)
				}
			}
		})
	}
}

func TestNewRouterAppliesGroupMiddlewares(t *testing.T) {
	var staffHits, internalHits int
	staffMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			staffHits++
			next.ServeHTTP(w, r)
		})
	}
	internalMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			internalHits++
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

	router := NewRouter(
		WithStaffMiddlewares(staffMW),
		WithInternalMiddlewares(internalMW),
		WithMeRoutes(func(r chi.Router) { r.Get("/me", ok) }),
		WithInternalRoutes(func(r chi.Router) { r.Post("/jobs/daily-export", ok) }),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rr.Code != http.StatusNoContent || staffHits != 1 {
		t.Fatalf("expected staff middleware then handler, got %d hits=%d", rr.Code, staffHits)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/daily-export", nil))
	if rr.Code != http.StatusUnauthorized || internalHits != 1 {
		t.Fatalf("expected internal middleware to reject, got %d hits=%d", rr.Code, internalHits)
	}
	if staffHits != 1 {
		t.Fatalf("staff middleware must not run for internal routes, hits=%d", staffHits)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || staffHits != 1 {
		t.Fatalf("health must bypass staff middleware, got %d hits=%d", rr.Code, staffHits)
	}
}

func TestMeHandlersListCapabilities(t *testing.T) {
	routes := NewMeHandlers(nil).Routes
	req := signedIn(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), "cashier-1", auth.RoleCashier)

	rr := serve(t, WithMeRoutes, routes, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeResponse[meResponse](t, rr)
	if body.Role != "cashier" || body.Name != "Kofi" {
		t.Fatalf("unexpected identity %+v", body)
	}
	for _, c := range body.Capabilities {
		if c == "staff.manage" || c == "orders.delete" {
			t.Fatalf("cashier must not hold %s", c)
		}
	}

	rr = serve(t, WithMeRoutes, routes, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestSessionMiddlewareCopiesIdentity(t *testing.T) {
	var got string
	handler := SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session, ok := sessionFrom(r); ok {
			got = session
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Email: "ama@sauber.test", Role: auth.RoleAdmin}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "admin-1|ama@sauber.test|admin" {
		t.Fatalf("unexpected session %q", got)
	}
}
