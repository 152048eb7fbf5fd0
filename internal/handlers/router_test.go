package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNewRouterHealthEndpoints(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for healthz, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for readyz, got %d", rr.Code)
	}
}

func TestNewRouterNotImplementedGroups(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{
		"/api/v1/cart",
		"/api/v1/payment/create-payment",
		"/api/v1/plans",
		"/api/v1/internal/members/user-1/membership",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("expected status 501 for %s, got %d", path, rr.Code)
		}
	}
}

func TestNewRouterNotFound(t *testing.T) {
	router := NewRouter()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != errorNotFoundCode {
		t.Fatalf("expected %s error code, got %#v", errorNotFoundCode, resp)
	}
}

func TestNewRouterMountsRegistrars(t *testing.T) {
	router := NewRouter(
		WithCartRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}),
		WithPaymentRoutes(func(r chi.Router) {
			r.Post("/create-payment", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusCreated)
			})
		}),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 from cart registrar, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payment/create-payment", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201 from payment registrar, got %d", rr.Code)
	}
}

func TestNewRouterPaymentMiddlewares(t *testing.T) {
	marker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Payment-Group", "1")
			next.ServeHTTP(w, r)
		})
	}

	router := NewRouter(
		WithPaymentMiddlewares(marker),
		WithPaymentRoutes(func(r chi.Router) {
			r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payment/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Payment-Group") != "1" {
		t.Fatalf("expected payment middleware to run")
	}
}
