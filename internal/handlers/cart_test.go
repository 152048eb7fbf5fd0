package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsefit/api/internal/platform/auth"
	"github.com/pulsefit/api/internal/services"
)

type stubCartService struct {
	getFunc            func(ctx context.Context, userID string) (services.Cart, error)
	addItemFunc        func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	updateQuantityFunc func(ctx context.Context, cmd services.UpdateCartQuantityCommand) (services.Cart, error)
	removeItemFunc     func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	clearFunc          func(ctx context.Context, userID string) error
}

func (s *stubCartService) Get(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return services.Cart{UserID: userID, Items: []services.CartItem{}}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addItemFunc != nil {
		return s.addItemFunc(ctx, cmd)
	}
	return services.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateCartQuantityCommand) (services.Cart, error) {
	if s.updateQuantityFunc != nil {
		return s.updateQuantityFunc(ctx, cmd)
	}
	return services.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeItemFunc != nil {
		return s.removeItemFunc(ctx, cmd)
	}
	return services.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) Clear(ctx context.Context, userID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return nil
}

var _ services.CartService = (*stubCartService)(nil)

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func authenticatedRequest(method, target, body, userID string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: userID}))
	}
	return req
}

func TestCartHandlersGetCartSuccess(t *testing.T) {
	updated := time.Date(2025, 4, 7, 15, 0, 0, 0, time.UTC)
	service := &stubCartService{
		getFunc: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.Cart{
				UserID: "user-7",
				Items: []services.CartItem{
					{ProductID: "prod-1", Quantity: 2, Size: "L"},
				},
				SubTotal:     39.98,
				Tax:          6.00,
				ShippingCost: 10,
				Total:        55.98,
				UpdatedAt:    updated,
			}, nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/cart", "", "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.UserID != "user-7" {
		t.Fatalf("expected user id user-7, got %q", resp.Cart.UserID)
	}
	if len(resp.Cart.Items) != 1 || resp.Cart.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %#v", resp.Cart.Items)
	}
	if resp.Cart.Total != 55.98 {
		t.Fatalf("expected total 55.98, got %v", resp.Cart.Total)
	}
	if resp.Cart.UpdatedAt == "" {
		t.Fatalf("expected updatedAt to be set")
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartService{})
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	handler.getCart(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersGetCartServiceUnavailable(t *testing.T) {
	handler := NewCartHandlers(nil, nil)
	rr := httptest.NewRecorder()
	handler.getCart(rr, authenticatedRequest(http.MethodGet, "/cart", "", "user-1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemSuccess(t *testing.T) {
	var captured services.AddCartItemCommand
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{
				UserID:   cmd.UserID,
				Items:    []services.CartItem{{ProductID: cmd.ProductID, Quantity: cmd.Quantity, Size: cmd.Size}},
				SubTotal: 39.98,
				Total:    55.98,
			}, nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	body := `{"productId":"prod-1","quantity":2,"size":"M"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/cart/add", body, "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-7" || captured.ProductID != "prod-1" || captured.Quantity != 2 || captured.Size != "M" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestCartHandlersAddItemMissingProduct(t *testing.T) {
	router := newCartRouter(&stubCartService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/cart/add", `{"quantity":2}`, "user-7"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemUnknownProduct(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartProductNotFound
		},
	}
	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/cart/add", `{"productId":"ghost"}`, "user-7"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateQuantityIncrement(t *testing.T) {
	var captured services.UpdateCartQuantityCommand
	service := &stubCartService{
		updateQuantityFunc: func(ctx context.Context, cmd services.UpdateCartQuantityCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{UserID: cmd.UserID}, nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	body := `{"productId":"prod-1","action":"increment"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPatch, "/cart/update-quantity", body, "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !captured.Increment {
		t.Fatalf("expected increment command, got %#v", captured)
	}
}

func TestCartHandlersUpdateQuantityInvalidAction(t *testing.T) {
	router := newCartRouter(&stubCartService{})
	rr := httptest.NewRecorder()
	body := `{"productId":"prod-1","action":"double"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPatch, "/cart/update-quantity", body, "user-7"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItem(t *testing.T) {
	var captured services.RemoveCartItemCommand
	service := &stubCartService{
		removeItemFunc: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{UserID: cmd.UserID, Items: []services.CartItem{}}, nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodDelete, "/cart/remove-item", `{"productId":"prod-1"}`, "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ProductID != "prod-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestCartHandlersClear(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFunc: func(ctx context.Context, userID string) error {
			cleared = userID == "user-7"
			return nil
		},
	}

	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodDelete, "/cart/clear", "", "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked for user-7")
	}
}

func TestCartHandlersServiceFailure(t *testing.T) {
	service := &stubCartService{
		getFunc: func(ctx context.Context, userID string) (services.Cart, error) {
			return services.Cart{}, services.ErrCartUnavailable
		},
	}
	router := newCartRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/cart", "", "user-7"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
