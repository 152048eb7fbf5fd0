package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsefit/api/internal/domain"
	"github.com/pulsefit/api/internal/services"
)

type stubPaymentService struct {
	createFunc  func(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error)
	confirmFunc func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentConfirmation, error)
}

func (s *stubPaymentService) CreatePayment(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.PaymentIntentResult{TransactionID: "pi_1", OrderID: "order_1", ClientSecret: "secret"}, nil
}

func (s *stubPaymentService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentConfirmation, error) {
	if s.confirmFunc != nil {
		return s.confirmFunc(ctx, cmd)
	}
	return services.PaymentConfirmation{OrderID: "order_1", Status: domain.PaymentStatusComplete}, nil
}

var _ services.PaymentService = (*stubPaymentService)(nil)

type stubBillingService struct {
	summaryFunc func(ctx context.Context, userID string) (services.MembershipSummary, error)
	activeFunc  func(ctx context.Context, userID string) (bool, error)
	historyFunc func(ctx context.Context, cmd services.PurchaseHistoryQuery) (services.PurchaseHistoryPage, error)
}

func (s *stubBillingService) MembershipSummary(ctx context.Context, userID string) (services.MembershipSummary, error) {
	if s.summaryFunc != nil {
		return s.summaryFunc(ctx, userID)
	}
	return services.MembershipSummary{}, nil
}

func (s *stubBillingService) HasActiveMembership(ctx context.Context, userID string) (bool, error) {
	if s.activeFunc != nil {
		return s.activeFunc(ctx, userID)
	}
	return false, nil
}

func (s *stubBillingService) PurchaseHistory(ctx context.Context, cmd services.PurchaseHistoryQuery) (services.PurchaseHistoryPage, error) {
	if s.historyFunc != nil {
		return s.historyFunc(ctx, cmd)
	}
	return services.PurchaseHistoryPage{}, nil
}

var _ services.BillingService = (*stubBillingService)(nil)

func newPaymentRouter(payments services.PaymentService, billing services.BillingService, opts ...PaymentHandlersOption) chi.Router {
	handler := NewPaymentHandlers(nil, payments, billing, opts...)
	router := chi.NewRouter()
	router.Route("/payment", handler.Routes)
	return router
}

func TestPaymentHandlersCreatePaymentSuccess(t *testing.T) {
	var captured services.CreatePaymentCommand
	payments := &stubPaymentService{
		createFunc: func(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error) {
			captured = cmd
			return services.PaymentIntentResult{TransactionID: "pi_abc", OrderID: "order_abc", ClientSecret: "cs_abc"}, nil
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	body := `{"price":29.99,"subscriptionId":"plan-1","billingPeriod":"monthly"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/create-payment", body, "user-9"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.UserID != "user-9" || captured.SubscriptionID != "plan-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.BillingPeriod != domain.BillingPeriodMonthly {
		t.Fatalf("expected monthly billing period, got %q", captured.BillingPeriod)
	}

	var resp createPaymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TransactionID != "pi_abc" || resp.OrderID != "order_abc" || resp.ClientSecret != "cs_abc" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestPaymentHandlersCreatePaymentGuest(t *testing.T) {
	var captured services.CreatePaymentCommand
	payments := &stubPaymentService{
		createFunc: func(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error) {
			captured = cmd
			return services.PaymentIntentResult{TransactionID: "pi_guest", OrderID: "order_guest"}, nil
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/create-payment", `{"price":12.50}`, ""))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if captured.UserID != "" {
		t.Fatalf("expected anonymous command, got user %q", captured.UserID)
	}
}

func TestPaymentHandlersCreatePaymentPriceMismatch(t *testing.T) {
	payments := &stubPaymentService{
		createFunc: func(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error) {
			return services.PaymentIntentResult{}, services.ErrPaymentPriceMismatch
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	body := `{"price":12.34,"subscriptionId":"plan-1","billingPeriod":"monthly"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/create-payment", body, "user-9"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "price_mismatch" {
		t.Fatalf("expected price_mismatch code, got %#v", resp)
	}
}

func TestPaymentHandlersCreatePaymentPlanNotFound(t *testing.T) {
	payments := &stubPaymentService{
		createFunc: func(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error) {
			return services.PaymentIntentResult{}, services.ErrPaymentPlanNotFound
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	body := `{"price":29.99,"subscriptionId":"ghost","billingPeriod":"monthly"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/create-payment", body, "user-9"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPaymentHandlersCreatePaymentGatewayError(t *testing.T) {
	payments := &stubPaymentService{
		createFunc: func(ctx context.Context, cmd services.CreatePaymentCommand) (services.PaymentIntentResult, error) {
			return services.PaymentIntentResult{}, services.ErrPaymentGateway
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/create-payment", `{"price":10}`, "user-9"))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestPaymentHandlersCreatePaymentRateLimited(t *testing.T) {
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time {
		return time.Date(2025, 4, 7, 15, 0, 0, 0, time.UTC)
	})

	router := newPaymentRouter(&stubPaymentService{}, &stubBillingService{}, WithPaymentRateLimiter(limiter))

	first := httptest.NewRecorder()
	router.ServeHTTP(first, authenticatedRequest(http.MethodPost, "/payment/create-payment", `{"price":10}`, "user-9"))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, authenticatedRequest(http.MethodPost, "/payment/create-payment", `{"price":10}`, "user-9"))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
}

func TestPaymentHandlersConfirmPaymentSuccess(t *testing.T) {
	var captured services.ConfirmPaymentCommand
	payments := &stubPaymentService{
		confirmFunc: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentConfirmation, error) {
			captured = cmd
			return services.PaymentConfirmation{OrderID: "order_5", Status: domain.PaymentStatusComplete}, nil
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/confirm-payment", `{"transactionId":"pi_5"}`, "user-9"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.TransactionID != "pi_5" || captured.UserID != "user-9" {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp confirmPaymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderID != "order_5" || resp.Status != string(domain.PaymentStatusComplete) {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestPaymentHandlersConfirmPaymentMissingTransaction(t *testing.T) {
	router := newPaymentRouter(&stubPaymentService{}, &stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/confirm-payment", `{}`, "user-9"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentHandlersConfirmPaymentNotSucceeded(t *testing.T) {
	payments := &stubPaymentService{
		confirmFunc: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentConfirmation, error) {
			return services.PaymentConfirmation{}, services.ErrPaymentNotSucceeded
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/confirm-payment", `{"transactionId":"pi_9"}`, "user-9"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "payment_not_succeeded" {
		t.Fatalf("expected payment_not_succeeded code, got %#v", resp)
	}
}

func TestPaymentHandlersConfirmPaymentAlreadySettled(t *testing.T) {
	payments := &stubPaymentService{
		confirmFunc: func(ctx context.Context, cmd services.ConfirmPaymentCommand) (services.PaymentConfirmation, error) {
			return services.PaymentConfirmation{}, services.ErrPaymentConflict
		},
	}

	router := newPaymentRouter(payments, &stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/payment/confirm-payment", `{"transactionId":"pi_9"}`, "user-9"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestPaymentHandlersPurchaseHistory(t *testing.T) {
	purchasedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var captured services.PurchaseHistoryQuery
	billing := &stubBillingService{
		historyFunc: func(ctx context.Context, cmd services.PurchaseHistoryQuery) (services.PurchaseHistoryPage, error) {
			captured = cmd
			return services.PurchaseHistoryPage{
				History: services.PurchaseHistory{
					Entries: []domain.PurchaseEntry{
						{OrderID: "order_1", Title: "Subscription Plan", Price: 29.99, PurchasedAt: purchasedAt},
					},
					PendingCount:   1,
					HasActivePlan:  true,
					LastPurchaseAt: &purchasedAt,
				},
				NextPageToken: "cursor-2",
			}, nil
		},
	}

	router := newPaymentRouter(&stubPaymentService{}, billing)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/payment/history?pageSize=5&pageToken=cursor-1", "", "user-9"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.UserID != "user-9" || captured.Pagination.PageSize != 5 || captured.Pagination.PageToken != "cursor-1" {
		t.Fatalf("unexpected query %#v", captured)
	}

	var resp purchaseHistoryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Title != "Subscription Plan" {
		t.Fatalf("unexpected entries %#v", resp.Entries)
	}
	if resp.PendingCount != 1 || !resp.HasActivePlan || resp.NextPageToken != "cursor-2" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestPaymentHandlersPurchaseHistoryInvalidPageSize(t *testing.T) {
	router := newPaymentRouter(&stubPaymentService{}, &stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/payment/history?pageSize=abc", "", "user-9"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentHandlersMembershipSummary(t *testing.T) {
	renewal := time.Date(2025, 5, 7, 15, 0, 0, 0, time.UTC)
	billing := &stubBillingService{
		summaryFunc: func(ctx context.Context, userID string) (services.MembershipSummary, error) {
			if userID != "user-9" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.MembershipSummary{
				Active:         true,
				SubscriptionID: "plan-1",
				BillingPeriod:  domain.BillingPeriodMonthly,
				RenewalDate:    &renewal,
			}, nil
		},
	}

	router := newPaymentRouter(&stubPaymentService{}, billing)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/payment/membership-summary", "", "user-9"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp membershipSummaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Active || resp.SubscriptionID != "plan-1" || resp.BillingPeriod != "monthly" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.RenewalDate == "" {
		t.Fatalf("expected renewal date to be set")
	}
}

func TestPaymentHandlersHistoryUnauthenticated(t *testing.T) {
	handler := NewPaymentHandlers(nil, &stubPaymentService{}, &stubBillingService{})
	req := httptest.NewRequest(http.MethodGet, "/payment/history", nil)
	rr := httptest.NewRecorder()
	handler.purchaseHistory(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
