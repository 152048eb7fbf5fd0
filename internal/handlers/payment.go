package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulsefit/api/internal/platform/auth"
	"github.com/pulsefit/api/internal/platform/httpx"
	"github.com/pulsefit/api/internal/platform/pagination"
	"github.com/pulsefit/api/internal/services"
)

const (
	maxPaymentBodySize = 16 * 1024

	// Guest purchase attempts are throttled per client IP since there is no
	// identity to key on.
	guestPaymentLimit  = 20
	guestPaymentWindow = time.Minute
)

// PaymentHandlers exposes the payment intent lifecycle plus the derived
// billing projections. Intent creation and confirmation accept both
// authenticated and guest callers; the projections require a signed-in user.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	billing  services.BillingService
	limiter  rateLimiter
}

// PaymentHandlersOption customises PaymentHandlers construction.
type PaymentHandlersOption func(*PaymentHandlers)

// WithPaymentRateLimiter overrides the guest throttle, mainly for tests.
func WithPaymentRateLimiter(limiter rateLimiter) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.limiter = limiter
	}
}

// NewPaymentHandlers constructs handlers over the payment and billing services.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, billing services.BillingService, opts ...PaymentHandlersOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
		billing:  billing,
		limiter:  newSimpleRateLimiter(guestPaymentLimit, guestPaymentWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /payment endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.OptionalFirebaseAuth())
		}
		g.Post("/create-payment", h.createPayment)
		g.Post("/confirm-payment", h.confirmPayment)
	})

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Get("/history", h.purchaseHistory)
		g.Get("/membership-summary", h.membershipSummary)
	})
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(ctx, w, r) {
		return
	}

	var req createPaymentRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cmd := services.CreatePaymentCommand{
		UserID:         userIDFromContext(ctx),
		Price:          req.Price,
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		BillingPeriod:  services.BillingPeriod(strings.ToLower(strings.TrimSpace(req.BillingPeriod))),
		TestMode:       req.TestMode,
	}

	result, err := h.payments.CreatePayment(ctx, cmd)
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createPaymentResponse{
		TransactionID: result.TransactionID,
		OrderID:       result.OrderID,
		ClientSecret:  result.ClientSecret,
	})
}

func (h *PaymentHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(ctx, w, r) {
		return
	}

	var req confirmPaymentRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transactionId is required", http.StatusBadRequest))
		return
	}

	confirmation, err := h.payments.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		UserID:        userIDFromContext(ctx),
		TransactionID: strings.TrimSpace(req.TransactionID),
	})
	if err != nil {
		h.writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, confirmPaymentResponse{
		OrderID: confirmation.OrderID,
		Status:  string(confirmation.Status),
	})
}

func (h *PaymentHandlers) purchaseHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.billing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("billing_service_unavailable", "billing service is unavailable", http.StatusServiceUnavailable))
		return
	}

	userID := userIDFromContext(ctx)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be a non-negative integer", http.StatusBadRequest))
		return
	}

	query := services.PurchaseHistoryQuery{
		UserID: userID,
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	page, err := h.billing.PurchaseHistory(ctx, query)
	if err != nil {
		h.writeBillingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPurchaseHistoryPayload(page))
}

func (h *PaymentHandlers) membershipSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.billing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("billing_service_unavailable", "billing service is unavailable", http.StatusServiceUnavailable))
		return
	}

	userID := userIDFromContext(ctx)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	summary, err := h.billing.MembershipSummary(ctx, userID)
	if err != nil {
		h.writeBillingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildMembershipPayload(summary))
}

func (h *PaymentHandlers) allow(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	key := userIDFromContext(ctx)
	if key == "" {
		key = r.RemoteAddr
	}
	if !h.limiter.Allow(key) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment attempts; retry later", http.StatusTooManyRequests))
		return false
	}
	return true
}

func (h *PaymentHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *PaymentHandlers) writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentPriceMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("price_mismatch", "declared price does not match the expected amount", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentPlanNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("plan_not_found", "subscription plan not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("payment_already_settled", "payment has already been settled", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentNotSucceeded):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_succeeded", "payment did not succeed; start a new purchase", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentGateway):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", "payment gateway request failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "payment operation failed", http.StatusInternalServerError))
	}
}

func (h *PaymentHandlers) writeBillingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrBillingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrBillingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("billing_service_unavailable", "billing service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("billing_error", "billing operation failed", http.StatusInternalServerError))
	}
}

func userIDFromContext(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	return strings.TrimSpace(identity.UID)
}

type createPaymentRequest struct {
	Price          float64 `json:"price"`
	SubscriptionID string  `json:"subscriptionId"`
	BillingPeriod  string  `json:"billingPeriod"`
	TestMode       bool    `json:"testMode"`
}

type createPaymentResponse struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	ClientSecret  string `json:"clientSecret"`
}

type confirmPaymentRequest struct {
	TransactionID string `json:"transactionId"`
}

type confirmPaymentResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type purchaseHistoryResponse struct {
	Entries        []purchaseEntryPayload `json:"entries"`
	PendingCount   int                    `json:"pendingCount"`
	HasActivePlan  bool                   `json:"hasActivePlan"`
	LastPurchaseAt string                 `json:"lastPurchaseAt,omitempty"`
	NextPageToken  string                 `json:"nextPageToken,omitempty"`
}

type purchaseEntryPayload struct {
	OrderID     string  `json:"orderId"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	PurchasedAt string  `json:"purchasedAt"`
}

type membershipSummaryResponse struct {
	Active         bool   `json:"active"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	BillingPeriod  string `json:"billingPeriod,omitempty"`
	RenewalDate    string `json:"renewalDate,omitempty"`
	LastPaymentAt  string `json:"lastPaymentAt,omitempty"`
}

func buildPurchaseHistoryPayload(page services.PurchaseHistoryPage) purchaseHistoryResponse {
	entries := make([]purchaseEntryPayload, 0, len(page.History.Entries))
	for _, entry := range page.History.Entries {
		entries = append(entries, purchaseEntryPayload{
			OrderID:     entry.OrderID,
			Title:       entry.Title,
			Price:       entry.Price,
			ImageURL:    entry.ImageURL,
			PurchasedAt: formatTime(entry.PurchasedAt),
		})
	}

	return purchaseHistoryResponse{
		Entries:        entries,
		PendingCount:   page.History.PendingCount,
		HasActivePlan:  page.History.HasActivePlan,
		LastPurchaseAt: formatTimePointer(page.History.LastPurchaseAt),
		NextPageToken:  page.NextPageToken,
	}
}

func buildMembershipPayload(summary services.MembershipSummary) membershipSummaryResponse {
	return membershipSummaryResponse{
		Active:         summary.Active,
		SubscriptionID: summary.SubscriptionID,
		BillingPeriod:  string(summary.BillingPeriod),
		RenewalDate:    formatTimePointer(summary.RenewalDate),
		LastPaymentAt:  formatTimePointer(summary.LastPaymentAt),
	}
}
