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
	"github.com/pulsefit/api/internal/platform/auth"
	"github.com/pulsefit/api/internal/services"
)

func newInternalRouter(billing services.BillingService) chi.Router {
	handler := NewInternalHandlers(billing)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)
	return router
}

func serviceRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	identity := &auth.ServiceIdentity{Subject: "svc-1"}
	return req.WithContext(auth.WithServiceIdentity(req.Context(), identity))
}

func TestInternalHandlersMembership(t *testing.T) {
	renewal := time.Date(2025, 5, 7, 15, 0, 0, 0, time.UTC)
	billing := &stubBillingService{
		summaryFunc: func(ctx context.Context, userID string) (services.MembershipSummary, error) {
			if userID != "user-42" {
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

	router := newInternalRouter(billing)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, serviceRequest(http.MethodGet, "/internal/members/user-42/membership"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp internalMembershipResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UserID != "user-42" || !resp.HasActiveMembershipRecord {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Membership.SubscriptionID != "plan-1" {
		t.Fatalf("unexpected membership %#v", resp.Membership)
	}
}

func TestInternalHandlersMembershipMissingServiceIdentity(t *testing.T) {
	router := newInternalRouter(&stubBillingService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/internal/members/user-42/membership", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestInternalHandlersMembershipServiceFailure(t *testing.T) {
	billing := &stubBillingService{
		summaryFunc: func(ctx context.Context, userID string) (services.MembershipSummary, error) {
			return services.MembershipSummary{}, services.ErrBillingUnavailable
		},
	}

	router := newInternalRouter(billing)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, serviceRequest(http.MethodGet, "/internal/members/user-42/membership"))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
