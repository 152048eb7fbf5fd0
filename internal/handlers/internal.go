package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pulsefit/api/internal/platform/auth"
	"github.com/pulsefit/api/internal/platform/httpx"
	"github.com/pulsefit/api/internal/services"
)

// InternalHandlers serves service-to-service endpoints. The /internal group is
// expected to be mounted behind OIDC middleware; handlers additionally verify
// a service identity is present.
type InternalHandlers struct {
	billing services.BillingService
}

// NewInternalHandlers constructs the internal membership lookup endpoints.
func NewInternalHandlers(billing services.BillingService) *InternalHandlers {
	return &InternalHandlers{billing: billing}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/members/{userID}/membership", h.memberMembership)
}

func (h *InternalHandlers) memberMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.billing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("billing_service_unavailable", "billing service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if _, ok := auth.ServiceIdentityFromContext(ctx); !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "service authentication required", http.StatusUnauthorized))
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return
	}

	summary, err := h.billing.MembershipSummary(ctx, userID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	payload := internalMembershipResponse{
		UserID:                    userID,
		Membership:                buildMembershipPayload(summary),
		HasActiveMembershipRecord: summary.Active,
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *InternalHandlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrBillingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrBillingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("billing_service_unavailable", "billing service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("billing_error", "membership lookup failed", http.StatusInternalServerError))
	}
}

type internalMembershipResponse struct {
	UserID                    string                    `json:"userId"`
	Membership                membershipSummaryResponse `json:"membership"`
	HasActiveMembershipRecord bool                      `json:"hasActiveMembership"`
}
