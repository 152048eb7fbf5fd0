package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/pulsefit/api/internal/platform/auth"
	"github.com/pulsefit/api/internal/platform/httpx"
	"github.com/pulsefit/api/internal/services"
)

const maxPlanBodySize = 32 * 1024

// PlanHandlers exposes the subscription plan catalog. Reads are available to
// any authenticated user; writes require the admin role. Free-text fields are
// sanitised before reaching the service layer since plan content is rendered
// verbatim by clients.
type PlanHandlers struct {
	authn     *auth.Authenticator
	plans     services.PlanService
	sanitizer *bluemonday.Policy
}

// NewPlanHandlers constructs plan catalog handlers with a strict HTML sanitiser.
func NewPlanHandlers(authn *auth.Authenticator, plans services.PlanService) *PlanHandlers {
	return &PlanHandlers{
		authn:     authn,
		plans:     plans,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Routes wires the /plans endpoints onto the provided router.
func (h *PlanHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth())
		}
		g.Get("/", h.listPlans)
		g.Get("/{planID}", h.getPlan)
	})

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
		}
		g.Post("/", h.createPlan)
		g.Put("/{planID}", h.updatePlan)
		g.Delete("/{planID}", h.deletePlan)
	})
}

func (h *PlanHandlers) listPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.plans == nil {
		httpx.WriteError(ctx, w, httpx.NewError("plan_service_unavailable", "plan service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter := services.PlanListFilter{
		ActiveOnly: strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("active")), "true"),
	}
	if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))); raw != "" {
		planType := services.PlanType(raw)
		filter.PlanType = &planType
	}

	plans, err := h.plans.ListPlans(ctx, filter)
	if err != nil {
		h.writePlanError(ctx, w, err)
		return
	}

	payload := make([]planPayload, 0, len(plans))
	for _, plan := range plans {
		payload = append(payload, buildPlanPayload(plan))
	}
	writeJSONResponse(w, http.StatusOK, planListResponse{Plans: payload})
}

func (h *PlanHandlers) getPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.plans == nil {
		httpx.WriteError(ctx, w, httpx.NewError("plan_service_unavailable", "plan service is unavailable", http.StatusServiceUnavailable))
		return
	}

	plan, err := h.plans.GetPlan(ctx, chi.URLParam(r, "planID"))
	if err != nil {
		h.writePlanError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, planResponse{Plan: buildPlanPayload(plan)})
}

func (h *PlanHandlers) createPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.plans == nil {
		httpx.WriteError(ctx, w, httpx.NewError("plan_service_unavailable", "plan service is unavailable", http.StatusServiceUnavailable))
		return
	}

	req, ok := h.decodePlanBody(ctx, w, r)
	if !ok {
		return
	}

	plan, err := h.plans.CreatePlan(ctx, h.commandFromRequest("", req))
	if err != nil {
		h.writePlanError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, planResponse{Plan: buildPlanPayload(plan)})
}

func (h *PlanHandlers) updatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.plans == nil {
		httpx.WriteError(ctx, w, httpx.NewError("plan_service_unavailable", "plan service is unavailable", http.StatusServiceUnavailable))
		return
	}

	planID := strings.TrimSpace(chi.URLParam(r, "planID"))
	if planID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "plan id is required", http.StatusBadRequest))
		return
	}

	req, ok := h.decodePlanBody(ctx, w, r)
	if !ok {
		return
	}

	plan, err := h.plans.UpdatePlan(ctx, h.commandFromRequest(planID, req))
	if err != nil {
		h.writePlanError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, planResponse{Plan: buildPlanPayload(plan)})
}

func (h *PlanHandlers) deletePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.plans == nil {
		httpx.WriteError(ctx, w, httpx.NewError("plan_service_unavailable", "plan service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.plans.DeletePlan(ctx, chi.URLParam(r, "planID")); err != nil {
		h.writePlanError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *PlanHandlers) decodePlanBody(ctx context.Context, w http.ResponseWriter, r *http.Request) (upsertPlanRequest, bool) {
	var req upsertPlanRequest
	body, err := readLimitedBody(r, maxPlanBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return req, false
	}
	return req, true
}

func (h *PlanHandlers) commandFromRequest(planID string, req upsertPlanRequest) services.UpsertPlanCommand {
	benefits := make([]string, 0, len(req.Benefits))
	for _, benefit := range req.Benefits {
		benefits = append(benefits, h.sanitize(benefit))
	}

	return services.UpsertPlanCommand{
		PlanID:       planID,
		Name:         h.sanitize(req.Name),
		Benefits:     benefits,
		PriceMonthly: req.PriceMonthly,
		PriceYearly:  req.PriceYearly,
		IsActive:     req.IsActive,
		PlanType:     services.PlanType(strings.ToLower(strings.TrimSpace(req.PlanType))),
	}
}

func (h *PlanHandlers) sanitize(value string) string {
	if h.sanitizer == nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(h.sanitizer.Sanitize(value))
}

func (h *PlanHandlers) writePlanError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPlanInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPlanNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("plan_not_found", "subscription plan not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPlanConflict):
		httpx.WriteError(ctx, w, httpx.NewError("plan_conflict", "subscription plan already exists", http.StatusConflict))
	case errors.Is(err, services.ErrPlanUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("plan_service_unavailable", "plan service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("plan_error", "plan operation failed", http.StatusInternalServerError))
	}
}

type upsertPlanRequest struct {
	Name         string   `json:"name"`
	Benefits     []string `json:"benefits"`
	PriceMonthly float64  `json:"priceMonthly"`
	PriceYearly  float64  `json:"priceYearly"`
	IsActive     bool     `json:"isActive"`
	PlanType     string   `json:"planType"`
}

type planListResponse struct {
	Plans []planPayload `json:"plans"`
}

type planResponse struct {
	Plan planPayload `json:"plan"`
}

type planPayload struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Benefits     []string `json:"benefits"`
	PriceMonthly float64  `json:"priceMonthly"`
	PriceYearly  float64  `json:"priceYearly"`
	IsActive     bool     `json:"isActive"`
	PlanType     string   `json:"planType"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

func buildPlanPayload(plan services.Subscription) planPayload {
	benefits := plan.Benefits
	if benefits == nil {
		benefits = []string{}
	}
	return planPayload{
		ID:           plan.ID,
		Name:         plan.Name,
		Benefits:     benefits,
		PriceMonthly: plan.PriceMonthly,
		PriceYearly:  plan.PriceYearly,
		IsActive:     plan.IsActive,
		PlanType:     string(plan.PlanType),
		CreatedAt:    formatTime(plan.CreatedAt),
		UpdatedAt:    formatTime(plan.UpdatedAt),
	}
}
