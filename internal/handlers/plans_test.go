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

type stubPlanService struct {
	createFunc func(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error)
	getFunc    func(ctx context.Context, planID string) (services.Subscription, error)
	listFunc   func(ctx context.Context, filter services.PlanListFilter) ([]services.Subscription, error)
	updateFunc func(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error)
	deleteFunc func(ctx context.Context, planID string) error
}

func (s *stubPlanService) CreatePlan(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Subscription{ID: "plan_test", Name: cmd.Name}, nil
}

func (s *stubPlanService) GetPlan(ctx context.Context, planID string) (services.Subscription, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, planID)
	}
	return services.Subscription{ID: planID}, nil
}

func (s *stubPlanService) ListPlans(ctx context.Context, filter services.PlanListFilter) ([]services.Subscription, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return []services.Subscription{}, nil
}

func (s *stubPlanService) UpdatePlan(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Subscription{ID: cmd.PlanID, Name: cmd.Name}, nil
}

func (s *stubPlanService) DeletePlan(ctx context.Context, planID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, planID)
	}
	return nil
}

var _ services.PlanService = (*stubPlanService)(nil)

func newPlanRouter(service services.PlanService) chi.Router {
	handler := NewPlanHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/plans", handler.Routes)
	return router
}

func TestPlanHandlersListPlans(t *testing.T) {
	var captured services.PlanListFilter
	service := &stubPlanService{
		listFunc: func(ctx context.Context, filter services.PlanListFilter) ([]services.Subscription, error) {
			captured = filter
			return []services.Subscription{
				{ID: "plan-1", Name: "Gold", PriceMonthly: 29.99, PriceYearly: 299.99, IsActive: true, PlanType: domain.PlanTypeInitial},
			}, nil
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/plans/?active=true&type=initial", "", "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !captured.ActiveOnly || captured.PlanType == nil || *captured.PlanType != domain.PlanTypeInitial {
		t.Fatalf("unexpected filter %#v", captured)
	}

	var resp planListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Plans) != 1 || resp.Plans[0].Name != "Gold" {
		t.Fatalf("unexpected plans %#v", resp.Plans)
	}
}

func TestPlanHandlersGetPlan(t *testing.T) {
	created := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	service := &stubPlanService{
		getFunc: func(ctx context.Context, planID string) (services.Subscription, error) {
			if planID != "plan-1" {
				t.Fatalf("unexpected plan id %q", planID)
			}
			return services.Subscription{
				ID:           "plan-1",
				Name:         "Gold",
				Benefits:     []string{"24/7 access"},
				PriceMonthly: 29.99,
				IsActive:     true,
				PlanType:     domain.PlanTypeInitial,
				CreatedAt:    created,
			}, nil
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/plans/plan-1", "", "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp planResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Plan.ID != "plan-1" || len(resp.Plan.Benefits) != 1 {
		t.Fatalf("unexpected plan %#v", resp.Plan)
	}
	if resp.Plan.CreatedAt == "" {
		t.Fatalf("expected createdAt to be set")
	}
}

func TestPlanHandlersGetPlanNotFound(t *testing.T) {
	service := &stubPlanService{
		getFunc: func(ctx context.Context, planID string) (services.Subscription, error) {
			return services.Subscription{}, services.ErrPlanNotFound
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/plans/ghost", "", "user-1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPlanHandlersCreatePlanSanitisesContent(t *testing.T) {
	var captured services.UpsertPlanCommand
	service := &stubPlanService{
		createFunc: func(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error) {
			captured = cmd
			return services.Subscription{ID: "plan_test", Name: cmd.Name, Benefits: cmd.Benefits}, nil
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	body := `{"name":"Gold <script>alert(1)</script>","benefits":["<b>24/7 access</b>"],"priceMonthly":29.99,"priceYearly":299.99,"isActive":true,"planType":"initial"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/plans/", body, "admin-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Name != "Gold" {
		t.Fatalf("expected script tags stripped, got %q", captured.Name)
	}
	if len(captured.Benefits) != 1 || captured.Benefits[0] != "24/7 access" {
		t.Fatalf("expected markup stripped from benefits, got %#v", captured.Benefits)
	}
	if captured.PlanType != domain.PlanTypeInitial || captured.PriceMonthly != 29.99 {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestPlanHandlersCreatePlanInvalid(t *testing.T) {
	service := &stubPlanService{
		createFunc: func(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error) {
			return services.Subscription{}, services.ErrPlanInvalidInput
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/plans/", `{"name":""}`, "admin-1"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPlanHandlersUpdatePlan(t *testing.T) {
	var captured services.UpsertPlanCommand
	service := &stubPlanService{
		updateFunc: func(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error) {
			captured = cmd
			return services.Subscription{ID: cmd.PlanID, Name: cmd.Name}, nil
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	body := `{"name":"Gold Plus","priceMonthly":34.99,"isActive":true,"planType":"initial"}`
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPut, "/plans/plan-1", body, "admin-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.PlanID != "plan-1" || captured.Name != "Gold Plus" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestPlanHandlersUpdatePlanConflict(t *testing.T) {
	service := &stubPlanService{
		updateFunc: func(ctx context.Context, cmd services.UpsertPlanCommand) (services.Subscription, error) {
			return services.Subscription{}, services.ErrPlanConflict
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPut, "/plans/plan-1", `{"name":"Gold"}`, "admin-1"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestPlanHandlersDeletePlan(t *testing.T) {
	deleted := ""
	service := &stubPlanService{
		deleteFunc: func(ctx context.Context, planID string) error {
			deleted = planID
			return nil
		},
	}

	router := newPlanRouter(service)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodDelete, "/plans/plan-1", "", "admin-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if deleted != "plan-1" {
		t.Fatalf("expected plan-1 deleted, got %q", deleted)
	}
}

func TestPlanHandlersServiceUnavailable(t *testing.T) {
	handler := NewPlanHandlers(nil, nil)
	rr := httptest.NewRecorder()
	handler.listPlans(rr, authenticatedRequest(http.MethodGet, "/plans/", "", "user-1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
