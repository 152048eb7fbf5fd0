package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pulsefit/api/internal/domain"
	"github.com/pulsefit/api/internal/repositories"
)

var (
	// ErrPlanInvalidInput indicates the caller supplied invalid plan parameters.
	ErrPlanInvalidInput = errors.New("plan: invalid input")
	// ErrPlanNotFound indicates the requested plan does not exist.
	ErrPlanNotFound = errors.New("plan: not found")
	// ErrPlanConflict indicates a plan with the same id already exists.
	ErrPlanConflict = errors.New("plan: conflict")
	// ErrPlanUnavailable indicates plan dependencies are currently unavailable.
	ErrPlanUnavailable = errors.New("plan: unavailable")
)

// PlanServiceDeps wires the dependencies required by the plan service.
type PlanServiceDeps struct {
	Subscriptions repositories.SubscriptionRepository
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	// IDs generates plan identifiers; defaults to ULIDs.
	IDs func() string
}

type planService struct {
	subscriptions repositories.SubscriptionRepository
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	ids           func() string
}

var _ PlanService = (*planService)(nil)

// NewPlanService constructs a PlanService validating required dependencies.
func NewPlanService(deps PlanServiceDeps) (PlanService, error) {
	if deps.Subscriptions == nil {
		return nil, errors.New("plan service: subscription repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ids := deps.IDs
	if ids == nil {
		ids = func() string { return "plan_" + ulid.Make().String() }
	}

	return &planService{
		subscriptions: deps.Subscriptions,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		ids:    ids,
	}, nil
}

// CreatePlan persists a new subscription plan in the catalog.
func (s *planService) CreatePlan(ctx context.Context, cmd UpsertPlanCommand) (Subscription, error) {
	plan, err := s.planFromCommand(cmd)
	if err != nil {
		return Subscription{}, err
	}
	if plan.ID == "" {
		plan.ID = s.ids()
	}
	now := s.now()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	created, err := s.subscriptions.Insert(ctx, plan)
	if err != nil {
		return Subscription{}, s.translateError(ctx, "plan.create_failed", plan.ID, err)
	}

	s.logger(ctx, "plan.created", map[string]any{
		"planId":   created.ID,
		"planType": string(created.PlanType),
	})
	return created, nil
}

// GetPlan loads a single plan by id.
func (s *planService) GetPlan(ctx context.Context, planID string) (Subscription, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return Subscription{}, ErrPlanInvalidInput
	}

	plan, err := s.subscriptions.FindByID(ctx, planID)
	if err != nil {
		return Subscription{}, s.translateError(ctx, "plan.get_failed", planID, err)
	}
	return plan, nil
}

// ListPlans returns catalog plans ordered by name.
func (s *planService) ListPlans(ctx context.Context, filter PlanListFilter) ([]Subscription, error) {
	if filter.PlanType != nil {
		planType := *filter.PlanType
		if planType != domain.PlanTypeInitial && planType != domain.PlanTypeTraining {
			return nil, ErrPlanInvalidInput
		}
	}

	plans, err := s.subscriptions.List(ctx, repositories.SubscriptionListFilter{
		ActiveOnly: filter.ActiveOnly,
		PlanType:   filter.PlanType,
	})
	if err != nil {
		return nil, s.translateError(ctx, "plan.list_failed", "", err)
	}
	if plans == nil {
		plans = []domain.Subscription{}
	}
	return plans, nil
}

// UpdatePlan replaces the stored plan with the supplied fields.
func (s *planService) UpdatePlan(ctx context.Context, cmd UpsertPlanCommand) (Subscription, error) {
	planID := strings.TrimSpace(cmd.PlanID)
	if planID == "" {
		return Subscription{}, ErrPlanInvalidInput
	}

	plan, err := s.planFromCommand(cmd)
	if err != nil {
		return Subscription{}, err
	}

	existing, err := s.subscriptions.FindByID(ctx, planID)
	if err != nil {
		return Subscription{}, s.translateError(ctx, "plan.update_lookup_failed", planID, err)
	}

	plan.ID = planID
	plan.PaymentStatus = existing.PaymentStatus
	plan.CreatedAt = existing.CreatedAt
	plan.UpdatedAt = s.now()

	updated, err := s.subscriptions.Update(ctx, plan)
	if err != nil {
		return Subscription{}, s.translateError(ctx, "plan.update_failed", planID, err)
	}
	return updated, nil
}

// DeletePlan removes the plan from the catalog. Payment records referencing
// the plan are untouched.
func (s *planService) DeletePlan(ctx context.Context, planID string) error {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return ErrPlanInvalidInput
	}
	if err := s.subscriptions.Delete(ctx, planID); err != nil {
		return s.translateError(ctx, "plan.delete_failed", planID, err)
	}
	s.logger(ctx, "plan.deleted", map[string]any{"planId": planID})
	return nil
}

func (s *planService) planFromCommand(cmd UpsertPlanCommand) (domain.Subscription, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Subscription{}, ErrPlanInvalidInput
	}
	if cmd.PriceMonthly < 0 || cmd.PriceYearly < 0 {
		return domain.Subscription{}, ErrPlanInvalidInput
	}

	planType := cmd.PlanType
	if planType == "" {
		planType = domain.PlanTypeInitial
	}
	if planType != domain.PlanTypeInitial && planType != domain.PlanTypeTraining {
		return domain.Subscription{}, ErrPlanInvalidInput
	}

	benefits := make([]string, 0, len(cmd.Benefits))
	for _, benefit := range cmd.Benefits {
		if trimmed := strings.TrimSpace(benefit); trimmed != "" {
			benefits = append(benefits, trimmed)
		}
	}

	return domain.Subscription{
		ID:           strings.TrimSpace(cmd.PlanID),
		Name:         name,
		Benefits:     benefits,
		PriceMonthly: cmd.PriceMonthly,
		PriceYearly:  cmd.PriceYearly,
		IsActive:     cmd.IsActive,
		PlanType:     planType,
	}, nil
}

func (s *planService) translateError(ctx context.Context, event string, planID string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPlanNotFound
		case repoErr.IsConflict():
			return ErrPlanConflict
		}
	}
	s.logger(ctx, event, map[string]any{
		"planId": planID,
		"error":  err.Error(),
	})
	return ErrPlanUnavailable
}
