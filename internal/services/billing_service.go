package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pulsefit/api/internal/domain"
	"github.com/pulsefit/api/internal/platform/pagination"
	"github.com/pulsefit/api/internal/repositories"
)

const (
	subscriptionEntryTitle = "Subscription Plan"
	genericEntryTitle      = "Purchase"

	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

var (
	// ErrBillingInvalidInput indicates the caller supplied invalid input parameters.
	ErrBillingInvalidInput = errors.New("billing: invalid input")
	// ErrBillingUnavailable indicates billing dependencies are currently unavailable.
	ErrBillingUnavailable = errors.New("billing: unavailable")
)

// BillingServiceDeps wires the dependencies required by the billing service.
type BillingServiceDeps struct {
	Payments     repositories.PaymentRepository
	Entitlements repositories.EntitlementRepository
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
	// EnablePerUserEntitlements answers membership from entitlement records
	// instead of the payment ledger.
	EnablePerUserEntitlements bool
}

type billingService struct {
	payments      repositories.PaymentRepository
	entitlements  repositories.EntitlementRepository
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	entitlementOn bool
}

var _ BillingService = (*billingService)(nil)

// NewBillingService constructs a BillingService validating required dependencies.
func NewBillingService(deps BillingServiceDeps) (BillingService, error) {
	if deps.Payments == nil {
		return nil, errors.New("billing service: payment repository is required")
	}
	if deps.EnablePerUserEntitlements && deps.Entitlements == nil {
		return nil, errors.New("billing service: entitlement repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &billingService{
		payments:     deps.Payments,
		entitlements: deps.Entitlements,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:        logger,
		entitlementOn: deps.EnablePerUserEntitlements,
	}, nil
}

// MembershipSummary derives the user's membership state. A completed
// subscription payment grants membership; the renewal date comes from the
// latest such payment's billing period.
func (s *billingService) MembershipSummary(ctx context.Context, userID string) (MembershipSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return MembershipSummary{}, ErrBillingInvalidInput
	}

	if s.entitlementOn {
		return s.entitlementSummary(ctx, userID)
	}

	page, err := s.payments.ListByUser(ctx, userID, repositories.PaymentListFilter{
		Status: []domain.PaymentStatus{domain.PaymentStatusComplete},
	})
	if err != nil {
		return MembershipSummary{}, s.unavailable(ctx, "billing.membership_failed", userID, err)
	}

	summary := MembershipSummary{}
	for _, record := range page.Items {
		if summary.LastPaymentAt == nil || record.CreatedAt.After(*summary.LastPaymentAt) {
			paidAt := record.CreatedAt
			summary.LastPaymentAt = &paidAt
		}
		if !record.IsSubscription() {
			continue
		}
		// Records arrive newest first; the first subscription record wins.
		if !summary.Active {
			summary.Active = true
			summary.SubscriptionID = record.SubscriptionID
			summary.BillingPeriod = record.BillingPeriod
			renewal := record.RenewalDate()
			summary.RenewalDate = &renewal
		}
	}
	return summary, nil
}

// HasActiveMembership reports whether the user currently holds a membership.
func (s *billingService) HasActiveMembership(ctx context.Context, userID string) (bool, error) {
	summary, err := s.MembershipSummary(ctx, userID)
	if err != nil {
		return false, err
	}
	return summary.Active, nil
}

// PurchaseHistory projects the user's payment ledger into display entries,
// newest first. Snapshot lines expand to one entry each; records without a
// snapshot collapse into a single titled entry.
func (s *billingService) PurchaseHistory(ctx context.Context, cmd PurchaseHistoryQuery) (PurchaseHistoryPage, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PurchaseHistoryPage{}, ErrBillingInvalidInput
	}

	pageSize := pagination.Clamp(cmd.Pagination.PageSize, defaultHistoryPageSize, maxHistoryPageSize)

	page, err := s.payments.ListByUser(ctx, userID, repositories.PaymentListFilter{
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(cmd.Pagination.PageToken),
		},
	})
	if err != nil {
		return PurchaseHistoryPage{}, s.unavailable(ctx, "billing.history_failed", userID, err)
	}

	// The aggregate flags describe the whole ledger, not the requested page.
	completed, err := s.payments.ListByUser(ctx, userID, repositories.PaymentListFilter{
		Status: []domain.PaymentStatus{domain.PaymentStatusComplete},
	})
	if err != nil {
		return PurchaseHistoryPage{}, s.unavailable(ctx, "billing.history_failed", userID, err)
	}
	pending, err := s.payments.ListByUser(ctx, userID, repositories.PaymentListFilter{
		Status: []domain.PaymentStatus{domain.PaymentStatusPending},
	})
	if err != nil {
		return PurchaseHistoryPage{}, s.unavailable(ctx, "billing.history_failed", userID, err)
	}

	history := domain.PurchaseHistory{
		Entries:      []domain.PurchaseEntry{},
		PendingCount: len(pending.Items),
	}
	for _, record := range completed.Items {
		if history.LastPurchaseAt == nil || record.CreatedAt.After(*history.LastPurchaseAt) {
			purchasedAt := record.CreatedAt
			history.LastPurchaseAt = &purchasedAt
		}
		if record.IsSubscription() {
			history.HasActivePlan = true
		}
	}
	if s.entitlementOn {
		summary, err := s.entitlementSummary(ctx, userID)
		if err != nil {
			return PurchaseHistoryPage{}, err
		}
		history.HasActivePlan = summary.Active
	}

	for _, record := range page.Items {
		if record.Status != domain.PaymentStatusComplete {
			continue
		}
		history.Entries = append(history.Entries, projectEntries(record)...)
	}

	return PurchaseHistoryPage{
		History:       history,
		NextPageToken: page.NextPageToken,
	}, nil
}

func (s *billingService) entitlementSummary(ctx context.Context, userID string) (MembershipSummary, error) {
	entitlement, err := s.entitlements.FindActiveByUser(ctx, userID, s.now())
	if err != nil {
		if isNotFound(err) {
			return MembershipSummary{}, nil
		}
		return MembershipSummary{}, s.unavailable(ctx, "billing.entitlement_failed", userID, err)
	}

	expires := entitlement.ExpiresAt
	activated := entitlement.ActivatedAt
	return MembershipSummary{
		Active:         true,
		SubscriptionID: entitlement.SubscriptionID,
		BillingPeriod:  entitlement.BillingPeriod,
		RenewalDate:    &expires,
		LastPaymentAt:  &activated,
	}, nil
}

func projectEntries(record domain.PaymentRecord) []domain.PurchaseEntry {
	if len(record.Items) > 0 {
		entries := make([]domain.PurchaseEntry, 0, len(record.Items))
		for _, item := range record.Items {
			entries = append(entries, domain.PurchaseEntry{
				OrderID:     record.OrderID,
				Title:       item.Name,
				Price:       domain.Round2(item.UnitPrice * float64(item.Quantity)),
				ImageURL:    item.ImageURL,
				PurchasedAt: record.CreatedAt,
			})
		}
		return entries
	}

	title := genericEntryTitle
	if record.IsSubscription() {
		title = subscriptionEntryTitle
	}
	return []domain.PurchaseEntry{{
		OrderID:     record.OrderID,
		Title:       title,
		Price:       record.Price,
		PurchasedAt: record.CreatedAt,
	}}
}

func (s *billingService) unavailable(ctx context.Context, event string, userID string, err error) error {
	s.logger(ctx, event, map[string]any{
		"userId": userID,
		"error":  err.Error(),
	})
	return ErrBillingUnavailable
}
