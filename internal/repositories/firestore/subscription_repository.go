package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pulsefit/api/internal/domain"
	pfirestore "github.com/pulsefit/api/internal/platform/firestore"
	"github.com/pulsefit/api/internal/repositories"
)

const subscriptionCollection = "subscriptions"

type subscriptionDocument struct {
	Name          string    `firestore:"name"`
	Benefits      []string  `firestore:"benefits,omitempty"`
	PriceMonthly  float64   `firestore:"priceMonthly"`
	PriceYearly   float64   `firestore:"priceYearly"`
	IsActive      bool      `firestore:"isActive"`
	PlanType      string    `firestore:"planType"`
	PaymentStatus string    `firestore:"paymentStatus,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// SubscriptionRepository maintains the plan catalog in Firestore.
type SubscriptionRepository struct {
	base *pfirestore.BaseRepository[subscriptionDocument]
}

var _ repositories.SubscriptionRepository = (*SubscriptionRepository)(nil)

// NewSubscriptionRepository constructs a Firestore-backed subscription repository.
func NewSubscriptionRepository(provider *pfirestore.Provider) (*SubscriptionRepository, error) {
	if provider == nil {
		return nil, errors.New("subscription repository requires firestore provider")
	}
	return &SubscriptionRepository{
		base: pfirestore.NewBaseRepository[subscriptionDocument](provider, subscriptionCollection),
	}, nil
}

// Insert creates a new plan document.
func (r *SubscriptionRepository) Insert(ctx context.Context, plan domain.Subscription) (domain.Subscription, error) {
	if r == nil || r.base == nil {
		return domain.Subscription{}, errors.New("subscription repository not initialised")
	}
	planID := strings.TrimSpace(plan.ID)
	if planID == "" {
		return domain.Subscription{}, errors.New("subscription repository: plan id is required")
	}

	ref, err := r.base.DocumentRef(ctx, planID)
	if err != nil {
		return domain.Subscription{}, err
	}
	doc := subscriptionToDocument(plan)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.Subscription{}, pfirestore.WrapError("subscriptions.insert", err)
	}
	return subscriptionFromDocument(planID, doc), nil
}

// Update overwrites an existing plan document.
func (r *SubscriptionRepository) Update(ctx context.Context, plan domain.Subscription) (domain.Subscription, error) {
	if r == nil || r.base == nil {
		return domain.Subscription{}, errors.New("subscription repository not initialised")
	}
	planID := strings.TrimSpace(plan.ID)
	if planID == "" {
		return domain.Subscription{}, errors.New("subscription repository: plan id is required")
	}

	// Existence check keeps update-of-missing-plan a not-found instead of an upsert.
	if _, err := r.base.Get(ctx, planID); err != nil {
		return domain.Subscription{}, err
	}

	doc := subscriptionToDocument(plan)
	if _, err := r.base.Set(ctx, planID, doc); err != nil {
		return domain.Subscription{}, err
	}
	return subscriptionFromDocument(planID, doc), nil
}

// Delete removes the plan document.
func (r *SubscriptionRepository) Delete(ctx context.Context, planID string) error {
	if r == nil || r.base == nil {
		return errors.New("subscription repository not initialised")
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return errors.New("subscription repository: plan id is required")
	}
	return r.base.Delete(ctx, planID)
}

// FindByID loads a single plan.
func (r *SubscriptionRepository) FindByID(ctx context.Context, planID string) (domain.Subscription, error) {
	if r == nil || r.base == nil {
		return domain.Subscription{}, errors.New("subscription repository not initialised")
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return domain.Subscription{}, errors.New("subscription repository: plan id is required")
	}

	doc, err := r.base.Get(ctx, planID)
	if err != nil {
		return domain.Subscription{}, err
	}
	return subscriptionFromDocument(doc.ID, doc.Data), nil
}

// List returns plans matching the filter, ordered by name.
func (r *SubscriptionRepository) List(ctx context.Context, filter repositories.SubscriptionListFilter) ([]domain.Subscription, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("subscription repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		if filter.PlanType != nil {
			q = q.Where("planType", "==", string(*filter.PlanType))
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	plans := make([]domain.Subscription, 0, len(docs))
	for _, doc := range docs {
		plans = append(plans, subscriptionFromDocument(doc.ID, doc.Data))
	}
	return plans, nil
}

// MarkPaid stamps the legacy paid marker onto the plan document.
func (r *SubscriptionRepository) MarkPaid(ctx context.Context, planID string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("subscription repository not initialised")
	}
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return errors.New("subscription repository: plan id is required")
	}

	_, err := r.base.Update(ctx, planID, []firestore.Update{
		{Path: "paymentStatus", Value: "paid"},
		{Path: "updatedAt", Value: now.UTC()},
	})
	return err
}

func subscriptionToDocument(plan domain.Subscription) subscriptionDocument {
	now := time.Now().UTC()
	createdAt := plan.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := plan.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return subscriptionDocument{
		Name:          plan.Name,
		Benefits:      append([]string(nil), plan.Benefits...),
		PriceMonthly:  plan.PriceMonthly,
		PriceYearly:   plan.PriceYearly,
		IsActive:      plan.IsActive,
		PlanType:      string(plan.PlanType),
		PaymentStatus: plan.PaymentStatus,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

func subscriptionFromDocument(planID string, doc subscriptionDocument) domain.Subscription {
	return domain.Subscription{
		ID:            planID,
		Name:          doc.Name,
		Benefits:      append([]string(nil), doc.Benefits...),
		PriceMonthly:  doc.PriceMonthly,
		PriceYearly:   doc.PriceYearly,
		IsActive:      doc.IsActive,
		PlanType:      domain.PlanType(doc.PlanType),
		PaymentStatus: doc.PaymentStatus,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
