package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/pulsefit/api/internal/domain"
	pfirestore "github.com/pulsefit/api/internal/platform/firestore"
	"github.com/pulsefit/api/internal/repositories"
)

const entitlementCollection = "entitlements"

type entitlementDocument struct {
	UserID         string    `firestore:"userId"`
	SubscriptionID string    `firestore:"subscriptionId"`
	BillingPeriod  string    `firestore:"billingPeriod"`
	ActivatedAt    time.Time `firestore:"activatedAt"`
	ExpiresAt      time.Time `firestore:"expiresAt"`
}

// EntitlementRepository stores per-user subscription activations, one document
// per user so a new activation replaces the previous one.
type EntitlementRepository struct {
	base *pfirestore.BaseRepository[entitlementDocument]
}

var _ repositories.EntitlementRepository = (*EntitlementRepository)(nil)

// NewEntitlementRepository constructs a Firestore-backed entitlement repository.
func NewEntitlementRepository(provider *pfirestore.Provider) (*EntitlementRepository, error) {
	if provider == nil {
		return nil, errors.New("entitlement repository requires firestore provider")
	}
	return &EntitlementRepository{
		base: pfirestore.NewBaseRepository[entitlementDocument](provider, entitlementCollection),
	}, nil
}

// Upsert writes the entitlement keyed by the owning user id.
func (r *EntitlementRepository) Upsert(ctx context.Context, entitlement domain.Entitlement) (domain.Entitlement, error) {
	if r == nil || r.base == nil {
		return domain.Entitlement{}, errors.New("entitlement repository not initialised")
	}
	userID := strings.TrimSpace(entitlement.UserID)
	if userID == "" {
		return domain.Entitlement{}, errors.New("entitlement repository: user id is required")
	}
	if strings.TrimSpace(entitlement.SubscriptionID) == "" {
		return domain.Entitlement{}, errors.New("entitlement repository: subscription id is required")
	}

	doc := entitlementDocument{
		UserID:         userID,
		SubscriptionID: entitlement.SubscriptionID,
		BillingPeriod:  string(entitlement.BillingPeriod),
		ActivatedAt:    entitlement.ActivatedAt.UTC(),
		ExpiresAt:      entitlement.ExpiresAt.UTC(),
	}
	if _, err := r.base.Set(ctx, userID, doc); err != nil {
		return domain.Entitlement{}, err
	}
	return entitlementFromDocument(userID, doc), nil
}

// FindActiveByUser returns the user's entitlement when it has not expired.
func (r *EntitlementRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) (domain.Entitlement, error) {
	if r == nil || r.base == nil {
		return domain.Entitlement{}, errors.New("entitlement repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Entitlement{}, errors.New("entitlement repository: user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if !doc.Data.ExpiresAt.IsZero() && !now.UTC().Before(doc.Data.ExpiresAt) {
		return domain.Entitlement{}, pfirestore.NotFoundError("entitlements.findactive",
			errors.New("entitlement expired"))
	}
	return entitlementFromDocument(doc.ID, doc.Data), nil
}

func entitlementFromDocument(userID string, doc entitlementDocument) domain.Entitlement {
	return domain.Entitlement{
		ID:             userID,
		UserID:         doc.UserID,
		SubscriptionID: doc.SubscriptionID,
		BillingPeriod:  domain.BillingPeriod(doc.BillingPeriod),
		ActivatedAt:    doc.ActivatedAt,
		ExpiresAt:      doc.ExpiresAt,
	}
}
