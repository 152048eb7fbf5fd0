package repositories

import (
	"context"
	"time"

	domain "github.com/pulsefit/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Payments() PaymentRepository
	Subscriptions() SubscriptionRepository
	Products() ProductRepository
	Users() UserRepository
	Entitlements() EntitlementRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns per-user cart persistence. One cart document per user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
}

// PaymentRepository stores payment records keyed by gateway transaction id.
// Records are append-only apart from the single pending-to-terminal status
// transition applied by MarkStatus.
type PaymentRepository interface {
	Insert(ctx context.Context, record domain.PaymentRecord) error
	FindByTransactionID(ctx context.Context, transactionID string) (domain.PaymentRecord, error)
	// MarkStatus transitions the record to the supplied terminal status. It
	// returns the stored record and reports whether this call performed the
	// transition (false when the record was already terminal).
	MarkStatus(ctx context.Context, transactionID string, status domain.PaymentStatus, now time.Time) (domain.PaymentRecord, bool, error)
	ListByUser(ctx context.Context, userID string, filter PaymentListFilter) (domain.CursorPage[domain.PaymentRecord], error)
}

// PaymentListFilter controls payment record listings.
type PaymentListFilter struct {
	Status     []domain.PaymentStatus
	Pagination domain.Pagination
}

// SubscriptionRepository maintains the purchasable plan catalog.
type SubscriptionRepository interface {
	Insert(ctx context.Context, plan domain.Subscription) (domain.Subscription, error)
	Update(ctx context.Context, plan domain.Subscription) (domain.Subscription, error)
	Delete(ctx context.Context, planID string) error
	FindByID(ctx context.Context, planID string) (domain.Subscription, error)
	List(ctx context.Context, filter SubscriptionListFilter) ([]domain.Subscription, error)
	// MarkPaid records the legacy paid marker on the plan document itself.
	MarkPaid(ctx context.Context, planID string, now time.Time) error
}

// SubscriptionListFilter controls plan catalog listings.
type SubscriptionListFilter struct {
	ActiveOnly bool
	PlanType   *domain.PlanType
}

// ProductRepository reads catalog products for pricing and snapshots.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// PriceOf resolves current prices for the requested product ids. Unknown
	// ids are omitted from the result rather than reported as errors.
	PriceOf(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// UserRepository verifies account existence for settlement operations.
type UserRepository interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// EntitlementRepository stores per-user subscription activations, written by
// the confirmation flow when per-user entitlements are enabled.
type EntitlementRepository interface {
	Upsert(ctx context.Context, entitlement domain.Entitlement) (domain.Entitlement, error)
	FindActiveByUser(ctx context.Context, userID string, now time.Time) (domain.Entitlement, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
