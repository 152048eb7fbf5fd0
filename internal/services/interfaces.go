package services

import (
	"context"
	"time"

	domain "github.com/pulsefit/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	PaymentRecord      = domain.PaymentRecord
	PaymentStatus      = domain.PaymentStatus
	BillingPeriod      = domain.BillingPeriod
	Subscription       = domain.Subscription
	PlanType           = domain.PlanType
	Product            = domain.Product
	PurchaseItem       = domain.PurchaseItem
	Entitlement        = domain.Entitlement
	MembershipSummary  = domain.MembershipSummary
	PurchaseHistory    = domain.PurchaseHistory
	SystemHealthReport = domain.SystemHealthReport
)

// CartService manages the per-user cart aggregate, repricing on every mutation.
type CartService interface {
	Get(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	Clear(ctx context.Context, userID string) error
}

// PaymentService opens gateway payment intents and reconciles their outcomes.
type PaymentService interface {
	CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (PaymentIntentResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentConfirmation, error)
}

// PlanService maintains the purchasable subscription plan catalog.
type PlanService interface {
	CreatePlan(ctx context.Context, cmd UpsertPlanCommand) (Subscription, error)
	GetPlan(ctx context.Context, planID string) (Subscription, error)
	ListPlans(ctx context.Context, filter PlanListFilter) ([]Subscription, error)
	UpdatePlan(ctx context.Context, cmd UpsertPlanCommand) (Subscription, error)
	DeletePlan(ctx context.Context, planID string) error
}

// BillingService derives membership state and the purchase history projection
// from the payment record ledger.
type BillingService interface {
	MembershipSummary(ctx context.Context, userID string) (MembershipSummary, error)
	HasActiveMembership(ctx context.Context, userID string) (bool, error)
	PurchaseHistory(ctx context.Context, cmd PurchaseHistoryQuery) (PurchaseHistoryPage, error)
}

// SystemService aggregates utility endpoints (health checks and build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// SettlementEventPublisher accepts post-settlement notifications for downstream consumers.
type SettlementEventPublisher interface {
	PublishSettlementEvent(ctx context.Context, event SettlementEvent) (string, error)
}

// Command and DTO definitions ------------------------------------------------

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
	Size      string
}

type UpdateCartQuantityCommand struct {
	UserID    string
	ProductID string
	// Increment raises the quantity by one when true, otherwise lowers it,
	// never dropping below one.
	Increment bool
}

type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
}

// CreatePaymentCommand carries the client's declared purchase. Price is the
// amount the client believes it owes and is verified against live data before
// any gateway call.
type CreatePaymentCommand struct {
	UserID         string
	Price          float64
	SubscriptionID string
	BillingPeriod  BillingPeriod
	// TestMode requests a pre-confirmed gateway intent using the fixed test
	// payment method. Honoured only when test payments are enabled.
	TestMode bool
}

// PaymentIntentResult returns the gateway handle the client needs to complete payment.
type PaymentIntentResult struct {
	TransactionID string
	OrderID       string
	ClientSecret  string
}

type ConfirmPaymentCommand struct {
	UserID        string
	TransactionID string
}

// PaymentConfirmation reports the settled outcome of a confirmed payment.
type PaymentConfirmation struct {
	OrderID string
	Status  PaymentStatus
}

type UpsertPlanCommand struct {
	PlanID       string
	Name         string
	Benefits     []string
	PriceMonthly float64
	PriceYearly  float64
	IsActive     bool
	PlanType     PlanType
}

type PlanListFilter struct {
	ActiveOnly bool
	PlanType   *PlanType
}

type PurchaseHistoryQuery struct {
	UserID     string
	Pagination Pagination
}

// PurchaseHistoryPage wraps the projection with the cursor for older records.
type PurchaseHistoryPage struct {
	History       PurchaseHistory
	NextPageToken string
}

// SettlementEvent describes one completed settlement outcome.
type SettlementEvent struct {
	OrderID        string    `json:"orderId"`
	TransactionID  string    `json:"transactionId"`
	UserID         string    `json:"userId,omitempty"`
	SubscriptionID string    `json:"subscriptionId,omitempty"`
	Status         string    `json:"status"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	OccurredAt     time.Time `json:"occurredAt"`
}
