package domain

import (
	"math"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// TaxRate is the flat tax rate applied to cart subtotals.
const TaxRate = 0.15

// FlatShippingCost is charged whenever the cart subtotal is positive.
const FlatShippingCost = 10.0

// PriceTolerance is the maximum accepted drift between a requested price and
// the plan price for the selected billing period.
const PriceTolerance = 0.01

// PaymentStatus enumerates the lifecycle states of a payment record.
// A record starts pending and transitions exactly once to complete or failed.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusComplete PaymentStatus = "complete"
	PaymentStatusFailed   PaymentStatus = "failed"
)

// Terminal reports whether no further status transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusComplete || s == PaymentStatusFailed
}

// BillingPeriod is the cadence governing subscription price and renewal interval.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// Valid reports whether the billing period is one of the known cadences.
func (p BillingPeriod) Valid() bool {
	return p == BillingPeriodMonthly || p == BillingPeriodYearly
}

// PlanType distinguishes the two subscription plan families offered.
type PlanType string

const (
	PlanTypeInitial  PlanType = "initial"
	PlanTypeTraining PlanType = "training"
)

// CartItem is a single line in a user's cart. Quantity never drops below one.
type CartItem struct {
	ProductID string
	Quantity  int
	Size      string
}

// Cart is the per-user cart aggregate. The monetary fields are derived by the
// pricing engine from current catalog prices and are never mutated directly.
type Cart struct {
	UserID       string
	Items        []CartItem
	SubTotal     float64
	Tax          float64
	ShippingCost float64
	Total        float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsEmpty reports whether the cart holds no items.
func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Cleared returns the cart emptied of items with totals reset. The document
// keeps its lineage; CreatedAt is untouched.
func (c Cart) Cleared(now time.Time) Cart {
	c.Items = nil
	c.SubTotal = 0
	c.Tax = 0
	c.ShippingCost = 0
	c.Total = 0
	c.UpdatedAt = now
	return c
}

// PurchaseItem is an immutable snapshot of a purchased cart line, captured at
// intent-creation time so history stays accurate when the catalog changes.
type PurchaseItem struct {
	ProductID string
	Name      string
	ImageURL  string
	UnitPrice float64
	Quantity  int
}

// PaymentRecord tracks one attempted purchase against the payment gateway.
// The record is keyed by the gateway-assigned transaction id and is never
// deleted; it survives deletion of the cart, product, or plan it references.
type PaymentRecord struct {
	TransactionID  string
	OrderID        string
	UserID         string
	SubscriptionID string
	BillingPeriod  BillingPeriod
	Price          float64
	Items          []PurchaseItem
	Status         PaymentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsSubscription reports whether the record pays for a subscription plan.
func (r PaymentRecord) IsSubscription() bool { return r.SubscriptionID != "" }

// RenewalDate derives the next renewal from the record's creation time.
func (r PaymentRecord) RenewalDate() time.Time {
	if r.BillingPeriod == BillingPeriodYearly {
		return r.CreatedAt.AddDate(1, 0, 0)
	}
	return r.CreatedAt.AddDate(0, 1, 0)
}

// Subscription is a purchasable plan, not a per-user entitlement.
type Subscription struct {
	ID            string
	Name          string
	Benefits      []string
	PriceMonthly  float64
	PriceYearly   float64
	IsActive      bool
	PlanType      PlanType
	PaymentStatus string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PriceFor returns the plan price for the requested billing period.
func (s Subscription) PriceFor(period BillingPeriod) float64 {
	if period == BillingPeriodYearly {
		return s.PriceYearly
	}
	return s.PriceMonthly
}

// Entitlement records a single user's activated subscription. Written by the
// confirmation reconciler when per-user entitlements are enabled instead of
// the legacy plan-document mutation.
type Entitlement struct {
	ID             string
	UserID         string
	SubscriptionID string
	BillingPeriod  BillingPeriod
	ActivatedAt    time.Time
	ExpiresAt      time.Time
}

// Product carries the catalog fields the settlement subsystem reads: the live
// price for recomputation and the display fields captured into snapshots.
type Product struct {
	ID       string
	Name     string
	Price    float64
	ImageURL string
}

// PurchaseEntry is one row of the user-facing purchase history projection.
type PurchaseEntry struct {
	OrderID     string
	Title       string
	Price       float64
	ImageURL    string
	PurchasedAt time.Time
}

// MembershipSummary reports the derived membership state for a user.
type MembershipSummary struct {
	Active         bool
	SubscriptionID string
	BillingPeriod  BillingPeriod
	RenewalDate    *time.Time
	LastPaymentAt  *time.Time
}

// PurchaseHistory is the full projection returned by the history endpoint.
type PurchaseHistory struct {
	Entries        []PurchaseEntry
	PendingCount   int
	HasActivePlan  bool
	LastPurchaseAt *time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	GeneratedAt time.Time
}

// Round2 rounds a monetary amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MinorUnits converts a decimal price to gateway minor units.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
