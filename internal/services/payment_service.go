package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pulsefit/api/internal/domain"
	"github.com/pulsefit/api/internal/payments"
	"github.com/pulsefit/api/internal/platform/textutil"
	"github.com/pulsefit/api/internal/repositories"
)

const defaultGatewayTimeout = 10 * time.Second

var (
	// ErrPaymentInvalidInput indicates the caller supplied invalid payment parameters.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentPlanNotFound indicates the referenced subscription plan does not exist.
	ErrPaymentPlanNotFound = errors.New("payment: plan not found")
	// ErrPaymentPriceMismatch indicates the declared price drifted from the live price.
	ErrPaymentPriceMismatch = errors.New("payment: price mismatch")
	// ErrPaymentUserNotFound indicates the purchasing account does not exist.
	ErrPaymentUserNotFound = errors.New("payment: user not found")
	// ErrPaymentNotFound indicates no payment record matches the transaction id.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentGateway indicates the payment gateway rejected or timed out on a call.
	ErrPaymentGateway = errors.New("payment: gateway error")
	// ErrPaymentNotSucceeded indicates the gateway did not settle the charge.
	ErrPaymentNotSucceeded = errors.New("payment: not succeeded")
	// ErrPaymentConflict indicates the record settled to a different terminal outcome.
	ErrPaymentConflict = errors.New("payment: conflict")
	// ErrPaymentUnavailable indicates payment dependencies are currently unavailable.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
)

// PaymentServiceDeps wires the dependencies required by the payment service.
type PaymentServiceDeps struct {
	Payments      repositories.PaymentRepository
	Carts         repositories.CartRepository
	Subscriptions repositories.SubscriptionRepository
	Products      repositories.ProductRepository
	Users         repositories.UserRepository
	Entitlements  repositories.EntitlementRepository
	Gateway       payments.Gateway
	Events        SettlementEventPublisher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
	// OrderIDs generates order identifiers; defaults to ULIDs.
	OrderIDs       func() string
	Currency       string
	GatewayTimeout time.Duration
	// EnablePerUserEntitlements switches subscription activation from the
	// legacy plan-document marker to per-user entitlement records.
	EnablePerUserEntitlements bool
	// EnableTestPayments allows callers to request pre-confirmed test intents.
	EnableTestPayments bool
}

type paymentService struct {
	payments      repositories.PaymentRepository
	carts         repositories.CartRepository
	subscriptions repositories.SubscriptionRepository
	products      repositories.ProductRepository
	users         repositories.UserRepository
	entitlements  repositories.EntitlementRepository
	gateway       payments.Gateway
	events        SettlementEventPublisher
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	orderIDs      func() string
	currency      string
	timeout       time.Duration
	entitlementOn bool
	testPayments  bool
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService constructs a PaymentService validating required dependencies.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("payment service: cart repository is required")
	}
	if deps.Subscriptions == nil {
		return nil, errors.New("payment service: subscription repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("payment service: product repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	orderIDs := deps.OrderIDs
	if orderIDs == nil {
		orderIDs = func() string { return "order_" + ulid.Make().String() }
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &paymentService{
		payments:      deps.Payments,
		carts:         deps.Carts,
		subscriptions: deps.Subscriptions,
		products:      deps.Products,
		users:         deps.Users,
		entitlements:  deps.Entitlements,
		gateway:       deps.Gateway,
		events:        deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:        logger,
		orderIDs:      orderIDs,
		currency:      currency,
		timeout:       timeout,
		entitlementOn: deps.EnablePerUserEntitlements,
		testPayments:  deps.EnableTestPayments,
	}, nil
}

// CreatePayment validates the declared purchase against live data, opens a
// gateway intent, and records the pending payment keyed by the intent id.
func (s *paymentService) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (PaymentIntentResult, error) {
	if cmd.Price <= 0 {
		return PaymentIntentResult{}, ErrPaymentInvalidInput
	}

	userID := strings.TrimSpace(cmd.UserID)
	subscriptionID := strings.TrimSpace(cmd.SubscriptionID)

	if subscriptionID != "" && !cmd.BillingPeriod.Valid() {
		return PaymentIntentResult{}, ErrPaymentInvalidInput
	}
	if subscriptionID == "" && cmd.BillingPeriod != "" {
		return PaymentIntentResult{}, ErrPaymentInvalidInput
	}

	if userID != "" && s.users != nil {
		exists, err := s.users.Exists(ctx, userID)
		if err != nil {
			return PaymentIntentResult{}, s.unavailable(ctx, "payment.user_lookup_failed", err, map[string]any{"userId": userID})
		}
		if !exists {
			return PaymentIntentResult{}, ErrPaymentUserNotFound
		}
	}

	var snapshot []domain.PurchaseItem
	if subscriptionID != "" {
		plan, err := s.subscriptions.FindByID(ctx, subscriptionID)
		if err != nil {
			if isNotFound(err) {
				return PaymentIntentResult{}, ErrPaymentPlanNotFound
			}
			return PaymentIntentResult{}, s.unavailable(ctx, "payment.plan_lookup_failed", err, map[string]any{"planId": subscriptionID})
		}
		if math.Abs(cmd.Price-plan.PriceFor(cmd.BillingPeriod)) > domain.PriceTolerance {
			return PaymentIntentResult{}, ErrPaymentPriceMismatch
		}
	} else if userID != "" {
		cart, err := s.carts.Get(ctx, userID)
		if err != nil && !isNotFound(err) {
			return PaymentIntentResult{}, s.unavailable(ctx, "payment.cart_lookup_failed", err, map[string]any{"userId": userID})
		}
		if !cart.IsEmpty() {
			if math.Abs(cmd.Price-cart.Total) > domain.PriceTolerance {
				return PaymentIntentResult{}, ErrPaymentPriceMismatch
			}
			snapshot, err = s.snapshotItems(ctx, cart)
			if err != nil {
				return PaymentIntentResult{}, err
			}
		}
	}

	orderID := s.orderIDs()
	now := s.now()

	intent, err := s.createIntent(ctx, cmd, orderID, userID, subscriptionID)
	if err != nil {
		return PaymentIntentResult{}, err
	}

	record := domain.PaymentRecord{
		TransactionID:  intent.ID,
		OrderID:        orderID,
		UserID:         userID,
		SubscriptionID: subscriptionID,
		BillingPeriod:  cmd.BillingPeriod,
		Price:          cmd.Price,
		Items:          snapshot,
		Status:         domain.PaymentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.payments.Insert(ctx, record); err != nil {
		// The remote intent exists without a local record; void it so the
		// gateway does not accumulate orphans.
		s.cancelIntent(ctx, intent.ID)
		return PaymentIntentResult{}, s.unavailable(ctx, "payment.persist_failed", err, map[string]any{
			"transactionId": intent.ID,
			"orderId":       orderID,
		})
	}

	s.logger(ctx, "payment.intent_created", map[string]any{
		"transactionId": intent.ID,
		"orderId":       orderID,
		"userId":        userID,
		"amount":        cmd.Price,
	})

	return PaymentIntentResult{
		TransactionID: intent.ID,
		OrderID:       orderID,
		ClientSecret:  intent.ClientSecret,
	}, nil
}

// ConfirmPayment reconciles local state with the gateway's authoritative view
// of the intent and applies settlement side effects exactly once.
func (s *paymentService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (PaymentConfirmation, error) {
	transactionID := strings.TrimSpace(cmd.TransactionID)
	if transactionID == "" {
		return PaymentConfirmation{}, ErrPaymentInvalidInput
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	intent, err := s.gateway.RetrieveIntent(gatewayCtx, transactionID)
	if err != nil {
		s.logger(ctx, "payment.gateway_retrieve_failed", map[string]any{
			"transactionId": transactionID,
			"error":         err.Error(),
		})
		return PaymentConfirmation{}, ErrPaymentGateway
	}

	target := domain.PaymentStatusFailed
	if intent.Status == payments.StatusSucceeded {
		target = domain.PaymentStatusComplete
	}

	record, applied, err := s.payments.MarkStatus(ctx, transactionID, target, s.now())
	if err != nil {
		var repoErr repositories.RepositoryError
		switch {
		case errors.As(err, &repoErr) && repoErr.IsNotFound():
			// With no local record, a non-succeeded intent reports the
			// payment outcome; only a succeeded confirm surfaces the gap.
			if target != domain.PaymentStatusComplete {
				return PaymentConfirmation{}, ErrPaymentNotSucceeded
			}
			return PaymentConfirmation{}, ErrPaymentNotFound
		case errors.As(err, &repoErr) && repoErr.IsConflict():
			return PaymentConfirmation{}, ErrPaymentConflict
		default:
			return PaymentConfirmation{}, s.unavailable(ctx, "payment.mark_status_failed", err, map[string]any{
				"transactionId": transactionID,
			})
		}
	}

	if applied {
		s.applySettlement(ctx, record)
	}

	if record.Status != domain.PaymentStatusComplete {
		return PaymentConfirmation{}, ErrPaymentNotSucceeded
	}
	return PaymentConfirmation{
		OrderID: record.OrderID,
		Status:  record.Status,
	}, nil
}

func (s *paymentService) createIntent(ctx context.Context, cmd CreatePaymentCommand, orderID, userID, subscriptionID string) (payments.Intent, error) {
	gatewayCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	metadata := textutil.NormalizeStringMap(map[string]string{
		"orderId":        orderID,
		"userId":         userID,
		"subscriptionId": subscriptionID,
		"billingPeriod":  string(cmd.BillingPeriod),
	})

	intent, err := s.gateway.CreateIntent(gatewayCtx, payments.CreateIntentRequest{
		AmountMinorUnits: domain.MinorUnits(cmd.Price),
		Currency:         s.currency,
		Metadata:         metadata,
		TestMode:         cmd.TestMode && s.testPayments,
	})
	if err != nil {
		s.logger(ctx, "payment.gateway_create_failed", map[string]any{
			"orderId": orderID,
			"userId":  userID,
			"error":   err.Error(),
		})
		return payments.Intent{}, ErrPaymentGateway
	}
	return intent, nil
}

func (s *paymentService) cancelIntent(ctx context.Context, intentID string) {
	gatewayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.gateway.CancelIntent(gatewayCtx, intentID); err != nil {
		s.logger(ctx, "payment.gateway_cancel_failed", map[string]any{
			"transactionId": intentID,
			"error":         err.Error(),
		})
	}
}

func (s *paymentService) snapshotItems(ctx context.Context, cart domain.Cart) ([]domain.PurchaseItem, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}

	catalog, err := s.products.PriceOf(ctx, ids)
	if err != nil {
		return nil, s.unavailable(ctx, "payment.snapshot_failed", err, map[string]any{"userId": cart.UserID})
	}

	snapshot := make([]domain.PurchaseItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			// The product vanished between repricing and purchase; snapshot
			// the line with what the cart still knows.
			product = domain.Product{ID: item.ProductID, Name: item.ProductID}
		}
		snapshot = append(snapshot, domain.PurchaseItem{
			ProductID: item.ProductID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
	}
	return snapshot, nil
}

// applySettlement performs the once-only side effects of a status transition.
// Failures are logged, not surfaced: the status guard has already committed,
// so the confirmation outcome must not change.
func (s *paymentService) applySettlement(ctx context.Context, record domain.PaymentRecord) {
	now := s.now()

	if record.Status == domain.PaymentStatusComplete {
		switch {
		case record.IsSubscription() && s.entitlementOn && s.entitlements != nil:
			entitlement := domain.Entitlement{
				ID:             record.UserID,
				UserID:         record.UserID,
				SubscriptionID: record.SubscriptionID,
				BillingPeriod:  record.BillingPeriod,
				ActivatedAt:    now,
				ExpiresAt:      record.RenewalDate(),
			}
			if _, err := s.entitlements.Upsert(ctx, entitlement); err != nil {
				s.logger(ctx, "payment.entitlement_failed", map[string]any{
					"transactionId": record.TransactionID,
					"userId":        record.UserID,
					"error":         err.Error(),
				})
			}
		case record.IsSubscription():
			if err := s.subscriptions.MarkPaid(ctx, record.SubscriptionID, now); err != nil && !isNotFound(err) {
				s.logger(ctx, "payment.plan_mark_failed", map[string]any{
					"transactionId": record.TransactionID,
					"planId":        record.SubscriptionID,
					"error":         err.Error(),
				})
			}
		case record.UserID != "":
			if err := s.clearCart(ctx, record.UserID, now); err != nil && !isNotFound(err) {
				s.logger(ctx, "payment.cart_clear_failed", map[string]any{
					"transactionId": record.TransactionID,
					"userId":        record.UserID,
					"error":         err.Error(),
				})
			}
		}
	}

	s.publishSettlement(ctx, record, now)
}

// clearCart empties the purchased cart document without deleting it.
func (s *paymentService) clearCart(ctx context.Context, userID string, now time.Time) error {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.carts.Save(ctx, cart.Cleared(now))
	return err
}

func (s *paymentService) publishSettlement(ctx context.Context, record domain.PaymentRecord, occurredAt time.Time) {
	if s.events == nil {
		return
	}
	event := SettlementEvent{
		OrderID:        record.OrderID,
		TransactionID:  record.TransactionID,
		UserID:         record.UserID,
		SubscriptionID: record.SubscriptionID,
		Status:         string(record.Status),
		Amount:         record.Price,
		Currency:       s.currency,
		OccurredAt:     occurredAt,
	}
	if _, err := s.events.PublishSettlementEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event_publish_failed", map[string]any{
			"transactionId": record.TransactionID,
			"orderId":       record.OrderID,
			"error":         err.Error(),
		})
	}
}

func (s *paymentService) unavailable(ctx context.Context, event string, err error, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["error"] = err.Error()
	s.logger(ctx, event, fields)
	return ErrPaymentUnavailable
}
