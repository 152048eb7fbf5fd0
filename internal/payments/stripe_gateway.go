package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Stripe's well-known test payment method, accepted only by test-mode keys.
const stripeTestPaymentMethod = "pm_card_visa"

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   GatewayLogger
	Clock    func() time.Time
	// Intents overrides the Stripe client, used by tests.
	Intents stripeIntentAPI
}

// StripeGateway implements Gateway on top of Stripe Payment Intents.
type StripeGateway struct {
	intents stripeIntentAPI
	clock   func() time.Time
	logger  GatewayLogger
}

// NewStripeGateway constructs a Stripe-backed Gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		intents: intents,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// CreateIntent opens a Stripe Payment Intent for the requested amount.
func (g *StripeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	if g == nil || g.intents == nil {
		return Intent{}, errors.New("stripe: gateway is nil")
	}
	if req.AmountMinorUnits <= 0 {
		return Intent{}, fmt.Errorf("stripe: amount must be positive, got %d", req.AmountMinorUnits)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinorUnits),
		Currency: stripe.String(currency),
	}
	params.Context = ctx

	if req.TestMode {
		// Pre-confirmed intent with the fixed test card. Redirect-based
		// methods cannot complete without a return URL, so disallow them.
		params.PaymentMethod = stripe.String(stripeTestPaymentMethod)
		params.Confirm = stripe.Bool(true)
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String(string(stripe.PaymentIntentAutomaticPaymentMethodsAllowRedirectsNever)),
		}
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}

	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
				continue
			}
			params.Metadata[k] = v
		}
	}

	started := g.clock()
	intent, err := g.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: create payment intent: %v", ErrGateway, err)
	}

	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
		"testMode":      req.TestMode,
		"elapsedMs":     g.clock().Sub(started).Milliseconds(),
	})

	return stripeIntent(intent), nil
}

// RetrieveIntent fetches the current authoritative state of an intent.
func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (Intent, error) {
	if g == nil || g.intents == nil {
		return Intent{}, errors.New("stripe: gateway is nil")
	}
	intentID := strings.TrimSpace(id)
	if intentID == "" {
		return Intent{}, fmt.Errorf("%w: intent id is required", ErrGateway)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := g.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: retrieve payment intent: %v", ErrGateway, err)
	}
	return stripeIntent(intent), nil
}

// CancelIntent voids a remote intent that has no matching local record.
func (g *StripeGateway) CancelIntent(ctx context.Context, id string) error {
	if g == nil || g.intents == nil {
		return errors.New("stripe: gateway is nil")
	}
	intentID := strings.TrimSpace(id)
	if intentID == "" {
		return fmt.Errorf("%w: intent id is required", ErrGateway)
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.intents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("%w: cancel payment intent: %v", ErrGateway, err)
	}
	g.logger(ctx, "payments.stripe.intent.cancelled", map[string]any{
		"paymentIntent": intentID,
	})
	return nil
}

func stripeIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusProcessing:
		status = StatusPending
	}

	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       status,
	}
}

var _ Gateway = (*StripeGateway)(nil)
