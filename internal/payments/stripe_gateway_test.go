package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newFunc    func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFunc    func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	cancelFunc func(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFunc(params)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFunc(id, params)
}

func (s *stubIntentAPI) Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	return s.cancelFunc(id, params)
}

func TestStripeGatewayCreateIntent(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	api := &stubIntentAPI{
		newFunc: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{
				ID:           "pi_123",
				ClientSecret: "pi_123_secret",
				Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
				Amount:       4599,
				Currency:     "usd",
			}, nil
		},
	}

	gw, err := NewStripeGateway(StripeGatewayConfig{
		Intents: api,
		Clock:   func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	intent, err := gw.CreateIntent(context.Background(), CreateIntentRequest{
		AmountMinorUnits: 4599,
		Currency:         "USD",
		Metadata:         map[string]string{"userId": "user-1", "empty": ""},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent %#v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", intent.Status)
	}
	if captured == nil || *captured.Amount != 4599 {
		t.Fatalf("expected amount forwarded, got %#v", captured)
	}
	if *captured.Currency != "usd" {
		t.Fatalf("expected lowercase currency, got %s", *captured.Currency)
	}
	if captured.Confirm != nil {
		t.Fatalf("expected no confirm outside test mode")
	}
	if _, ok := captured.Metadata["empty"]; ok {
		t.Fatalf("expected empty metadata values dropped")
	}
	if captured.Metadata["userId"] != "user-1" {
		t.Fatalf("expected metadata forwarded, got %#v", captured.Metadata)
	}
}

func TestStripeGatewayCreateIntentLogsElapsed(t *testing.T) {
	api := &stubIntentAPI{
		newFunc: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, nil
		},
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	var events []map[string]any
	gw, err := NewStripeGateway(StripeGatewayConfig{
		Intents: api,
		Clock: func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks-1) * 250 * time.Millisecond)
		},
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			if event == "payments.stripe.intent.created" {
				events = append(events, fields)
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	if _, err := gw.CreateIntent(context.Background(), CreateIntentRequest{AmountMinorUnits: 4599}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected one created event, got %d", len(events))
	}
	elapsed, ok := events[0]["elapsedMs"].(int64)
	if !ok || elapsed != 250 {
		t.Fatalf("expected 250ms elapsed, got %v", events[0]["elapsedMs"])
	}
}

func TestStripeGatewayCreateIntentTestMode(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	api := &stubIntentAPI{
		newFunc: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{
				ID:           "pi_test",
				ClientSecret: "pi_test_secret",
				Status:       stripe.PaymentIntentStatusSucceeded,
			}, nil
		},
	}

	gw, err := NewStripeGateway(StripeGatewayConfig{Intents: api})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	intent, err := gw.CreateIntent(context.Background(), CreateIntentRequest{
		AmountMinorUnits: 2999,
		Currency:         "usd",
		TestMode:         true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if intent.Status != StatusSucceeded {
		t.Fatalf("expected succeeded status, got %s", intent.Status)
	}
	if captured.Confirm == nil || !*captured.Confirm {
		t.Fatalf("expected test mode to request confirmation")
	}
	if captured.PaymentMethod == nil || *captured.PaymentMethod != stripeTestPaymentMethod {
		t.Fatalf("expected fixed test payment method, got %#v", captured.PaymentMethod)
	}
	if captured.AutomaticPaymentMethods == nil || captured.AutomaticPaymentMethods.AllowRedirects == nil {
		t.Fatalf("expected redirects disabled in test mode")
	}
}

func TestStripeGatewayCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	gw, err := NewStripeGateway(StripeGatewayConfig{Intents: &stubIntentAPI{}})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}
	if _, err := gw.CreateIntent(context.Background(), CreateIntentRequest{AmountMinorUnits: 0}); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestStripeGatewayRetrieveIntentStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		stripe stripe.PaymentIntentStatus
		want   Status
	}{
		{"succeeded", stripe.PaymentIntentStatusSucceeded, StatusSucceeded},
		{"canceled", stripe.PaymentIntentStatusCanceled, StatusFailed},
		{"requires_payment_method", stripe.PaymentIntentStatusRequiresPaymentMethod, StatusPending},
		{"processing", stripe.PaymentIntentStatusProcessing, StatusPending},
		{"requires_action", stripe.PaymentIntentStatusRequiresAction, StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &stubIntentAPI{
				getFunc: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
					return &stripe.PaymentIntent{ID: id, Status: tc.stripe}, nil
				},
			}
			gw, err := NewStripeGateway(StripeGatewayConfig{Intents: api})
			if err != nil {
				t.Fatalf("unexpected error constructing gateway: %v", err)
			}
			intent, err := gw.RetrieveIntent(context.Background(), "pi_1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if intent.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, intent.Status)
			}
		})
	}
}

func TestStripeGatewayWrapsUpstreamErrors(t *testing.T) {
	api := &stubIntentAPI{
		getFunc: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, errors.New("boom")
		},
		cancelFunc: func(string, *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
			return nil, errors.New("boom")
		},
	}
	gw, err := NewStripeGateway(StripeGatewayConfig{Intents: api})
	if err != nil {
		t.Fatalf("unexpected error constructing gateway: %v", err)
	}

	if _, err := gw.RetrieveIntent(context.Background(), "pi_1"); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if err := gw.CancelIntent(context.Background(), "pi_1"); !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}
