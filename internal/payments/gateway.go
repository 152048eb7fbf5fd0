package payments

import (
	"context"
	"errors"
)

// Status enumerates the normalised intent states shared across gateways.
type Status string

const (
	// StatusPending indicates the intent is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the charge as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure or cancellation.
	StatusFailed Status = "failed"
)

// ErrGateway wraps upstream gateway failures. Callers surface it as a generic
// failure without leaking provider detail.
var ErrGateway = errors.New("payments: gateway error")

// CreateIntentRequest captures the payload required to open a payment intent.
type CreateIntentRequest struct {
	// AmountMinorUnits is the charge amount in the currency's smallest unit.
	AmountMinorUnits int64
	Currency         string
	Metadata         map[string]string
	// TestMode requests a pre-confirmed intent using the gateway's fixed test
	// payment method, bypassing real payment-method collection.
	TestMode bool
}

// Intent is the gateway-side object representing one attempted charge.
type Intent struct {
	ID           string
	ClientSecret string
	Status       Status
}

// Gateway is the capability interface the settlement core consumes. The
// gateway's view of an intent is authoritative over local state.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
	// CancelIntent compensates for a local persistence failure after the
	// remote intent was created, so no orphaned intents accumulate upstream.
	CancelIntent(ctx context.Context, id string) error
}
