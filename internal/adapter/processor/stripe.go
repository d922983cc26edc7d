package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// StripeAuthorizer implements ports.PaymentAuthorizer against the
// Stripe PaymentIntents API. A card decline is a final outcome; any
// other failure (network, Stripe 5xx, rate limit) is returned as an
// error so the engine retries it.
type StripeAuthorizer struct {
	api      *client.API
	currency string
}

// NewStripeAuthorizer creates a Stripe-backed authorizer.
func NewStripeAuthorizer(secretKey, currency string) *StripeAuthorizer {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeAuthorizer{api: api, currency: currency}
}

// Authorize confirms a PaymentIntent for the given amount. The ledger
// transaction ID rides along as metadata so declines can be traced
// back from the Stripe dashboard.
func (a *StripeAuthorizer) Authorize(ctx context.Context, transactionID uuid.UUID, amount int64, methodRef string) (ports.AuthResult, error) {
	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(a.currency),
		PaymentMethod: stripe.String(methodRef),
		Confirm:       stripe.Bool(true),
	}
	params.AddMetadata("transaction_id", transactionID.String())

	pi, err := a.api.PaymentIntents.New(params)
	if err != nil {
		if declined, reason := classifyStripeError(err); declined {
			return ports.AuthResult{Outcome: ports.AuthDeclined, Reason: reason}, nil
		}
		return ports.AuthResult{}, fmt.Errorf("stripe payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return ports.AuthResult{Outcome: ports.AuthApproved}, nil
	default:
		return ports.AuthResult{
			Outcome: ports.AuthDeclined,
			Reason:  fmt.Sprintf("payment intent status %s", pi.Status),
		}, nil
	}
}

// classifyStripeError separates final card declines from transient
// failures. Only card errors are final.
func classifyStripeError(err error) (declined bool, reason string) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return true, stripeErr.Msg
	}
	return false, ""
}
