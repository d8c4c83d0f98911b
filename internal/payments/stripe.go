package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient creates PaymentIntents for balance top-ups. The intent's
// client secret goes back to the rider app; the provider webhook that
// confirms the payment later feeds the recharge processor.
type StripeClient struct {
	Currency string
}

// NewStripeClient configures the stripe SDK with the given API key.
func NewStripeClient(apiKey, currency string) *StripeClient {
	stripe.Key = apiKey
	if currency == "" {
		currency = "egp"
	}
	return &StripeClient{Currency: currency}
}

// CreateTopUpIntent opens a payment for the given amount in minor units,
// tagged with the rider id so the confirmation webhook can be routed.
func (s *StripeClient) CreateTopUpIntent(ctx context.Context, riderID string, amount int64) (id, clientSecret string, err error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(s.Currency),
	}
	params.Context = ctx
	params.AddMetadata("rider_id", riderID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", "", err
	}
	return pi.ID, pi.ClientSecret, nil
}
