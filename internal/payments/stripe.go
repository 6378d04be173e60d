package payments

import (
	"context"
	"encoding/json"
	"errors"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"
)

// Client wraps stripe-go for the wallet top-up flow: create a
// PaymentIntent tagged with the user, then turn the succeeded webhook
// into a verified (userID, amount, externalRef) tuple for the ledger.
type Client struct {
	webhookSecret string
	currency      string
}

func NewClient(apiKey, webhookSecret, currency string) *Client {
	stripe.Key = apiKey
	if currency == "" {
		currency = "inr"
	}
	return &Client{webhookSecret: webhookSecret, currency: currency}
}

type TopUpIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CreateTopUpIntent opens a PaymentIntent for amount (smallest currency
// unit). The user id rides in the metadata and comes back on the webhook.
func (c *Client) CreateTopUpIntent(ctx context.Context, userID string, amount int64) (*TopUpIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(c.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &TopUpIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// TopUpEvent is a verified funding confirmation.
type TopUpEvent struct {
	UserID      string
	Amount      int64
	ExternalRef string
}

// VerifyTopUp checks the webhook signature and extracts the funding
// tuple. ok is false for event types the wallet does not care about.
func (c *Client) VerifyTopUp(payload []byte, sigHeader string) (ev TopUpEvent, ok bool, err error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, c.webhookSecret)
	if err != nil {
		return TopUpEvent{}, false, err
	}
	if event.Type != "payment_intent.succeeded" {
		return TopUpEvent{}, false, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return TopUpEvent{}, false, err
	}
	userID := pi.Metadata["userId"]
	if userID == "" {
		return TopUpEvent{}, false, errors.New("payment intent missing userId metadata")
	}
	return TopUpEvent{UserID: userID, Amount: pi.Amount, ExternalRef: pi.ID}, true, nil
}
