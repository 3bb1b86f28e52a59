package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeGateway implements PaymentGateway using Stripe
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{
		config: config,
	}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// ParseWebhook verifies the Stripe-Signature header and maps the event
// to a Notification. The tx_ref is taken from the payment intent
// metadata, falling back to the intent ID for intents created outside
// this system.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Notification, error) {
	if signature == "" {
		return nil, fmt.Errorf("missing Stripe-Signature header")
	}

	event, err := webhook.ConstructEvent(payload, signature, g.config.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to parse event data: %w", err)
	}

	var outcome domain.GatewayOutcome
	switch event.Type {
	case "payment_intent.succeeded":
		outcome = domain.GatewayOutcomeSuccess
	case "payment_intent.payment_failed":
		outcome = domain.GatewayOutcomeFailed
	case "payment_intent.canceled":
		outcome = domain.GatewayOutcomeCancelled
	default:
		outcome = domain.GatewayOutcomeAmbiguous
	}

	return &Notification{
		TxRef:      txRefFromIntent(&pi),
		Outcome:    outcome,
		RawPayload: string(payload),
	}, nil
}

// VerifyTransaction polls Stripe for the current payment intent status
func (g *StripeGateway) VerifyTransaction(ctx context.Context, txRef string) (*Notification, error) {
	if txRef == "" {
		return nil, fmt.Errorf("tx_ref is required")
	}

	pi, err := paymentintent.Get(txRef, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	var outcome domain.GatewayOutcome
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		outcome = domain.GatewayOutcomeSuccess
	case stripe.PaymentIntentStatusCanceled:
		outcome = domain.GatewayOutcomeCancelled
	default:
		// requires_payment_method, requires_action, processing: the
		// intent can still move, so keep the transaction pending.
		outcome = domain.GatewayOutcomeAmbiguous
	}

	raw, _ := json.Marshal(pi)
	return &Notification{
		TxRef:      txRefFromIntent(pi),
		Outcome:    outcome,
		RawPayload: string(raw),
	}, nil
}

func txRefFromIntent(pi *stripe.PaymentIntent) string {
	if ref, ok := pi.Metadata["tx_ref"]; ok && ref != "" {
		return ref
	}
	return pi.ID
}

var _ PaymentGateway = (*StripeGateway)(nil)
