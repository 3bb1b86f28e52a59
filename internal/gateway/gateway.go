package gateway

import (
	"context"

	"github.com/eventlane/ticketing/internal/domain"
)

// Notification is a gateway's report about a transaction, either pushed
// through a webhook or pulled by polling. Outcome is already mapped to
// the internal vocabulary; RawPayload keeps the untouched gateway body
// for audit.
type Notification struct {
	TxRef      string
	Outcome    domain.GatewayOutcome
	RawPayload string
}

// PaymentGateway adapts an external payment provider. The reconciler
// never talks to a provider SDK directly; it only sees Notifications.
type PaymentGateway interface {
	// Name identifies the provider ("mock", "stripe").
	Name() string

	// ParseWebhook authenticates and decodes a raw webhook delivery.
	// The signature argument carries the provider's signature header
	// and may be empty for providers that do not sign.
	ParseWebhook(payload []byte, signature string) (*Notification, error)

	// VerifyTransaction polls the provider for the current state of a
	// transaction. Used by the reconcile worker for payments stuck in
	// pending past the grace period.
	VerifyTransaction(ctx context.Context, txRef string) (*Notification, error)
}
