package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/eventlane/ticketing/internal/domain"
)

// mockWebhookBody is the delivery shape the mock provider posts
type mockWebhookBody struct {
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
}

// MockGateway implements PaymentGateway for local development and load
// testing. Webhook payloads are plain JSON and unsigned; polled outcomes
// come from an in-memory table seeded via SetOutcome.
type MockGateway struct {
	mu       sync.RWMutex
	outcomes map[string]domain.GatewayOutcome
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{
		outcomes: make(map[string]domain.GatewayOutcome),
	}
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// ParseWebhook decodes a mock webhook delivery. The mock provider does
// not sign deliveries, so the signature is ignored.
func (g *MockGateway) ParseWebhook(payload []byte, signature string) (*Notification, error) {
	var body mockWebhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if body.TxRef == "" {
		return nil, fmt.Errorf("webhook payload missing tx_ref")
	}

	return &Notification{
		TxRef:      body.TxRef,
		Outcome:    mapMockStatus(body.Status),
		RawPayload: string(payload),
	}, nil
}

// VerifyTransaction returns the seeded outcome for the transaction, or
// ambiguous when none was seeded.
func (g *MockGateway) VerifyTransaction(ctx context.Context, txRef string) (*Notification, error) {
	if txRef == "" {
		return nil, fmt.Errorf("tx_ref is required")
	}

	g.mu.RLock()
	outcome, ok := g.outcomes[txRef]
	g.mu.RUnlock()

	if !ok {
		outcome = domain.GatewayOutcomeAmbiguous
	}

	payload, _ := json.Marshal(mockWebhookBody{TxRef: txRef, Status: string(outcome)})
	return &Notification{
		TxRef:      txRef,
		Outcome:    outcome,
		RawPayload: string(payload),
	}, nil
}

// SetOutcome seeds the polled outcome for a transaction (for testing)
func (g *MockGateway) SetOutcome(txRef string, outcome domain.GatewayOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcomes[txRef] = outcome
}

// mapMockStatus maps the mock provider's status strings to outcomes
func mapMockStatus(status string) domain.GatewayOutcome {
	switch status {
	case "success", "succeeded", "completed":
		return domain.GatewayOutcomeSuccess
	case "failed", "declined":
		return domain.GatewayOutcomeFailed
	case "cancelled", "canceled":
		return domain.GatewayOutcomeCancelled
	default:
		return domain.GatewayOutcomeAmbiguous
	}
}

var _ PaymentGateway = (*MockGateway)(nil)
