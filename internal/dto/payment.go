package dto

import (
	"time"

	"github.com/eventlane/ticketing/internal/domain"
)

// InitiatePaymentRequest represents request to record a payment attempt
// for a booking. TxRef is optional; one is generated when absent.
type InitiatePaymentRequest struct {
	TxRef string `json:"tx_ref,omitempty"`
}

// PaymentResponse represents a payment transaction in API response
type PaymentResponse struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	TxRef     string    `json:"tx_ref"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Gateway   string    `json:"gateway"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookRequest represents a gateway webhook notification for the mock
// gateway. Stripe deliveries arrive as signed events and are decoded by
// the gateway instead.
type WebhookRequest struct {
	TxRef  string `json:"tx_ref" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// WebhookAck is the body returned to the gateway for every delivery
type WebhookAck struct {
	Received bool   `json:"received"`
	Result   string `json:"result,omitempty"`
}

// PaymentFromDomain converts a domain PaymentTransaction to PaymentResponse
func PaymentFromDomain(tx *domain.PaymentTransaction) *PaymentResponse {
	return &PaymentResponse{
		ID:        tx.ID,
		BookingID: tx.BookingID,
		TxRef:     tx.TxRef,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Status:    string(tx.Status),
		Gateway:   tx.Gateway,
		CreatedAt: tx.CreatedAt,
		UpdatedAt: tx.UpdatedAt,
	}
}
