package domain

import (
	"strings"
	"time"
)

// TransactionStatus represents the status of a payment transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSuccess   TransactionStatus = "success"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// IsValid checks if the status is a valid TransactionStatus
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of TransactionStatus
func (s TransactionStatus) String() string {
	return string(s)
}

// IsTerminal returns true once the transaction reached a final state
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

// GatewayOutcome is the normalized result reported by a payment gateway
type GatewayOutcome string

const (
	GatewayOutcomeSuccess   GatewayOutcome = "success"
	GatewayOutcomeFailed    GatewayOutcome = "failed"
	GatewayOutcomeCancelled GatewayOutcome = "cancelled"
	GatewayOutcomeAmbiguous GatewayOutcome = "ambiguous" // processing, requires_action, ...
)

// MapOutcome translates a gateway outcome to a transaction status. Ambiguous
// outcomes keep the transaction pending.
func MapOutcome(outcome GatewayOutcome) TransactionStatus {
	switch outcome {
	case GatewayOutcomeSuccess:
		return TransactionStatusSuccess
	case GatewayOutcomeFailed:
		return TransactionStatusFailed
	case GatewayOutcomeCancelled:
		return TransactionStatusCancelled
	default:
		return TransactionStatusPending
	}
}

// PaymentTransaction records one payment attempt against a booking.
// TxRef is the gateway's idempotency key, transactions are never deleted.
type PaymentTransaction struct {
	ID             string            `json:"id"`
	BookingID      string            `json:"booking_id"`
	TxRef          string            `json:"tx_ref"`
	Amount         float64           `json:"amount"`
	Currency       string            `json:"currency"`
	Status         TransactionStatus `json:"status"`
	Gateway        string            `json:"gateway"`
	GatewayPayload string            `json:"gateway_payload,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Validate validates all transaction fields
func (p *PaymentTransaction) Validate() error {
	if strings.TrimSpace(p.BookingID) == "" {
		return ErrInvalidBookingID
	}
	if strings.TrimSpace(p.TxRef) == "" {
		return ErrInvalidTxRef
	}
	if p.Amount < 0 {
		return ErrInvalidAmount
	}
	if !p.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// IsFinal returns true if the transaction is in a final state
func (p *PaymentTransaction) IsFinal() bool {
	return p.Status.IsTerminal()
}

// IsSuccessful returns true if the transaction succeeded
func (p *PaymentTransaction) IsSuccessful() bool {
	return p.Status == TransactionStatusSuccess
}

// Resolve moves a pending transaction to the status mapped from a gateway
// outcome. Replays of the same terminal outcome are a no-op; a different
// terminal outcome is a reconciliation conflict.
func (p *PaymentTransaction) Resolve(outcome GatewayOutcome) error {
	mapped := MapOutcome(outcome)
	if p.IsFinal() {
		if p.Status == mapped {
			return nil
		}
		return ErrReconciliationConflict
	}
	if mapped == TransactionStatusPending {
		return nil
	}
	p.Status = mapped
	p.UpdatedAt = time.Now().UTC()
	return nil
}
