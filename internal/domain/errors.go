package domain

import "errors"

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound        = errors.New("booking not found")
	ErrInvalidStateTransition = errors.New("invalid booking state transition")
	ErrBookingNotPending      = errors.New("booking is not pending")
	ErrReferenceCollision     = errors.New("booking reference already in use")

	// Ticket type errors
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrTicketTypeInactive = errors.New("ticket type is not active")
	ErrSaleWindowClosed   = errors.New("ticket sale window is closed")
	ErrQuantityBelowSold  = errors.New("quantity cannot drop below tickets already sold")

	// Inventory errors
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrPerUserLimitExceeded  = errors.New("per-user ticket limit exceeded")

	// Payment errors
	ErrTransactionNotFound    = errors.New("payment transaction not found")
	ErrDuplicateTxRef         = errors.New("transaction reference already recorded")
	ErrReconciliationConflict = errors.New("gateway status conflicts with recorded transaction")

	// Validation errors
	ErrInvalidUserID       = errors.New("invalid user id")
	ErrInvalidBookingID    = errors.New("invalid booking id")
	ErrInvalidEventID      = errors.New("invalid event id")
	ErrInvalidTicketType   = errors.New("invalid ticket type id")
	ErrInvalidQuantity     = errors.New("quantity must be greater than zero")
	ErrInvalidUnitPrice    = errors.New("unit price cannot be negative")
	ErrInvalidTotalPrice   = errors.New("total price cannot be negative")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidTxRef        = errors.New("invalid transaction reference")
	ErrInvalidAmount       = errors.New("amount cannot be negative")
	ErrInvalidSaleWindow   = errors.New("sale window end must be after start")
	ErrInvalidPriceForFree = errors.New("free ticket types must have zero price")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrTicketTypeNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidTicketType) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidUnitPrice) ||
		errors.Is(err, ErrInvalidTotalPrice) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidTxRef) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidSaleWindow) ||
		errors.Is(err, ErrInvalidPriceForFree)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrBookingNotPending) ||
		errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrPerUserLimitExceeded) ||
		errors.Is(err, ErrSaleWindowClosed) ||
		errors.Is(err, ErrQuantityBelowSold) ||
		errors.Is(err, ErrDuplicateTxRef) ||
		errors.Is(err, ErrReconciliationConflict)
}
