package repository

import (
	"context"
	"time"

	"github.com/eventlane/ticketing/internal/domain"
)

// TicketTypeRepository manages ticket type records and their inventory
// counters. Sold counts only move through Reserve/Release style updates
// performed by BookingRepository inside its transactions.
type TicketTypeRepository interface {
	Create(ctx context.Context, tt *domain.TicketType) error
	GetByID(ctx context.Context, id string) (*domain.TicketType, error)
	GetByEventID(ctx context.Context, eventID string) ([]*domain.TicketType, error)
	Update(ctx context.Context, tt *domain.TicketType) error
	SetActive(ctx context.Context, id string, active bool) error
}

// BookingRepository manages booking records. Methods that move inventory
// run the booking mutation and the sold-counter mutation in one database
// transaction.
type BookingRepository interface {
	// CreateWithReservation atomically increments the ticket type's sold
	// counter and inserts the booking. Returns ErrInsufficientInventory,
	// ErrPerUserLimitExceeded or ErrSaleWindowClosed without mutating
	// anything when the reservation cannot be granted.
	CreateWithReservation(ctx context.Context, booking *domain.Booking) error

	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)

	// CancelAndRelease atomically flips the booking to cancelled (claiming
	// it from one of the allowed source statuses) and returns its quantity
	// to the ticket type. Returns ErrInvalidStateTransition when the
	// booking is already terminal.
	CancelAndRelease(ctx context.Context, id string, from []domain.BookingStatus, reason string) (*domain.Booking, error)

	// CheckIn flips a confirmed booking to checked_in. A booking that is
	// already checked in is returned as-is (idempotent success).
	CheckIn(ctx context.Context, id string) (*domain.Booking, error)

	// GetExpiredPending returns pending bookings created before the cutoff
	// that have no successful payment transaction.
	GetExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)

	// ExpireAndRelease cancels a stale pending booking and releases its
	// inventory. The conditional status update is the claim, so concurrent
	// sweepers expire a booking at most once; the loser gets
	// ErrInvalidStateTransition.
	ExpireAndRelease(ctx context.Context, id string, cutoff time.Time) (*domain.Booking, error)

	// CountHeldByUser returns the total ticket quantity the user holds in
	// non-cancelled bookings of the ticket type.
	CountHeldByUser(ctx context.Context, userID, ticketTypeID string) (int, error)
}

// PaymentRepository manages payment transactions. Resolution methods mutate
// the transaction and its booking in one database transaction.
type PaymentRepository interface {
	// Create inserts a pending transaction. Returns ErrDuplicateTxRef when
	// the tx_ref is already recorded.
	Create(ctx context.Context, tx *domain.PaymentTransaction) error

	GetByTxRef(ctx context.Context, txRef string) (*domain.PaymentTransaction, error)
	GetByBookingID(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error)

	// SucceededExistsForBooking reports whether the booking already has a
	// successful transaction.
	SucceededExistsForBooking(ctx context.Context, bookingID string) (bool, error)

	// ResolveSuccess claims the pending transaction, marks it successful and
	// confirms the booking, all in one transaction. When the booking is no
	// longer pending the payment still resolves and the booking is returned
	// unchanged so the caller can decide about refunds.
	ResolveSuccess(ctx context.Context, txRef, payload string) (*domain.PaymentTransaction, *domain.Booking, error)

	// ResolveFailure claims the pending transaction, marks it failed or
	// cancelled, cancels the pending booking and releases its inventory,
	// all in one transaction.
	ResolveFailure(ctx context.Context, txRef string, status domain.TransactionStatus, payload string) (*domain.PaymentTransaction, *domain.Booking, error)

	// RecordPayload stores the latest raw gateway payload for audit without
	// touching status.
	RecordPayload(ctx context.Context, txRef, payload string) error

	// GetStalePending returns pending transactions created before the
	// cutoff, oldest first.
	GetStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error)
}
