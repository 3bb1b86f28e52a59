package domain

import (
	"crypto/rand"
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCheckedIn BookingStatus = "checked_in"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCheckedIn:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is allowed from the status
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCheckedIn
}

// bookingTransitions is the full set of allowed status transitions
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCheckedIn, BookingStatusCancelled},
	BookingStatusCancelled: {},
	BookingStatusCheckedIn: {},
}

// CanTransitionTo checks whether the transition from s to target is allowed
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Cancellation actor values recorded in StatusReason
const (
	CancelledByUser      = "user"
	CancelledByOrganizer = "organizer"
	CancelledByPayment   = "payment_failed"
	ExpiredByTimeout     = "system/timeout"
)

// Booking represents a booking entity
type Booking struct {
	ID           string        `json:"id"`
	Reference    string        `json:"booking_reference"`
	UserID       string        `json:"user_id"`
	EventID      string        `json:"event_id"`
	TicketTypeID string        `json:"ticket_type_id"`
	Quantity     int           `json:"quantity"`
	UnitPrice    float64       `json:"unit_price"`
	TotalPrice   float64       `json:"total_price"`
	Currency     string        `json:"currency"`
	Status       BookingStatus `json:"status"`
	StatusReason string        `json:"status_reason,omitempty"`
	CheckInTime  *time.Time    `json:"check_in_time,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Validate validates all booking fields
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrInvalidBookingID
	}
	if strings.TrimSpace(b.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(b.EventID) == "" {
		return ErrInvalidEventID
	}
	if strings.TrimSpace(b.TicketTypeID) == "" {
		return ErrInvalidTicketType
	}
	if b.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if b.UnitPrice < 0 {
		return ErrInvalidUnitPrice
	}
	if b.TotalPrice < 0 {
		return ErrInvalidTotalPrice
	}
	if !b.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Transition moves the booking to the target status, enforcing the
// transition table. The booking is left unchanged on error.
func (b *Booking) Transition(target BookingStatus, reason string) error {
	if !b.Status.CanTransitionTo(target) {
		return ErrInvalidStateTransition
	}
	now := time.Now().UTC()
	b.Status = target
	b.StatusReason = reason
	if target == BookingStatusCheckedIn {
		b.CheckInTime = &now
	}
	b.UpdatedAt = now
	return nil
}

// IsPending checks if the booking is awaiting payment
func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// IsConfirmed checks if the booking is confirmed
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// IsCancelled checks if the booking is cancelled
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// IsCheckedIn checks if the booking has been scanned at the venue
func (b *Booking) IsCheckedIn() bool {
	return b.Status == BookingStatusCheckedIn
}

// HoldsInventory returns true while the booking counts against sold
func (b *Booking) HoldsInventory() bool {
	return b.Status != BookingStatusCancelled
}

// BelongsToUser checks if the booking belongs to the specified user
func (b *Booking) BelongsToUser(userID string) bool {
	return b.UserID == userID
}

// referenceAlphabet omits 0/O and 1/I to keep references readable over the phone
const referenceAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewBookingReference generates a random booking reference of the given
// length. Uniqueness is enforced by the store, callers retry on collision.
func NewBookingReference(length int) (string, error) {
	if length < 6 {
		length = 6
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return string(buf), nil
}
