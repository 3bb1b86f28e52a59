package domain

import "time"

// BookingEventType identifies a booking lifecycle event
type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventCheckedIn BookingEventType = "booking.checked_in"
	RefundEventRequired   BookingEventType = "refund.required"
)

// BookingEvent is the envelope published for booking lifecycle changes
type BookingEvent struct {
	EventID    string           `json:"event_id"`
	Type       BookingEventType `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Booking    *Booking         `json:"booking"`
}

// NewBookingEvent creates an event envelope for the given booking
func NewBookingEvent(eventType BookingEventType, booking *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:    eventID,
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Booking:    booking,
	}
}

// Key returns the partition key for the event. Events for the same booking
// share a key so consumers see them in order.
func (e *BookingEvent) Key() string {
	return e.Booking.ID
}
