package dto

import (
	"time"

	"github.com/eventlane/ticketing/internal/domain"
)

// CreateBookingRequest represents request to create a booking
type CreateBookingRequest struct {
	TicketTypeID string `json:"ticket_type_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,min=1"`
}

// CancelBookingResponse represents response after cancelling a booking
type CancelBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// CheckInResponse represents response after checking in a booking
type CheckInResponse struct {
	BookingID   string     `json:"booking_id"`
	Reference   string     `json:"booking_reference"`
	Status      string     `json:"status"`
	CheckInTime *time.Time `json:"check_in_time,omitempty"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID           string     `json:"id"`
	Reference    string     `json:"booking_reference"`
	UserID       string     `json:"user_id"`
	EventID      string     `json:"event_id"`
	TicketTypeID string     `json:"ticket_type_id"`
	Quantity     int        `json:"quantity"`
	UnitPrice    float64    `json:"unit_price"`
	TotalPrice   float64    `json:"total_price"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	CheckInTime  *time.Time `json:"check_in_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PaginatedResponse wraps a page of booking responses
type PaginatedResponse struct {
	Data     []*BookingResponse `json:"data"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:           b.ID,
		Reference:    b.Reference,
		UserID:       b.UserID,
		EventID:      b.EventID,
		TicketTypeID: b.TicketTypeID,
		Quantity:     b.Quantity,
		UnitPrice:    b.UnitPrice,
		TotalPrice:   b.TotalPrice,
		Currency:     b.Currency,
		Status:       string(b.Status),
		StatusReason: b.StatusReason,
		CheckInTime:  b.CheckInTime,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}
