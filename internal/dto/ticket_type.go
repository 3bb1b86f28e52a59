package dto

import (
	"time"

	"github.com/eventlane/ticketing/internal/domain"
)

// CreateTicketTypeRequest represents request to create a ticket type
type CreateTicketTypeRequest struct {
	EventID       string     `json:"event_id" binding:"required"`
	Name          string     `json:"name" binding:"required"`
	Price         float64    `json:"price"`
	IsFree        bool       `json:"is_free"`
	Quantity      int        `json:"quantity" binding:"required,min=1"`
	MaxPerUser    int        `json:"max_per_user"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	AvailableTo   *time.Time `json:"available_to,omitempty"`
}

// UpdateTicketTypeRequest represents request to update a ticket type.
// All fields are required; the update replaces the mutable fields.
type UpdateTicketTypeRequest struct {
	Name          string     `json:"name" binding:"required"`
	Price         float64    `json:"price"`
	IsFree        bool       `json:"is_free"`
	Quantity      int        `json:"quantity" binding:"required,min=1"`
	MaxPerUser    int        `json:"max_per_user"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	AvailableTo   *time.Time `json:"available_to,omitempty"`
}

// SetTicketTypeActiveRequest toggles the soft-disable flag
type SetTicketTypeActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// TicketTypeResponse represents a ticket type in API response
type TicketTypeResponse struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	Name          string     `json:"name"`
	Price         float64    `json:"price"`
	IsFree        bool       `json:"is_free"`
	Quantity      int        `json:"quantity"`
	Sold          int        `json:"sold"`
	Available     int        `json:"available"`
	MaxPerUser    int        `json:"max_per_user"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	AvailableTo   *time.Time `json:"available_to,omitempty"`
	Active        bool       `json:"active"`
	OnSale        bool       `json:"on_sale"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TicketTypeFromDomain converts domain TicketType to TicketTypeResponse
func TicketTypeFromDomain(tt *domain.TicketType) *TicketTypeResponse {
	return &TicketTypeResponse{
		ID:            tt.ID,
		EventID:       tt.EventID,
		Name:          tt.Name,
		Price:         tt.Price,
		IsFree:        tt.IsFree,
		Quantity:      tt.Quantity,
		Sold:          tt.Sold,
		Available:     tt.Available(),
		MaxPerUser:    tt.MaxPerUser,
		AvailableFrom: tt.AvailableFrom,
		AvailableTo:   tt.AvailableTo,
		Active:        tt.Active,
		OnSale:        tt.SaleOpen(),
		CreatedAt:     tt.CreatedAt,
		UpdatedAt:     tt.UpdatedAt,
	}
}
