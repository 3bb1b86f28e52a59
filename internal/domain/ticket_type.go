package domain

import (
	"strings"
	"time"
)

// TicketType represents a sellable ticket category for an event
type TicketType struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	Name          string     `json:"name"`
	Price         float64    `json:"price"`
	IsFree        bool       `json:"is_free"`
	Quantity      int        `json:"quantity"`
	Sold          int        `json:"sold"`
	MaxPerUser    int        `json:"max_per_user"` // 0 = unlimited
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	AvailableTo   *time.Time `json:"available_to,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validate validates all ticket type fields
func (t *TicketType) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrInvalidTicketType
	}
	if strings.TrimSpace(t.EventID) == "" {
		return ErrInvalidEventID
	}
	if t.Price < 0 {
		return ErrInvalidUnitPrice
	}
	if t.IsFree && t.Price != 0 {
		return ErrInvalidPriceForFree
	}
	if t.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if t.AvailableFrom != nil && t.AvailableTo != nil && !t.AvailableTo.After(*t.AvailableFrom) {
		return ErrInvalidSaleWindow
	}
	return nil
}

// Available returns the number of unsold tickets
func (t *TicketType) Available() int {
	remaining := t.Quantity - t.Sold
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SaleOpenAt checks if the sale window is open at a specific time
func (t *TicketType) SaleOpenAt(now time.Time) bool {
	if !t.Active {
		return false
	}
	if t.AvailableFrom != nil && now.Before(*t.AvailableFrom) {
		return false
	}
	if t.AvailableTo != nil && now.After(*t.AvailableTo) {
		return false
	}
	return true
}

// SaleOpen checks if the sale window is open now
func (t *TicketType) SaleOpen() bool {
	return t.SaleOpenAt(time.Now().UTC())
}

// AllowsQuantityForUser checks a requested quantity against the per-user cap,
// given how many tickets the user already holds in non-cancelled bookings
func (t *TicketType) AllowsQuantityForUser(alreadyHeld, requested int) bool {
	if t.MaxPerUser <= 0 {
		return true
	}
	return alreadyHeld+requested <= t.MaxPerUser
}
