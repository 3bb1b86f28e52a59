package service

import (
	"context"
	"time"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/internal/dto"
	"github.com/eventlane/ticketing/internal/repository"
	"github.com/eventlane/ticketing/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TicketTypeService defines the organizer-facing ticket type operations.
// Inventory counters are never written here; the sold count only moves
// through booking reservations.
type TicketTypeService interface {
	// CreateTicketType creates a new ticket type, active by default
	CreateTicketType(ctx context.Context, req *dto.CreateTicketTypeRequest) (*dto.TicketTypeResponse, error)

	// GetTicketType retrieves a ticket type with its current availability
	GetTicketType(ctx context.Context, ticketTypeID string) (*dto.TicketTypeResponse, error)

	// ListEventTicketTypes retrieves all ticket types of an event
	ListEventTicketTypes(ctx context.Context, eventID string) ([]*dto.TicketTypeResponse, error)

	// UpdateTicketType replaces the mutable fields of a ticket type.
	// Quantity cannot drop below the tickets already sold.
	UpdateTicketType(ctx context.Context, ticketTypeID string, req *dto.UpdateTicketTypeRequest) (*dto.TicketTypeResponse, error)

	// SetTicketTypeActive soft-enables or soft-disables sales. Existing
	// bookings are untouched; an inactive type only rejects new ones.
	SetTicketTypeActive(ctx context.Context, ticketTypeID string, active bool) (*dto.TicketTypeResponse, error)
}

// ticketTypeService implements TicketTypeService
type ticketTypeService struct {
	ticketTypeRepo repository.TicketTypeRepository
}

// NewTicketTypeService creates a new ticket type service
func NewTicketTypeService(ticketTypeRepo repository.TicketTypeRepository) TicketTypeService {
	return &ticketTypeService{ticketTypeRepo: ticketTypeRepo}
}

// CreateTicketType creates a new ticket type, active by default
func (s *ticketTypeService) CreateTicketType(ctx context.Context, req *dto.CreateTicketTypeRequest) (*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.create")
	defer span.End()

	if req == nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, domain.ErrInvalidTicketType
	}

	span.SetAttributes(
		attribute.String("event_id", req.EventID),
		attribute.Int("quantity", req.Quantity),
	)

	now := time.Now().UTC()
	tt := &domain.TicketType{
		ID:            uuid.New().String(),
		EventID:       req.EventID,
		Name:          req.Name,
		Price:         req.Price,
		IsFree:        req.IsFree,
		Quantity:      req.Quantity,
		MaxPerUser:    req.MaxPerUser,
		AvailableFrom: req.AvailableFrom,
		AvailableTo:   req.AvailableTo,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tt.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.ticketTypeRepo.Create(ctx, tt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("ticket_type_id", tt.ID))
	span.SetStatus(codes.Ok, "")
	return dto.TicketTypeFromDomain(tt), nil
}

// GetTicketType retrieves a ticket type with its current availability
func (s *ticketTypeService) GetTicketType(ctx context.Context, ticketTypeID string) (*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.get")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	if ticketTypeID == "" {
		span.SetStatus(codes.Error, "invalid ticket_type_id")
		return nil, domain.ErrInvalidTicketType
	}

	tt, err := s.ticketTypeRepo.GetByID(ctx, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.TicketTypeFromDomain(tt), nil
}

// ListEventTicketTypes retrieves all ticket types of an event
func (s *ticketTypeService) ListEventTicketTypes(ctx context.Context, eventID string) ([]*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.list_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	types, err := s.ticketTypeRepo.GetByEventID(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	responses := make([]*dto.TicketTypeResponse, len(types))
	for i, tt := range types {
		responses[i] = dto.TicketTypeFromDomain(tt)
	}

	span.SetAttributes(attribute.Int("count", len(responses)))
	span.SetStatus(codes.Ok, "")
	return responses, nil
}

// UpdateTicketType replaces the mutable fields of a ticket type
func (s *ticketTypeService) UpdateTicketType(ctx context.Context, ticketTypeID string, req *dto.UpdateTicketTypeRequest) (*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.update")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	if ticketTypeID == "" {
		span.SetStatus(codes.Error, "invalid ticket_type_id")
		return nil, domain.ErrInvalidTicketType
	}
	if req == nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, domain.ErrInvalidTicketType
	}

	existing, err := s.ticketTypeRepo.GetByID(ctx, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Shrinking below sold would make the inventory counter inconsistent
	if req.Quantity < existing.Sold {
		span.SetStatus(codes.Error, "quantity below sold")
		return nil, domain.ErrQuantityBelowSold
	}

	existing.Name = req.Name
	existing.Price = req.Price
	existing.IsFree = req.IsFree
	existing.Quantity = req.Quantity
	existing.MaxPerUser = req.MaxPerUser
	existing.AvailableFrom = req.AvailableFrom
	existing.AvailableTo = req.AvailableTo
	existing.UpdatedAt = time.Now().UTC()

	if err := existing.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.ticketTypeRepo.Update(ctx, existing); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.TicketTypeFromDomain(existing), nil
}

// SetTicketTypeActive soft-enables or soft-disables sales
func (s *ticketTypeService) SetTicketTypeActive(ctx context.Context, ticketTypeID string, active bool) (*dto.TicketTypeResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.set_active")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Bool("active", active),
	)

	if ticketTypeID == "" {
		span.SetStatus(codes.Error, "invalid ticket_type_id")
		return nil, domain.ErrInvalidTicketType
	}

	if err := s.ticketTypeRepo.SetActive(ctx, ticketTypeID, active); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tt, err := s.ticketTypeRepo.GetByID(ctx, ticketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.TicketTypeFromDomain(tt), nil
}
