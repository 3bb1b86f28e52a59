package service

import (
	"context"
	"errors"
	"time"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/internal/dto"
	"github.com/eventlane/ticketing/internal/metrics"
	"github.com/eventlane/ticketing/internal/repository"
	"github.com/eventlane/ticketing/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxReferenceAttempts bounds the regenerate-on-collision loop for
// booking references
const maxReferenceAttempts = 5

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking reserves inventory and creates a pending booking
	CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error)

	// GetBooking retrieves a booking by ID
	GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)

	// GetBookingByReference retrieves a booking by its reference code
	GetBookingByReference(ctx context.Context, reference string) (*dto.BookingResponse, error)

	// GetUserBookings retrieves all bookings for a user
	GetUserBookings(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error)

	// CancelBooking cancels a pending or confirmed booking on behalf of
	// the given actor and releases its inventory
	CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error)

	// CheckIn marks a confirmed booking as checked in (idempotent)
	CheckIn(ctx context.Context, bookingID string) (*dto.CheckInResponse, error)

	// ExpireReservations cancels stale pending bookings past the
	// reservation timeout and returns how many were expired
	ExpireReservations(ctx context.Context, limit int) (int, error)
}

// bookingService implements BookingService
type bookingService struct {
	bookingRepo        repository.BookingRepository
	ticketTypeRepo     repository.TicketTypeRepository
	paymentRepo        repository.PaymentRepository
	eventPublisher     EventPublisher
	reservationTimeout time.Duration
	referenceLength    int
	defaultCurrency    string
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	ReservationTimeout time.Duration
	ReferenceLength    int
	DefaultCurrency    string
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	ticketTypeRepo repository.TicketTypeRepository,
	paymentRepo repository.PaymentRepository,
	eventPublisher EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	timeout := 15 * time.Minute
	refLength := 8
	currency := "THB"
	if cfg != nil {
		if cfg.ReservationTimeout > 0 {
			timeout = cfg.ReservationTimeout
		}
		if cfg.ReferenceLength > 0 {
			refLength = cfg.ReferenceLength
		}
		if cfg.DefaultCurrency != "" {
			currency = cfg.DefaultCurrency
		}
	}
	// Use NoOpEventPublisher if none provided
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &bookingService{
		bookingRepo:        bookingRepo,
		ticketTypeRepo:     ticketTypeRepo,
		paymentRepo:        paymentRepo,
		eventPublisher:     eventPublisher,
		reservationTimeout: timeout,
		referenceLength:    refLength,
		defaultCurrency:    currency,
	}
}

// CreateBooking reserves inventory and creates a pending booking
func (s *bookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	// Validate request
	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.TicketTypeID == "" {
		span.SetStatus(codes.Error, "invalid ticket_type_id")
		return nil, domain.ErrInvalidTicketType
	}
	if req.Quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, domain.ErrInvalidQuantity
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("ticket_type_id", req.TicketTypeID),
		attribute.Int("quantity", req.Quantity),
	)

	// Price and event come from the ticket type; the inventory check
	// happens atomically inside CreateWithReservation
	ticketType, err := s.ticketTypeRepo.GetByID(ctx, req.TicketTypeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := time.Now().UTC()
	booking := &domain.Booking{
		ID:           uuid.New().String(),
		UserID:       userID,
		EventID:      ticketType.EventID,
		TicketTypeID: ticketType.ID,
		Quantity:     req.Quantity,
		UnitPrice:    ticketType.Price,
		TotalPrice:   ticketType.Price * float64(req.Quantity),
		Currency:     s.defaultCurrency,
		Status:       domain.BookingStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := booking.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// References are unique for all time; regenerate and retry when the
	// insert hits a collision
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		reference, refErr := domain.NewBookingReference(s.referenceLength)
		if refErr != nil {
			span.RecordError(refErr)
			span.SetStatus(codes.Error, refErr.Error())
			return nil, refErr
		}
		booking.Reference = reference

		err = s.bookingRepo.CreateWithReservation(ctx, booking)
		if !errors.Is(err, domain.ErrReferenceCollision) {
			break
		}
	}
	if err != nil {
		metrics.RecordBookingRejected(ctx, ticketType.ID, rejectionReason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Publish booking created event (producer is non-blocking)
	_ = s.eventPublisher.PublishBookingCreated(ctx, booking)

	metrics.RecordBookingCreated(ctx, booking.EventID, booking.TicketTypeID, booking.Quantity)

	span.AddEvent("booking_created", trace.WithAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("booking_reference", booking.Reference),
		attribute.String("event_id", booking.EventID),
		attribute.Int("quantity", booking.Quantity),
		attribute.Float64("total_price", booking.TotalPrice),
	))

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// GetBooking retrieves a booking by ID
func (s *bookingService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}
	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Verify ownership
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "booking not found for user")
		return nil, domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// GetBookingByReference retrieves a booking by its reference code
func (s *bookingService) GetBookingByReference(ctx context.Context, reference string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get_by_reference")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", reference))

	if reference == "" {
		span.SetStatus(codes.Error, "invalid booking_reference")
		return nil, domain.ErrBookingNotFound
	}

	booking, err := s.bookingRepo.GetByReference(ctx, reference)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// GetUserBookings retrieves all bookings for a user
func (s *bookingService) GetUserBookings(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_user")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	offset := (page - 1) * pageSize
	bookings, err := s.bookingRepo.GetByUserID(ctx, userID, pageSize, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	responses := make([]*dto.BookingResponse, len(bookings))
	for i, b := range bookings {
		responses[i] = dto.FromDomain(b)
	}

	span.SetAttributes(attribute.Int("count", len(responses)))
	span.SetStatus(codes.Ok, "")
	return &dto.PaginatedResponse{
		Data:     responses,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// CancelBooking cancels a pending or confirmed booking and releases its
// inventory
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}
	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	// Ownership check before the mutation
	existing, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !existing.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "booking not found for user")
		return nil, domain.ErrBookingNotFound
	}
	wasPending := existing.IsPending()
	wasConfirmed := existing.IsConfirmed()

	booking, err := s.bookingRepo.CancelAndRelease(ctx, bookingID,
		[]domain.BookingStatus{domain.BookingStatusPending, domain.BookingStatusConfirmed},
		domain.CancelledByUser,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Publish booking cancelled event (producer is non-blocking)
	_ = s.eventPublisher.PublishBookingCancelled(ctx, booking)

	// A confirmed booking may already be paid; hand the refund to the
	// payment collaborator instead of touching the gateway here
	if wasConfirmed {
		paid, payErr := s.paymentRepo.SucceededExistsForBooking(ctx, bookingID)
		if payErr != nil {
			span.RecordError(payErr)
		} else if paid {
			_ = s.eventPublisher.PublishRefundRequired(ctx, booking)
			metrics.RecordRefundRequired(ctx, booking.EventID)
			span.AddEvent("refund_required", trace.WithAttributes(
				attribute.String("booking_id", bookingID),
			))
		}
	}

	metrics.RecordCancellation(ctx, booking.EventID, domain.CancelledByUser, wasPending)

	span.AddEvent("booking_cancelled", trace.WithAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("event_id", booking.EventID),
		attribute.Int("quantity", booking.Quantity),
	))

	span.SetStatus(codes.Ok, "")
	return &dto.CancelBookingResponse{
		BookingID: bookingID,
		Status:    string(booking.Status),
		Message:   "Booking cancelled successfully",
	}, nil
}

// CheckIn marks a confirmed booking as checked in. Repeated calls for an
// already checked-in booking succeed and return the recorded time.
func (s *bookingService) CheckIn(ctx context.Context, bookingID string) (*dto.CheckInResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.check_in")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		span.SetStatus(codes.Error, "invalid booking_id")
		return nil, domain.ErrInvalidBookingID
	}

	booking, err := s.bookingRepo.CheckIn(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Publish booking checked-in event (producer is non-blocking)
	_ = s.eventPublisher.PublishBookingCheckedIn(ctx, booking)

	metrics.RecordCheckIn(ctx, booking.EventID)

	span.AddEvent("booking_checked_in", trace.WithAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("booking_reference", booking.Reference),
	))

	span.SetStatus(codes.Ok, "")
	return &dto.CheckInResponse{
		BookingID:   booking.ID,
		Reference:   booking.Reference,
		Status:      string(booking.Status),
		CheckInTime: booking.CheckInTime,
	}, nil
}

// ExpireReservations cancels stale pending bookings past the reservation
// timeout and returns how many were expired
func (s *bookingService) ExpireReservations(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.expire_reservations")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	cutoff := time.Now().UTC().Add(-s.reservationTimeout)
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
	)

	bookings, err := s.bookingRepo.GetExpiredPending(ctx, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	expiredCount := 0
	for _, candidate := range bookings {
		// The conditional update inside ExpireAndRelease is the claim;
		// a concurrent sweeper or a late confirmation wins silently
		expired, expErr := s.bookingRepo.ExpireAndRelease(ctx, candidate.ID, cutoff)
		if expErr != nil {
			if errors.Is(expErr, domain.ErrInvalidStateTransition) || errors.Is(expErr, domain.ErrBookingNotFound) {
				continue
			}
			span.RecordError(expErr)
			continue
		}

		_ = s.eventPublisher.PublishBookingCancelled(ctx, expired)
		expiredCount++
	}

	metrics.RecordExpiration(ctx, int64(expiredCount))

	span.SetAttributes(attribute.Int("expired_count", expiredCount))
	span.SetStatus(codes.Ok, "")
	return expiredCount, nil
}

// rejectionReason labels a failed reservation attempt for metrics
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, domain.ErrPerUserLimitExceeded):
		return "per_user_limit"
	case errors.Is(err, domain.ErrSaleWindowClosed):
		return "sale_window_closed"
	case errors.Is(err, domain.ErrTicketTypeInactive):
		return "ticket_type_inactive"
	default:
		return "error"
	}
}
