package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/internal/dto"
	"github.com/eventlane/ticketing/internal/gateway"
	"github.com/eventlane/ticketing/internal/metrics"
	"github.com/eventlane/ticketing/internal/repository"
	"github.com/eventlane/ticketing/pkg/logger"
	"github.com/eventlane/ticketing/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Webhook resolution results reported back to the caller. Every result
// except a hard error is acknowledged 200 to the gateway.
const (
	WebhookResultProcessed = "processed"
	WebhookResultReplayed  = "replayed"
	WebhookResultConflict  = "conflict"
	WebhookResultIgnored   = "ignored"
	WebhookResultPending   = "pending"
)

// PaymentService reconciles gateway-reported payment state with bookings
type PaymentService interface {
	// RecordPaymentInitiated inserts a pending transaction for a pending
	// booking. The tx_ref is the idempotency key for later webhooks.
	RecordPaymentInitiated(ctx context.Context, bookingID, userID string, req *dto.InitiatePaymentRequest) (*dto.PaymentResponse, error)

	// GetBookingPayments lists the transactions recorded for a booking
	GetBookingPayments(ctx context.Context, bookingID, userID string) ([]*dto.PaymentResponse, error)

	// HandleWebhook authenticates, decodes and resolves a raw webhook
	// delivery. The returned result says what the delivery did.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error)

	// VerifyTransaction polls the gateway for the transaction's current
	// state and resolves it through the same idempotent path webhooks
	// take. Used by the reconcile worker for missed webhooks.
	VerifyTransaction(ctx context.Context, txRef string) (*dto.WebhookAck, error)

	// Gateway returns the configured gateway adapter
	Gateway() gateway.PaymentGateway
}

// paymentService implements PaymentService
type paymentService struct {
	paymentRepo    repository.PaymentRepository
	bookingRepo    repository.BookingRepository
	gateway        gateway.PaymentGateway
	eventPublisher EventPublisher
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	bookingRepo repository.BookingRepository,
	gw gateway.PaymentGateway,
	eventPublisher EventPublisher,
) PaymentService {
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &paymentService{
		paymentRepo:    paymentRepo,
		bookingRepo:    bookingRepo,
		gateway:        gw,
		eventPublisher: eventPublisher,
	}
}

// Gateway returns the configured gateway adapter
func (s *paymentService) Gateway() gateway.PaymentGateway {
	return s.gateway
}

// RecordPaymentInitiated inserts a pending transaction for a pending booking
func (s *paymentService) RecordPaymentInitiated(ctx context.Context, bookingID, userID string, req *dto.InitiatePaymentRequest) (*dto.PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.record_initiated")
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
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "booking not found for user")
		return nil, domain.ErrBookingNotFound
	}

	// Payments only attach to bookings still awaiting payment
	if !booking.IsPending() {
		span.SetStatus(codes.Error, "booking not pending")
		return nil, domain.ErrBookingNotPending
	}

	txRef := ""
	if req != nil {
		txRef = req.TxRef
	}
	if txRef == "" {
		txRef = fmt.Sprintf("tx_%s", uuid.New().String())
	}

	now := time.Now().UTC()
	tx := &domain.PaymentTransaction{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		TxRef:     txRef,
		Amount:    booking.TotalPrice,
		Currency:  booking.Currency,
		Status:    domain.TransactionStatusPending,
		Gateway:   s.gateway.Name(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.paymentRepo.Create(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("tx_ref", tx.TxRef))
	span.SetStatus(codes.Ok, "")
	return dto.PaymentFromDomain(tx), nil
}

// GetBookingPayments lists the transactions recorded for a booking
func (s *paymentService) GetBookingPayments(ctx context.Context, bookingID, userID string) ([]*dto.PaymentResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.list_for_booking")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

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
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "booking not found for user")
		return nil, domain.ErrBookingNotFound
	}

	transactions, err := s.paymentRepo.GetByBookingID(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	responses := make([]*dto.PaymentResponse, len(transactions))
	for i, tx := range transactions {
		responses[i] = dto.PaymentFromDomain(tx)
	}

	span.SetAttributes(attribute.Int("count", len(responses)))
	span.SetStatus(codes.Ok, "")
	return responses, nil
}

// HandleWebhook authenticates, decodes and resolves a webhook delivery
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*dto.WebhookAck, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.handle_webhook")
	defer span.End()

	notification, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("tx_ref", notification.TxRef),
		attribute.String("outcome", string(notification.Outcome)),
	)

	ack, err := s.resolveNotification(ctx, notification)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("result", ack.Result))
	span.SetStatus(codes.Ok, "")
	return ack, nil
}

// VerifyTransaction polls the gateway and resolves the reported state
func (s *paymentService) VerifyTransaction(ctx context.Context, txRef string) (*dto.WebhookAck, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.verify_transaction")
	defer span.End()

	span.SetAttributes(attribute.String("tx_ref", txRef))

	if txRef == "" {
		span.SetStatus(codes.Error, "invalid tx_ref")
		return nil, domain.ErrInvalidTxRef
	}

	notification, err := s.gateway.VerifyTransaction(ctx, txRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ack, err := s.resolveNotification(ctx, notification)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("result", ack.Result))
	span.SetStatus(codes.Ok, "")
	return ack, nil
}

// resolveNotification is the single idempotent path every gateway report
// goes through, whether pushed or polled.
func (s *paymentService) resolveNotification(ctx context.Context, n *gateway.Notification) (*dto.WebhookAck, error) {
	log := logger.Get()

	existing, err := s.paymentRepo.GetByTxRef(ctx, n.TxRef)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			// Unknown tx_ref: acknowledged but never creates state,
			// otherwise a forged webhook could mint transactions
			metrics.RecordWebhookUnknown(ctx, s.gateway.Name())
			log.Warn(fmt.Sprintf("Webhook for unknown transaction ignored: tx_ref=%s gateway=%s", n.TxRef, s.gateway.Name()))
			return &dto.WebhookAck{Received: true, Result: WebhookResultIgnored}, nil
		}
		return nil, err
	}

	mapped := domain.MapOutcome(n.Outcome)

	if existing.Status.IsTerminal() {
		if existing.Status == mapped {
			metrics.RecordWebhookReplay(ctx, s.gateway.Name())
			return &dto.WebhookAck{Received: true, Result: WebhookResultReplayed}, nil
		}
		if mapped == domain.TransactionStatusPending {
			// ambiguous report about a settled transaction says nothing new
			return &dto.WebhookAck{Received: true, Result: WebhookResultIgnored}, nil
		}
		metrics.RecordWebhookConflict(ctx, s.gateway.Name())
		log.Error(fmt.Sprintf("Reconciliation conflict: tx_ref=%s recorded=%s reported=%s", n.TxRef, existing.Status, mapped))
		return &dto.WebhookAck{Received: true, Result: WebhookResultConflict}, nil
	}

	if mapped == domain.TransactionStatusPending {
		// keep the latest gateway payload for audit, stay pending
		if n.RawPayload != "" {
			if recErr := s.paymentRepo.RecordPayload(ctx, n.TxRef, n.RawPayload); recErr != nil {
				log.Warn(fmt.Sprintf("Failed to record gateway payload: tx_ref=%s err=%v", n.TxRef, recErr))
			}
		}
		return &dto.WebhookAck{Received: true, Result: WebhookResultPending}, nil
	}

	switch mapped {
	case domain.TransactionStatusSuccess:
		return s.resolveSuccess(ctx, n)
	default:
		return s.resolveFailure(ctx, n, mapped)
	}
}

func (s *paymentService) resolveSuccess(ctx context.Context, n *gateway.Notification) (*dto.WebhookAck, error) {
	log := logger.Get()

	payment, booking, err := s.paymentRepo.ResolveSuccess(ctx, n.TxRef, n.RawPayload)
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationConflict) {
			metrics.RecordWebhookConflict(ctx, s.gateway.Name())
			log.Error(fmt.Sprintf("Reconciliation conflict during success resolution: tx_ref=%s", n.TxRef))
			return &dto.WebhookAck{Received: true, Result: WebhookResultConflict}, nil
		}
		return nil, err
	}

	if booking.IsConfirmed() {
		_ = s.eventPublisher.PublishBookingConfirmed(ctx, booking)
		metrics.RecordConfirmation(ctx, booking.EventID, time.Since(booking.CreatedAt).Seconds())
	} else {
		// payment settled against a booking that already left pending;
		// the money has to go back
		_ = s.eventPublisher.PublishRefundRequired(ctx, booking)
		metrics.RecordRefundRequired(ctx, booking.EventID)
		log.Warn(fmt.Sprintf("Successful payment for non-pending booking, refund required: tx_ref=%s booking_id=%s status=%s",
			payment.TxRef, booking.ID, booking.Status))
	}

	return &dto.WebhookAck{Received: true, Result: WebhookResultProcessed}, nil
}

func (s *paymentService) resolveFailure(ctx context.Context, n *gateway.Notification, status domain.TransactionStatus) (*dto.WebhookAck, error) {
	log := logger.Get()

	payment, booking, err := s.paymentRepo.ResolveFailure(ctx, n.TxRef, status, n.RawPayload)
	if err != nil {
		if errors.Is(err, domain.ErrReconciliationConflict) {
			metrics.RecordWebhookConflict(ctx, s.gateway.Name())
			log.Error(fmt.Sprintf("Reconciliation conflict during failure resolution: tx_ref=%s", n.TxRef))
			return &dto.WebhookAck{Received: true, Result: WebhookResultConflict}, nil
		}
		return nil, err
	}

	// StatusReason tells whether this resolution cancelled the booking or
	// it had already moved on
	if booking.IsCancelled() && booking.StatusReason == domain.CancelledByPayment {
		_ = s.eventPublisher.PublishBookingCancelled(ctx, booking)
		metrics.RecordCancellation(ctx, booking.EventID, domain.CancelledByPayment, true)
	}

	log.Info(fmt.Sprintf("Payment resolved as %s: tx_ref=%s booking_id=%s booking_status=%s",
		payment.Status, payment.TxRef, booking.ID, booking.Status))

	return &dto.WebhookAck{Received: true, Result: WebhookResultProcessed}, nil
}
