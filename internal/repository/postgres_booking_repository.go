package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/pkg/telemetry"
)

// bookingColumns is the column list shared by SELECT and RETURNING clauses
const bookingColumns = `
	id, booking_reference, user_id, event_id, ticket_type_id,
	quantity, unit_price, total_price, currency, status,
	status_reason, check_in_time, created_at, updated_at
`

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// CreateWithReservation reserves inventory and inserts the booking in one
// transaction. The conditional UPDATE on ticket_types is the capacity claim:
// it both enforces sold+qty <= quantity and takes the row lock that
// serializes the per-user cap check against concurrent reservations.
func (r *PostgresBookingRepository) CreateWithReservation(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create_with_reservation")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("user_id", booking.UserID),
		attribute.String("ticket_type_id", booking.TicketTypeID),
		attribute.Int("quantity", booking.Quantity),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin reservation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	reserveQuery := `
		UPDATE ticket_types SET
			sold = sold + $2,
			updated_at = $3
		WHERE id = $1
			AND active
			AND sold + $2 <= quantity
			AND (available_from IS NULL OR available_from <= $3)
			AND (available_to IS NULL OR available_to >= $3)
		RETURNING max_per_user
	`

	now := time.Now().UTC()
	var maxPerUser int
	err = tx.QueryRow(ctx, reserveQuery, booking.TicketTypeID, booking.Quantity, now).Scan(&maxPerUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			reason := r.dissectReservationFailure(ctx, tx, booking.TicketTypeID, booking.Quantity, now)
			span.SetStatus(codes.Error, reason.Error())
			return reason
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to reserve inventory: %w", err)
	}

	if maxPerUser > 0 {
		held, err := countHeldByUserTx(ctx, tx, booking.UserID, booking.TicketTypeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if held+booking.Quantity > maxPerUser {
			span.SetStatus(codes.Error, "per-user limit exceeded")
			return domain.ErrPerUserLimitExceeded
		}
	}

	insertQuery := `
		INSERT INTO bookings (
			id, booking_reference, user_id, event_id, ticket_type_id,
			quantity, unit_price, total_price, currency, status,
			status_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)
	`

	_, err = tx.Exec(ctx, insertQuery,
		booking.ID,
		booking.Reference,
		booking.UserID,
		booking.EventID,
		booking.TicketTypeID,
		booking.Quantity,
		booking.UnitPrice,
		booking.TotalPrice,
		booking.Currency,
		booking.Status.String(),
		nullString(booking.StatusReason),
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			span.SetStatus(codes.Error, "reference collision")
			return domain.ErrReferenceCollision
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// dissectReservationFailure re-reads the ticket type inside the transaction
// to distinguish why a reservation was rejected. Nothing was mutated, the
// rejected UPDATE matched no row.
func (r *PostgresBookingRepository) dissectReservationFailure(ctx context.Context, tx pgx.Tx, ticketTypeID string, qty int, now time.Time) error {
	query := `
		SELECT active, quantity, sold, available_from, available_to
		FROM ticket_types
		WHERE id = $1
	`

	var (
		active         bool
		quantity, sold int
		from, to       *time.Time
	)
	err := tx.QueryRow(ctx, query, ticketTypeID).Scan(&active, &quantity, &sold, &from, &to)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTicketTypeNotFound
		}
		return fmt.Errorf("failed to inspect ticket type: %w", err)
	}

	if !active {
		return domain.ErrTicketTypeInactive
	}
	if from != nil && now.Before(*from) {
		return domain.ErrSaleWindowClosed
	}
	if to != nil && now.After(*to) {
		return domain.ErrSaleWindowClosed
	}
	if sold+qty > quantity {
		return domain.ErrInsufficientInventory
	}
	return domain.ErrInsufficientInventory
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByReference retrieves a booking by its booking reference
func (r *PostgresBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_reference")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", reference))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_reference = $1`

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking by reference: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByUserID retrieves bookings for a user, newest first
func (r *PostgresBookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_user_id")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get bookings by user ID: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// CancelAndRelease cancels a booking and returns its quantity to the ticket
// type in one transaction. The conditional UPDATE claims the booking, so the
// release runs exactly once no matter how many callers race.
func (r *PostgresBookingRepository) CancelAndRelease(ctx context.Context, id string, from []domain.BookingStatus, reason string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.cancel_and_release")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("reason", reason),
	)

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = s.String()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin cancel transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cancelQuery := `
		UPDATE bookings SET
			status = 'cancelled',
			status_reason = $2,
			updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING ` + bookingColumns

	booking, err := scanBookingRow(tx.QueryRow(ctx, cancelQuery, id, reason, time.Now().UTC(), allowed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyTransitionFailure(ctx, id, span)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	if err := releaseInventoryTx(ctx, tx, booking.TicketTypeID, booking.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit cancel: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// CheckIn flips a confirmed booking to checked_in. Scanning an already
// checked-in booking returns the existing record unchanged.
func (r *PostgresBookingRepository) CheckIn(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.check_in")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `
		UPDATE bookings SET
			status = 'checked_in',
			check_in_time = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'confirmed'
		RETURNING ` + bookingColumns

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, id, time.Now().UTC()))
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return booking, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to check in booking: %w", err)
	}

	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		span.SetStatus(codes.Error, "not found")
		return nil, getErr
	}
	if existing.IsCheckedIn() {
		// duplicate scan
		span.SetStatus(codes.Ok, "already checked in")
		return existing, nil
	}

	span.SetStatus(codes.Error, "invalid state")
	return nil, domain.ErrInvalidStateTransition
}

// GetExpiredPending returns pending bookings past the reservation deadline
// that have no successful payment transaction
func (r *PostgresBookingRepository) GetExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_expired_pending")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		WHERE b.status = 'pending'
			AND b.created_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM payment_transactions p
				WHERE p.booking_id = b.id AND p.status = 'success'
			)
		ORDER BY b.created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get expired pending bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBookingRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// ExpireAndRelease cancels a stale pending booking attributed to the system
// timeout and releases its inventory. The WHERE clause is the claim: with
// several sweeper instances only one UPDATE matches.
func (r *PostgresBookingRepository) ExpireAndRelease(ctx context.Context, id string, cutoff time.Time) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.expire_and_release")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin expire transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	expireQuery := `
		UPDATE bookings SET
			status = 'cancelled',
			status_reason = $2,
			updated_at = $3
		WHERE id = $1 AND status = 'pending' AND created_at < $4
		RETURNING ` + bookingColumns

	booking, err := scanBookingRow(tx.QueryRow(ctx, expireQuery, id, domain.ExpiredByTimeout, time.Now().UTC(), cutoff))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyTransitionFailure(ctx, id, span)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to expire booking: %w", err)
	}

	if err := releaseInventoryTx(ctx, tx, booking.TicketTypeID, booking.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit expire: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// CountHeldByUser returns the ticket quantity a user holds in non-cancelled
// bookings of a ticket type
func (r *PostgresBookingRepository) CountHeldByUser(ctx context.Context, userID, ticketTypeID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.count_held_by_user")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("ticket_type_id", ticketTypeID),
	)

	var held int
	query := `
		SELECT COALESCE(SUM(quantity), 0) FROM bookings
		WHERE user_id = $1 AND ticket_type_id = $2 AND status != 'cancelled'
	`

	if err := r.pool.QueryRow(ctx, query, userID, ticketTypeID).Scan(&held); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count held tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("held", held))
	span.SetStatus(codes.Ok, "")
	return held, nil
}

// classifyTransitionFailure distinguishes a missing booking from a booking
// that is not in an allowed source status
func (r *PostgresBookingRepository) classifyTransitionFailure(ctx context.Context, id string, span trace.Span) error {
	var status string
	err := r.pool.QueryRow(ctx, "SELECT status FROM bookings WHERE id = $1", id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrBookingNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to check booking status: %w", err)
	}
	span.SetStatus(codes.Error, "invalid state: "+status)
	return domain.ErrInvalidStateTransition
}

// countHeldByUserTx runs the per-user cap query inside a reservation
// transaction, after the ticket type row lock is held
func countHeldByUserTx(ctx context.Context, tx pgx.Tx, userID, ticketTypeID string) (int, error) {
	var held int
	query := `
		SELECT COALESCE(SUM(quantity), 0) FROM bookings
		WHERE user_id = $1 AND ticket_type_id = $2 AND status != 'cancelled'
	`
	if err := tx.QueryRow(ctx, query, userID, ticketTypeID).Scan(&held); err != nil {
		return 0, fmt.Errorf("failed to count held tickets: %w", err)
	}
	return held, nil
}

// releaseInventoryTx returns quantity to a ticket type, clamping at zero.
// Callers must have claimed the booking in the same transaction.
func releaseInventoryTx(ctx context.Context, tx pgx.Tx, ticketTypeID string, qty int) error {
	query := `
		UPDATE ticket_types SET
			sold = GREATEST(sold - $2, 0),
			updated_at = $3
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query, ticketTypeID, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to release inventory: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}

// scanBookingRow scans a row into a Booking struct
func scanBookingRow(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status       string
		statusReason *string
		checkInTime  *time.Time
	)

	err := row.Scan(
		&booking.ID,
		&booking.Reference,
		&booking.UserID,
		&booking.EventID,
		&booking.TicketTypeID,
		&booking.Quantity,
		&booking.UnitPrice,
		&booking.TotalPrice,
		&booking.Currency,
		&status,
		&statusReason,
		&checkInTime,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	if statusReason != nil {
		booking.StatusReason = *statusReason
	}
	booking.CheckInTime = checkInTime
	return booking, nil
}

// nullString converts an empty string to a nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresBookingRepository implements BookingRepository
var _ BookingRepository = (*PostgresBookingRepository)(nil)
