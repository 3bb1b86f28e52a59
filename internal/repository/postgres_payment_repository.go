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

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/pkg/telemetry"
)

// paymentColumns is the column list shared by SELECT and RETURNING clauses
const paymentColumns = `
	id, booking_id, tx_ref, amount, currency, status,
	gateway, gateway_payload, created_at, updated_at
`

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL with pgxpool
type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

// Create inserts a pending payment transaction
func (r *PostgresPaymentRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("tx_ref", tx.TxRef),
		attribute.String("booking_id", tx.BookingID),
	)

	query := `
		INSERT INTO payment_transactions (
			id, booking_id, tx_ref, amount, currency, status,
			gateway, gateway_payload, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)
	`

	_, err := r.pool.Exec(ctx, query,
		tx.ID,
		tx.BookingID,
		tx.TxRef,
		tx.Amount,
		tx.Currency,
		tx.Status.String(),
		tx.Gateway,
		nullString(tx.GatewayPayload),
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			span.SetStatus(codes.Error, "duplicate tx_ref")
			return domain.ErrDuplicateTxRef
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByTxRef retrieves a payment transaction by its gateway reference
func (r *PostgresPaymentRepository) GetByTxRef(ctx context.Context, txRef string) (*domain.PaymentTransaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_tx_ref")
	defer span.End()

	span.SetAttributes(attribute.String("tx_ref", txRef))

	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE tx_ref = $1`

	tx, err := scanPaymentRow(r.pool.QueryRow(ctx, query, txRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrTransactionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tx, nil
}

// GetByBookingID retrieves all transactions recorded against a booking
func (r *PostgresPaymentRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_booking_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	query := `
		SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE booking_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment transactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.PaymentTransaction
	for rows.Next() {
		tx, err := scanPaymentRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		result = append(result, tx)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating payment transactions: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(result)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// SucceededExistsForBooking reports whether the booking has a successful transaction
func (r *PostgresPaymentRepository) SucceededExistsForBooking(ctx context.Context, bookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.succeeded_exists")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM payment_transactions
			WHERE booking_id = $1 AND status = 'success'
		)
	`
	if err := r.pool.QueryRow(ctx, query, bookingID).Scan(&exists); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to check successful transactions: %w", err)
	}

	span.SetAttributes(attribute.Bool("exists", exists))
	span.SetStatus(codes.Ok, "")
	return exists, nil
}

// ResolveSuccess marks a pending transaction successful and confirms its
// booking in one transaction. The conditional UPDATE on the transaction is
// the claim: concurrent deliveries of the same webhook resolve exactly once,
// the losers observe the terminal row and return it as a replay.
func (r *PostgresPaymentRepository) ResolveSuccess(ctx context.Context, txRef, payload string) (*domain.PaymentTransaction, *domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.resolve_success")
	defer span.End()

	span.SetAttributes(attribute.String("tx_ref", txRef))

	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("failed to begin resolve transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	payment, claimed, err := r.claimTransaction(ctx, dbTx, txRef, domain.TransactionStatusSuccess, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	if !claimed {
		// terminal replay, nothing to mutate
		booking, err := r.bookingInTx(ctx, dbTx, payment.BookingID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, err
		}
		span.SetStatus(codes.Ok, "replay")
		return payment, booking, dbTx.Commit(ctx)
	}

	confirmQuery := `
		UPDATE bookings SET
			status = 'confirmed',
			status_reason = 'payment',
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + bookingColumns

	booking, err := scanBookingRow(dbTx.QueryRow(ctx, confirmQuery, payment.BookingID, time.Now().UTC()))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, fmt.Errorf("failed to confirm booking: %w", err)
		}
		// booking moved on (cancelled or expired); the payment still
		// resolves, the caller decides about refunds
		booking, err = r.bookingInTx(ctx, dbTx, payment.BookingID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("failed to commit resolve: %w", err)
	}

	span.SetAttributes(attribute.String("booking_status", booking.Status.String()))
	span.SetStatus(codes.Ok, "")
	return payment, booking, nil
}

// ResolveFailure marks a pending transaction failed or cancelled, cancels
// the pending booking and releases its inventory in one transaction.
func (r *PostgresPaymentRepository) ResolveFailure(ctx context.Context, txRef string, status domain.TransactionStatus, payload string) (*domain.PaymentTransaction, *domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.resolve_failure")
	defer span.End()

	span.SetAttributes(
		attribute.String("tx_ref", txRef),
		attribute.String("status", status.String()),
	)

	if status != domain.TransactionStatusFailed && status != domain.TransactionStatusCancelled {
		return nil, nil, domain.ErrInvalidStatus
	}

	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("failed to begin resolve transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	payment, claimed, err := r.claimTransaction(ctx, dbTx, txRef, status, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	if !claimed {
		booking, err := r.bookingInTx(ctx, dbTx, payment.BookingID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, err
		}
		span.SetStatus(codes.Ok, "replay")
		return payment, booking, dbTx.Commit(ctx)
	}

	cancelQuery := `
		UPDATE bookings SET
			status = 'cancelled',
			status_reason = $2,
			updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + bookingColumns

	booking, err := scanBookingRow(dbTx.QueryRow(ctx, cancelQuery, payment.BookingID, domain.CancelledByPayment, time.Now().UTC()))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, fmt.Errorf("failed to cancel booking: %w", err)
		}
		// booking already left pending, no release for us to do
		booking, err = r.bookingInTx(ctx, dbTx, payment.BookingID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, err
		}
	} else {
		if err := releaseInventoryTx(ctx, dbTx, booking.TicketTypeID, booking.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("failed to commit resolve: %w", err)
	}

	span.SetAttributes(attribute.String("booking_status", booking.Status.String()))
	span.SetStatus(codes.Ok, "")
	return payment, booking, nil
}

// RecordPayload stores the latest raw gateway payload for audit
func (r *PostgresPaymentRepository) RecordPayload(ctx context.Context, txRef, payload string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.record_payload")
	defer span.End()

	span.SetAttributes(attribute.String("tx_ref", txRef))

	query := `
		UPDATE payment_transactions SET
			gateway_payload = $2,
			updated_at = $3
		WHERE tx_ref = $1
	`

	result, err := r.pool.Exec(ctx, query, txRef, payload, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to record gateway payload: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrTransactionNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetStalePending returns pending transactions created before the cutoff
func (r *PostgresPaymentRepository) GetStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_stale_pending")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		SELECT ` + paymentColumns + `
		FROM payment_transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get stale pending transactions: %w", err)
	}
	defer rows.Close()

	var result []*domain.PaymentTransaction
	for rows.Next() {
		tx, err := scanPaymentRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		result = append(result, tx)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating payment transactions: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(result)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// claimTransaction attempts the pending -> terminal status flip. Returns the
// transaction and whether this caller performed the flip. When the row is
// already terminal with the same status the existing row is returned with
// claimed=false; a different terminal status is a reconciliation conflict.
func (r *PostgresPaymentRepository) claimTransaction(ctx context.Context, dbTx pgx.Tx, txRef string, status domain.TransactionStatus, payload string) (*domain.PaymentTransaction, bool, error) {
	claimQuery := `
		UPDATE payment_transactions SET
			status = $2,
			gateway_payload = COALESCE(NULLIF($3, ''), gateway_payload),
			updated_at = $4
		WHERE tx_ref = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	payment, err := scanPaymentRow(dbTx.QueryRow(ctx, claimQuery, txRef, status.String(), payload, time.Now().UTC()))
	if err == nil {
		return payment, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim payment transaction: %w", err)
	}

	existing, err := scanPaymentRow(dbTx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE tx_ref = $1`, txRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrTransactionNotFound
		}
		return nil, false, fmt.Errorf("failed to re-read payment transaction: %w", err)
	}

	if existing.Status == status {
		return existing, false, nil
	}
	return nil, false, domain.ErrReconciliationConflict
}

// bookingInTx reads a booking inside the resolve transaction
func (r *PostgresPaymentRepository) bookingInTx(ctx context.Context, dbTx pgx.Tx, bookingID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBookingRow(dbTx.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to read booking: %w", err)
	}
	return booking, nil
}

// scanPaymentRow scans a row into a PaymentTransaction struct
func scanPaymentRow(row pgx.Row) (*domain.PaymentTransaction, error) {
	tx := &domain.PaymentTransaction{}
	var (
		status  string
		payload *string
	)

	err := row.Scan(
		&tx.ID,
		&tx.BookingID,
		&tx.TxRef,
		&tx.Amount,
		&tx.Currency,
		&status,
		&tx.Gateway,
		&payload,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Status = domain.TransactionStatus(status)
	if payload != nil {
		tx.GatewayPayload = *payload
	}
	return tx, nil
}

// Ensure PostgresPaymentRepository implements PaymentRepository
var _ PaymentRepository = (*PostgresPaymentRepository)(nil)
