package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventlane/ticketing/internal/domain"
)

func newTestTransaction(bookingID string, amount float64) *domain.PaymentTransaction {
	now := time.Now().UTC()
	return &domain.PaymentTransaction{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		TxRef:     "tx-" + uuid.New().String(),
		Amount:    amount,
		Currency:  "THB",
		Status:    domain.TransactionStatusPending,
		Gateway:   "mock",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// seedPendingBooking reserves a booking the payment tests can resolve against
func seedPendingBooking(t *testing.T, pool *pgxpool.Pool) (*domain.TicketType, *domain.Booking) {
	t.Helper()

	tt := seedTicketType(t, pool, 10, 0)
	booking := newTestBooking(tt, uuid.New().String(), 2)
	if err := NewPostgresBookingRepository(pool).CreateWithReservation(context.Background(), booking); err != nil {
		t.Fatalf("failed to seed pending booking: %v", err)
	}
	return tt, booking
}

func TestPostgresPaymentRepository_Create(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()

	_, booking := seedPendingBooking(t, pool)
	tx := newTestTransaction(booking.ID, booking.TotalPrice)

	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	retrieved, err := repo.GetByTxRef(ctx, tx.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if retrieved.BookingID != booking.ID {
		t.Errorf("BookingID = %v, want %v", retrieved.BookingID, booking.ID)
	}
	if retrieved.Status != domain.TransactionStatusPending {
		t.Errorf("Status = %v, want pending", retrieved.Status)
	}

	// the tx_ref is an idempotency key
	dup := newTestTransaction(booking.ID, booking.TotalPrice)
	dup.TxRef = tx.TxRef
	if err := repo.Create(ctx, dup); err != domain.ErrDuplicateTxRef {
		t.Errorf("duplicate Create() error = %v, want %v", err, domain.ErrDuplicateTxRef)
	}
}

func TestPostgresPaymentRepository_GetByTxRef_NotFound(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)

	_, err := repo.GetByTxRef(context.Background(), "tx-"+uuid.New().String())
	if err != domain.ErrTransactionNotFound {
		t.Errorf("GetByTxRef() error = %v, want %v", err, domain.ErrTransactionNotFound)
	}
}

func TestPostgresPaymentRepository_ResolveSuccess(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()

	tt, booking := seedPendingBooking(t, pool)
	tx := newTestTransaction(booking.ID, booking.TotalPrice)
	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	payment, resolved, err := repo.ResolveSuccess(ctx, tx.TxRef, `{"status":"succeeded"}`)
	if err != nil {
		t.Fatalf("ResolveSuccess() error = %v", err)
	}
	if payment.Status != domain.TransactionStatusSuccess {
		t.Errorf("payment Status = %v, want success", payment.Status)
	}
	if resolved.Status != domain.BookingStatusConfirmed {
		t.Errorf("booking Status = %v, want confirmed", resolved.Status)
	}

	exists, err := repo.SucceededExistsForBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("SucceededExistsForBooking() error = %v", err)
	}
	if !exists {
		t.Error("SucceededExistsForBooking() = false, want true")
	}

	// a replayed success delivery is a no-op
	replayPayment, replayBooking, err := repo.ResolveSuccess(ctx, tx.TxRef, `{"status":"succeeded"}`)
	if err != nil {
		t.Fatalf("replay ResolveSuccess() error = %v", err)
	}
	if replayPayment.Status != domain.TransactionStatusSuccess {
		t.Errorf("replay payment Status = %v, want success", replayPayment.Status)
	}
	if replayBooking.Status != domain.BookingStatusConfirmed {
		t.Errorf("replay booking Status = %v, want confirmed", replayBooking.Status)
	}
	if sold := soldCount(t, pool, tt.ID); sold != 2 {
		t.Errorf("sold = %d, want 2 after replay", sold)
	}

	// a contradictory delivery must not override the terminal status
	_, _, err = repo.ResolveFailure(ctx, tx.TxRef, domain.TransactionStatusFailed, `{"status":"failed"}`)
	if err != domain.ErrReconciliationConflict {
		t.Errorf("contradictory ResolveFailure() error = %v, want %v", err, domain.ErrReconciliationConflict)
	}
}

func TestPostgresPaymentRepository_ResolveFailure(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()

	tt, booking := seedPendingBooking(t, pool)
	tx := newTestTransaction(booking.ID, booking.TotalPrice)
	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	payment, cancelled, err := repo.ResolveFailure(ctx, tx.TxRef, domain.TransactionStatusFailed, `{"status":"failed"}`)
	if err != nil {
		t.Fatalf("ResolveFailure() error = %v", err)
	}
	if payment.Status != domain.TransactionStatusFailed {
		t.Errorf("payment Status = %v, want failed", payment.Status)
	}
	if cancelled.Status != domain.BookingStatusCancelled {
		t.Errorf("booking Status = %v, want cancelled", cancelled.Status)
	}
	if cancelled.StatusReason != domain.CancelledByPayment {
		t.Errorf("StatusReason = %v, want %v", cancelled.StatusReason, domain.CancelledByPayment)
	}
	if sold := soldCount(t, pool, tt.ID); sold != 0 {
		t.Errorf("sold = %d, want 0 after failure release", sold)
	}
}

func TestPostgresPaymentRepository_ResolveFailure_InvalidStatus(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)

	_, _, err := repo.ResolveFailure(context.Background(), "tx-any", domain.TransactionStatusSuccess, "")
	if err != domain.ErrInvalidStatus {
		t.Errorf("ResolveFailure() error = %v, want %v", err, domain.ErrInvalidStatus)
	}
}

func TestPostgresPaymentRepository_ResolveSuccess_BookingAlreadyCancelled(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	bookingRepo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt, booking := seedPendingBooking(t, pool)
	tx := newTestTransaction(booking.ID, booking.TotalPrice)
	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// user cancels while the payment is in flight
	if _, err := bookingRepo.CancelAndRelease(ctx, booking.ID,
		[]domain.BookingStatus{domain.BookingStatusPending}, domain.CancelledByUser); err != nil {
		t.Fatalf("CancelAndRelease() error = %v", err)
	}

	// the late success still resolves the payment, the booking stays
	// cancelled so the caller can flag a refund
	payment, resolved, err := repo.ResolveSuccess(ctx, tx.TxRef, `{"status":"succeeded"}`)
	if err != nil {
		t.Fatalf("ResolveSuccess() error = %v", err)
	}
	if payment.Status != domain.TransactionStatusSuccess {
		t.Errorf("payment Status = %v, want success", payment.Status)
	}
	if resolved.Status != domain.BookingStatusCancelled {
		t.Errorf("booking Status = %v, want cancelled", resolved.Status)
	}
	if sold := soldCount(t, pool, tt.ID); sold != 0 {
		t.Errorf("sold = %d, the late success must not re-reserve inventory", sold)
	}
}

func TestPostgresPaymentRepository_RecordPayload(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()

	_, booking := seedPendingBooking(t, pool)
	tx := newTestTransaction(booking.ID, booking.TotalPrice)
	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	payload := `{"status":"processing"}`
	if err := repo.RecordPayload(ctx, tx.TxRef, payload); err != nil {
		t.Fatalf("RecordPayload() error = %v", err)
	}

	retrieved, err := repo.GetByTxRef(ctx, tx.TxRef)
	if err != nil {
		t.Fatalf("GetByTxRef() error = %v", err)
	}
	if retrieved.GatewayPayload != payload {
		t.Errorf("GatewayPayload = %v, want %v", retrieved.GatewayPayload, payload)
	}
	if retrieved.Status != domain.TransactionStatusPending {
		t.Errorf("Status = %v, recording a payload must not change status", retrieved.Status)
	}

	if err := repo.RecordPayload(ctx, "tx-"+uuid.New().String(), payload); err != domain.ErrTransactionNotFound {
		t.Errorf("RecordPayload() unknown tx error = %v, want %v", err, domain.ErrTransactionNotFound)
	}
}

func TestPostgresPaymentRepository_GetStalePending(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()

	_, booking := seedPendingBooking(t, pool)
	tx := newTestTransaction(booking.ID, booking.TotalPrice)
	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	stale := time.Now().UTC().Add(-time.Hour)
	if _, err := pool.Exec(ctx, "UPDATE payment_transactions SET created_at = $2 WHERE tx_ref = $1", tx.TxRef, stale); err != nil {
		t.Fatalf("failed to age transaction: %v", err)
	}

	cutoff := time.Now().UTC().Add(-5 * time.Minute)
	pending, err := repo.GetStalePending(ctx, cutoff, 100)
	if err != nil {
		t.Fatalf("GetStalePending() error = %v", err)
	}

	found := false
	for _, p := range pending {
		if p.TxRef == tx.TxRef {
			found = true
		}
	}
	if !found {
		t.Error("GetStalePending() did not return the stale transaction")
	}
}
