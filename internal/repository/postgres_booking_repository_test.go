package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventlane/ticketing/internal/domain"
)

// skipIfNoIntegration skips the test if INTEGRATION_TEST env var is not set
func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

// getPostgresPool creates a PostgreSQL connection pool for testing
func getPostgresPool(t *testing.T) *pgxpool.Pool {
	skipIfNoIntegration(t)

	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}

	port := os.Getenv("TEST_POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("TEST_POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("TEST_POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("TEST_POSTGRES_DB")
	if dbname == "" {
		dbname = "ticketing_test"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbname)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping PostgreSQL: %v", err)
	}

	return pool
}

// seedTicketType inserts a fresh ticket type the test can reserve against
func seedTicketType(t *testing.T, pool *pgxpool.Pool, quantity, maxPerUser int) *domain.TicketType {
	t.Helper()

	now := time.Now().UTC()
	tt := &domain.TicketType{
		ID:         uuid.New().String(),
		EventID:    uuid.New().String(),
		Name:       "General Admission",
		Price:      100.00,
		Quantity:   quantity,
		MaxPerUser: maxPerUser,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	repo := NewPostgresTicketTypeRepository(pool)
	if err := repo.Create(context.Background(), tt); err != nil {
		t.Fatalf("failed to seed ticket type: %v", err)
	}
	return tt
}

func newTestBooking(tt *domain.TicketType, userID string, quantity int) *domain.Booking {
	now := time.Now().UTC()
	return &domain.Booking{
		ID:           uuid.New().String(),
		Reference:    uuid.New().String(),
		UserID:       userID,
		EventID:      tt.EventID,
		TicketTypeID: tt.ID,
		Quantity:     quantity,
		UnitPrice:    tt.Price,
		TotalPrice:   tt.Price * float64(quantity),
		Currency:     "THB",
		Status:       domain.BookingStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func soldCount(t *testing.T, pool *pgxpool.Pool, ticketTypeID string) int {
	t.Helper()

	var sold int
	err := pool.QueryRow(context.Background(), "SELECT sold FROM ticket_types WHERE id = $1", ticketTypeID).Scan(&sold)
	if err != nil {
		t.Fatalf("failed to read sold counter: %v", err)
	}
	return sold
}

func TestPostgresBookingRepository_CreateWithReservation(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 10, 0)
	booking := newTestBooking(tt, uuid.New().String(), 2)

	if err := repo.CreateWithReservation(ctx, booking); err != nil {
		t.Fatalf("CreateWithReservation() error = %v", err)
	}

	if sold := soldCount(t, pool, tt.ID); sold != 2 {
		t.Errorf("sold = %d, want 2", sold)
	}

	retrieved, err := repo.GetByID(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if retrieved.Reference != booking.Reference {
		t.Errorf("Reference = %v, want %v", retrieved.Reference, booking.Reference)
	}
	if retrieved.Status != domain.BookingStatusPending {
		t.Errorf("Status = %v, want pending", retrieved.Status)
	}

	byRef, err := repo.GetByReference(ctx, booking.Reference)
	if err != nil {
		t.Fatalf("GetByReference() error = %v", err)
	}
	if byRef.ID != booking.ID {
		t.Errorf("GetByReference() ID = %v, want %v", byRef.ID, booking.ID)
	}
}

func TestPostgresBookingRepository_CreateWithReservation_Oversell(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 1, 0)

	first := newTestBooking(tt, uuid.New().String(), 1)
	if err := repo.CreateWithReservation(ctx, first); err != nil {
		t.Fatalf("first CreateWithReservation() error = %v", err)
	}

	second := newTestBooking(tt, uuid.New().String(), 1)
	err := repo.CreateWithReservation(ctx, second)
	if err != domain.ErrInsufficientInventory {
		t.Errorf("second CreateWithReservation() error = %v, want %v", err, domain.ErrInsufficientInventory)
	}

	// the rejected reservation must not mutate anything
	if sold := soldCount(t, pool, tt.ID); sold != 1 {
		t.Errorf("sold = %d, want 1", sold)
	}
	if _, err := repo.GetByID(ctx, second.ID); err != domain.ErrBookingNotFound {
		t.Errorf("rejected booking GetByID() error = %v, want %v", err, domain.ErrBookingNotFound)
	}
}

func TestPostgresBookingRepository_CreateWithReservation_Concurrent(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 1, 0)

	// fire simultaneous reservations at the last ticket
	const callers = 8
	errs := make([]error, callers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			booking := newTestBooking(tt, uuid.New().String(), 1)
			start.Wait()
			errs[i] = repo.CreateWithReservation(ctx, booking)
		}(i)
	}
	start.Done()
	done.Wait()

	succeeded := 0
	for i, err := range errs {
		switch err {
		case nil:
			succeeded++
		case domain.ErrInsufficientInventory:
		default:
			t.Errorf("caller %d: unexpected error %v", i, err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}

	if sold := soldCount(t, pool, tt.ID); sold != 1 {
		t.Errorf("sold = %d, want 1", sold)
	}
}

func TestPostgresBookingRepository_CreateWithReservation_PerUserLimit(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 10, 2)
	userID := uuid.New().String()

	first := newTestBooking(tt, userID, 2)
	if err := repo.CreateWithReservation(ctx, first); err != nil {
		t.Fatalf("first CreateWithReservation() error = %v", err)
	}

	second := newTestBooking(tt, userID, 1)
	err := repo.CreateWithReservation(ctx, second)
	if err != domain.ErrPerUserLimitExceeded {
		t.Errorf("second CreateWithReservation() error = %v, want %v", err, domain.ErrPerUserLimitExceeded)
	}

	if sold := soldCount(t, pool, tt.ID); sold != 2 {
		t.Errorf("sold = %d, want 2", sold)
	}

	// another user is unaffected by the cap
	other := newTestBooking(tt, uuid.New().String(), 2)
	if err := repo.CreateWithReservation(ctx, other); err != nil {
		t.Errorf("other user CreateWithReservation() error = %v", err)
	}
}

func TestPostgresBookingRepository_CreateWithReservation_SaleWindowClosed(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 10, 0)

	closed := time.Now().UTC().Add(-time.Hour)
	opened := closed.Add(-24 * time.Hour)
	_, err := pool.Exec(ctx, "UPDATE ticket_types SET available_from = $2, available_to = $3 WHERE id = $1", tt.ID, opened, closed)
	if err != nil {
		t.Fatalf("failed to close sale window: %v", err)
	}

	booking := newTestBooking(tt, uuid.New().String(), 1)
	if err := repo.CreateWithReservation(ctx, booking); err != domain.ErrSaleWindowClosed {
		t.Errorf("CreateWithReservation() error = %v, want %v", err, domain.ErrSaleWindowClosed)
	}
}

func TestPostgresBookingRepository_GetByID_NotFound(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)

	_, err := repo.GetByID(context.Background(), uuid.New().String())
	if err != domain.ErrBookingNotFound {
		t.Errorf("GetByID() error = %v, want %v", err, domain.ErrBookingNotFound)
	}
}

func TestPostgresBookingRepository_CancelAndRelease(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 10, 0)
	booking := newTestBooking(tt, uuid.New().String(), 3)
	if err := repo.CreateWithReservation(ctx, booking); err != nil {
		t.Fatalf("CreateWithReservation() error = %v", err)
	}

	cancelled, err := repo.CancelAndRelease(ctx, booking.ID,
		[]domain.BookingStatus{domain.BookingStatusPending, domain.BookingStatusConfirmed},
		domain.CancelledByUser)
	if err != nil {
		t.Fatalf("CancelAndRelease() error = %v", err)
	}
	if cancelled.Status != domain.BookingStatusCancelled {
		t.Errorf("Status = %v, want cancelled", cancelled.Status)
	}
	if cancelled.StatusReason != domain.CancelledByUser {
		t.Errorf("StatusReason = %v, want %v", cancelled.StatusReason, domain.CancelledByUser)
	}

	if sold := soldCount(t, pool, tt.ID); sold != 0 {
		t.Errorf("sold = %d, want 0 after release", sold)
	}

	// a second cancel finds no claimable row
	_, err = repo.CancelAndRelease(ctx, booking.ID,
		[]domain.BookingStatus{domain.BookingStatusPending, domain.BookingStatusConfirmed},
		domain.CancelledByUser)
	if err != domain.ErrInvalidStateTransition {
		t.Errorf("second CancelAndRelease() error = %v, want %v", err, domain.ErrInvalidStateTransition)
	}
	if sold := soldCount(t, pool, tt.ID); sold != 0 {
		t.Errorf("sold = %d, double release must not happen", sold)
	}
}

func TestPostgresBookingRepository_CheckIn(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 10, 0)
	booking := newTestBooking(tt, uuid.New().String(), 1)
	if err := repo.CreateWithReservation(ctx, booking); err != nil {
		t.Fatalf("CreateWithReservation() error = %v", err)
	}

	// pending bookings cannot check in
	if _, err := repo.CheckIn(ctx, booking.ID); err != domain.ErrInvalidStateTransition {
		t.Errorf("CheckIn() on pending error = %v, want %v", err, domain.ErrInvalidStateTransition)
	}

	_, err := pool.Exec(ctx, "UPDATE bookings SET status = 'confirmed' WHERE id = $1", booking.ID)
	if err != nil {
		t.Fatalf("failed to confirm booking: %v", err)
	}

	checked, err := repo.CheckIn(ctx, booking.ID)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if checked.Status != domain.BookingStatusCheckedIn {
		t.Errorf("Status = %v, want checked_in", checked.Status)
	}
	if checked.CheckInTime == nil {
		t.Error("CheckInTime should be set")
	}

	// duplicate scan returns the same record
	again, err := repo.CheckIn(ctx, booking.ID)
	if err != nil {
		t.Fatalf("second CheckIn() error = %v", err)
	}
	if again.CheckInTime == nil || !again.CheckInTime.Equal(*checked.CheckInTime) {
		t.Errorf("second CheckIn() CheckInTime = %v, want %v", again.CheckInTime, checked.CheckInTime)
	}
}

func TestPostgresBookingRepository_ExpireAndRelease(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 10, 0)
	booking := newTestBooking(tt, uuid.New().String(), 2)
	if err := repo.CreateWithReservation(ctx, booking); err != nil {
		t.Fatalf("CreateWithReservation() error = %v", err)
	}

	// age the booking past the reservation deadline
	stale := time.Now().UTC().Add(-time.Hour)
	if _, err := pool.Exec(ctx, "UPDATE bookings SET created_at = $2 WHERE id = $1", booking.ID, stale); err != nil {
		t.Fatalf("failed to age booking: %v", err)
	}

	cutoff := time.Now().UTC().Add(-15 * time.Minute)
	expired, err := repo.GetExpiredPending(ctx, cutoff, 100)
	if err != nil {
		t.Fatalf("GetExpiredPending() error = %v", err)
	}

	found := false
	for _, b := range expired {
		if b.ID == booking.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("GetExpiredPending() did not return the stale booking")
	}

	released, err := repo.ExpireAndRelease(ctx, booking.ID, cutoff)
	if err != nil {
		t.Fatalf("ExpireAndRelease() error = %v", err)
	}
	if released.Status != domain.BookingStatusCancelled {
		t.Errorf("Status = %v, want cancelled", released.Status)
	}
	if released.StatusReason != domain.ExpiredByTimeout {
		t.Errorf("StatusReason = %v, want %v", released.StatusReason, domain.ExpiredByTimeout)
	}
	if sold := soldCount(t, pool, tt.ID); sold != 0 {
		t.Errorf("sold = %d, want 0 after expiry release", sold)
	}

	// a racing sweeper instance loses the claim
	if _, err := repo.ExpireAndRelease(ctx, booking.ID, cutoff); err != domain.ErrInvalidStateTransition {
		t.Errorf("second ExpireAndRelease() error = %v, want %v", err, domain.ErrInvalidStateTransition)
	}
}

func TestPostgresBookingRepository_CountHeldByUser(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresBookingRepository(pool)
	ctx := context.Background()

	tt := seedTicketType(t, pool, 10, 0)
	userID := uuid.New().String()

	held, err := repo.CountHeldByUser(ctx, userID, tt.ID)
	if err != nil {
		t.Fatalf("CountHeldByUser() error = %v", err)
	}
	if held != 0 {
		t.Errorf("held = %d, want 0", held)
	}

	booking := newTestBooking(tt, userID, 3)
	if err := repo.CreateWithReservation(ctx, booking); err != nil {
		t.Fatalf("CreateWithReservation() error = %v", err)
	}

	held, err = repo.CountHeldByUser(ctx, userID, tt.ID)
	if err != nil {
		t.Fatalf("CountHeldByUser() error = %v", err)
	}
	if held != 3 {
		t.Errorf("held = %d, want 3", held)
	}

	// cancelled bookings do not count against the cap
	if _, err := repo.CancelAndRelease(ctx, booking.ID,
		[]domain.BookingStatus{domain.BookingStatusPending}, domain.CancelledByUser); err != nil {
		t.Fatalf("CancelAndRelease() error = %v", err)
	}

	held, err = repo.CountHeldByUser(ctx, userID, tt.ID)
	if err != nil {
		t.Fatalf("CountHeldByUser() error = %v", err)
	}
	if held != 0 {
		t.Errorf("held = %d, want 0 after cancel", held)
	}
}
