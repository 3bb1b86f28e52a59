package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/internal/dto"
)

// MockBookingRepository is a mock implementation of BookingRepository
type MockBookingRepository struct {
	CreateWithReservationFunc func(ctx context.Context, booking *domain.Booking) error
	GetByIDFunc               func(ctx context.Context, id string) (*domain.Booking, error)
	GetByReferenceFunc        func(ctx context.Context, reference string) (*domain.Booking, error)
	GetByUserIDFunc           func(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)
	CancelAndReleaseFunc      func(ctx context.Context, id string, from []domain.BookingStatus, reason string) (*domain.Booking, error)
	CheckInFunc               func(ctx context.Context, id string) (*domain.Booking, error)
	GetExpiredPendingFunc     func(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)
	ExpireAndReleaseFunc      func(ctx context.Context, id string, cutoff time.Time) (*domain.Booking, error)
	CountHeldByUserFunc       func(ctx context.Context, userID, ticketTypeID string) (int, error)
}

func (m *MockBookingRepository) CreateWithReservation(ctx context.Context, booking *domain.Booking) error {
	if m.CreateWithReservationFunc != nil {
		return m.CreateWithReservationFunc(ctx, booking)
	}
	return nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID, limit, offset)
	}
	return []*domain.Booking{}, nil
}

func (m *MockBookingRepository) CancelAndRelease(ctx context.Context, id string, from []domain.BookingStatus, reason string) (*domain.Booking, error) {
	if m.CancelAndReleaseFunc != nil {
		return m.CancelAndReleaseFunc(ctx, id, from, reason)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) CheckIn(ctx context.Context, id string) (*domain.Booking, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, id)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) GetExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	if m.GetExpiredPendingFunc != nil {
		return m.GetExpiredPendingFunc(ctx, cutoff, limit)
	}
	return []*domain.Booking{}, nil
}

func (m *MockBookingRepository) ExpireAndRelease(ctx context.Context, id string, cutoff time.Time) (*domain.Booking, error) {
	if m.ExpireAndReleaseFunc != nil {
		return m.ExpireAndReleaseFunc(ctx, id, cutoff)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) CountHeldByUser(ctx context.Context, userID, ticketTypeID string) (int, error) {
	if m.CountHeldByUserFunc != nil {
		return m.CountHeldByUserFunc(ctx, userID, ticketTypeID)
	}
	return 0, nil
}

// MockTicketTypeRepository is a mock implementation of TicketTypeRepository
type MockTicketTypeRepository struct {
	CreateFunc       func(ctx context.Context, tt *domain.TicketType) error
	GetByIDFunc      func(ctx context.Context, id string) (*domain.TicketType, error)
	GetByEventIDFunc func(ctx context.Context, eventID string) ([]*domain.TicketType, error)
	UpdateFunc       func(ctx context.Context, tt *domain.TicketType) error
	SetActiveFunc    func(ctx context.Context, id string, active bool) error
}

func (m *MockTicketTypeRepository) Create(ctx context.Context, tt *domain.TicketType) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tt)
	}
	return nil
}

func (m *MockTicketTypeRepository) GetByID(ctx context.Context, id string) (*domain.TicketType, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return testTicketType(), nil
}

func (m *MockTicketTypeRepository) GetByEventID(ctx context.Context, eventID string) ([]*domain.TicketType, error) {
	if m.GetByEventIDFunc != nil {
		return m.GetByEventIDFunc(ctx, eventID)
	}
	return []*domain.TicketType{}, nil
}

func (m *MockTicketTypeRepository) Update(ctx context.Context, tt *domain.TicketType) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tt)
	}
	return nil
}

func (m *MockTicketTypeRepository) SetActive(ctx context.Context, id string, active bool) error {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, id, active)
	}
	return nil
}

// MockPaymentRepository is a mock implementation of PaymentRepository
type MockPaymentRepository struct {
	CreateFunc                    func(ctx context.Context, tx *domain.PaymentTransaction) error
	GetByTxRefFunc                func(ctx context.Context, txRef string) (*domain.PaymentTransaction, error)
	GetByBookingIDFunc            func(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error)
	SucceededExistsForBookingFunc func(ctx context.Context, bookingID string) (bool, error)
	ResolveSuccessFunc            func(ctx context.Context, txRef, payload string) (*domain.PaymentTransaction, *domain.Booking, error)
	ResolveFailureFunc            func(ctx context.Context, txRef string, status domain.TransactionStatus, payload string) (*domain.PaymentTransaction, *domain.Booking, error)
	RecordPayloadFunc             func(ctx context.Context, txRef, payload string) error
	GetStalePendingFunc           func(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error)
}

func (m *MockPaymentRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx)
	}
	return nil
}

func (m *MockPaymentRepository) GetByTxRef(ctx context.Context, txRef string) (*domain.PaymentTransaction, error) {
	if m.GetByTxRefFunc != nil {
		return m.GetByTxRefFunc(ctx, txRef)
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockPaymentRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*domain.PaymentTransaction, error) {
	if m.GetByBookingIDFunc != nil {
		return m.GetByBookingIDFunc(ctx, bookingID)
	}
	return []*domain.PaymentTransaction{}, nil
}

func (m *MockPaymentRepository) SucceededExistsForBooking(ctx context.Context, bookingID string) (bool, error) {
	if m.SucceededExistsForBookingFunc != nil {
		return m.SucceededExistsForBookingFunc(ctx, bookingID)
	}
	return false, nil
}

func (m *MockPaymentRepository) ResolveSuccess(ctx context.Context, txRef, payload string) (*domain.PaymentTransaction, *domain.Booking, error) {
	if m.ResolveSuccessFunc != nil {
		return m.ResolveSuccessFunc(ctx, txRef, payload)
	}
	return nil, nil, domain.ErrTransactionNotFound
}

func (m *MockPaymentRepository) ResolveFailure(ctx context.Context, txRef string, status domain.TransactionStatus, payload string) (*domain.PaymentTransaction, *domain.Booking, error) {
	if m.ResolveFailureFunc != nil {
		return m.ResolveFailureFunc(ctx, txRef, status, payload)
	}
	return nil, nil, domain.ErrTransactionNotFound
}

func (m *MockPaymentRepository) RecordPayload(ctx context.Context, txRef, payload string) error {
	if m.RecordPayloadFunc != nil {
		return m.RecordPayloadFunc(ctx, txRef, payload)
	}
	return nil
}

func (m *MockPaymentRepository) GetStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	if m.GetStalePendingFunc != nil {
		return m.GetStalePendingFunc(ctx, cutoff, limit)
	}
	return []*domain.PaymentTransaction{}, nil
}

// RecordingEventPublisher captures published events for assertions
type RecordingEventPublisher struct {
	Created   []*domain.Booking
	Confirmed []*domain.Booking
	Cancelled []*domain.Booking
	CheckedIn []*domain.Booking
	Refunds   []*domain.Booking
}

func (p *RecordingEventPublisher) PublishBookingCreated(ctx context.Context, b *domain.Booking) error {
	p.Created = append(p.Created, b)
	return nil
}

func (p *RecordingEventPublisher) PublishBookingConfirmed(ctx context.Context, b *domain.Booking) error {
	p.Confirmed = append(p.Confirmed, b)
	return nil
}

func (p *RecordingEventPublisher) PublishBookingCancelled(ctx context.Context, b *domain.Booking) error {
	p.Cancelled = append(p.Cancelled, b)
	return nil
}

func (p *RecordingEventPublisher) PublishBookingCheckedIn(ctx context.Context, b *domain.Booking) error {
	p.CheckedIn = append(p.CheckedIn, b)
	return nil
}

func (p *RecordingEventPublisher) PublishRefundRequired(ctx context.Context, b *domain.Booking) error {
	p.Refunds = append(p.Refunds, b)
	return nil
}

func (p *RecordingEventPublisher) Close() error { return nil }

func testTicketType() *domain.TicketType {
	now := time.Now().UTC()
	return &domain.TicketType{
		ID:         "tt-001",
		EventID:    "event-001",
		Name:       "General Admission",
		Price:      100.00,
		Quantity:   100,
		Sold:       0,
		MaxPerUser: 4,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testBooking(status domain.BookingStatus) *domain.Booking {
	now := time.Now().UTC()
	return &domain.Booking{
		ID:           "booking-001",
		Reference:    "ABCD2345",
		UserID:       "user-001",
		EventID:      "event-001",
		TicketTypeID: "tt-001",
		Quantity:     2,
		UnitPrice:    100.00,
		TotalPrice:   200.00,
		Currency:     "THB",
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestBookingService_CreateBooking(t *testing.T) {
	tests := []struct {
		name          string
		userID        string
		req           *dto.CreateBookingRequest
		setupMocks    func(*MockBookingRepository, *MockTicketTypeRepository)
		wantErr       error
		wantReference bool
	}{
		{
			name:   "successful creation",
			userID: "user-001",
			req:    &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 2},
			setupMocks: func(br *MockBookingRepository, tr *MockTicketTypeRepository) {
				br.CreateWithReservationFunc = func(ctx context.Context, booking *domain.Booking) error {
					return nil
				}
			},
			wantErr:       nil,
			wantReference: true,
		},
		{
			name:    "empty user id",
			userID:  "",
			req:     &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 2},
			wantErr: domain.ErrInvalidUserID,
		},
		{
			name:    "zero quantity",
			userID:  "user-001",
			req:     &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 0},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:   "unknown ticket type",
			userID: "user-001",
			req:    &dto.CreateBookingRequest{TicketTypeID: "tt-missing", Quantity: 1},
			setupMocks: func(br *MockBookingRepository, tr *MockTicketTypeRepository) {
				tr.GetByIDFunc = func(ctx context.Context, id string) (*domain.TicketType, error) {
					return nil, domain.ErrTicketTypeNotFound
				}
			},
			wantErr: domain.ErrTicketTypeNotFound,
		},
		{
			name:   "insufficient inventory",
			userID: "user-001",
			req:    &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 2},
			setupMocks: func(br *MockBookingRepository, tr *MockTicketTypeRepository) {
				br.CreateWithReservationFunc = func(ctx context.Context, booking *domain.Booking) error {
					return domain.ErrInsufficientInventory
				}
			},
			wantErr: domain.ErrInsufficientInventory,
		},
		{
			name:   "per user limit exceeded",
			userID: "user-001",
			req:    &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 3},
			setupMocks: func(br *MockBookingRepository, tr *MockTicketTypeRepository) {
				br.CreateWithReservationFunc = func(ctx context.Context, booking *domain.Booking) error {
					return domain.ErrPerUserLimitExceeded
				}
			},
			wantErr: domain.ErrPerUserLimitExceeded,
		},
		{
			name:   "sale window closed",
			userID: "user-001",
			req:    &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 1},
			setupMocks: func(br *MockBookingRepository, tr *MockTicketTypeRepository) {
				br.CreateWithReservationFunc = func(ctx context.Context, booking *domain.Booking) error {
					return domain.ErrSaleWindowClosed
				}
			},
			wantErr: domain.ErrSaleWindowClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookingRepo := &MockBookingRepository{}
			ticketRepo := &MockTicketTypeRepository{}
			publisher := &RecordingEventPublisher{}
			if tt.setupMocks != nil {
				tt.setupMocks(bookingRepo, ticketRepo)
			}

			svc := NewBookingService(bookingRepo, ticketRepo, &MockPaymentRepository{}, publisher, nil)
			resp, err := svc.CreateBooking(context.Background(), tt.userID, tt.req)

			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("CreateBooking() error = %v, want %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				if len(publisher.Created) != 0 {
					t.Errorf("CreateBooking() published %d created events on failure", len(publisher.Created))
				}
				return
			}

			if resp == nil {
				t.Fatal("CreateBooking() returned nil response")
			}
			if tt.wantReference && len(resp.Reference) != 8 {
				t.Errorf("CreateBooking() reference = %q, want 8 characters", resp.Reference)
			}
			if resp.Status != string(domain.BookingStatusPending) {
				t.Errorf("CreateBooking() status = %s, want pending", resp.Status)
			}
			if resp.TotalPrice != 100.00*float64(tt.req.Quantity) {
				t.Errorf("CreateBooking() total price = %v, want %v", resp.TotalPrice, 100.00*float64(tt.req.Quantity))
			}
			if resp.EventID != "event-001" {
				t.Errorf("CreateBooking() event id = %s, want event-001", resp.EventID)
			}
			if len(publisher.Created) != 1 {
				t.Errorf("CreateBooking() published %d created events, want 1", len(publisher.Created))
			}
		})
	}
}

func TestBookingService_CreateBooking_ReferenceCollisionRetry(t *testing.T) {
	attempts := 0
	references := map[string]bool{}
	bookingRepo := &MockBookingRepository{
		CreateWithReservationFunc: func(ctx context.Context, booking *domain.Booking) error {
			attempts++
			references[booking.Reference] = true
			if attempts == 1 {
				return domain.ErrReferenceCollision
			}
			return nil
		},
	}

	svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, nil, nil)
	resp, err := svc.CreateBooking(context.Background(), "user-001", &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 1})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("CreateBooking() attempts = %d, want 2", attempts)
	}
	if len(references) != 2 {
		t.Errorf("CreateBooking() used %d distinct references, want 2", len(references))
	}
	if !references[resp.Reference] {
		t.Errorf("CreateBooking() response reference %q was never inserted", resp.Reference)
	}
}

func TestBookingService_CreateBooking_CollisionsExhausted(t *testing.T) {
	attempts := 0
	bookingRepo := &MockBookingRepository{
		CreateWithReservationFunc: func(ctx context.Context, booking *domain.Booking) error {
			attempts++
			return domain.ErrReferenceCollision
		},
	}

	svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, nil, nil)
	_, err := svc.CreateBooking(context.Background(), "user-001", &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 1})
	if !errors.Is(err, domain.ErrReferenceCollision) {
		t.Errorf("CreateBooking() error = %v, want ErrReferenceCollision", err)
	}
	if attempts != maxReferenceAttempts {
		t.Errorf("CreateBooking() attempts = %d, want %d", attempts, maxReferenceAttempts)
	}
}

func TestBookingService_CancelBooking(t *testing.T) {
	tests := []struct {
		name        string
		bookingID   string
		userID      string
		setupMocks  func(*MockBookingRepository, *MockPaymentRepository)
		wantErr     error
		wantRefunds int
	}{
		{
			name:      "cancel pending booking",
			bookingID: "booking-001",
			userID:    "user-001",
			setupMocks: func(br *MockBookingRepository, pr *MockPaymentRepository) {
				br.GetByIDFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
					return testBooking(domain.BookingStatusPending), nil
				}
				br.CancelAndReleaseFunc = func(ctx context.Context, id string, from []domain.BookingStatus, reason string) (*domain.Booking, error) {
					b := testBooking(domain.BookingStatusCancelled)
					b.StatusReason = reason
					return b, nil
				}
			},
			wantErr:     nil,
			wantRefunds: 0,
		},
		{
			name:      "cancel confirmed booking with successful payment requires refund",
			bookingID: "booking-001",
			userID:    "user-001",
			setupMocks: func(br *MockBookingRepository, pr *MockPaymentRepository) {
				br.GetByIDFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
					return testBooking(domain.BookingStatusConfirmed), nil
				}
				br.CancelAndReleaseFunc = func(ctx context.Context, id string, from []domain.BookingStatus, reason string) (*domain.Booking, error) {
					b := testBooking(domain.BookingStatusCancelled)
					b.StatusReason = reason
					return b, nil
				}
				pr.SucceededExistsForBookingFunc = func(ctx context.Context, bookingID string) (bool, error) {
					return true, nil
				}
			},
			wantErr:     nil,
			wantRefunds: 1,
		},
		{
			name:      "cancel checked in booking rejected",
			bookingID: "booking-001",
			userID:    "user-001",
			setupMocks: func(br *MockBookingRepository, pr *MockPaymentRepository) {
				br.GetByIDFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
					return testBooking(domain.BookingStatusCheckedIn), nil
				}
				br.CancelAndReleaseFunc = func(ctx context.Context, id string, from []domain.BookingStatus, reason string) (*domain.Booking, error) {
					return nil, domain.ErrInvalidStateTransition
				}
			},
			wantErr: domain.ErrInvalidStateTransition,
		},
		{
			name:      "booking owned by another user",
			bookingID: "booking-001",
			userID:    "user-999",
			setupMocks: func(br *MockBookingRepository, pr *MockPaymentRepository) {
				br.GetByIDFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
					return testBooking(domain.BookingStatusPending), nil
				}
			},
			wantErr: domain.ErrBookingNotFound,
		},
		{
			name:      "booking not found",
			bookingID: "booking-missing",
			userID:    "user-001",
			wantErr:   domain.ErrBookingNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookingRepo := &MockBookingRepository{}
			paymentRepo := &MockPaymentRepository{}
			publisher := &RecordingEventPublisher{}
			if tt.setupMocks != nil {
				tt.setupMocks(bookingRepo, paymentRepo)
			}

			svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, paymentRepo, publisher, nil)
			resp, err := svc.CancelBooking(context.Background(), tt.bookingID, tt.userID)

			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("CancelBooking() error = %v, want %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				if len(publisher.Cancelled) != 0 {
					t.Errorf("CancelBooking() published %d cancelled events on failure", len(publisher.Cancelled))
				}
				return
			}

			if resp.Status != string(domain.BookingStatusCancelled) {
				t.Errorf("CancelBooking() status = %s, want cancelled", resp.Status)
			}
			if len(publisher.Cancelled) != 1 {
				t.Errorf("CancelBooking() published %d cancelled events, want 1", len(publisher.Cancelled))
			}
			if len(publisher.Refunds) != tt.wantRefunds {
				t.Errorf("CancelBooking() published %d refund events, want %d", len(publisher.Refunds), tt.wantRefunds)
			}
		})
	}
}

func TestBookingService_CheckIn(t *testing.T) {
	tests := []struct {
		name       string
		bookingID  string
		setupMocks func(*MockBookingRepository)
		wantErr    error
	}{
		{
			name:      "check in confirmed booking",
			bookingID: "booking-001",
			setupMocks: func(br *MockBookingRepository) {
				br.CheckInFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
					b := testBooking(domain.BookingStatusCheckedIn)
					now := time.Now().UTC()
					b.CheckInTime = &now
					return b, nil
				}
			},
		},
		{
			name:      "repeated check in returns recorded booking",
			bookingID: "booking-001",
			setupMocks: func(br *MockBookingRepository) {
				br.CheckInFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
					b := testBooking(domain.BookingStatusCheckedIn)
					earlier := time.Now().UTC().Add(-time.Hour)
					b.CheckInTime = &earlier
					return b, nil
				}
			},
		},
		{
			name:      "pending booking cannot check in",
			bookingID: "booking-001",
			setupMocks: func(br *MockBookingRepository) {
				br.CheckInFunc = func(ctx context.Context, id string) (*domain.Booking, error) {
					return nil, domain.ErrInvalidStateTransition
				}
			},
			wantErr: domain.ErrInvalidStateTransition,
		},
		{
			name:      "empty booking id",
			bookingID: "",
			wantErr:   domain.ErrInvalidBookingID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookingRepo := &MockBookingRepository{}
			publisher := &RecordingEventPublisher{}
			if tt.setupMocks != nil {
				tt.setupMocks(bookingRepo)
			}

			svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, publisher, nil)
			resp, err := svc.CheckIn(context.Background(), tt.bookingID)

			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("CheckIn() error = %v, want %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}

			if resp.Status != string(domain.BookingStatusCheckedIn) {
				t.Errorf("CheckIn() status = %s, want checked_in", resp.Status)
			}
			if resp.CheckInTime == nil {
				t.Error("CheckIn() check in time is nil")
			}
			if len(publisher.CheckedIn) != 1 {
				t.Errorf("CheckIn() published %d events, want 1", len(publisher.CheckedIn))
			}
		})
	}
}

func TestBookingService_ExpireReservations(t *testing.T) {
	stale := []*domain.Booking{
		testBooking(domain.BookingStatusPending),
		testBooking(domain.BookingStatusPending),
	}
	stale[1].ID = "booking-002"

	t.Run("expires each claimed booking once", func(t *testing.T) {
		bookingRepo := &MockBookingRepository{
			GetExpiredPendingFunc: func(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
				return stale, nil
			},
			ExpireAndReleaseFunc: func(ctx context.Context, id string, cutoff time.Time) (*domain.Booking, error) {
				// second booking was claimed by a competing sweeper
				if id == "booking-002" {
					return nil, domain.ErrInvalidStateTransition
				}
				b := testBooking(domain.BookingStatusCancelled)
				b.ID = id
				b.StatusReason = domain.ExpiredByTimeout
				return b, nil
			},
		}
		publisher := &RecordingEventPublisher{}

		svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, publisher, nil)
		count, err := svc.ExpireReservations(context.Background(), 100)
		if err != nil {
			t.Fatalf("ExpireReservations() error = %v", err)
		}
		if count != 1 {
			t.Errorf("ExpireReservations() count = %d, want 1", count)
		}
		if len(publisher.Cancelled) != 1 {
			t.Errorf("ExpireReservations() published %d cancelled events, want 1", len(publisher.Cancelled))
		}
		if publisher.Cancelled[0].StatusReason != domain.ExpiredByTimeout {
			t.Errorf("ExpireReservations() status reason = %q, want %q", publisher.Cancelled[0].StatusReason, domain.ExpiredByTimeout)
		}
	})

	t.Run("scan error surfaces", func(t *testing.T) {
		scanErr := errors.New("scan failed")
		bookingRepo := &MockBookingRepository{
			GetExpiredPendingFunc: func(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
				return nil, scanErr
			},
		}

		svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, nil, nil)
		if _, err := svc.ExpireReservations(context.Background(), 100); !errors.Is(err, scanErr) {
			t.Errorf("ExpireReservations() error = %v, want %v", err, scanErr)
		}
	})

	t.Run("cutoff respects configured timeout", func(t *testing.T) {
		var gotCutoff time.Time
		bookingRepo := &MockBookingRepository{
			GetExpiredPendingFunc: func(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
				gotCutoff = cutoff
				return nil, nil
			},
		}

		svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, nil, &BookingServiceConfig{
			ReservationTimeout: 30 * time.Minute,
		})
		if _, err := svc.ExpireReservations(context.Background(), 10); err != nil {
			t.Fatalf("ExpireReservations() error = %v", err)
		}

		want := time.Now().UTC().Add(-30 * time.Minute)
		if diff := gotCutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Errorf("ExpireReservations() cutoff = %v, want about %v", gotCutoff, want)
		}
	})
}

func TestBookingService_GetBooking(t *testing.T) {
	bookingRepo := &MockBookingRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) {
			return testBooking(domain.BookingStatusPending), nil
		},
	}
	svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, nil, nil)

	if _, err := svc.GetBooking(context.Background(), "booking-001", "user-001"); err != nil {
		t.Errorf("GetBooking() error = %v", err)
	}

	// another user's booking looks like it does not exist
	if _, err := svc.GetBooking(context.Background(), "booking-001", "user-999"); !errors.Is(err, domain.ErrBookingNotFound) {
		t.Errorf("GetBooking() error = %v, want ErrBookingNotFound", err)
	}
}

func TestBookingService_GetBookingByReference(t *testing.T) {
	bookingRepo := &MockBookingRepository{
		GetByReferenceFunc: func(ctx context.Context, reference string) (*domain.Booking, error) {
			if reference == "ABCD2345" {
				return testBooking(domain.BookingStatusConfirmed), nil
			}
			return nil, domain.ErrBookingNotFound
		},
	}
	svc := NewBookingService(bookingRepo, &MockTicketTypeRepository{}, &MockPaymentRepository{}, nil, nil)

	resp, err := svc.GetBookingByReference(context.Background(), "ABCD2345")
	if err != nil {
		t.Fatalf("GetBookingByReference() error = %v", err)
	}
	if resp.Reference != "ABCD2345" {
		t.Errorf("GetBookingByReference() reference = %s, want ABCD2345", resp.Reference)
	}

	if _, err := svc.GetBookingByReference(context.Background(), "NOPE2345"); !errors.Is(err, domain.ErrBookingNotFound) {
		t.Errorf("GetBookingByReference() error = %v, want ErrBookingNotFound", err)
	}
}

// TestBookingService_InventoryScenario walks a near-sold-out ticket type the
// way the database enforces it: 100 tickets with 98 sold and a 4 per user cap.
func TestBookingService_InventoryScenario(t *testing.T) {
	ticketType := testTicketType()
	ticketType.Sold = 98

	held := map[string]int{}

	bookingRepo := &MockBookingRepository{
		CreateWithReservationFunc: func(ctx context.Context, booking *domain.Booking) error {
			if ticketType.Sold+booking.Quantity > ticketType.Quantity {
				return domain.ErrInsufficientInventory
			}
			if !ticketType.AllowsQuantityForUser(held[booking.UserID], booking.Quantity) {
				return domain.ErrPerUserLimitExceeded
			}
			ticketType.Sold += booking.Quantity
			held[booking.UserID] += booking.Quantity
			return nil
		},
	}
	ticketRepo := &MockTicketTypeRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.TicketType, error) {
			return ticketType, nil
		},
	}

	svc := NewBookingService(bookingRepo, ticketRepo, &MockPaymentRepository{}, nil, nil)
	ctx := context.Background()

	// user A takes the last two tickets
	if _, err := svc.CreateBooking(ctx, "user-a", &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 2}); err != nil {
		t.Fatalf("first booking error = %v", err)
	}
	if ticketType.Sold != 100 {
		t.Fatalf("sold = %d, want 100", ticketType.Sold)
	}

	// sold out for everyone else
	if _, err := svc.CreateBooking(ctx, "user-b", &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 1}); !errors.Is(err, domain.ErrInsufficientInventory) {
		t.Fatalf("second booking error = %v, want ErrInsufficientInventory", err)
	}

	// releasing the two tickets reopens sales
	ticketType.Sold -= 2
	held["user-a"] -= 2

	if _, err := svc.CreateBooking(ctx, "user-b", &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 1}); err != nil {
		t.Fatalf("post-release booking error = %v", err)
	}

	// the per-user cap binds before inventory does
	if _, err := svc.CreateBooking(ctx, "user-b", &dto.CreateBookingRequest{TicketTypeID: "tt-001", Quantity: 4}); !errors.Is(err, domain.ErrPerUserLimitExceeded) {
		t.Fatalf("cap booking error = %v, want ErrPerUserLimitExceeded", err)
	}
}
