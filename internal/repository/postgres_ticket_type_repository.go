package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eventlane/ticketing/internal/domain"
	"github.com/eventlane/ticketing/pkg/telemetry"
)

// PostgresTicketTypeRepository implements TicketTypeRepository using PostgreSQL with pgxpool
type PostgresTicketTypeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketTypeRepository creates a new PostgresTicketTypeRepository
func NewPostgresTicketTypeRepository(pool *pgxpool.Pool) *PostgresTicketTypeRepository {
	return &PostgresTicketTypeRepository{pool: pool}
}

// Create creates a new ticket type record
func (r *PostgresTicketTypeRepository) Create(ctx context.Context, tt *domain.TicketType) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_type_id", tt.ID),
		attribute.String("event_id", tt.EventID),
	)

	query := `
		INSERT INTO ticket_types (
			id, event_id, name, price, is_free, quantity, sold,
			max_per_user, available_from, available_to, active,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13
		)
	`

	_, err := r.pool.Exec(ctx, query,
		tt.ID,
		tt.EventID,
		tt.Name,
		tt.Price,
		tt.IsFree,
		tt.Quantity,
		tt.Sold,
		tt.MaxPerUser,
		tt.AvailableFrom,
		tt.AvailableTo,
		tt.Active,
		tt.CreatedAt,
		tt.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create ticket type: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a ticket type by its ID
func (r *PostgresTicketTypeRepository) GetByID(ctx context.Context, id string) (*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_type_id", id))

	query := `
		SELECT
			id, event_id, name, price, is_free, quantity, sold,
			max_per_user, available_from, available_to, active,
			created_at, updated_at
		FROM ticket_types
		WHERE id = $1
	`

	tt, err := scanTicketTypeRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrTicketTypeNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tt, nil
}

// GetByEventID retrieves all ticket types of an event
func (r *PostgresTicketTypeRepository) GetByEventID(ctx context.Context, eventID string) ([]*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.get_by_event_id")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `
		SELECT
			id, event_id, name, price, is_free, quantity, sold,
			max_per_user, available_from, available_to, active,
			created_at, updated_at
		FROM ticket_types
		WHERE event_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket types by event: %w", err)
	}
	defer rows.Close()

	var result []*domain.TicketType
	for rows.Next() {
		tt, err := scanTicketTypeRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan ticket type: %w", err)
		}
		result = append(result, tt)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating ticket types: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(result)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Update updates the mutable fields of a ticket type. The sold counter is
// deliberately excluded, it only moves through reservation transactions.
func (r *PostgresTicketTypeRepository) Update(ctx context.Context, tt *domain.TicketType) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.update")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_type_id", tt.ID))

	query := `
		UPDATE ticket_types SET
			name = $2,
			price = $3,
			is_free = $4,
			quantity = $5,
			max_per_user = $6,
			available_from = $7,
			available_to = $8,
			active = $9,
			updated_at = $10
		WHERE id = $1 AND quantity >= sold
	`

	result, err := r.pool.Exec(ctx, query,
		tt.ID,
		tt.Name,
		tt.Price,
		tt.IsFree,
		tt.Quantity,
		tt.MaxPerUser,
		tt.AvailableFrom,
		tt.AvailableTo,
		tt.Active,
		time.Now().UTC(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update ticket type: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrTicketTypeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetActive soft-enables or soft-disables a ticket type
func (r *PostgresTicketTypeRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.set_active")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_type_id", id),
		attribute.Bool("active", active),
	)

	query := `UPDATE ticket_types SET active = $2, updated_at = $3 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set ticket type active: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrTicketTypeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// scanTicketTypeRow scans a single row into a TicketType
func scanTicketTypeRow(row pgx.Row) (*domain.TicketType, error) {
	tt := &domain.TicketType{}
	var availableFrom, availableTo *time.Time

	err := row.Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Name,
		&tt.Price,
		&tt.IsFree,
		&tt.Quantity,
		&tt.Sold,
		&tt.MaxPerUser,
		&availableFrom,
		&availableTo,
		&tt.Active,
		&tt.CreatedAt,
		&tt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tt.AvailableFrom = availableFrom
	tt.AvailableTo = availableTo
	return tt, nil
}

// Ensure PostgresTicketTypeRepository implements TicketTypeRepository
var _ TicketTypeRepository = (*PostgresTicketTypeRepository)(nil)
