package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telecare-backend/internal/domain"
	apperrors "telecare-backend/pkg/errors"
)

// AppointmentRepository handles appointment lookups. The coordination layer
// reads appointments only to check party identities; writes happen elsewhere.
type AppointmentRepository struct {
	pool *pgxpool.Pool
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(pool *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

// GetByID retrieves an appointment by ID
func (r *AppointmentRepository) GetByID(ctx context.Context, appointmentID uuid.UUID) (*domain.Appointment, error) {
	query := `
		SELECT appointment_id, patient_id, provider_id, status, scheduled_at, created_at
		FROM appointments
		WHERE appointment_id = $1
	`

	var apt domain.Appointment
	err := r.pool.QueryRow(ctx, query, appointmentID).Scan(
		&apt.AppointmentID,
		&apt.PatientID,
		&apt.ProviderID,
		&apt.Status,
		&apt.ScheduledAt,
		&apt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundError("appointment")
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	return &apt, nil
}

// Create inserts a new appointment. Used by seeding and tests.
func (r *AppointmentRepository) Create(ctx context.Context, apt *domain.Appointment) error {
	query := `
		INSERT INTO appointments (appointment_id, patient_id, provider_id, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		apt.AppointmentID,
		apt.PatientID,
		apt.ProviderID,
		apt.Status,
		apt.ScheduledAt,
		apt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	return nil
}
