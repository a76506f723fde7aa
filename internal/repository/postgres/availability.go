package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

const availabilityColumns = `id, clinician_id, day_of_week, start_time, end_time, is_available, created_at, updated_at`

type availabilityRepository struct {
	BaseRepository
}

func NewAvailabilityRepository(base BaseRepository) repository.AvailabilityRepository {
	return &availabilityRepository{base}
}

// Upsert replaces the window for the clinician's day of week. The stored
// row, including its original id, is scanned back into window.
func (r *availabilityRepository) Upsert(ctx context.Context, window *model.AvailabilityWindow) error {
	query := `
		INSERT INTO availability_windows (
			id, clinician_id, day_of_week, start_time, end_time,
			is_available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (clinician_id, day_of_week) DO UPDATE
		SET start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			is_available = EXCLUDED.is_available,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + availabilityColumns

	err := r.db.GetContext(ctx, window, query,
		window.ID,
		window.ClinicianID,
		int(window.DayOfWeek),
		window.StartTime,
		window.EndTime,
		window.IsAvailable,
		window.CreatedAt,
		window.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert availability: %w", err)
	}
	return nil
}

func (r *availabilityRepository) ListByClinician(ctx context.Context, clinicianID uuid.UUID) ([]*model.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_windows WHERE clinician_id = $1 ORDER BY day_of_week`

	windows := []*model.AvailabilityWindow{}
	if err := r.db.SelectContext(ctx, &windows, query, clinicianID); err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	return windows, nil
}

func (r *availabilityRepository) GetForDay(ctx context.Context, clinicianID uuid.UUID, day time.Weekday) (*model.AvailabilityWindow, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_windows WHERE clinician_id = $1 AND day_of_week = $2`

	var window model.AvailabilityWindow
	if err := r.db.GetContext(ctx, &window, query, clinicianID, int(day)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	return &window, nil
}
