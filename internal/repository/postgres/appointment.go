package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

const activeSlotIndex = "appointments_active_slot_uq"

const appointmentColumns = `id, client_id, clinician_id, appointment_date, appointment_time,
	status, reason, notes, cancel_reason, completion_notes,
	created_at, updated_at, cancelled_at, completed_at`

type appointmentRepository struct {
	BaseRepository
	now func() time.Time
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: base, now: time.Now}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, client_id, clinician_id, appointment_date, appointment_time,
			status, reason, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if appointment.OccupiesSlot() {
			if err := r.claimSlot(ctx, tx, appointment); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, query,
			appointment.ID,
			appointment.ClientID,
			appointment.ClinicianID,
			appointment.Date,
			appointment.Time,
			appointment.Status,
			appointment.Reason,
			appointment.Notes,
			appointment.CreatedAt,
			appointment.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return r.recordEvent(ctx, tx, nil, appointment)
	})
	return mapSlotViolation(err)
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

// Mutate locks the row, lets fn derive the new state, re-checks the slot
// when the new state takes a different one, then writes the row and its
// outbox event in the same transaction.
func (r *appointmentRepository) Mutate(ctx context.Context, id uuid.UUID, fn repository.MutateFunc) (*model.Appointment, error) {
	var result *model.Appointment

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var current model.Appointment
		query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &current, query, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrNotFound
			}
			return fmt.Errorf("failed to lock appointment: %w", err)
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		next.ID = current.ID

		if next.NeedsSlotCheck(&current) {
			if err := r.claimSlot(ctx, tx, next); err != nil {
				return err
			}
		}

		if err := r.update(ctx, tx, next); err != nil {
			return err
		}
		if err := r.recordEvent(ctx, tx, &current, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, mapSlotViolation(err)
	}
	return result, nil
}

func (r *appointmentRepository) update(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) error {
	query := `
		UPDATE appointments
		SET clinician_id = $1, appointment_date = $2, appointment_time = $3,
			status = $4, reason = $5, notes = $6, cancel_reason = $7,
			completion_notes = $8, updated_at = $9, cancelled_at = $10,
			completed_at = $11
		WHERE id = $12
	`
	_, err := tx.ExecContext(ctx, query,
		a.ClinicianID,
		a.Date,
		a.Time,
		a.Status,
		a.Reason,
		a.Notes,
		a.CancelReason,
		a.CompletionNotes,
		a.UpdatedAt,
		a.CancelledAt,
		a.CompletedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return nil
}

// claimSlot serialises writers of one slot with a transaction scoped
// advisory lock, then checks that no other active appointment holds it.
func (r *appointmentRepository) claimSlot(ctx context.Context, tx *sqlx.Tx, a *model.Appointment) error {
	slot, ok := a.Slot()
	if !ok {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, slot.Key()); err != nil {
		return fmt.Errorf("failed to lock slot: %w", err)
	}
	taken, err := existsActiveSlot(ctx, tx, slot, &a.ID)
	if err != nil {
		return err
	}
	if taken {
		return model.ErrSlotUnavailable
	}
	return nil
}

func (r *appointmentRepository) recordEvent(ctx context.Context, tx *sqlx.Tx, before, after *model.Appointment) error {
	event, err := model.NewAppointmentEvent(model.EventTypeFor(before, after), after, r.now())
	if err != nil {
		return fmt.Errorf("failed to build outbox event: %w", err)
	}
	return insertOutboxEvent(ctx, tx, event)
}

func (r *appointmentRepository) ExistsActiveSlot(ctx context.Context, slot model.Slot, exclude *uuid.UUID) (bool, error) {
	return existsActiveSlot(ctx, r.db, slot, exclude)
}

func existsActiveSlot(ctx context.Context, q sqlx.QueryerContext, slot model.Slot, exclude *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE clinician_id = $1
			AND appointment_date = $2
			AND appointment_time = $3
			AND status <> 'cancelled'
			AND ($4::uuid IS NULL OR id <> $4::uuid)
		)
	`
	var excludeID interface{}
	if exclude != nil {
		excludeID = *exclude
	}

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, slot.ClinicianID, slot.Date, slot.Time, excludeID); err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters, page model.Pagination) (*model.Page[*model.Appointment], error) {
	page = page.Normalize()
	where, args := buildAppointmentFilters(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM appointments` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM appointments%s ORDER BY appointment_date, appointment_time, id LIMIT $%d OFFSET $%d`,
		appointmentColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	items := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return &model.Page[*model.Appointment]{Items: items, Total: total}, nil
}

func buildAppointmentFilters(filters *model.AppointmentFilters) (string, []interface{}) {
	if filters == nil {
		return "", nil
	}
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filters.ClientID != nil {
		add("client_id = $%d", *filters.ClientID)
	}
	if filters.ClinicianID != nil {
		add("clinician_id = $%d", *filters.ClinicianID)
	}
	if filters.Status != nil {
		add("status = $%d", *filters.Status)
	}
	if filters.From != nil {
		add("appointment_date >= $%d", *filters.From)
	}
	if filters.To != nil {
		add("appointment_date <= $%d", *filters.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func mapSlotViolation(err error) error {
	if isUniqueViolation(err, activeSlotIndex) {
		return model.ErrSlotUnavailable
	}
	return err
}
