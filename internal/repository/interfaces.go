package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
)

// MutateFunc receives a copy of the locked appointment and returns its new
// state. Returning an error aborts the mutation without writing anything.
type MutateFunc func(current *model.Appointment) (*model.Appointment, error)

// All repository interfaces in one file
type (
	// ActorRepository is the credential store.
	ActorRepository interface {
		Create(ctx context.Context, actor *model.Actor) error
		Get(ctx context.Context, id uuid.UUID) (*model.Actor, error)
		GetByEmail(ctx context.Context, email string) (*model.Actor, error)
		UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
		SetActive(ctx context.Context, id uuid.UUID, active bool) error
		SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	}

	// AppointmentRepository persists appointments. Create and Mutate are
	// atomic with respect to the slot check: when the written state occupies
	// a slot, no other active appointment can hold the same slot afterwards.
	// Both return model.ErrSlotUnavailable when the slot is taken.
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters, page model.Pagination) (*model.Page[*model.Appointment], error)
		Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*model.Appointment, error)
		ExistsActiveSlot(ctx context.Context, slot model.Slot, exclude *uuid.UUID) (bool, error)
	}

	AvailabilityRepository interface {
		Upsert(ctx context.Context, window *model.AvailabilityWindow) error
		ListByClinician(ctx context.Context, clinicianID uuid.UUID) ([]*model.AvailabilityWindow, error)
		GetForDay(ctx context.Context, clinicianID uuid.UUID, day time.Weekday) (*model.AvailabilityWindow, error)
	}

	OutboxRepository interface {
		GetPendingEvents(ctx context.Context, limit, maxRetries int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
