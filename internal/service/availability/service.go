package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/authz"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
)

var (
	authenticated = authz.RoleIn(model.AllRoles...)
	// a clinician manages their own schedule; coordinators manage anyone's
	schedulePolicy = authz.OwnerOrRoleIn(model.OwnerFieldID)
)

// Service answers slot questions. IsFree is the binding check used before
// booking; the weekly windows are advisory.
type Service struct {
	appointments repository.AppointmentRepository
	windows      repository.AvailabilityRepository
	actors       repository.ActorRepository
	now          func() time.Time
}

func NewService(appointments repository.AppointmentRepository, windows repository.AvailabilityRepository, actors repository.ActorRepository) *Service {
	return &Service{
		appointments: appointments,
		windows:      windows,
		actors:       actors,
		now:          time.Now,
	}
}

// IsFree reports whether no pending, assigned or completed appointment
// holds the exact slot.
func (s *Service) IsFree(ctx context.Context, slot model.Slot) (bool, error) {
	taken, err := s.appointments.ExistsActiveSlot(ctx, slot, nil)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	return !taken, nil
}

// CheckSlot combines the binding slot check with the advisory window.
func (s *Service) CheckSlot(ctx context.Context, caller *model.Identity, clinicianID uuid.UUID, date, at string) (*model.SlotStatus, error) {
	if err := authz.Authorize(caller, authenticated, nil).Err(); err != nil {
		return nil, err
	}

	d, err := model.ParseDate(date)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	t, err := model.ParseClockTime(at)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	if err := s.requireClinician(ctx, clinicianID); err != nil {
		return nil, err
	}

	slot := model.Slot{ClinicianID: clinicianID, Date: d, Time: t}
	free, err := s.IsFree(ctx, slot)
	if err != nil {
		return nil, err
	}

	window, err := s.windows.GetForDay(ctx, clinicianID, d.Weekday())
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	return &model.SlotStatus{
		ClinicianID:  clinicianID,
		Date:         d,
		Time:         t,
		Free:         free,
		WithinWindow: window.Covers(t),
	}, nil
}

// ListWindows returns the clinician's weekly schedule.
func (s *Service) ListWindows(ctx context.Context, caller *model.Identity, clinicianID uuid.UUID) ([]*model.AvailabilityWindow, error) {
	if err := authz.Authorize(caller, authenticated, nil).Err(); err != nil {
		return nil, err
	}
	if err := s.requireClinician(ctx, clinicianID); err != nil {
		return nil, err
	}
	windows, err := s.windows.ListByClinician(ctx, clinicianID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return windows, nil
}

// SetWindow creates or replaces the window for one day of the week.
func (s *Service) SetWindow(ctx context.Context, caller *model.Identity, clinicianID uuid.UUID, req *model.SetAvailabilityRequest) (*model.AvailabilityWindow, error) {
	if err := authz.Authorize(caller, schedulePolicy, authz.Owners{model.OwnerFieldID: clinicianID}).Err(); err != nil {
		return nil, err
	}

	if req.DayOfWeek == nil || *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
		return nil, apperrors.BadRequest("day_of_week must be between 0 (Sunday) and 6 (Saturday)", nil)
	}
	start, err := model.ParseClockTime(req.StartTime)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	end, err := model.ParseClockTime(req.EndTime)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	if end.Minutes() <= start.Minutes() {
		return nil, apperrors.BadRequest("end_time must be after start_time", nil)
	}
	if err := s.requireClinician(ctx, clinicianID); err != nil {
		return nil, err
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	now := s.now()
	window := &model.AvailabilityWindow{
		ID:          uuid.New(),
		ClinicianID: clinicianID,
		DayOfWeek:   time.Weekday(*req.DayOfWeek),
		StartTime:   start,
		EndTime:     end,
		IsAvailable: available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.windows.Upsert(ctx, window); err != nil {
		return nil, apperrors.Internal(err)
	}
	return window, nil
}

func (s *Service) requireClinician(ctx context.Context, id uuid.UUID) error {
	actor, err := s.actors.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return apperrors.NotFound("clinician", err)
		}
		return apperrors.Internal(err)
	}
	if actor.Role != model.RoleClinician {
		return apperrors.NotFound("clinician", fmt.Errorf("actor %s is a %s", id, actor.Role))
	}
	return nil
}
