package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/authz"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

const resource = "appointment"

var (
	authenticated = authz.RoleIn(model.AllRoles...)
	createPolicy  = authz.RoleIn(model.RoleClient, model.RoleCoordinator)
	assignPolicy  = authz.RoleIn(model.RoleCoordinator)
	// participants are the appointment's client and assigned clinician
	participantPolicy = authz.AnyOf(
		authz.OwnerOrRoleIn(model.OwnerFieldClientID),
		authz.OwnerOrRoleIn(model.OwnerFieldClinicianID),
	)
	completePolicy = authz.OwnerOrRoleIn(model.OwnerFieldClinicianID)
)

// Service orchestrates the appointment lifecycle: every operation resolves
// authorization against the stored row and drives the state machine inside
// one repository transaction.
type Service struct {
	repo    repository.AppointmentRepository
	actors  repository.ActorRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.AppointmentRepository, actors repository.ActorRepository, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		actors:  actors,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) authorize(caller *model.Identity, policy authz.Policy, res authz.Resource) error {
	d := authz.Authorize(caller, policy, res)
	s.metrics.Decision(resource, d.Allowed())
	return d.Err()
}

// Create books an appointment. Clients book for themselves; coordinators
// book on behalf of a client. Giving a clinician books the slot directly.
func (s *Service) Create(ctx context.Context, caller *model.Identity, req *model.CreateAppointmentRequest) (resp *model.AppointmentResponse, err error) {
	defer func() { s.metrics.ObserveTransition("create", err) }()

	if err := s.authorize(caller, createPolicy, nil); err != nil {
		return nil, err
	}

	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	at, err := model.ParseClockTime(req.Time)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	clientID, err := resolveClient(caller, req.ClientID)
	if err != nil {
		return nil, err
	}
	if err := s.requireActor(ctx, clientID, model.RoleClient); err != nil {
		return nil, err
	}
	if req.ClinicianID != nil {
		if err := s.requireActor(ctx, *req.ClinicianID, model.RoleClinician); err != nil {
			return nil, err
		}
	}

	apt := model.NewAppointment(clientID, req.ClinicianID, date, at, strings.TrimSpace(req.Reason), s.now())
	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, s.translate(err)
	}
	return model.NewAppointmentResponse(apt), nil
}

func resolveClient(caller *model.Identity, requested *uuid.UUID) (uuid.UUID, error) {
	switch caller.Role {
	case model.RoleClient:
		if requested != nil && *requested != caller.ActorID {
			return uuid.Nil, apperrors.Forbidden("clients can only book for themselves", nil)
		}
		return caller.ActorID, nil
	case model.RoleCoordinator:
		if requested == nil || *requested == uuid.Nil {
			return uuid.Nil, apperrors.BadRequest("client_id is required", nil)
		}
		return *requested, nil
	default:
		return uuid.Nil, apperrors.Forbidden("permission denied", nil)
	}
}

// requireActor checks that id names an active actor holding role.
func (s *Service) requireActor(ctx context.Context, id uuid.UUID, role model.Role) error {
	actor, err := s.actors.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return apperrors.NotFound(role.String(), err)
		}
		return apperrors.Internal(err)
	}
	if actor.Role != role {
		return apperrors.BadRequest(fmt.Sprintf("actor %s is not a %s", id, role), nil)
	}
	if !actor.IsActive() {
		return apperrors.BadRequest(fmt.Sprintf("%s %s is inactive", role, id), nil)
	}
	return nil
}

// Get returns one appointment visible to the caller.
func (s *Service) Get(ctx context.Context, caller *model.Identity, id uuid.UUID) (*model.AppointmentResponse, error) {
	if err := s.authorize(caller, authenticated, nil); err != nil {
		return nil, err
	}
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if err := s.authorize(caller, participantPolicy, apt); err != nil {
		return nil, err
	}
	return model.NewAppointmentResponse(apt), nil
}

// List returns appointments matching filters. Clinicians and clients only
// ever see their own appointments whatever the filters say.
func (s *Service) List(ctx context.Context, caller *model.Identity, filters model.AppointmentFilters, page model.Pagination) (*model.Page[*model.AppointmentResponse], error) {
	if err := s.authorize(caller, authenticated, nil); err != nil {
		return nil, err
	}
	scope(caller, &filters)
	return s.list(ctx, &filters, page)
}

// ListByClient returns a client's appointments.
func (s *Service) ListByClient(ctx context.Context, caller *model.Identity, clientID uuid.UUID, page model.Pagination) (*model.Page[*model.AppointmentResponse], error) {
	policy := authz.OwnerOrRoleIn(model.OwnerFieldClientID, model.RoleClinician)
	if err := s.authorize(caller, policy, authz.Owners{model.OwnerFieldClientID: clientID}); err != nil {
		return nil, err
	}
	filters := model.AppointmentFilters{ClientID: &clientID}
	scope(caller, &filters)
	return s.list(ctx, &filters, page)
}

// ListByClinician returns a clinician's appointments.
func (s *Service) ListByClinician(ctx context.Context, caller *model.Identity, clinicianID uuid.UUID, page model.Pagination) (*model.Page[*model.AppointmentResponse], error) {
	policy := authz.OwnerOrRoleIn(model.OwnerFieldClinicianID, model.RoleClient)
	if err := s.authorize(caller, policy, authz.Owners{model.OwnerFieldClinicianID: clinicianID}); err != nil {
		return nil, err
	}
	filters := model.AppointmentFilters{ClinicianID: &clinicianID}
	scope(caller, &filters)
	return s.list(ctx, &filters, page)
}

func scope(caller *model.Identity, filters *model.AppointmentFilters) {
	self := caller.ActorID
	switch caller.Role {
	case model.RoleClinician:
		filters.ClinicianID = &self
	case model.RoleClient:
		filters.ClientID = &self
	}
}

func (s *Service) list(ctx context.Context, filters *model.AppointmentFilters, page model.Pagination) (*model.Page[*model.AppointmentResponse], error) {
	if filters.From != nil && filters.To != nil && *filters.To < *filters.From {
		return nil, apperrors.BadRequest("to must not be before from", nil)
	}
	result, err := s.repo.List(ctx, filters, page.Normalize())
	if err != nil {
		return nil, s.translate(err)
	}
	items := make([]*model.AppointmentResponse, len(result.Items))
	for i, apt := range result.Items {
		items[i] = model.NewAppointmentResponse(apt)
	}
	return &model.Page[*model.AppointmentResponse]{Items: items, Total: result.Total}, nil
}

// Assign sets or replaces the clinician of a pending or assigned appointment.
func (s *Service) Assign(ctx context.Context, caller *model.Identity, id, clinicianID uuid.UUID) (*model.AppointmentResponse, error) {
	if err := s.authorize(caller, assignPolicy, nil); err != nil {
		s.metrics.ObserveTransition("assign", err)
		return nil, err
	}
	if err := s.requireActor(ctx, clinicianID, model.RoleClinician); err != nil {
		s.metrics.ObserveTransition("assign", err)
		return nil, err
	}
	return s.mutate(ctx, "assign", id, func(apt *model.Appointment) error {
		return apt.Assign(clinicianID, s.now())
	})
}

// Cancel cancels a non-terminal appointment on behalf of a participant.
func (s *Service) Cancel(ctx context.Context, caller *model.Identity, id uuid.UUID, reason string) (*model.AppointmentResponse, error) {
	if err := s.authorize(caller, authenticated, nil); err != nil {
		s.metrics.ObserveTransition("cancel", err)
		return nil, err
	}
	return s.mutate(ctx, "cancel", id, func(apt *model.Appointment) error {
		if err := s.authorize(caller, participantPolicy, apt); err != nil {
			return err
		}
		return apt.Cancel(strings.TrimSpace(reason), s.now())
	})
}

// Complete marks an assigned appointment as done.
func (s *Service) Complete(ctx context.Context, caller *model.Identity, id uuid.UUID, notes string) (*model.AppointmentResponse, error) {
	if err := s.authorize(caller, authenticated, nil); err != nil {
		s.metrics.ObserveTransition("complete", err)
		return nil, err
	}
	return s.mutate(ctx, "complete", id, func(apt *model.Appointment) error {
		if err := s.authorize(caller, completePolicy, apt); err != nil {
			return err
		}
		return apt.Complete(strings.TrimSpace(notes), s.now())
	})
}

// Update applies a partial update. Field edits are limited to participants;
// clinician and status changes go through the same policies and state
// machine transitions as the dedicated operations.
func (s *Service) Update(ctx context.Context, caller *model.Identity, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.AppointmentResponse, error) {
	if err := s.authorize(caller, authenticated, nil); err != nil {
		s.metrics.ObserveTransition("update", err)
		return nil, err
	}

	patch, err := parsePatch(req)
	if err != nil {
		s.metrics.ObserveTransition("update", err)
		return nil, err
	}
	if patch.clinicianID != nil {
		if err := s.authorize(caller, assignPolicy, nil); err != nil {
			s.metrics.ObserveTransition("update", err)
			return nil, err
		}
		if err := s.requireActor(ctx, *patch.clinicianID, model.RoleClinician); err != nil {
			s.metrics.ObserveTransition("update", err)
			return nil, err
		}
	}

	return s.mutate(ctx, "update", id, func(apt *model.Appointment) error {
		if err := s.authorize(caller, participantPolicy, apt); err != nil {
			return err
		}
		return s.applyPatch(caller, apt, patch)
	})
}

type patch struct {
	date         *model.Date
	time         *model.ClockTime
	reason       *string
	notes        *string
	status       *model.AppointmentStatus
	clinicianID  *uuid.UUID
	cancelReason string
}

func parsePatch(req *model.UpdateAppointmentRequest) (*patch, error) {
	p := &patch{
		reason:      req.Reason,
		notes:       req.Notes,
		clinicianID: req.ClinicianID,
	}
	if req.Date != nil {
		d, err := model.ParseDate(*req.Date)
		if err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		p.date = &d
	}
	if req.Time != nil {
		t, err := model.ParseClockTime(*req.Time)
		if err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		p.time = &t
	}
	if req.Status != nil {
		status, err := model.ParseAppointmentStatus(*req.Status)
		if err != nil {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		p.status = &status
	}
	if p.clinicianID != nil && p.status != nil && *p.status != model.AppointmentStatusAssigned {
		return nil, apperrors.BadRequest(fmt.Sprintf("clinician_id cannot be combined with status %s", *p.status), nil)
	}
	if req.CancelReason != nil {
		p.cancelReason = strings.TrimSpace(*req.CancelReason)
	}
	if p.date == nil && p.time == nil && p.reason == nil && p.notes == nil && p.status == nil && p.clinicianID == nil {
		return nil, apperrors.BadRequest("no fields to update", nil)
	}
	return p, nil
}

func (s *Service) applyPatch(caller *model.Identity, apt *model.Appointment, p *patch) error {
	now := s.now()
	if apt.Status.IsTerminal() {
		to := apt.Status
		if p.status != nil {
			to = *p.status
		}
		return &model.TransitionError{From: apt.Status, To: to, Err: model.ErrTerminalState}
	}

	if p.date != nil || p.time != nil {
		date, at := apt.Date, apt.Time
		if p.date != nil {
			date = *p.date
		}
		if p.time != nil {
			at = *p.time
		}
		if err := apt.Reschedule(date, at, now); err != nil {
			return err
		}
	}
	if p.reason != nil {
		apt.Reason = strings.TrimSpace(*p.reason)
	}
	if p.notes != nil {
		apt.Notes = strings.TrimSpace(*p.notes)
	}
	apt.UpdatedAt = now

	target := p.status
	if target == nil && p.clinicianID != nil {
		assigned := model.AppointmentStatusAssigned
		target = &assigned
	}
	if target == nil {
		return nil
	}

	if err := s.authorize(caller, policyForStatus(*target), apt); err != nil {
		return err
	}
	return apt.TransitionTo(*target, model.TransitionParams{
		ClinicianID: p.clinicianID,
		Reason:      p.cancelReason,
		Notes:       valueOr(p.notes),
	}, now)
}

// policyForStatus returns the policy of the named operation that moves an
// appointment into status.
func policyForStatus(status model.AppointmentStatus) authz.Policy {
	switch status {
	case model.AppointmentStatusAssigned:
		return assignPolicy
	case model.AppointmentStatusCompleted:
		return completePolicy
	default:
		return participantPolicy
	}
}

func valueOr(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (s *Service) mutate(ctx context.Context, op string, id uuid.UUID, fn func(*model.Appointment) error) (*model.AppointmentResponse, error) {
	apt, err := s.repo.Mutate(ctx, id, func(current *model.Appointment) (*model.Appointment, error) {
		if err := fn(current); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		err = s.translate(err)
		s.metrics.ObserveTransition(op, err)
		return nil, err
	}
	s.metrics.ObserveTransition(op, nil)
	return model.NewAppointmentResponse(apt), nil
}

// translate maps domain errors onto application errors.
func (s *Service) translate(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	var transitionErr *model.TransitionError
	switch {
	case errors.Is(err, model.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, model.ErrSlotUnavailable):
		s.metrics.SlotConflict()
		return apperrors.Conflict(model.ErrSlotUnavailable.Error(), err)
	case errors.Is(err, model.ErrTerminalState), errors.Is(err, model.ErrInvalidTransition):
		return apperrors.Conflict(err.Error(), err)
	case errors.As(err, &transitionErr):
		return apperrors.BadRequest(err.Error(), err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Internal(fmt.Errorf("request aborted: %w", err))
	}
	return apperrors.Internal(err)
}
