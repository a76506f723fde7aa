// Package memory is an in-process implementation of the repository
// contracts. A single mutex serialises every write, which gives the same
// slot guarantees as the Postgres advisory lock and unique index.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type Store struct {
	mu           sync.RWMutex
	actors       map[uuid.UUID]*model.Actor
	appointments map[uuid.UUID]*model.Appointment
	windows      map[windowKey]*model.AvailabilityWindow
	outbox       []*model.OutboxEvent
	now          func() time.Time
}

type windowKey struct {
	clinician uuid.UUID
	day       time.Weekday
}

func NewStore() *Store {
	return &Store{
		actors:       make(map[uuid.UUID]*model.Actor),
		appointments: make(map[uuid.UUID]*model.Appointment),
		windows:      make(map[windowKey]*model.AvailabilityWindow),
		now:          time.Now,
	}
}

func (s *Store) Actors() repository.ActorRepository { return (*actorRepo)(s) }

func (s *Store) Appointments() repository.AppointmentRepository { return (*appointmentRepo)(s) }

func (s *Store) Availability() repository.AvailabilityRepository { return (*availabilityRepo)(s) }

func (s *Store) Outbox() repository.OutboxRepository { return (*outboxRepo)(s) }

// Events returns a copy of every outbox event written so far.
func (s *Store) Events() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OutboxEvent, len(s.outbox))
	for i, e := range s.outbox {
		out[i] = *e
	}
	return out
}

type actorRepo Store

func (r *actorRepo) Create(_ context.Context, actor *model.Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actors {
		if strings.EqualFold(a.Email, actor.Email) {
			return model.ErrEmailTaken
		}
	}
	c := *actor
	r.actors[actor.ID] = &c
	return nil
}

func (r *actorRepo) Get(_ context.Context, id uuid.UUID) (*model.Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *actorRepo) GetByEmail(_ context.Context, email string) (*model.Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = strings.TrimSpace(email)
	for _, a := range r.actors {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *actorRepo) UpdateRole(_ context.Context, id uuid.UUID, role model.Role) error {
	return r.update(id, func(a *model.Actor) { a.Role = role })
}

func (r *actorRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return r.update(id, func(a *model.Actor) { a.Active = active })
}

func (r *actorRepo) SetVerified(_ context.Context, id uuid.UUID, verified bool) error {
	return r.update(id, func(a *model.Actor) { a.Verified = verified })
}

func (r *actorRepo) update(id uuid.UUID, fn func(*model.Actor)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return model.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = r.now()
	return nil
}

type appointmentRepo Store

func (r *appointmentRepo) Create(_ context.Context, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if appointment.OccupiesSlot() && r.slotTaken(appointment) {
		return model.ErrSlotUnavailable
	}
	if err := r.record(nil, appointment); err != nil {
		return err
	}
	r.appointments[appointment.ID] = appointment.Clone()
	return nil
}

func (r *appointmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *appointmentRepo) Mutate(_ context.Context, id uuid.UUID, fn repository.MutateFunc) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.appointments[id]
	if !ok {
		return nil, model.ErrNotFound
	}

	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	next.ID = current.ID

	if next.NeedsSlotCheck(current) && r.slotTaken(next) {
		return nil, model.ErrSlotUnavailable
	}
	if err := r.record(current, next); err != nil {
		return nil, err
	}
	r.appointments[id] = next.Clone()
	return next, nil
}

func (r *appointmentRepo) ExistsActiveSlot(_ context.Context, slot model.Slot, exclude *uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.holder(slot, exclude) != nil, nil
}

// slotTaken must be called with the write lock held.
func (r *appointmentRepo) slotTaken(a *model.Appointment) bool {
	slot, ok := a.Slot()
	if !ok {
		return false
	}
	return r.holder(slot, &a.ID) != nil
}

func (r *appointmentRepo) holder(slot model.Slot, exclude *uuid.UUID) *model.Appointment {
	for _, a := range r.appointments {
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if !a.OccupiesSlot() {
			continue
		}
		if s, _ := a.Slot(); s == slot {
			return a
		}
	}
	return nil
}

func (r *appointmentRepo) record(before, after *model.Appointment) error {
	event, err := model.NewAppointmentEvent(model.EventTypeFor(before, after), after, r.now())
	if err != nil {
		return err
	}
	r.outbox = append(r.outbox, event)
	return nil
}

func (r *appointmentRepo) List(_ context.Context, filters *model.AppointmentFilters, page model.Pagination) (*model.Page[*model.Appointment], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	page = page.Normalize()

	var matched []*model.Appointment
	for _, a := range r.appointments {
		if matches(a, filters) {
			matched = append(matched, a.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID.String() < b.ID.String()
	})

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return &model.Page[*model.Appointment]{Items: matched[start:end], Total: total}, nil
}

func matches(a *model.Appointment, f *model.AppointmentFilters) bool {
	if f == nil {
		return true
	}
	if f.ClientID != nil && a.ClientID != *f.ClientID {
		return false
	}
	if f.ClinicianID != nil && (a.ClinicianID == nil || *a.ClinicianID != *f.ClinicianID) {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.From != nil && a.Date < *f.From {
		return false
	}
	if f.To != nil && a.Date > *f.To {
		return false
	}
	return true
}

type availabilityRepo Store

func (r *availabilityRepo) Upsert(_ context.Context, window *model.AvailabilityWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := windowKey{clinician: window.ClinicianID, day: window.DayOfWeek}
	if existing, ok := r.windows[key]; ok {
		window.ID = existing.ID
		window.CreatedAt = existing.CreatedAt
	}
	c := *window
	r.windows[key] = &c
	return nil
}

func (r *availabilityRepo) ListByClinician(_ context.Context, clinicianID uuid.UUID) ([]*model.AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	windows := []*model.AvailabilityWindow{}
	for key, w := range r.windows {
		if key.clinician == clinicianID {
			c := *w
			windows = append(windows, &c)
		}
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].DayOfWeek < windows[j].DayOfWeek })
	return windows, nil
}

func (r *availabilityRepo) GetForDay(_ context.Context, clinicianID uuid.UUID, day time.Weekday) (*model.AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.windows[windowKey{clinician: clinicianID, day: day}]
	if !ok {
		return nil, model.ErrNotFound
	}
	c := *w
	return &c, nil
}

type outboxRepo Store

func (r *outboxRepo) GetPendingEvents(_ context.Context, limit, maxRetries int) ([]*model.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var events []*model.OutboxEvent
	for _, e := range r.outbox {
		if len(events) >= limit {
			break
		}
		if e.Status == model.OutboxStatusPending || (e.Status == model.OutboxStatusFailed && e.RetryCount < maxRetries) {
			c := *e
			events = append(events, &c)
		}
	}
	return events, nil
}

func (r *outboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent) {
		now := r.now()
		e.Status = model.OutboxStatusProcessed
		e.ErrorMessage = nil
		e.ProcessedAt = &now
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errorMessage
		e.RetryCount++
	})
}

func (r *outboxRepo) update(id uuid.UUID, fn func(*model.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.outbox {
		if e.ID == id {
			fn(e)
			e.UpdatedAt = r.now()
			return nil
		}
	}
	return model.ErrNotFound
}

func (r *outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.outbox[:0]
	var deleted int64
	for _, e := range r.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.outbox = kept
	return deleted, nil
}
