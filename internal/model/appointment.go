package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusAssigned  AppointmentStatus = "assigned"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Owner fields understood by Appointment.OwnerID and Actor.OwnerID.
const (
	OwnerFieldID          = "id"
	OwnerFieldClientID    = "client_id"
	OwnerFieldClinicianID = "clinician_id"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrTerminalState     = errors.New("appointment is in a terminal state")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrSlotUnavailable   = errors.New("clinician already has an appointment at this date and time")
)

// IsTerminal reports whether no further transition is allowed from s.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusAssigned, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Label is the display name of the status.
func (s AppointmentStatus) Label() string {
	switch s {
	case AppointmentStatusPending:
		return "Pending"
	case AppointmentStatusAssigned:
		return "Assigned"
	case AppointmentStatusCompleted:
		return "Completed"
	case AppointmentStatusCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// ParseAppointmentStatus maps a symbolic status name onto the internal status.
// Names are matched case-insensitively; the legacy numeric ids 1-4 and the
// older "scheduled"/"confirmed" names are also accepted.
func ParseAppointmentStatus(name string) (AppointmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pending", "scheduled", "1":
		return AppointmentStatusPending, nil
	case "assigned", "confirmed", "2":
		return AppointmentStatusAssigned, nil
	case "completed", "complete", "3":
		return AppointmentStatusCompleted, nil
	case "cancelled", "canceled", "4":
		return AppointmentStatusCancelled, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", name)
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

type Appointment struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	ClientID        uuid.UUID         `db:"client_id" json:"client_id"`
	ClinicianID     *uuid.UUID        `db:"clinician_id" json:"clinician_id,omitempty"`
	Date            Date              `db:"appointment_date" json:"date"`
	Time            ClockTime         `db:"appointment_time" json:"time"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Reason          string            `db:"reason" json:"reason,omitempty"`
	Notes           string            `db:"notes" json:"notes,omitempty"`
	CancelReason    *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CompletionNotes *string           `db:"completion_notes" json:"completion_notes,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
	CancelledAt     *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt     *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// NewAppointment builds a booking in Pending, or Assigned when a clinician is given.
func NewAppointment(clientID uuid.UUID, clinicianID *uuid.UUID, date Date, at ClockTime, reason string, now time.Time) *Appointment {
	apt := &Appointment{
		ID:        uuid.New(),
		ClientID:  clientID,
		Date:      date,
		Time:      at,
		Status:    AppointmentStatusPending,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if clinicianID != nil && *clinicianID != uuid.Nil {
		id := *clinicianID
		apt.ClinicianID = &id
		apt.Status = AppointmentStatusAssigned
	}
	return apt
}

// Clone returns a deep copy of a.
func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.ClinicianID != nil {
		id := *a.ClinicianID
		c.ClinicianID = &id
	}
	c.CancelReason = cloneString(a.CancelReason)
	c.CompletionNotes = cloneString(a.CompletionNotes)
	c.CancelledAt = cloneTime(a.CancelledAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	return &c
}

// Slot returns the slot held by the appointment, if a clinician is set.
func (a *Appointment) Slot() (Slot, bool) {
	if a.ClinicianID == nil {
		return Slot{}, false
	}
	return Slot{ClinicianID: *a.ClinicianID, Date: a.Date, Time: a.Time}, true
}

// OccupiesSlot reports whether a blocks its slot for other bookings.
// Only cancelled appointments release their slot.
func (a *Appointment) OccupiesSlot() bool {
	return a.ClinicianID != nil && a.Status != AppointmentStatusCancelled
}

// NeedsSlotCheck reports whether moving from before to a requires the slot
// to be checked for conflicts.
func (a *Appointment) NeedsSlotCheck(before *Appointment) bool {
	if !a.OccupiesSlot() {
		return false
	}
	if before == nil || !before.OccupiesSlot() {
		return true
	}
	prev, _ := before.Slot()
	next, _ := a.Slot()
	return prev != next
}

// OwnerID implements ownership lookup for the authorization engine.
func (a *Appointment) OwnerID(field string) (uuid.UUID, bool) {
	switch field {
	case OwnerFieldClientID:
		return a.ClientID, true
	case OwnerFieldClinicianID:
		if a.ClinicianID == nil {
			return uuid.Nil, false
		}
		return *a.ClinicianID, true
	case OwnerFieldID:
		return a.ID, true
	}
	return uuid.Nil, false
}

func (a *Appointment) guard(to AppointmentStatus) error {
	if a.Status.IsTerminal() {
		return &TransitionError{From: a.Status, To: to, Err: ErrTerminalState}
	}
	return nil
}

// Assign sets the clinician and moves a Pending or Assigned appointment to Assigned.
func (a *Appointment) Assign(clinicianID uuid.UUID, now time.Time) error {
	if err := a.guard(AppointmentStatusAssigned); err != nil {
		return err
	}
	if clinicianID == uuid.Nil {
		return &TransitionError{From: a.Status, To: AppointmentStatusAssigned, Err: errors.New("clinician is required")}
	}
	a.ClinicianID = &clinicianID
	a.Status = AppointmentStatusAssigned
	a.UpdatedAt = now
	return nil
}

// Cancel moves a non-terminal appointment to Cancelled.
func (a *Appointment) Cancel(reason string, now time.Time) error {
	if err := a.guard(AppointmentStatusCancelled); err != nil {
		return err
	}
	a.Status = AppointmentStatusCancelled
	a.CancelReason = &reason
	a.CancelledAt = &now
	a.UpdatedAt = now
	return nil
}

// Complete moves an Assigned appointment to Completed.
func (a *Appointment) Complete(notes string, now time.Time) error {
	if err := a.guard(AppointmentStatusCompleted); err != nil {
		return err
	}
	if a.Status != AppointmentStatusAssigned || a.ClinicianID == nil {
		return &TransitionError{From: a.Status, To: AppointmentStatusCompleted, Err: ErrInvalidTransition}
	}
	a.Status = AppointmentStatusCompleted
	a.CompletionNotes = &notes
	a.CompletedAt = &now
	a.UpdatedAt = now
	return nil
}

// Reschedule moves a non-terminal appointment to another date and time.
func (a *Appointment) Reschedule(date Date, at ClockTime, now time.Time) error {
	if err := a.guard(a.Status); err != nil {
		return err
	}
	a.Date = date
	a.Time = at
	a.UpdatedAt = now
	return nil
}

// TransitionParams carries the data a target status needs.
type TransitionParams struct {
	ClinicianID *uuid.UUID
	Reason      string
	Notes       string
}

// TransitionTo drives the state machine towards status. It is the single
// entry point for generic status patches, so a patch can never perform a
// move the named operations would reject.
func (a *Appointment) TransitionTo(status AppointmentStatus, p TransitionParams, now time.Time) error {
	if !status.Valid() {
		return &TransitionError{From: a.Status, To: status, Err: ErrInvalidTransition}
	}
	if err := a.guard(status); err != nil {
		return err
	}
	switch status {
	case AppointmentStatusPending:
		if a.Status != AppointmentStatusPending {
			return &TransitionError{From: a.Status, To: status, Err: ErrInvalidTransition}
		}
		return nil
	case AppointmentStatusAssigned:
		clinicianID := a.ClinicianID
		if p.ClinicianID != nil {
			clinicianID = p.ClinicianID
		}
		if clinicianID == nil {
			return &TransitionError{From: a.Status, To: status, Err: errors.New("clinician is required")}
		}
		if a.Status == AppointmentStatusAssigned && a.ClinicianID != nil && *a.ClinicianID == *clinicianID {
			return nil
		}
		return a.Assign(*clinicianID, now)
	case AppointmentStatusCancelled:
		return a.Cancel(p.Reason, now)
	case AppointmentStatusCompleted:
		return a.Complete(p.Notes, now)
	}
	return &TransitionError{From: a.Status, To: status, Err: ErrInvalidTransition}
}

// Event types written to the outbox for committed changes.
const (
	EventAppointmentCreated   = "appointment.created"
	EventAppointmentAssigned  = "appointment.assigned"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAppointmentCompleted = "appointment.completed"
	EventAppointmentUpdated   = "appointment.updated"
)

// EventTypeFor names the change from before to after.
func EventTypeFor(before, after *Appointment) string {
	if before == nil {
		return EventAppointmentCreated
	}
	switch {
	case after.Status == AppointmentStatusCancelled && before.Status != AppointmentStatusCancelled:
		return EventAppointmentCancelled
	case after.Status == AppointmentStatusCompleted && before.Status != AppointmentStatusCompleted:
		return EventAppointmentCompleted
	case after.Status == AppointmentStatusAssigned && !sameClinician(before.ClinicianID, after.ClinicianID):
		return EventAppointmentAssigned
	}
	return EventAppointmentUpdated
}

func sameClinician(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// AppointmentResponse is an appointment with its resolved status label.
type AppointmentResponse struct {
	*Appointment
	StatusLabel string `json:"status_label"`
}

func NewAppointmentResponse(a *Appointment) *AppointmentResponse {
	return &AppointmentResponse{Appointment: a, StatusLabel: a.Status.Label()}
}

type CreateAppointmentRequest struct {
	ClientID    *uuid.UUID `json:"client_id"`
	ClinicianID *uuid.UUID `json:"clinician_id"`
	Date        string     `json:"date" binding:"required,date"`
	Time        string     `json:"time" binding:"required,clock"`
	Reason      string     `json:"reason" binding:"max=1000"`
}

// UpdateAppointmentRequest is a partial update. Status accepts a symbolic
// name and is applied through the state machine.
type UpdateAppointmentRequest struct {
	Date         *string    `json:"date" binding:"omitempty,date"`
	Time         *string    `json:"time" binding:"omitempty,clock"`
	Reason       *string    `json:"reason" binding:"omitempty,max=1000"`
	Notes        *string    `json:"notes" binding:"omitempty,max=4000"`
	Status       *string    `json:"status"`
	ClinicianID  *uuid.UUID `json:"clinician_id"`
	CancelReason *string    `json:"cancel_reason" binding:"omitempty,max=1000"`
}

type AssignClinicianRequest struct {
	ClinicianID uuid.UUID `json:"clinician_id" binding:"required"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type CompleteAppointmentRequest struct {
	Notes string `json:"notes" binding:"max=4000"`
}

type AppointmentFilters struct {
	ClientID    *uuid.UUID
	ClinicianID *uuid.UUID
	Status      *AppointmentStatus
	From        *Date
	To          *Date
}
