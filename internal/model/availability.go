package model

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityWindow is the advisory weekly schedule of a clinician.
// There is at most one window per clinician and day of week.
type AvailabilityWindow struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	ClinicianID uuid.UUID    `db:"clinician_id" json:"clinician_id"`
	DayOfWeek   time.Weekday `db:"day_of_week" json:"day_of_week"`
	StartTime   ClockTime    `db:"start_time" json:"start_time"`
	EndTime     ClockTime    `db:"end_time" json:"end_time"`
	IsAvailable bool         `db:"is_available" json:"is_available"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// Covers reports whether at falls inside the window on an available day.
func (w *AvailabilityWindow) Covers(at ClockTime) bool {
	if w == nil || !w.IsAvailable {
		return false
	}
	m := at.Minutes()
	return m >= w.StartTime.Minutes() && m < w.EndTime.Minutes()
}

type SetAvailabilityRequest struct {
	DayOfWeek   *int   `json:"day_of_week" binding:"required,min=0,max=6"`
	StartTime   string `json:"start_time" binding:"required,clock"`
	EndTime     string `json:"end_time" binding:"required,clock"`
	IsAvailable *bool  `json:"is_available"`
}

// SlotStatus answers whether a slot can be booked.
type SlotStatus struct {
	ClinicianID  uuid.UUID `json:"clinician_id"`
	Date         Date      `json:"date"`
	Time         ClockTime `json:"time"`
	Free         bool      `json:"free"`
	WithinWindow bool      `json:"within_window"`
}
