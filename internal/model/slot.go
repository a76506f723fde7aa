package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Date is a calendar day in YYYY-MM-DD form.
type Date string

// ParseDate validates and normalises s.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date(t.Format(DateLayout)), nil
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

// Weekday returns the day of week of d.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = Date(v.Format(DateLayout))
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return string(d), nil
}

// ClockTime is a time of day in HH:MM form. Slots are matched exactly.
type ClockTime string

// ParseClockTime accepts HH:MM or HH:MM:SS and normalises to HH:MM.
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{ClockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime(t.Format(ClockLayout)), nil
		}
	}
	return "", fmt.Errorf("invalid time %q: expected HH:MM", s)
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	t, err := time.Parse(ClockLayout, string(c))
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

func (c *ClockTime) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case time.Time:
		s = v.Format(ClockLayout)
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c ClockTime) Value() (driver.Value, error) {
	return string(c), nil
}

// Slot is a (clinician, date, time) triple, the unit of bookable capacity.
type Slot struct {
	ClinicianID uuid.UUID
	Date        Date
	Time        ClockTime
}

// Key identifies the slot for locking.
func (s Slot) Key() string {
	return fmt.Sprintf("%s|%s|%s", s.ClinicianID, s.Date, s.Time)
}
