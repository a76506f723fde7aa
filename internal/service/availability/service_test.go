package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
)

func seed(t *testing.T, store *memory.Store, role model.Role) *model.Identity {
	t.Helper()
	id := uuid.New()
	require.NoError(t, store.Actors().Create(context.Background(), &model.Actor{
		ID: id, Email: id.String() + "@example.com", Role: role, Active: true,
	}))
	return &model.Identity{ActorID: id, Role: role}
}

func intPtr(i int) *int { return &i }

func TestIsFreeIgnoresOnlyCancelled(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Appointments(), store.Availability(), store.Actors())
	clinician := uuid.New()
	slot := model.Slot{ClinicianID: clinician, Date: "2025-03-01", Time: "09:00"}

	free, err := svc.IsFree(ctx, slot)
	require.NoError(t, err)
	assert.True(t, free)

	apt := model.NewAppointment(uuid.New(), &clinician, slot.Date, slot.Time, "", time.Now())
	require.NoError(t, store.Appointments().Create(ctx, apt))
	free, err = svc.IsFree(ctx, slot)
	require.NoError(t, err)
	assert.False(t, free)

	// a minute later is a different slot
	free, err = svc.IsFree(ctx, model.Slot{ClinicianID: clinician, Date: slot.Date, Time: "09:01"})
	require.NoError(t, err)
	assert.True(t, free)

	_, err = store.Appointments().Mutate(ctx, apt.ID, func(a *model.Appointment) (*model.Appointment, error) {
		return a, a.Complete("", time.Now())
	})
	require.NoError(t, err)
	free, err = svc.IsFree(ctx, slot)
	require.NoError(t, err)
	assert.False(t, free, "completed appointments keep the slot")
}

func TestSetWindowAndCheckSlot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Appointments(), store.Availability(), store.Actors())
	clinician := seed(t, store, model.RoleClinician)
	client := seed(t, store, model.RoleClient)

	// 2025-03-03 is a Monday
	_, err := svc.SetWindow(ctx, clinician, clinician.ActorID, &model.SetAvailabilityRequest{
		DayOfWeek: intPtr(int(time.Monday)), StartTime: "09:00", EndTime: "12:00",
	})
	require.NoError(t, err)

	status, err := svc.CheckSlot(ctx, client, clinician.ActorID, "2025-03-03", "10:30")
	require.NoError(t, err)
	assert.True(t, status.Free)
	assert.True(t, status.WithinWindow)

	status, err = svc.CheckSlot(ctx, client, clinician.ActorID, "2025-03-03", "12:00")
	require.NoError(t, err)
	assert.True(t, status.Free)
	assert.False(t, status.WithinWindow)

	status, err = svc.CheckSlot(ctx, client, clinician.ActorID, "2025-03-04", "10:00")
	require.NoError(t, err)
	assert.False(t, status.WithinWindow)

	// replacing the window keeps one row per day
	off := false
	_, err = svc.SetWindow(ctx, clinician, clinician.ActorID, &model.SetAvailabilityRequest{
		DayOfWeek: intPtr(int(time.Monday)), StartTime: "13:00", EndTime: "17:00", IsAvailable: &off,
	})
	require.NoError(t, err)
	windows, err := svc.ListWindows(ctx, client, clinician.ActorID)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.False(t, windows[0].IsAvailable)
}

func TestSetWindowAuthorization(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Appointments(), store.Availability(), store.Actors())
	clinician := seed(t, store, model.RoleClinician)
	other := seed(t, store, model.RoleClinician)
	coordinator := seed(t, store, model.RoleCoordinator)
	req := &model.SetAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "10:00"}

	_, err := svc.SetWindow(ctx, other, clinician.ActorID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	_, err = svc.SetWindow(ctx, nil, clinician.ActorID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	_, err = svc.SetWindow(ctx, coordinator, clinician.ActorID, req)
	assert.NoError(t, err)

	_, err = svc.SetWindow(ctx, coordinator, coordinator.ActorID, req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestSetWindowValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Appointments(), store.Availability(), store.Actors())
	clinician := seed(t, store, model.RoleClinician)

	for name, req := range map[string]*model.SetAvailabilityRequest{
		"day out of range": {DayOfWeek: intPtr(7), StartTime: "09:00", EndTime: "10:00"},
		"missing day":      {StartTime: "09:00", EndTime: "10:00"},
		"end before start": {DayOfWeek: intPtr(2), StartTime: "10:00", EndTime: "09:00"},
		"bad time":         {DayOfWeek: intPtr(2), StartTime: "nine", EndTime: "10:00"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SetWindow(ctx, clinician, clinician.ActorID, req)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest), "got %v", err)
		})
	}
}
