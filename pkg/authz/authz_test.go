package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/booking-api/internal/model"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
)

func identity(role model.Role) *model.Identity {
	return &model.Identity{ActorID: uuid.New(), Role: role}
}

func TestAuthorizeUnauthenticated(t *testing.T) {
	policy := RoleIn(model.RoleClient)

	for name, id := range map[string]*model.Identity{
		"nil":          nil,
		"no actor":     {Role: model.RoleClient},
		"invalid role": {ActorID: uuid.New(), Role: model.Role(42)},
	} {
		t.Run(name, func(t *testing.T) {
			d := Authorize(id, policy, nil)
			assert.False(t, d.Allowed())
			assert.Equal(t, ReasonUnauthenticated, d.Reason)
			assert.True(t, apperrors.IsCode(d.Err(), apperrors.ErrUnauthorized))
		})
	}
}

func TestRoleInDoesNotImplyCoordinator(t *testing.T) {
	policy := RoleIn(model.RoleClinician)

	assert.True(t, Authorize(identity(model.RoleClinician), policy, nil).Allowed())

	d := Authorize(identity(model.RoleCoordinator), policy, nil)
	assert.False(t, d.Allowed())
	assert.Equal(t, ReasonForbidden, d.Reason)
	assert.True(t, apperrors.IsCode(d.Err(), apperrors.ErrForbidden))

	assert.True(t, Authorize(identity(model.RoleCoordinator), RoleIn(model.RoleCoordinator, model.RoleClinician), nil).Allowed())
}

func TestOwnerOrRoleIn(t *testing.T) {
	client := identity(model.RoleClient)
	other := identity(model.RoleClient)
	clinician := identity(model.RoleClinician)
	apt := &model.Appointment{ID: uuid.New(), ClientID: client.ActorID}

	policy := OwnerOrRoleIn(model.OwnerFieldClientID, model.RoleClinician)

	assert.True(t, Authorize(client, policy, apt).Allowed(), "owner is allowed")
	assert.True(t, Authorize(clinician, policy, apt).Allowed(), "listed role is allowed")
	assert.True(t, Authorize(identity(model.RoleCoordinator), policy, apt).Allowed(), "coordinator is always allowed")

	d := Authorize(other, policy, apt)
	assert.False(t, d.Allowed(), "non-owner client is denied")
	assert.Equal(t, ReasonForbidden, d.Reason)

	assert.True(t, Authorize(identity(model.RoleCoordinator), OwnerOrRoleIn(model.OwnerFieldClientID), nil).Allowed())
	assert.False(t, Authorize(client, OwnerOrRoleIn(model.OwnerFieldClientID), nil).Allowed())
}

func TestOwnerOrRoleInMissingOwnerField(t *testing.T) {
	clinician := identity(model.RoleClinician)
	pending := &model.Appointment{ID: uuid.New(), ClientID: uuid.New()}

	d := Authorize(clinician, OwnerOrRoleIn(model.OwnerFieldClinicianID), pending)
	assert.False(t, d.Allowed())

	pending.ClinicianID = &clinician.ActorID
	assert.True(t, Authorize(clinician, OwnerOrRoleIn(model.OwnerFieldClinicianID), pending).Allowed())
}

func TestAnyOf(t *testing.T) {
	client := identity(model.RoleClient)
	clinician := identity(model.RoleClinician)
	apt := &model.Appointment{ID: uuid.New(), ClientID: client.ActorID, ClinicianID: &clinician.ActorID}

	policy := AnyOf(
		OwnerOrRoleIn(model.OwnerFieldClientID),
		OwnerOrRoleIn(model.OwnerFieldClinicianID),
	)

	assert.True(t, Authorize(client, policy, apt).Allowed())
	assert.True(t, Authorize(clinician, policy, apt).Allowed())
	assert.False(t, Authorize(identity(model.RoleClinician), policy, apt).Allowed())
	assert.False(t, Authorize(identity(model.RoleClient), policy, apt).Allowed())
	assert.Contains(t, policy.String(), "client_id")
}

func TestOwnersResource(t *testing.T) {
	client := identity(model.RoleClient)
	res := Owners{model.OwnerFieldClientID: client.ActorID}

	assert.True(t, Authorize(client, OwnerOrRoleIn(model.OwnerFieldClientID), res).Allowed())
	assert.False(t, Authorize(client, OwnerOrRoleIn(model.OwnerFieldClinicianID), res).Allowed())
}
