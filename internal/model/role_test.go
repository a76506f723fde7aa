package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for input, want := range map[string]Role{
		"coordinator": RoleCoordinator,
		"Admin":       RoleCoordinator,
		"clinician":   RoleClinician,
		"2":           RoleClinician,
		" client ":    RoleClient,
		"patient":     RoleClient,
	} {
		got, err := ParseRole(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseRole("superuser")
	assert.Error(t, err)
}

func TestRoleJSON(t *testing.T) {
	out, err := json.Marshal(Identity{Role: RoleClinician})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"role":"clinician"`)

	var id Identity
	require.NoError(t, json.Unmarshal([]byte(`{"role":"client"}`), &id))
	assert.Equal(t, RoleClient, id.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"root"}`), &id))

	_, err = json.Marshal(Identity{})
	assert.Error(t, err, "the zero role is not serialisable")
}

func TestRoleScanAndValue(t *testing.T) {
	var r Role
	require.NoError(t, r.Scan("coordinator"))
	assert.Equal(t, RoleCoordinator, r)
	require.NoError(t, r.Scan(int64(3)))
	assert.Equal(t, RoleClient, r)
	assert.Error(t, r.Scan(nil))

	v, err := RoleClinician.Value()
	require.NoError(t, err)
	assert.Equal(t, "clinician", v)

	_, err = Role(0).Value()
	assert.Error(t, err)
	assert.False(t, Role(9).Valid())
}
