package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is the closed set of actor classes. The zero value is not a valid role.
type Role uint8

const (
	RoleCoordinator Role = iota + 1
	RoleClinician
	RoleClient
)

// AllRoles lists every valid role.
var AllRoles = []Role{RoleCoordinator, RoleClinician, RoleClient}

func (r Role) String() string {
	switch r {
	case RoleCoordinator:
		return "coordinator"
	case RoleClinician:
		return "clinician"
	case RoleClient:
		return "client"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCoordinator, RoleClinician, RoleClient:
		return true
	default:
		return false
	}
}

// ParseRole maps a role name to its Role. Legacy numeric identifiers
// ("1" coordinator, "2" clinician, "3" client) are accepted as well.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coordinator", "admin", "1":
		return RoleCoordinator, nil
	case "clinician", "doctor", "2":
		return RoleClinician, nil
	case "client", "patient", "3":
		return RoleClient, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Scan implements sql.Scanner. Roles are stored by name.
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	case int64:
		return r.UnmarshalText([]byte(fmt.Sprint(v)))
	case nil:
		return fmt.Errorf("role is null")
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return r.String(), nil
}
