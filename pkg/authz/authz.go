// Package authz is the authorization decision engine shared by every
// protected operation. It knows roles and ownership fields, nothing else.
package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
)

type Effect int

const (
	Deny Effect = iota
	Allow
)

// Reason tells callers why a request was denied.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
)

type Decision struct {
	Effect Effect
	Reason Reason
	Policy string
}

func (d Decision) Allowed() bool {
	return d.Effect == Allow
}

// Err converts a deny decision into the matching application error:
// 401 for unauthenticated callers, 403 for policy denials.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	if d.Reason == ReasonUnauthenticated {
		return apperrors.Unauthorized("authentication required", nil)
	}
	return apperrors.Forbidden("permission denied", fmt.Errorf("denied by %s", d.Policy))
}

// Resource exposes the owner ids of a protected object.
type Resource interface {
	OwnerID(field string) (uuid.UUID, bool)
}

// Owners is a Resource built from explicit field values, for operations
// whose target is just an id (e.g. "appointments of client X").
type Owners map[string]uuid.UUID

func (o Owners) OwnerID(field string) (uuid.UUID, bool) {
	id, ok := o[field]
	return id, ok
}

// Policy is a declarative role/ownership rule. The set of policies is closed.
type Policy interface {
	allows(id *model.Identity, res Resource) bool
	String() string
}

type roleSet map[model.Role]struct{}

func newRoleSet(roles []model.Role) roleSet {
	set := make(roleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func (s roleSet) has(r model.Role) bool {
	_, ok := s[r]
	return ok
}

func (s roleSet) String() string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, r.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

type roleIn struct {
	roles roleSet
}

// RoleIn allows iff the caller's role is listed. Coordinators are not
// implied and must be listed explicitly.
func RoleIn(roles ...model.Role) Policy {
	return roleIn{roles: newRoleSet(roles)}
}

func (p roleIn) allows(id *model.Identity, _ Resource) bool {
	switch id.Role {
	case model.RoleCoordinator, model.RoleClinician, model.RoleClient:
		return p.roles.has(id.Role)
	default:
		return false
	}
}

func (p roleIn) String() string {
	return fmt.Sprintf("RoleIn(%s)", p.roles)
}

type ownerOrRoleIn struct {
	roles roleSet
	field string
}

// OwnerOrRoleIn allows listed roles, any coordinator, or the actor whose id
// equals the resource's ownerField.
func OwnerOrRoleIn(ownerField string, roles ...model.Role) Policy {
	return ownerOrRoleIn{roles: newRoleSet(roles), field: ownerField}
}

func (p ownerOrRoleIn) allows(id *model.Identity, res Resource) bool {
	switch id.Role {
	case model.RoleCoordinator:
		return true
	case model.RoleClinician, model.RoleClient:
		if p.roles.has(id.Role) {
			return true
		}
		if res == nil {
			return false
		}
		owner, ok := res.OwnerID(p.field)
		return ok && owner != uuid.Nil && owner == id.ActorID
	default:
		return false
	}
}

func (p ownerOrRoleIn) String() string {
	return fmt.Sprintf("OwnerOrRoleIn(%s; %s)", p.roles, p.field)
}

type anyOf []Policy

// AnyOf allows when at least one of the policies allows.
func AnyOf(policies ...Policy) Policy {
	return anyOf(policies)
}

func (p anyOf) allows(id *model.Identity, res Resource) bool {
	for _, policy := range p {
		if policy.allows(id, res) {
			return true
		}
	}
	return false
}

func (p anyOf) String() string {
	parts := make([]string, len(p))
	for i, policy := range p {
		parts[i] = policy.String()
	}
	return "AnyOf(" + strings.Join(parts, " | ") + ")"
}

// Authorize evaluates policy for the caller against res. A nil or
// incomplete identity is always denied as unauthenticated.
func Authorize(id *model.Identity, policy Policy, res Resource) Decision {
	if id == nil || id.ActorID == uuid.Nil || !id.Role.Valid() {
		return Decision{Effect: Deny, Reason: ReasonUnauthenticated, Policy: policy.String()}
	}
	if policy.allows(id, res) {
		return Decision{Effect: Allow, Policy: policy.String()}
	}
	return Decision{Effect: Deny, Reason: ReasonForbidden, Policy: policy.String()}
}
