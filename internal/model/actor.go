package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEmailTaken = errors.New("email already registered")

// Actor is an account able to authenticate: a coordinator, clinician or client.
// Actors are never hard-deleted; deactivation clears Active.
type Actor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	Active       bool      `db:"is_active" json:"is_active"`
	Verified     bool      `db:"is_verified" json:"is_verified"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the actor may hold a session.
func (a *Actor) IsActive() bool {
	return a != nil && a.Active
}

// OwnerID exposes the actor's own id as its owner field so that
// profile operations can be gated with an ownership policy.
func (a *Actor) OwnerID(field string) (uuid.UUID, bool) {
	if field == OwnerFieldID {
		return a.ID, true
	}
	return uuid.Nil, false
}

// Identity is the resolved caller of an operation.
type Identity struct {
	ActorID uuid.UUID `json:"actor_id"`
	Role    Role      `json:"role"`
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required,max=200"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}
