package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/authz"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
)

var (
	viewPolicy  = authz.OwnerOrRoleIn(model.OwnerFieldID)
	adminPolicy = authz.RoleIn(model.RoleCoordinator)
)

// Service administers actor accounts.
type Service struct {
	repo repository.ActorRepository
}

func NewService(repo repository.ActorRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, caller *model.Identity, id uuid.UUID) (*model.Actor, error) {
	if err := authz.Authorize(caller, viewPolicy, authz.Owners{model.OwnerFieldID: id}).Err(); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// SetRole changes an actor's role. Outstanding tokens carrying the old role
// stop resolving.
func (s *Service) SetRole(ctx context.Context, caller *model.Identity, id uuid.UUID, roleName string) (*model.Actor, error) {
	if err := s.authorizeAdmin(caller, id); err != nil {
		return nil, err
	}
	role, err := model.ParseRole(roleName)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return nil, s.translate(err)
	}
	return s.load(ctx, id)
}

// SetActive activates or deactivates an actor. Deactivated actors can no
// longer log in, refresh or use existing tokens.
func (s *Service) SetActive(ctx context.Context, caller *model.Identity, id uuid.UUID, active bool) (*model.Actor, error) {
	if err := s.authorizeAdmin(caller, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, s.translate(err)
	}
	return s.load(ctx, id)
}

func (s *Service) Verify(ctx context.Context, caller *model.Identity, id uuid.UUID) (*model.Actor, error) {
	if err := authz.Authorize(caller, adminPolicy, nil).Err(); err != nil {
		return nil, err
	}
	if err := s.repo.SetVerified(ctx, id, true); err != nil {
		return nil, s.translate(err)
	}
	return s.load(ctx, id)
}

// authorizeAdmin also stops coordinators from demoting or deactivating
// themselves.
func (s *Service) authorizeAdmin(caller *model.Identity, id uuid.UUID) error {
	if err := authz.Authorize(caller, adminPolicy, nil).Err(); err != nil {
		return err
	}
	if caller.ActorID == id {
		return apperrors.BadRequest("coordinators cannot change their own role or status", nil)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	actor, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.translate(err)
	}
	return actor, nil
}

func (s *Service) translate(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return apperrors.NotFound("actor", err)
	}
	return apperrors.Internal(fmt.Errorf("actor store: %w", err))
}
