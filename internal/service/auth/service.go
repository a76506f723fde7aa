package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/auth"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	actors  repository.ActorRepository
	jwtSvc  auth.JWTService
	hasher  security.PasswordHasher
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(actors repository.ActorRepository, jwtSvc auth.JWTService, hasher security.PasswordHasher, m *metrics.Metrics) *Service {
	return &Service{
		actors:  actors,
		jwtSvc:  jwtSvc,
		hasher:  hasher,
		metrics: m,
		now:     time.Now,
	}
}

// Login exchanges credentials for a token pair. Unknown emails and wrong
// passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	actor, err := s.actors.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, apperrors.Internal(fmt.Errorf("failed to load actor: %w", err))
	}

	hash := ""
	if actor != nil {
		hash = actor.PasswordHash
	}
	if !s.hasher.Verify(password, hash) {
		return nil, apperrors.Unauthorized("invalid credentials", ErrInvalidCredentials)
	}
	if !actor.IsActive() {
		return nil, apperrors.Unauthorized("account is inactive", nil)
	}

	return s.issue(actor.ID, actor.Role)
}

// Refresh validates a refresh token, re-confirms the actor is still active
// and issues a new pair carrying the actor's current role.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.verify(refreshToken, auth.RefreshToken)
	if err != nil {
		return nil, err
	}

	actor, err := s.activeActor(ctx, claims.ActorID)
	if err != nil {
		return nil, err
	}
	return s.issue(actor.ID, actor.Role)
}

// Resolve turns a bearer access token into the caller's identity. The actor
// must still exist, be active and hold the role the token was issued for.
func (s *Service) Resolve(ctx context.Context, accessToken string) (*model.Identity, error) {
	claims, err := s.verify(accessToken, auth.AccessToken)
	if err != nil {
		return nil, err
	}

	actor, err := s.activeActor(ctx, claims.ActorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != claims.Role {
		s.metrics.TokenVerified("stale_role")
		return nil, apperrors.Unauthorized("role has changed, please log in again", nil)
	}

	s.metrics.TokenVerified("ok")
	return claims.Identity(), nil
}

// Me returns the caller's own actor record.
func (s *Service) Me(ctx context.Context, caller *model.Identity) (*model.Actor, error) {
	if caller == nil {
		return nil, apperrors.Unauthorized("authentication required", nil)
	}
	actor, err := s.actors.Get(ctx, caller.ActorID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, apperrors.NotFound("actor", err)
		}
		return nil, apperrors.Internal(err)
	}
	return actor, nil
}

// Register creates an active, unverified client account.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.Actor, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.BadRequest(err.Error(), err)
		}
		return nil, apperrors.Internal(err)
	}

	now := s.now()
	actor := &model.Actor{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         model.RoleClient,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.actors.Create(ctx, actor); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			return nil, apperrors.Conflict(err.Error(), err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to create actor: %w", err))
	}
	return actor, nil
}

// EnsureCoordinator creates an active, verified coordinator unless an actor
// with email already exists. It reports whether an account was created.
func (s *Service) EnsureCoordinator(ctx context.Context, email, password, name string) (bool, error) {
	_, err := s.actors.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, model.ErrNotFound):
		return false, fmt.Errorf("failed to look up coordinator: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash coordinator password: %w", err)
	}
	now := s.now()
	err = s.actors.Create(ctx, &model.Actor{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleCoordinator,
		Active:       true,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, model.ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create coordinator: %w", err)
	}
	return true, nil
}

func (s *Service) verify(token string, want auth.TokenType) (*auth.Claims, error) {
	claims, err := s.jwtSvc.Verify(token)
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		s.metrics.TokenVerified("expired")
		return nil, apperrors.Unauthorized("token expired", err)
	case err != nil:
		s.metrics.TokenVerified("invalid")
		return nil, apperrors.Unauthorized("invalid token", err)
	case claims.Type != want:
		s.metrics.TokenVerified("wrong_type")
		return nil, apperrors.Unauthorized("invalid token", fmt.Errorf("expected %s token, got %s", want, claims.Type))
	}
	return claims, nil
}

func (s *Service) activeActor(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	actor, err := s.actors.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.metrics.TokenVerified("unknown_actor")
			return nil, apperrors.Unauthorized("invalid token", err)
		}
		return nil, apperrors.Internal(fmt.Errorf("failed to load actor: %w", err))
	}
	if !actor.IsActive() {
		s.metrics.TokenVerified("inactive")
		return nil, apperrors.Unauthorized("account is inactive", nil)
	}
	return actor, nil
}

func (s *Service) issue(actorID uuid.UUID, role model.Role) (*model.TokenResponse, error) {
	pair, err := s.jwtSvc.Issue(actorID, role)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate tokens: %w", err))
	}
	return &model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.AccessExpiresAt.Sub(s.now()).Seconds()),
	}, nil
}
