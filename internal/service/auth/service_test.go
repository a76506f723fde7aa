package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
	"github.com/jwalitptl/booking-api/pkg/auth"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/security"
)

type fixture struct {
	svc   *Service
	store *memory.Store
	jwt   auth.JWTService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jwtSvc, err := auth.NewJWTService(auth.Config{
		Secret:     "test-secret",
		Issuer:     "booking-api",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	store := memory.NewStore()
	return &fixture{
		svc:   NewService(store.Actors(), jwtSvc, security.NewBcryptHasher(bcrypt.MinCost), metrics.NewNop()),
		store: store,
		jwt:   jwtSvc,
	}
}

func (f *fixture) register(t *testing.T, email string) *model.Actor {
	t.Helper()
	actor, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Email: email, Password: "correct-horse", Name: "Test",
	})
	require.NoError(t, err)
	return actor
}

func TestRegisterCreatesActiveUnverifiedClient(t *testing.T) {
	f := newFixture(t)
	actor := f.register(t, " Ann@Example.com ")

	assert.Equal(t, "ann@example.com", actor.Email)
	assert.Equal(t, model.RoleClient, actor.Role)
	assert.True(t, actor.Active)
	assert.False(t, actor.Verified)
	assert.NotEqual(t, "correct-horse", actor.PasswordHash)

	_, err := f.svc.Register(context.Background(), &model.RegisterRequest{Email: "ann@example.com", Password: "another-pass", Name: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestLoginAndResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	actor := f.register(t, "ann@example.com")

	_, err := f.svc.Login(ctx, "ann@example.com", "wrong-password")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
	_, err = f.svc.Login(ctx, "nobody@example.com", "correct-horse")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	tokens, err := f.svc.Login(ctx, "ann@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.InDelta(t, 3600, tokens.ExpiresIn, 5)

	id, err := f.svc.Resolve(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, &model.Identity{ActorID: actor.ID, Role: model.RoleClient}, id)

	// refresh tokens are not bearer credentials
	_, err = f.svc.Resolve(ctx, tokens.RefreshToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Resolve(ctx, "garbage")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestDeactivationRevokesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	actor := f.register(t, "ann@example.com")

	tokens, err := f.svc.Login(ctx, "ann@example.com", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, f.store.Actors().SetActive(ctx, actor.ID, false))

	_, err = f.svc.Resolve(ctx, tokens.AccessToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
	_, err = f.svc.Login(ctx, "ann@example.com", "correct-horse")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestRoleChangeInvalidatesAccessTokenButRefreshPicksUpNewRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	actor := f.register(t, "ann@example.com")

	tokens, err := f.svc.Login(ctx, "ann@example.com", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, f.store.Actors().UpdateRole(ctx, actor.ID, model.RoleClinician))

	_, err = f.svc.Resolve(ctx, tokens.AccessToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))

	refreshed, err := f.svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	id, err := f.svc.Resolve(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleClinician, id.Role)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "ann@example.com")

	tokens, err := f.svc.Login(ctx, "ann@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, tokens.AccessToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestResolveUnknownActor(t *testing.T) {
	f := newFixture(t)
	pair, err := f.jwt.Issue(uuid.New(), model.RoleCoordinator)
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), pair.AccessToken)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	actor := f.register(t, "ann@example.com")

	me, err := f.svc.Me(context.Background(), &model.Identity{ActorID: actor.ID, Role: model.RoleClient})
	require.NoError(t, err)
	assert.Equal(t, actor.Email, me.Email)

	_, err = f.svc.Me(context.Background(), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrUnauthorized))
}

func TestEnsureCoordinator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.EnsureCoordinator(ctx, "Admin@Example.com", "bootstrap-pass", "Admin")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.EnsureCoordinator(ctx, "admin@example.com", "bootstrap-pass", "Admin")
	require.NoError(t, err)
	assert.False(t, created)

	tokens, err := f.svc.Login(ctx, "admin@example.com", "bootstrap-pass")
	require.NoError(t, err)
	id, err := f.svc.Resolve(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCoordinator, id.Role)
}
