package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

const actorColumns = `id, email, name, password_hash, role, is_active, is_verified, created_at, updated_at`

type actorRepository struct {
	BaseRepository
}

func NewActorRepository(base BaseRepository) repository.ActorRepository {
	return &actorRepository{base}
}

func (r *actorRepository) Create(ctx context.Context, actor *model.Actor) error {
	query := `
		INSERT INTO actors (
			id, email, name, password_hash, role,
			is_active, is_verified, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		actor.ID,
		strings.ToLower(actor.Email),
		actor.Name,
		actor.PasswordHash,
		actor.Role,
		actor.Active,
		actor.Verified,
		actor.CreatedAt,
		actor.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "actors_email_uq") {
			return model.ErrEmailTaken
		}
		return fmt.Errorf("failed to create actor: %w", err)
	}
	return nil
}

func (r *actorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Actor, error) {
	return r.getOne(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1`, id)
}

func (r *actorRepository) GetByEmail(ctx context.Context, email string) (*model.Actor, error) {
	return r.getOne(ctx, `SELECT `+actorColumns+` FROM actors WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email))
}

func (r *actorRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.Actor, error) {
	var actor model.Actor
	if err := r.db.GetContext(ctx, &actor, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	return &actor, nil
}

func (r *actorRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return r.exec(ctx, `UPDATE actors SET role = $1, updated_at = $2 WHERE id = $3`, role, time.Now(), id)
}

func (r *actorRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.exec(ctx, `UPDATE actors SET is_active = $1, updated_at = $2 WHERE id = $3`, active, time.Now(), id)
}

func (r *actorRepository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return r.exec(ctx, `UPDATE actors SET is_verified = $1, updated_at = $2 WHERE id = $3`, verified, time.Now(), id)
}

func (r *actorRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update actor: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return model.ErrNotFound
	}
	return nil
}
