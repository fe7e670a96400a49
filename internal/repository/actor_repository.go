package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/tire-request-service/internal/domain"
)

// ActorRepository encapsulates actor persistence for the identity source.
type ActorRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ActorRecord, error)
	GetByEmail(ctx context.Context, email string) (*domain.ActorRecord, error)
}

type actorRepository struct {
	pool *pgxpool.Pool
}

// NewActorRepository instantiates the repository.
func NewActorRepository(pool *pgxpool.Pool) ActorRepository {
	return &actorRepository{pool: pool}
}

const actorColumns = `id, name, email, password_hash, role, active, created_at, updated_at`

func (r *actorRepository) GetByID(ctx context.Context, id string) (*domain.ActorRecord, error) {
	const query = `SELECT ` + actorColumns + ` FROM actors WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *actorRepository) GetByEmail(ctx context.Context, email string) (*domain.ActorRecord, error) {
	const query = `SELECT ` + actorColumns + ` FROM actors WHERE LOWER(email)=$1`
	return r.fetchSingle(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

func (r *actorRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.ActorRecord, error) {
	var record domain.ActorRecord
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&record.ID,
		&record.Name,
		&record.Email,
		&record.PasswordHash,
		&record.Role,
		&record.Active,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, pgx.ErrNoRows
		}
		return nil, err
	}
	return &record, nil
}
