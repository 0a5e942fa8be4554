// Package meetings persists meeting rows in PostgreSQL.
package meetings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalink-health/telehealth/internal/models"
)

const pgUniqueViolation = "23505"

// Repository handles meeting persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meeting repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new meeting. A token collision surfaces as
// models.ErrDuplicateToken so the caller can regenerate and retry.
func (r *Repository) Create(ctx context.Context, createdBy uuid.UUID, token string, expiresAt time.Time) (*models.Meeting, error) {
	const q = `INSERT INTO meetings (id, created_by, token, token_expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at`
	m := models.Meeting{CreatedBy: createdBy, Token: token, TokenExpiresAt: expiresAt}
	err := r.pool.QueryRow(ctx, q, createdBy, token, expiresAt).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, models.ErrDuplicateToken
		}
		return nil, err
	}
	return &m, nil
}

// GetByID returns a meeting by id, or (nil, nil) when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	const q = `SELECT id, created_by, token, token_expires_at, ended_at, created_at
		FROM meetings WHERE id = $1`
	var m models.Meeting
	err := r.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.CreatedBy, &m.Token, &m.TokenExpiresAt, &m.EndedAt, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetByToken returns the meeting owning a token, or (nil, nil) when absent.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.Meeting, error) {
	const q = `SELECT id, created_by, token, token_expires_at, ended_at, created_at
		FROM meetings WHERE token = $1`
	var m models.Meeting
	err := r.pool.QueryRow(ctx, q, token).Scan(&m.ID, &m.CreatedBy, &m.Token, &m.TokenExpiresAt, &m.EndedAt, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// TokenExists reports whether any meeting already holds the token.
func (r *Repository) TokenExists(ctx context.Context, token string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM meetings WHERE token = $1)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, token).Scan(&exists)
	return exists, err
}

// End sets ended_at exactly once. Reports whether this call performed the
// transition; an already-ended meeting leaves the row untouched.
func (r *Repository) End(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE meetings SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
