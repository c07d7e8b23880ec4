package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

type TokenRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func (r *TokenRepo) Create(ctx context.Context, t *domain.AuthToken) error {
	const q = `
INSERT INTO auth_tokens (id, admin_id, token, expires_at, ip_address, user_agent)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING created_at`
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := r.pool.QueryRow(ctx, q, t.ID, t.AdminID, t.Token, t.ExpiresAt, t.IPAddress, t.UserAgent).Scan(&t.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *TokenRepo) FindLive(ctx context.Context, token string, now time.Time) (*domain.AuthToken, error) {
	const q = `
SELECT id, admin_id, token, expires_at, ip_address, user_agent, created_at
FROM auth_tokens
WHERE token=$1 AND expires_at > $2`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var t domain.AuthToken
	err := r.pool.QueryRow(ctx, q, token, now).Scan(
		&t.ID, &t.AdminID, &t.Token, &t.ExpiresAt, &t.IPAddress, &t.UserAgent, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token=$1`, token)
	return err
}

func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ct, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
