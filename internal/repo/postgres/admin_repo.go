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

type AdminRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

const adminCols = `id, username, password_hash, email, role, is_active, last_login, created_at, updated_at`

func scanAdmin(row pgx.Row) (*domain.Admin, error) {
	var a domain.Admin
	if err := row.Scan(
		&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.Role, &a.IsActive, &a.LastLogin, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AdminRepo) FindActiveByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins WHERE username=$1 AND is_active`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	a, err := scanAdmin(r.pool.QueryRow(ctx, q, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AdminRepo) FindByID(ctx context.Context, id string) (*domain.Admin, error) {
	const q = `SELECT ` + adminCols + ` FROM admins WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	a, err := scanAdmin(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *AdminRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE admins SET last_login=$2, updated_at=$2 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ct, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAdminNotFound
	}
	return nil
}

func (r *AdminRepo) Create(ctx context.Context, a *domain.Admin) error {
	const q = `
INSERT INTO admins (id, username, password_hash, email, role, is_active)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING created_at, updated_at`
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := r.pool.QueryRow(ctx, q, a.ID, a.Username, a.PasswordHash, a.Email, a.Role, a.IsActive).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *AdminRepo) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM admins`).Scan(&n)
	return n, err
}
