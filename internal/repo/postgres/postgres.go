package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/hanguk-bookings/internal/repo"
)

//go:embed schema.sql
var schema string

const defaultTimeout = 3 * time.Second

type Store struct {
	pool     *pgxpool.Pool
	bookings *BookingRepo
	admins   *AdminRepo
	tokens   *TokenRepo
	audit    *AuditRepo
}

var _ repo.Store = (*Store)(nil)

// New wraps an open pool. timeout bounds every store call; zero means 3s.
func New(pool *pgxpool.Pool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		pool:     pool,
		bookings: &BookingRepo{pool: pool, timeout: timeout},
		admins:   &AdminRepo{pool: pool, timeout: timeout},
		tokens:   &TokenRepo{pool: pool, timeout: timeout},
		audit:    &AuditRepo{pool: pool, timeout: timeout},
	}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Bookings() repo.BookingStore { return s.bookings }
func (s *Store) Admins() repo.AdminStore     { return s.admins }
func (s *Store) Tokens() repo.TokenStore     { return s.tokens }
func (s *Store) Audit() repo.AuditStore      { return s.audit }
func (s *Store) Backend() string             { return "postgres" }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for components sharing the database,
// such as the Postgres rate limiter.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
