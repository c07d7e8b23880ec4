package ratelimit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCounter keeps counters in the rate_limits table with a single
// UPSERT per hit.
type PostgresCounter struct {
	pool *pgxpool.Pool
}

func NewPostgresCounter(pool *pgxpool.Pool) *PostgresCounter {
	return &PostgresCounter{pool: pool}
}

func (p *PostgresCounter) Incr(ctx context.Context, key string, now time.Time, ttl time.Duration) (int, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	const q = `
		INSERT INTO rate_limits (key, count, window_start, expires_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN rate_limits.expires_at <= $2 THEN 1
				ELSE rate_limits.count + 1
			END,
			window_start = CASE
				WHEN rate_limits.expires_at <= $2 THEN $2
				ELSE rate_limits.window_start
			END,
			expires_at = CASE
				WHEN rate_limits.expires_at <= $2 THEN $3
				ELSE rate_limits.expires_at
			END
		RETURNING count, window_start`

	var (
		count int
		start time.Time
	)
	err := p.pool.QueryRow(ctx, q, key, now, now.Add(ttl)).Scan(&count, &start)
	return count, start, err
}

func (p *PostgresCounter) Decr(ctx context.Context, key string, windowStart time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := p.pool.Exec(ctx,
		`UPDATE rate_limits SET count = count - 1 WHERE key = $1 AND window_start = $2 AND count > 0`,
		key, windowStart)
	return err
}

// DeleteExpired removes counters whose window has ended.
func (p *PostgresCounter) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := p.pool.Exec(ctx, `DELETE FROM rate_limits WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
