package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

type AuditRepo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditLog) error {
	const q = `
INSERT INTO audit_logs (id, admin_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, q,
		e.ID, e.AdminID, e.Action, e.ResourceType, e.ResourceID,
		e.OldValues, e.NewValues, e.IPAddress, e.UserAgent, e.CreatedAt,
	)
	return err
}

func (r *AuditRepo) ListByResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditLog, error) {
	const q = `
SELECT id, admin_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent, created_at
FROM audit_logs
WHERE resource_type=$1 AND resource_id=$2
ORDER BY created_at`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(
			&e.ID, &e.AdminID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.OldValues, &e.NewValues, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ct, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
