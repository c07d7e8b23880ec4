// Package janitor periodically removes expired sessions, old audit entries
// and stale rate-limit counters from stores that cannot expire them natively.
package janitor

import (
	"context"
	"time"

	"github.com/diagnosis/hanguk-bookings/internal/repo"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
	"github.com/diagnosis/hanguk-bookings/pkg/metrics"
)

// Purger deletes records that expired at or before now.
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Task struct {
	Name string
	Run  func(ctx context.Context, now time.Time) (int64, error)
}

func ExpiredSessions(tokens repo.TokenStore) Task {
	return Task{Name: "auth_tokens", Run: tokens.DeleteExpired}
}

// StaleAudit drops audit entries older than retention.
func StaleAudit(audit repo.AuditStore, retention time.Duration) Task {
	return Task{Name: "audit_logs", Run: func(ctx context.Context, now time.Time) (int64, error) {
		return audit.DeleteOlderThan(ctx, now.Add(-retention))
	}}
}

func RateLimitCounters(p Purger) Task {
	return Task{Name: "rate_limits", Run: p.DeleteExpired}
}

type Janitor struct {
	tasks    []Task
	interval time.Duration
	now      func() time.Time
}

func New(interval time.Duration, now func() time.Time, tasks ...Task) *Janitor {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{tasks: tasks, interval: interval, now: now}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logger.InfoContext(ctx, "janitor started", "interval", j.interval.String(), "tasks", len(j.tasks))
	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs every task once. A failing task does not stop the others.
func (j *Janitor) Sweep(ctx context.Context) {
	now := j.now()
	for _, t := range j.tasks {
		n, err := t.Run(ctx, now)
		if err != nil {
			logger.ErrorContext(ctx, "janitor task failed", "task", t.Name, "error", err)
			continue
		}
		if n > 0 {
			metrics.JanitorPurged.WithLabelValues(t.Name).Add(float64(n))
			logger.InfoContext(ctx, "janitor purged records", "task", t.Name, "count", n)
		}
	}
}
