// Package ratelimit implements per-client request budgets.
//
// A client's window opens at its first hit and lasts for the policy window,
// so a budget cannot be spent twice around a shared clock boundary.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

// Counter is the shared state behind a Limiter.
type Counter interface {
	// Incr adds one hit to key and returns the count and the start of the
	// current window. A new window of length ttl opens at now when key has
	// no window or its window has ended.
	Incr(ctx context.Context, key string, now time.Time, ttl time.Duration) (int, time.Time, error)
	// Decr removes one hit from key if the window starting at windowStart
	// is still current.
	Decr(ctx context.Context, key string, windowStart time.Time) error
}

type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
	// SkipSuccessful refunds hits for requests that end with a status below 400.
	SkipSuccessful bool
	// Message is returned to rejected clients.
	Message string
}

// Decision describes the state of a client's budget after a hit.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	key       string
	window    time.Time
}

type Limiter struct {
	policy  Policy
	counter Counter
	now     func() time.Time
}

func New(policy Policy, counter Counter, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{policy: policy, counter: counter, now: now}
}

func (l *Limiter) Policy() Policy { return l.policy }

// Allow records one hit for client. If the counter is unreachable the request
// is allowed; a down cache must not take the booking form offline.
func (l *Limiter) Allow(ctx context.Context, client string) Decision {
	now := l.now()
	d := Decision{
		Allowed:   true,
		Limit:     l.policy.Limit,
		Remaining: l.policy.Limit,
		ResetAt:   now.Add(l.policy.Window),
		key:       l.key(client),
	}

	count, start, err := l.counter.Incr(ctx, d.key, now, l.policy.Window)
	if err != nil {
		logger.WarnContext(ctx, "rate limit counter unavailable, allowing request",
			"policy", l.policy.Name,
			"error", err,
		)
		return d
	}

	d.window = start
	d.ResetAt = start.Add(l.policy.Window)
	d.Remaining = max(l.policy.Limit-count, 0)
	d.Allowed = count <= l.policy.Limit
	return d
}

// Refund undoes the hit recorded by d.
func (l *Limiter) Refund(ctx context.Context, d Decision) {
	if d.window.IsZero() {
		return
	}
	if err := l.counter.Decr(ctx, d.key, d.window); err != nil {
		logger.WarnContext(ctx, "rate limit refund failed", "policy", l.policy.Name, "error", err)
	}
}

// key hashes the client identity so raw addresses never reach the shared store.
func (l *Limiter) key(client string) string {
	sum := sha256.Sum256([]byte(client))
	return l.policy.Name + ":" + hex.EncodeToString(sum[:])
}
