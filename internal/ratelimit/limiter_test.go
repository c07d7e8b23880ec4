package ratelimit

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 10, 17, 18, 0, 1, 0, time.UTC)}
}

func TestLimiter_GeneralBudget(t *testing.T) {
	clk := newClock()
	l := New(Policy{Name: "general", Limit: 100, Window: 15 * time.Minute}, NewMemoryCounter(), clk.Now)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		d := l.Allow(ctx, "203.0.113.7")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 100-i, d.Remaining)
	}
	d := l.Allow(ctx, "203.0.113.7")
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Equal(t, time.Date(2026, 10, 17, 18, 15, 1, 0, time.UTC), d.ResetAt)

	// Other clients are independent.
	assert.True(t, l.Allow(ctx, "198.51.100.1").Allowed)

	clk.Advance(15 * time.Minute)
	assert.True(t, l.Allow(ctx, "203.0.113.7").Allowed)
}

func TestLimiter_WindowOpensAtFirstHit(t *testing.T) {
	clk := &clock{t: time.Date(2026, 10, 17, 14, 59, 59, 0, time.UTC)}
	l := New(Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute}, NewMemoryCounter(), clk.Now)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.True(t, l.Allow(ctx, "client").Allowed, "attempt %d", i)
	}

	// Crossing a quarter-hour on the wall clock does not reset the budget.
	clk.Advance(2 * time.Second)
	d := l.Allow(ctx, "client")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Date(2026, 10, 17, 15, 14, 59, 0, time.UTC), d.ResetAt)

	clk.Advance(15*time.Minute - 3*time.Second)
	assert.False(t, l.Allow(ctx, "client").Allowed, "one second before the window ends")

	clk.Advance(time.Second)
	assert.True(t, l.Allow(ctx, "client").Allowed)
}

func TestLimiter_RefundKeepsSuccessfulLoginsFree(t *testing.T) {
	clk := newClock()
	l := New(Policy{Name: "auth", Limit: 5, Window: 15 * time.Minute, SkipSuccessful: true}, NewMemoryCounter(), clk.Now)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d := l.Allow(ctx, "client")
		require.True(t, d.Allowed)
		l.Refund(ctx, d)
	}

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(ctx, "client").Allowed)
	}
	assert.False(t, l.Allow(ctx, "client").Allowed)
}

func TestLimiter_RefundIgnoresPastWindow(t *testing.T) {
	clk := newClock()
	counter := NewMemoryCounter()
	l := New(Policy{Name: "auth", Limit: 2, Window: time.Minute}, counter, clk.Now)
	ctx := context.Background()

	old := l.Allow(ctx, "client")
	clk.Advance(time.Minute)
	l.Allow(ctx, "client")
	l.Allow(ctx, "client")
	l.Refund(ctx, old)

	assert.False(t, l.Allow(ctx, "client").Allowed)
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Time, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}
func (brokenCounter) Decr(context.Context, string, time.Time) error { return errors.New("connection refused") }

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(Policy{Name: "general", Limit: 1, Window: time.Minute}, brokenCounter{}, nil)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(context.Background(), "client").Allowed)
	}
}

func TestMemoryCounter_DeleteExpired(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()
	start := time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)
	_, _, _ = c.Incr(ctx, "a", start, time.Minute)
	_, _, _ = c.Incr(ctx, "b", start, time.Hour)

	n, err := c.DeleteExpired(ctx, start.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLimiter_ConcurrentHitsAreCounted(t *testing.T) {
	l := New(Policy{Name: "general", Limit: 50, Window: time.Hour}, NewMemoryCounter(), newClock().Now)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "burst").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestRedisCounter(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	clk := newClock()
	l := New(Policy{Name: "test-" + time.Now().Format("150405.000"), Limit: 3, Window: time.Minute}, NewRedisCounter(client), clk.Now)
	ctx := context.Background()

	first := l.Allow(ctx, "client")
	require.True(t, first.Allowed)
	l.Refund(ctx, first)
	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(ctx, "client").Allowed)
	}
	d := l.Allow(ctx, "client")
	assert.False(t, d.Allowed)
	assert.Equal(t, first.ResetAt, d.ResetAt, "later hits do not move the window")
}
