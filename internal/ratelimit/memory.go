package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start   time.Time
	expires time.Time
	count   int
}

// MemoryCounter keeps counters in process. Only correct for one instance.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*window)}
}

func (m *MemoryCounter) Incr(_ context.Context, key string, now time.Time, ttl time.Duration) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.expires) {
		w = &window{start: now, expires: now.Add(ttl)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.start, nil
}

func (m *MemoryCounter) Decr(_ context.Context, key string, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[key]; ok && w.start.Equal(start) && w.count > 0 {
		w.count--
	}
	return nil
}

// DeleteExpired drops windows that ended at or before now.
func (m *MemoryCounter) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, w := range m.windows {
		if !w.expires.After(now) {
			delete(m.windows, k)
			n++
		}
	}
	return n, nil
}
