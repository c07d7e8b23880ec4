// Package audit writes the security audit trail off the request path.
//
// Record never blocks and never returns an error: entries are queued and a
// single worker persists them. Store failures, panics and a full queue are
// logged and counted, and the caller's operation is unaffected.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/repo"
	"github.com/diagnosis/hanguk-bookings/pkg/events"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
	"github.com/diagnosis/hanguk-bookings/pkg/metrics"
)

var ErrClosed = errors.New("audit recorder closed")

type Options struct {
	QueueSize int
	// WriteTimeout bounds each store insert.
	WriteTimeout time.Duration
	Publisher    events.Publisher
	Now          func() time.Time
}

type job struct {
	entry     *domain.AuditLog
	requestID any
	done      chan struct{}
}

type Recorder struct {
	store     repo.AuditStore
	publisher events.Publisher
	now       func() time.Time
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewRecorder(store repo.AuditStore, opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Recorder{
		store:     store,
		publisher: opts.Publisher,
		now:       opts.Now,
		timeout:   opts.WriteTimeout,
		queue:     make(chan job, opts.QueueSize),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues one entry. ID and CreatedAt are assigned here so the
// entry's timestamp reflects when the action happened, not when it was
// written.
func (r *Recorder) Record(ctx context.Context, e domain.AuditLog) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.AuditEntries.WithLabelValues("dropped").Inc()
		logger.WarnContext(ctx, "audit entry dropped after shutdown", "action", e.Action)
		return
	}

	select {
	case r.queue <- job{entry: &e, requestID: ctx.Value(logger.RequestIDKey)}:
	default:
		metrics.AuditEntries.WithLabelValues("dropped").Inc()
		logger.WarnContext(ctx, "audit queue full, entry dropped",
			"action", e.Action,
			"resource_type", e.ResourceType,
		)
	}
}

// Flush blocks until every entry queued before the call has been handled.
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	select {
	case r.queue <- job{done: done}:
		r.mu.RUnlock()
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and drains the queue.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit queue: %w", ctx.Err())
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for j := range r.queue {
		if j.entry != nil {
			r.write(j)
		}
		if j.done != nil {
			close(j.done)
		}
	}
}

func (r *Recorder) write(j job) {
	ctx := context.Background()
	if j.requestID != nil {
		ctx = context.WithValue(ctx, logger.RequestIDKey, j.requestID)
	}
	e := j.entry

	defer func() {
		if p := recover(); p != nil {
			metrics.AuditEntries.WithLabelValues("failed").Inc()
			logger.ErrorContext(ctx, "audit write panicked", "panic", p, "action", e.Action)
		}
	}()

	wctx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.store.Insert(wctx, e)
	cancel()
	if err != nil {
		metrics.AuditEntries.WithLabelValues("failed").Inc()
		logger.ErrorContext(ctx, "audit log write failed",
			"error", err,
			"action", e.Action,
			"resource_type", e.ResourceType,
		)
		return
	}
	metrics.AuditEntries.WithLabelValues("written").Inc()

	if err := r.publisher.Publish(ctx, events.AuditRecorded, events.AuditRecordedEvent{
		AuditID:      e.ID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		AdminID:      e.AdminID,
		CreatedAt:    e.CreatedAt,
	}); err != nil {
		logger.WarnContext(ctx, "failed to publish audit event", "error", err, "action", e.Action)
	}
}
