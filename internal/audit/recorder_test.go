package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/repo/memory"
)

type failingStore struct {
	memory.AuditStore
	panic bool
}

func (f *failingStore) Insert(context.Context, *domain.AuditLog) error {
	if f.panic {
		panic("disk on fire")
	}
	return errors.New("audit store unavailable")
}

type blockingStore struct {
	memory.AuditStore
	release chan struct{}
}

func (b *blockingStore) Insert(ctx context.Context, e *domain.AuditLog) error {
	<-b.release
	return nil
}

type capturePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (c *capturePublisher) Publish(_ context.Context, subject string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func entry(action string) domain.AuditLog {
	id := "b1"
	return domain.AuditLog{Action: action, ResourceType: domain.ResourceBookings, ResourceID: &id}
}

func TestRecorder_WritesInOrder(t *testing.T) {
	st := memory.New(nil)
	pub := &capturePublisher{}
	rec := NewRecorder(st.Audit(), Options{Publisher: pub})
	defer rec.Close(context.Background())

	rec.Record(context.Background(), entry(domain.ActionBookingUpdated))
	rec.Record(context.Background(), entry(domain.ActionBookingDeleted))
	require.NoError(t, rec.Flush(context.Background()))

	all := st.Audit().(*memory.AuditStore).All()
	require.Len(t, all, 2)
	assert.Equal(t, domain.ActionBookingUpdated, all[0].Action)
	assert.Equal(t, domain.ActionBookingDeleted, all[1].Action)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].CreatedAt.IsZero())
	assert.Len(t, pub.subjects, 2)
}

func TestRecorder_StoreFailureIsSwallowed(t *testing.T) {
	for _, panics := range []bool{false, true} {
		rec := NewRecorder(&failingStore{panic: panics}, Options{})
		assert.NotPanics(t, func() {
			rec.Record(context.Background(), entry(domain.ActionLogout))
		})
		require.NoError(t, rec.Flush(context.Background()))

		// The worker survives and keeps accepting entries.
		rec.Record(context.Background(), entry(domain.ActionLogout))
		require.NoError(t, rec.Flush(context.Background()))
		require.NoError(t, rec.Close(context.Background()))
	}
}

func TestRecorder_FullQueueDropsWithoutBlocking(t *testing.T) {
	st := &blockingStore{release: make(chan struct{})}
	rec := NewRecorder(st, Options{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			rec.Record(context.Background(), entry(domain.ActionBookingUpdated))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(st.release)
	require.NoError(t, rec.Close(context.Background()))
}

func TestRecorder_ClosedRejectsQuietly(t *testing.T) {
	st := memory.New(nil)
	rec := NewRecorder(st.Audit(), Options{})

	rec.Record(context.Background(), entry(domain.ActionLogout))
	require.NoError(t, rec.Close(context.Background()))
	require.NoError(t, rec.Close(context.Background()))

	assert.Len(t, st.Audit().(*memory.AuditStore).All(), 1)

	rec.Record(context.Background(), entry(domain.ActionLogout))
	assert.ErrorIs(t, rec.Flush(context.Background()), ErrClosed)
	assert.Len(t, st.Audit().(*memory.AuditStore).All(), 1)
}
