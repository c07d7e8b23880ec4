package mongodb

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
)

// openTestStore uses TEST_MONGO_URL and a throwaway database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_MONGO_URL")
	if url == "" {
		t.Skip("TEST_MONGO_URL not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	require.NoError(t, err)

	dbName := "hanguk_test_" + uuid.NewString()[:8]
	st := New(client, dbName, 5*time.Second)
	require.NoError(t, st.EnsureIndexes(ctx, 90*24*time.Hour))
	t.Cleanup(func() {
		_ = client.Database(dbName).Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return st
}

func TestReserve_ConcurrentSameSlot(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	const capacity = 8
	var wg sync.WaitGroup
	var ok, full atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Bookings().Reserve(ctx, domain.NewBooking{
				Name: "Ha-eun Choi", Email: "haeun@example.com", Phone: "+61400000002",
				Date: "2026-12-31", Time: "21:00", Guests: 6,
			}, capacity)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrSlotFull):
				full.Add(1)
			default:
				t.Errorf("reserve: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, capacity, ok.Load())
	assert.EqualValues(t, 12, full.Load())
}

func TestReserve_ReclaimsExpiredLock(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	stale := slotLock{ID: "slot:2026-12-30T18:00", Owner: "crashed", ExpiresAt: time.Now().Add(-time.Minute)}
	_, err := st.db.Collection(slotLocksColl).InsertOne(ctx, stale)
	require.NoError(t, err)

	_, err = st.Bookings().Reserve(ctx, domain.NewBooking{
		Name: "Do-yun Kang", Email: "doyun@example.com", Phone: "+61400000003",
		Date: "2026-12-30", Time: "18:00", Guests: 2,
	}, 50)
	require.NoError(t, err)
}

func TestAdminsAndTokens(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	a := &domain.Admin{Username: "chef", PasswordHash: "h", Email: "chef@example.com", Role: domain.RoleManager, IsActive: true}
	require.NoError(t, st.Admins().Create(ctx, a))
	assert.ErrorIs(t, st.Admins().Create(ctx, &domain.Admin{Username: "chef"}), domain.ErrConflict)

	now := time.Now().UTC()
	require.NoError(t, st.Tokens().Create(ctx, &domain.AuthToken{AdminID: a.ID, Token: "tok", ExpiresAt: now.Add(time.Hour)}))
	live, err := st.Tokens().FindLive(ctx, "tok", now)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, a.ID, live.AdminID)

	require.NoError(t, st.Tokens().Delete(ctx, "tok"))
	live, err = st.Tokens().FindLive(ctx, "tok", now)
	require.NoError(t, err)
	assert.Nil(t, live)
}
