package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, now *time.Time) Store {
	t.Helper()
	s, err := NewStore(StoreTypeMemory,
		WithSessionTTL(3*time.Minute),
		WithNowFunc(func() time.Time { return *now }),
	)
	require.NoError(t, err)
	return s
}

func TestGetOrCreate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	sess, created, err := store.GetOrCreate(ctx, "sess-1", "+233244000111", "MTN")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "main", sess.CurrentMenu)
	assert.Equal(t, StateActive, sess.State)
	assert.Equal(t, now.Add(3*time.Minute), sess.ExpiresAt)

	again, created, err := store.GetOrCreate(ctx, "sess-1", "+233244000111", "MTN")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, sess.CreatedAt, again.CreatedAt)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	createdCount := make(chan bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := store.GetOrCreate(ctx, "sess-dup", "+233244000111", "MTN")
			assert.NoError(t, err)
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	total := 0
	for created := range createdCount {
		if created {
			total++
		}
	}
	assert.Equal(t, 1, total, "exactly one goroutine should create the session")
}

func TestLazyExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	sess, _, err := store.GetOrCreate(ctx, "sess-exp", "+233244000111", "MTN")
	require.NoError(t, err)
	sess.Set("transfer.amount", "5000")
	require.NoError(t, store.Save(ctx, sess))

	now = now.Add(5 * time.Minute)

	reloaded, created, err := store.GetOrCreate(ctx, "sess-exp", "+233244000111", "MTN")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, StateExpired, reloaded.State)
	assert.False(t, reloaded.Active(now))
	// Expiry marks the state; conversation data is not mutated.
	assert.Equal(t, "5000", reloaded.Get("transfer.amount"))
}

func TestExtend(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	sess, _, err := store.GetOrCreate(ctx, "sess-ext", "+233244000111", "MTN")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Extend(ctx, sess, 3*time.Minute))
	assert.Equal(t, now.Add(3*time.Minute), sess.ExpiresAt)

	reloaded, _, err := store.GetOrCreate(ctx, "sess-ext", "+233244000111", "MTN")
	require.NoError(t, err)
	assert.Equal(t, StateActive, reloaded.State)
	assert.True(t, reloaded.Active(now))
}

func TestTurnLock(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	ok, err := store.AcquireTurnLock(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireTurnLock(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok, "second concurrent turn must not acquire the lock")

	require.NoError(t, store.ReleaseTurnLock(ctx, "sess-1"))

	ok, err = store.AcquireTurnLock(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClearFlow(t *testing.T) {
	s := &Session{Data: map[string]string{
		"transfer.amount":    "5000",
		"transfer.recipient": "+233244123456",
		"bill.account":       "ACC-123456",
	}}

	s.ClearFlow("transfer")

	assert.Empty(t, s.Get("transfer.amount"))
	assert.Empty(t, s.Get("transfer.recipient"))
	assert.Equal(t, "ACC-123456", s.Get("bill.account"), "sibling branch data survives")
}

func TestStoreSerializationIsolation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, &now)
	ctx := context.Background()

	sess, _, err := store.GetOrCreate(ctx, "sess-iso", "+233244000111", "MTN")
	require.NoError(t, err)

	// Mutating a returned session without Save must not leak into the store.
	sess.Set("transfer.amount", "999")

	reloaded, _, err := store.GetOrCreate(ctx, "sess-iso", "+233244000111", "MTN")
	require.NoError(t, err)
	assert.Empty(t, reloaded.Get("transfer.amount"))
}
