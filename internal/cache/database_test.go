package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/database/testutil"
)

func newDatabaseStore(t *testing.T) (*DatabaseStore, *manualClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newManualClock()
	store := NewDatabaseStore(db)
	store.now = clock.Now
	return store, clock
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, store.Set(ctx, "k", []byte("v2"), time.Minute))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), value)

	clock.Advance(time.Minute)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "forever", []byte("x"), 0))
	require.NoError(t, store.Delete(ctx, "forever"))
	_, ok, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()
	key := Key(KindRateLimit, "127.0.0.1")

	for want := int64(1); want <= 3; want++ {
		count, _, err := store.IncrementWithTTL(ctx, key, time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
	}

	clock.Advance(time.Minute)
	count, remaining, err := store.IncrementWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, remaining)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store, clock := newDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("3"), 0))

	clock.Advance(time.Minute)
	removed, err := store.PurgeExpired(ctx, clock.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, ok, _ := store.Get(ctx, "long")
	require.True(t, ok)
	_, ok, _ = store.Get(ctx, "forever")
	require.True(t, ok)
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
}
