package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openwave-labs/openwave/internal/database/testutil"
)

func newStore(t *testing.T) *DatabaseStore {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	require.NotNil(t, store)
	return store
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	key := "k-" + uuid.NewString()

	_, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, key, []byte("v1"), time.Minute))

	value, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), value)

	// Upsert replaces the value in place.
	require.NoError(t, store.Set(ctx, key, []byte("v2"), time.Minute))
	value, found, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v2"), value)

	require.NoError(t, store.Delete(ctx, key))
	_, found, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreZeroTTLNeverExpires(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	key := "k-" + uuid.NewString()

	require.NoError(t, store.Set(ctx, key, []byte("pinned"), 0))

	_, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
}

func TestDatabaseStoreExpiredKeyIsGone(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	key := "k-" + uuid.NewString()

	require.NoError(t, store.Set(ctx, key, []byte("fleeting"), time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	_, found, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreDeleteNoKeysIsNoop(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Delete(context.Background()))
}

func TestDatabaseStoreNilReceiverErrors(t *testing.T) {
	var store *DatabaseStore
	require.Error(t, store.Set(context.Background(), "k", nil, 0))
	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
}
