package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openwave-labs/openwave/internal/cache"
	"github.com/openwave-labs/openwave/internal/database/testutil"
)

func newPresenceEnv(t *testing.T) *PresenceService {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewPresenceService(cache.NewDatabaseStore(db), time.Minute)
	require.NoError(t, err)
	return svc
}

func TestPresenceRequiresStore(t *testing.T) {
	_, err := NewPresenceService(nil, time.Minute)
	require.Error(t, err)
}

func TestPresenceOnlineOffline(t *testing.T) {
	svc := newPresenceEnv(t)
	userID := uuid.NewString()

	online, err := svc.IsOnline(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, online)

	require.NoError(t, svc.SetOnline(context.Background(), userID))

	online, err = svc.IsOnline(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, online)

	require.NoError(t, svc.SetOffline(context.Background(), userID))

	online, err = svc.IsOnline(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, online)
}

func TestPresenceHeartbeatRefreshes(t *testing.T) {
	svc := newPresenceEnv(t)
	userID := uuid.NewString()

	require.NoError(t, svc.SetOnline(context.Background(), userID))
	require.NoError(t, svc.Heartbeat(context.Background(), userID))

	online, err := svc.IsOnline(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, online)
}

func TestPresenceIgnoresEmptyUser(t *testing.T) {
	svc := newPresenceEnv(t)

	require.NoError(t, svc.SetOnline(context.Background(), "  "))

	online, err := svc.IsOnline(context.Background(), "")
	require.NoError(t, err)
	require.False(t, online)
}
