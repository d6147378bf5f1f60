package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 100, cfg.Server.RateLimit.MaxRequests)
	require.Equal(t, time.Minute, cfg.Server.RateLimit.Window)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/openwave.sqlite", cfg.Database.Path)

	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "127.0.0.1:6379", cfg.Cache.Redis.Address)
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "openwave", cfg.Auth.JWT.Issuer)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Empty(t, cfg.Auth.JWT.Secret)

	require.Equal(t, 90*time.Second, cfg.Realtime.PresenceTTL)
	require.Equal(t, 45*time.Second, cfg.Realtime.RingTimeout)
	require.Equal(t, "@every 30s", cfg.Realtime.MissedCallSweep)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	payload := `
server:
  port: 9100
  log_level: debug
  rate_limit:
    max_requests: 7
    window: 30s
database:
  driver: postgres
  postgres:
    host: db.internal
    port: 5432
    database: openwave
    username: hub
    password: s3cret
realtime:
  ring_timeout: 20s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(payload), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 7, cfg.Server.RateLimit.MaxRequests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	require.Equal(t, "hub", cfg.Database.Postgres.Username)

	require.Equal(t, 20*time.Second, cfg.Realtime.RingTimeout)
	// Untouched sections keep their defaults.
	require.Equal(t, 90*time.Second, cfg.Realtime.PresenceTTL)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("OPENWAVE_SERVER_PORT", "9200")
	t.Setenv("OPENWAVE_AUTH_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9200, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
}
