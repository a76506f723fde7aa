package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
database:
  host: db.internal
  auto_migrate: true
jwt:
  secret: from-file
  expiry_hours: 2
outbox:
  poll_interval: 5s
cors:
  allowed_origins:
    - https://app.example.com
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFileWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, sampleYAML))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ToAuthConfig().AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWT.ToAuthConfig().RefreshTTL)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, sampleYAML))
	t.Setenv("BOOKING_DB_HOST", "override.internal")
	t.Setenv("BOOKING_JWT_SECRET", "from-env")
	t.Setenv("BOOKING_OUTBOX_BATCH_SIZE", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 7, cfg.Outbox.BatchSize)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "server:\n  port: 8080\n"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDriver(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, sampleYAML))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)

	t.Setenv("BOOKING_DB_DRIVER", "memory")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)

	t.Setenv("BOOKING_DB_DRIVER", "sqlite")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}
