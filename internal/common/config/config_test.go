package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const fullConfig = `database:
  host: db.internal
  port: 5433
  user: engine
  password: secret
  database: dispatch

rabbitmq:
  host: mq.internal
  port: 5673
  user: engine
  password: secret

services:
  dispatch_service: 4000
  tracker_service: 4001
  admin_service: 4004

jwt:
  secret_key: "unit-test-secret"

engine:
  feed_radius_km: 25.5
  grace_period_seconds: 10
  delegation_timeout_minutes: 3
  escalation_sweep_seconds: 15
  default_surge: 1.2
`

func TestLoadFromFile(t *testing.T) {
	t.Run("should load every section", func(t *testing.T) {
		cfg, err := LoadFromFile(writeConfig(t, fullConfig))
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "dispatch", cfg.Database.Name)
		assert.Equal(t, "mq.internal", cfg.RabbitMQ.Host)
		assert.Equal(t, 4000, cfg.Services.DispatchServicePort)
		assert.Equal(t, 4001, cfg.Services.TrackerServicePort)
		assert.Equal(t, 4004, cfg.Services.AdminServicePort)
		assert.Equal(t, "unit-test-secret", cfg.JWT.SecretKey)
		assert.Equal(t, 25.5, cfg.Engine.FeedRadiusKM)
		assert.Equal(t, 10*time.Second, cfg.Engine.GracePeriod)
		assert.Equal(t, 3*time.Minute, cfg.Engine.DelegationTimeout)
		assert.Equal(t, 15*time.Second, cfg.Engine.EscalationSweepPeriod)
		assert.Equal(t, 1.2, cfg.Engine.DefaultSurge)
	})

	t.Run("should apply defaults for omitted fields", func(t *testing.T) {
		cfg, err := LoadFromFile(writeConfig(t, `database:
  user: engine
  password: secret
  database: dispatch

rabbitmq:
  user: engine
  password: secret
`))
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 5672, cfg.RabbitMQ.Port)
		assert.Equal(t, 3000, cfg.Services.DispatchServicePort)
		assert.Equal(t, 3001, cfg.Services.TrackerServicePort)
		assert.Equal(t, 3004, cfg.Services.AdminServicePort)
		assert.Equal(t, 30.0, cfg.Engine.FeedRadiusKM)
		assert.Equal(t, 5*time.Second, cfg.Engine.GracePeriod)
		assert.Equal(t, 5*time.Minute, cfg.Engine.DelegationTimeout)
		assert.Equal(t, 30*time.Second, cfg.Engine.EscalationSweepPeriod)
		assert.Equal(t, 1.0, cfg.Engine.DefaultSurge)
		assert.NotEmpty(t, cfg.JWT.SecretKey) // generated when missing
	})

	t.Run("should let the environment override credentials", func(t *testing.T) {
		t.Setenv("DATABASE_PASSWORD", "from-env")
		t.Setenv("JWT_SECRET_KEY", "env-secret")

		cfg, err := LoadFromFile(writeConfig(t, fullConfig))
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Database.Password)
		assert.Equal(t, "env-secret", cfg.JWT.SecretKey)
	})

	t.Run("should clamp a surge below one to one", func(t *testing.T) {
		cfg, err := LoadFromFile(writeConfig(t, `database:
  user: engine
  password: secret
  database: dispatch

rabbitmq:
  user: engine
  password: secret

engine:
  default_surge: 0.5
`))
		require.NoError(t, err)
		assert.Equal(t, 1.0, cfg.Engine.DefaultSurge)
	})

	t.Run("should reject missing required fields", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, `database:
  host: localhost
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.user is required")
	})

	t.Run("should reject an unknown key", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, `database:
  hots: localhost
`))
		require.Error(t, err)
	})

	t.Run("should reject a missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestParseYAMLShape(t *testing.T) {
	t.Run("should strip quotes and comments", func(t *testing.T) {
		cfg, err := LoadFromFile(writeConfig(t, `database:
  user: engine   # service account
  password: 'secret'
  database: "dispatch"

rabbitmq:
  user: engine
  password: secret
`))
		require.NoError(t, err)
		assert.Equal(t, "engine", cfg.Database.User)
		assert.Equal(t, "secret", cfg.Database.Password)
		assert.Equal(t, "dispatch", cfg.Database.Name)
	})

	t.Run("should reject a duplicate section", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, `database:
  user: engine

database:
  password: secret
`))
		require.Error(t, err)
	})

	t.Run("should reject an indented key before any section", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, "  user: engine\n"))
		require.Error(t, err)
	})
}
