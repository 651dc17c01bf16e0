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

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  user: postgres
  password: postgres
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.False(t, cfg.Ledger.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Ledger.RequestTimeout)
	assert.Equal(t, "RECOVERY_MASTER_KEY", cfg.KeyManagement.MasterKeyEnv)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 30*time.Second, cfg.Shutdown.Timeout)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
database:
  host: db.internal
  port: 5433
  user: recovery
  password: secret
  database: recovery_prod
  ssl_mode: require
ledger:
  enabled: true
  base_url: https://gateway.example.com
  api_key: key-123
  request_timeout: 5s
notify:
  enabled: true
  webhook_url: https://mail.example.com/hooks/invite
jwks:
  url: https://auth.example.com/.well-known/jwks.json
  issuer: https://auth.example.com
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Ledger.RequestTimeout)
	assert.Equal(t, "https://auth.example.com", cfg.JWKS.Issuer)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadValidation(t *testing.T) {
	t.Run("ledger enabled without base url", func(t *testing.T) {
		path := writeConfig(t, `
database:
  host: localhost
ledger:
  enabled: true
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("notify enabled without webhook url", func(t *testing.T) {
		path := writeConfig(t, `
database:
  host: localhost
notify:
  enabled: true
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json"})
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("console format", func(t *testing.T) {
		logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"})
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewLogger(LoggingConfig{Level: "chatty", Format: "json"})
		assert.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := NewLogger(LoggingConfig{Level: "info", Format: "xml"})
		assert.Error(t, err)
	})
}

func TestGetConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432,
		User: "u", Password: "p",
		Database: "d", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://u:p@localhost:5432/d?sslmode=disable", cfg.GetConnectionString())
}
