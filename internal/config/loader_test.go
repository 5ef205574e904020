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
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 8501, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.TTL())
	assert.Equal(t, 15*time.Second, cfg.API.Timeout())
	assert.Equal(t, 30*time.Second, cfg.Scanner.Interval())
	assert.Equal(t, DefaultSymbols, cfg.Trading.Symbols)
	assert.Equal(t, DefaultExchanges, cfg.Trading.Exchanges)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
cache:
  backend: redis
  ttl_seconds: 120
trading:
  symbols:
    - BTC/USDT
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, []string{"BTC/USDT"}, cfg.Trading.Symbols)

	// Untouched sections keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Address)
	assert.Equal(t, 3, cfg.API.RetryAttempts)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Cache.TTLSeconds = -1
	cfg.Cache.Backend = "etcd"
	cfg.API.RetryAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "server port")
	assert.Contains(t, msg, "cache ttl")
	assert.Contains(t, msg, "cache backend")
	assert.Contains(t, msg, "retry attempts")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 99999
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.LogsDir = filepath.Join(dir, "logs")

	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.Storage.DataDir)
	assert.DirExists(t, cfg.Storage.LogsDir)
}
