package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradedesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvHandleSecret, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.ResetTTL)
}

func TestLoadFileAndEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvHandleSecret, "from-env")
	path := writeConfig(t, `
environment: production
server:
  addr: ":7000"
storage:
  data_dir: /var/lib/tradedesk
ledger:
  timezone: Europe/Berlin
  reset_ttl: 90s
events:
  workers: 5
production:
  server:
    metrics_addr: ":9999"
  logging:
    level: warn
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.Environment)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, ":9999", cfg.Server.MetricsAddr)
	assert.Equal(t, "/var/lib/tradedesk", cfg.Storage.DataDir)
	assert.Equal(t, 90*time.Second, cfg.Ledger.ResetTTL)
	assert.Equal(t, 5, cfg.Events.Workers)
	assert.Equal(t, "from-env", cfg.Handles.Secret)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv(EnvHandleSecret, "")
	path := writeConfig(t, "environment: production\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handles.secret")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "s3"
	cfg.Ledger.Timezone = "Mars/Olympus"
	cfg.Events.Workers = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
	assert.Contains(t, err.Error(), "ledger.timezone")
	assert.Contains(t, err.Error(), "events.workers")
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
