package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadFromAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
storage:
  driver: postgres
  fallback_to_memory: true
strength:
  window_days: 90
runner:
  interval: 30m
`)
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("APP_TIMEZONE", "UTC")

	cfg, err := LoadFrom("test", dir)
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Storage.Driver)
	assert.True(t, cfg.Storage.FallbackToMemory)
	assert.Equal(t, 0.19, cfg.Strength.K)
	assert.Equal(t, 25.0, cfg.Strength.D0)
	assert.Equal(t, 90, cfg.Strength.WindowDays)
	assert.Equal(t, 30*time.Minute, cfg.Runner.Interval)
	assert.Equal(t, 100, cfg.Runner.OutboxBatchSize)
	assert.Equal(t, 5, cfg.Runner.OutboxMaxRetries)
	assert.Equal(t, 8, cfg.App.ReconcileConcurrency)
	assert.Equal(t, "test", cfg.Env)
}

func TestLoadFromRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"bad target":       "strength:\n  target: 1.5\n",
		"bad driver":       "storage:\n  driver: sqlite\n",
		"bad timezone":     "app:\n  timezone: Mars/Olympus\n",
		"bad outbox batch": "runner:\n  outbox_batch_size: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "base.yaml", body)
			_, err := LoadFrom("test", dir)
			assert.Error(t, err)
		})
	}
}

func TestRepositoryConfigLoads(t *testing.T) {
	cfg, err := LoadFrom("local", filepath.Join("..", "..", "config"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver, "local config should use the memory store")
}
