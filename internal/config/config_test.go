package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 0.7, cfg.Model.Temperature)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	content := `
log_level: debug
checkpoint_dir: /tmp/ckpt
run_timeout: 5m
server:
  addr: ":9999"
model:
  provider: openai
  name: gpt-4o-mini
  max_tokens: 512
retry:
  max_attempts: 5
  base_delay: 100ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/ckpt", cfg.CheckpointDir)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, 512, cfg.Model.MaxTokens)

	retry := cfg.Retry.ToRetryConfig()
	assert.Equal(t, 5, retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, retry.BaseDelay)
	// File omits max_delay; the default survives.
	assert.Equal(t, 30*time.Second, retry.MaxDelay)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("LOOM_SERVER_ADDR", ":7777")
	t.Setenv("LOOM_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
