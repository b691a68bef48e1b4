package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "gateway.yaml", cfg.RuntimeConfig.Path)
	assert.Equal(t, 30*time.Second, cfg.RuntimeConfig.RefreshInterval)
	assert.Equal(t, 0.5, cfg.Guard.WarnThreshold)
	assert.Equal(t, 0.75, cfg.Guard.BlockThreshold)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestNewEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("GATEWAY_CONFIG_PATH", "/etc/gw/config.yaml")
	t.Setenv("GATEWAY_CONFIG_REFRESH", "2m")
	t.Setenv("GUARD_WARN_THRESHOLD", "0.4")
	t.Setenv("OPENAI_TIMEOUT", "15s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/etc/gw/config.yaml", cfg.RuntimeConfig.Path)
	assert.Equal(t, 2*time.Minute, cfg.RuntimeConfig.RefreshInterval)
	assert.Equal(t, 0.4, cfg.Guard.WarnThreshold)
	assert.Equal(t, 15*time.Second, cfg.Providers.OpenAI.Timeout)
}

func TestNewInvalidEnvValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("OPENAI_TIMEOUT", "soon")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Providers.OpenAI.Timeout)
}

func TestValidate(t *testing.T) {
	t.Run("thresholds must be ordered", func(t *testing.T) {
		t.Setenv("GUARD_WARN_THRESHOLD", "0.9")
		t.Setenv("GUARD_BLOCK_THRESHOLD", "0.5")
		_, err := New()
		require.Error(t, err)
	})

	t.Run("moderation requires an API key", func(t *testing.T) {
		t.Setenv("GUARD_MODERATION_ENABLED", "true")
		_, err := New()
		require.Error(t, err)
	})

	t.Run("production requires a provider and redis", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		_, err := New()
		require.Error(t, err)

		t.Setenv("OPENAI_API_KEY", "sk-test")
		_, err = New()
		require.Error(t, err) // still missing redis

		t.Setenv("REDIS_ADDR", "localhost:6379")
		cfg, err := New()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
	})
}
