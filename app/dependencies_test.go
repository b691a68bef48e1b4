package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-gateway/config"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
applications:
  - id: acct-a
    api_key: key-a
    enabled: true
features:
  - id: chat
    enabled: true
`), 0o600))

	return &config.Config{
		RuntimeConfig: config.RuntimeConfig{
			Path:            path,
			RefreshInterval: time.Minute,
		},
		Guard: config.GuardConfig{
			WarnThreshold:  0.5,
			BlockThreshold: 0.75,
		},
		Providers: config.ProvidersConfig{
			OpenAI: config.ProviderConfig{APIKey: "sk-test"},
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with in-process backends", func(t *testing.T) {
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		deps, err := New(cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.Snapshots)
		assert.NotNil(t, deps.Pipeline)
		assert.NotNil(t, deps.Authenticator)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.ChatHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.BudgetHandler)

		assert.NotNil(t, deps.Snapshots.Current().ApplicationByKey("key-a"))

		assert.NoError(t, deps.Close())
	})

	t.Run("missing config file fails", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RuntimeConfig.Path = "/does/not/exist.yaml"

		_, err := New(cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}
