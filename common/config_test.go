package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		config, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 3050, config.Server.Port)
		assert.Equal(t, "gpt-4o", config.Providers[ProviderGPT].Default)
		assert.Equal(t, 24000, config.Limits.MaxMessageLength)
		assert.Equal(t, 50, config.Limits.MaxMessages)
		assert.Equal(t, 3, config.Retry.MaxAttempts)
		assert.Equal(t, 30*time.Second, config.Timeouts.StreamPull)
	})

	t.Run("file values override defaults, others kept", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  port: 4000
limits:
  max_messages: 10
retry:
  base_delay: 500ms
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, 4000, config.Server.Port)
		assert.Equal(t, 10, config.Limits.MaxMessages)
		assert.Equal(t, 500*time.Millisecond, config.Retry.BaseDelay)
		// untouched defaults survive
		assert.Equal(t, 24000, config.Limits.MaxMessageLength)
		assert.Equal(t, "claude-3-5-sonnet-latest", config.Providers[ProviderClaude].Default)
	})

	t.Run("env overrides file and defaults", func(t *testing.T) {
		t.Setenv("CHATRELAY_SERVER_PORT", "5005")
		config, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 5005, config.Server.Port)
	})

	t.Run("invalid file values are rejected", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: -1\n"), 0644))
		_, err := LoadConfig(configPath)
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("provider without default model is invalid", func(t *testing.T) {
		config := DefaultConfig()
		p := config.Providers[ProviderGPT]
		p.Default = ""
		config.Providers[ProviderGPT] = p
		assert.Error(t, config.Validate())
	})

	t.Run("max delay below base delay is invalid", func(t *testing.T) {
		config := DefaultConfig()
		config.Retry.MaxDelay = config.Retry.BaseDelay / 2
		assert.Error(t, config.Validate())
	})
}

func TestProviderConfigAllowedModels(t *testing.T) {
	p := ProviderConfig{Default: "m1", Fallback: "m2"}
	assert.Equal(t, []string{"m1", "m2"}, p.AllowedModels())

	noFallback := ProviderConfig{Default: "m1"}
	assert.Equal(t, []string{"m1"}, noFallback.AllowedModels())
}
