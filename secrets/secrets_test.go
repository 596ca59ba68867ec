package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSecretManager(t *testing.T) {
	manager := EnvSecretManager{}

	t.Run("prefixed variable wins over bare name", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "bare")
		t.Setenv("CHATRELAY_OPENAI_API_KEY", "prefixed")
		secret, err := manager.GetSecret("OPENAI_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "prefixed", secret)
	})

	t.Run("falls back to bare name", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "bare-only")
		secret, err := manager.GetSecret("ANTHROPIC_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "bare-only", secret)
	})

	t.Run("missing secret errors", func(t *testing.T) {
		_, err := manager.GetSecret("NO_SUCH_SECRET_EVER")
		assert.Error(t, err)
	})

	t.Run("set and delete are unsupported", func(t *testing.T) {
		assert.Error(t, manager.SetSecret("X", "y"))
		assert.Error(t, manager.DeleteSecret("X"))
	})
}

func TestMockSecretManager(t *testing.T) {
	manager := MockSecretManager{Secrets: map[string]string{"GEMINI_API_KEY": "g"}}

	secret, err := manager.GetSecret("GEMINI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "g", secret)

	require.NoError(t, manager.SetSecret("OPENAI_API_KEY", "o"))
	secret, err = manager.GetSecret("OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "o", secret)

	require.NoError(t, manager.DeleteSecret("OPENAI_API_KEY"))
	_, err = manager.GetSecret("OPENAI_API_KEY")
	assert.Error(t, err)
}

func TestGetSecretManager(t *testing.T) {
	assert.Equal(t, EnvSecretManagerType, GetSecretManager("").GetType())
	assert.Equal(t, EnvSecretManagerType, GetSecretManager("env").GetType())
	assert.Equal(t, KeyringSecretManagerType, GetSecretManager("keyring").GetType())
	assert.Equal(t, MockSecretManagerType, GetSecretManager("mock").GetType())
}
