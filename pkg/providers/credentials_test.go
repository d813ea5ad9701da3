package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiaki/sorabot/pkg/config"
)

var testFactory = Factory{Label: "Gemini", EnvKey: "GEMINI_API_KEY"}

func TestCredential_RejectsPlaceholders(t *testing.T) {
	for _, key := range []string{"<GEMINI_API_KEY>", "${OPENROUTER_API_KEY}"} {
		cred, err := resolveCredential(ProviderGemini, testFactory, config.ProviderConfig{APIKey: key})
		require.NoError(t, err)
		_, err = cred.key()
		require.Error(t, err, key)
		assert.Contains(t, err.Error(), "providers.gemini.api_key")
	}
}

func TestCredential_KeyFileIsTrimmed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")
	require.NoError(t, os.WriteFile(path, []byte("  sk-123\n"), 0o600))

	cred, err := resolveCredential(ProviderGemini, testFactory, config.ProviderConfig{APIKeyFile: path})
	require.NoError(t, err)
	assert.Equal(t, authModeAPIKeyFile, cred.mode)
	require.NoError(t, cred.check(testFactory.Label))
	key, err := cred.key()
	require.NoError(t, err)
	assert.Equal(t, "sk-123", key)
}

func TestCredential_EmptyKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

	cred, err := resolveCredential(ProviderGemini, testFactory, config.ProviderConfig{APIKeyFile: path})
	require.NoError(t, err)
	_, err = cred.key()
	assert.ErrorContains(t, err, "is empty")
}

func TestCredential_VendorVariableOnlyWhenNothingConfigured(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "AIza-env")

	cred, err := resolveCredential(ProviderGemini, testFactory, config.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, authModeEnv, cred.mode)
	key, err := cred.key()
	require.NoError(t, err)
	assert.Equal(t, "AIza-env", key)

	cred, err = resolveCredential(ProviderGemini, testFactory, config.ProviderConfig{APIKey: "AIza-file"})
	require.NoError(t, err)
	assert.Equal(t, authModeAPIKey, cred.mode)

	t.Setenv("GEMINI_API_KEY", "")
	_, err = resolveCredential(ProviderGemini, testFactory, config.ProviderConfig{})
	assert.ErrorContains(t, err, "Gemini API key is required")
}
