package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSource(t *testing.T) {
	t.Run("defaults with endpoint and key", func(t *testing.T) {
		cfg, err := FromSource(MapSource{
			KeyEndpointURL: "https://example.test/models/llama",
			KeyAPIKey:      "hf_secret",
		})

		require.NoError(t, err)
		assert.Equal(t, "https://example.test/models/llama", cfg.EndpointURL)
		assert.Equal(t, "hf_secret", cfg.APIKey)
		assert.Equal(t, DefaultTimeout, cfg.Timeout)
		assert.Equal(t, DefaultMaxNewTokens, cfg.MaxNewTokens)
	})

	t.Run("missing keys are not an error", func(t *testing.T) {
		cfg, err := FromSource(MapSource{})

		require.NoError(t, err)
		assert.Empty(t, cfg.EndpointURL)
		assert.Empty(t, cfg.APIKey)
	})

	t.Run("optional overrides", func(t *testing.T) {
		cfg, err := FromSource(MapSource{
			KeyTimeout:      "30s",
			KeyMaxNewTokens: "256",
		})

		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, cfg.Timeout)
		assert.Equal(t, 256, cfg.MaxNewTokens)
	})

	tests := []struct {
		name string
		src  MapSource
	}{
		{"bad timeout", MapSource{KeyTimeout: "soon"}},
		{"negative timeout", MapSource{KeyTimeout: "-1s"}},
		{"bad max tokens", MapSource{KeyMaxNewTokens: "many"}},
		{"zero max tokens", MapSource{KeyMaxNewTokens: "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSource(tt.src)
			assert.Error(t, err)
		})
	}
}

func TestEnvSource(t *testing.T) {
	t.Run("reads dotenv file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		err := os.WriteFile(path, []byte("HF_API_LLAMA2_BASE=https://from-file.test\nHF_API_KEY=file-key\n"), 0644)
		require.NoError(t, err)
		t.Setenv(KeyAPIKey, "env-key")
		t.Setenv(KeyEndpointURL, "")
		os.Unsetenv(KeyEndpointURL)

		src, err := NewEnvSource(path)
		require.NoError(t, err)

		cfg, err := FromSource(src)
		require.NoError(t, err)
		assert.Equal(t, "https://from-file.test", cfg.EndpointURL)
		assert.Equal(t, "env-key", cfg.APIKey)
	})

	t.Run("missing file falls back to environment", func(t *testing.T) {
		t.Setenv(KeyEndpointURL, "https://from-env.test")

		src, err := NewEnvSource(filepath.Join(t.TempDir(), "absent.env"))
		require.NoError(t, err)

		v, ok := src.Lookup(KeyEndpointURL)
		assert.True(t, ok)
		assert.Equal(t, "https://from-env.test", v)
	})
}
