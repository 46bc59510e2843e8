package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/internal/config"
)

func TestConfigureCommand(t *testing.T) {
	t.Run("writes the effective config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "toolrun.json")

		out, err := execute(t, "configure", "--config", path, "--log-level", "debug")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration saved to: "+path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 8787, cfg.Server.Port)
	})

	t.Run("reset discards the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "toolrun.json")
		custom := config.DefaultConfig()
		custom.Server.Port = 9999
		require.NoError(t, config.NewLoader(path).Save(custom))

		_, err := execute(t, "configure", "--config", path, "--reset")
		require.NoError(t, err)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8787, cfg.Server.Port)
	})

	t.Run("show redacts the api key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "toolrun.json")
		custom := config.DefaultConfig()
		custom.Oracle.Provider = "openai"
		custom.Oracle.APIKey = "sk-secret"
		require.NoError(t, config.NewLoader(path).Save(custom))

		out, err := execute(t, "configure", "--config", path, "--show")
		require.NoError(t, err)
		assert.NotContains(t, out, "sk-secret")
		assert.Contains(t, out, "[REDACTED]")

		var shown map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &shown))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "sk-secret", "show does not rewrite the file")
	})

	t.Run("invalid config is not written", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "toolrun.json")

		_, err := execute(t, "configure", "--config", path, "--log-level", "loud")
		assert.Error(t, err)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})
}
