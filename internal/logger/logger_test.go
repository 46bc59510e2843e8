package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("create logger with console output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		l := logger.GetZerolog()
		l.Info().Str("tool", "sum").Msg("called")
		assert.Contains(t, buf.String(), `"tool":"sum"`)
		assert.Contains(t, buf.String(), `"message":"called"`)
	})

	t.Run("create logger with file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "test.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		l := logger.GetZerolog()
		l.Info().Msg("test message")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "test message")
	})

	t.Run("create logger with redaction", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf, Redaction: true})
		require.NoError(t, err)
		defer logger.Close()
		assert.NotNil(t, logger.redactor)

		l := logger.GetZerolog()
		l.Info().Str("auth", "Bearer abc.def.ghi").Msg("request")
		assert.NotContains(t, buf.String(), "abc.def.ghi")
		assert.Contains(t, buf.String(), "[REDACTED]")
	})

	t.Run("configured redact patterns", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{
			Level: "info", Console: true, Output: &buf, Redaction: true,
			RedactPatterns: []string{`acct_[0-9]{6}`},
		})
		require.NoError(t, err)
		defer logger.Close()

		l := logger.GetZerolog()
		l.Info().Str("account", "acct_123456").Msg("charged")
		assert.NotContains(t, buf.String(), "acct_123456")
		assert.Contains(t, buf.String(), `"account":"[REDACTED]"`)
	})

	t.Run("invalid redact pattern", func(t *testing.T) {
		_, err := New(Config{Level: "info", Output: &bytes.Buffer{}, Redaction: true, RedactPatterns: []string{`acct_[0-9`}})
		assert.ErrorContains(t, err, "invalid redact pattern")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "loud", Output: &bytes.Buffer{}})
		require.NoError(t, err)
		defer logger.Close()
		assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	})
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Output: &buf})
	require.NoError(t, err)
	defer logger.Close()
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	child := logger.Component("gateway")
	child.Debug().Msg("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	require.NoError(t, logger.SetLevel("debug"))
	child.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), `"component":"gateway"`)

	assert.Error(t, logger.SetLevel("loud"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
}

func TestLoggerWith(t *testing.T) {
	logger, err := New(Config{Level: "info", Output: &bytes.Buffer{}})
	require.NoError(t, err)
	defer logger.Close()

	childLogger := logger.With().Str("component", "test").Logger()
	assert.NotNil(t, childLogger)
}
