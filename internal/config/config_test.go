package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8787", cfg.Addr())
	assert.Equal(t, "/api/tools", cfg.Server.Prefix)
	assert.Equal(t, 15*time.Second, cfg.Keepalive())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 10*time.Minute, cfg.RunTTL())
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.ClientTimeout())
	assert.Equal(t, "oracle.fill_args", cfg.Oracle.Tool)
	assert.Equal(t, "memory", cfg.KV.Driver)
	assert.True(t, cfg.Logging.Redaction)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid port"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "invalid port"},
		{"relative prefix", func(c *Config) { c.Server.Prefix = "api" }, "must start with /"},
		{"empty prefix", func(c *Config) { c.Server.Prefix = "" }, ""},
		{"no keepalive", func(c *Config) { c.Server.KeepaliveSeconds = 0 }, "keepalive_seconds"},
		{"bad schedule", func(c *Config) { c.Runs.SweepSchedule = "whenever" }, "invalid schedule"},
		{"cron schedule", func(c *Config) { c.Runs.SweepSchedule = "*/5 * * * *" }, ""},
		{"no ttl", func(c *Config) { c.Runs.TTLSeconds = 0 }, "ttl_seconds"},
		{"empty bus", func(c *Config) { c.Bus.Buffer = 0 }, "buffer"},
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "gemini" }, "invalid provider"},
		{"anthropic", func(c *Config) { c.Oracle.Provider = "anthropic" }, ""},
		{"provider without tool", func(c *Config) { c.Oracle.Provider = "openai"; c.Oracle.Tool = "" }, "tool name"},
		{"unknown kv driver", func(c *Config) { c.KV.Driver = "redis" }, "invalid driver"},
		{"sqlite without path", func(c *Config) { c.KV.Driver = "sqlite" }, "path is required"},
		{"sqlite", func(c *Config) { c.KV.Driver = "sqlite"; c.KV.Path = "/tmp/kv.db" }, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"redact patterns", func(c *Config) { c.Logging.RedactPatterns = []string{`acct_[0-9]+`} }, ""},
		{"bad redact pattern", func(c *Config) { c.Logging.RedactPatterns = []string{`acct_[0-9`} }, "invalid redact pattern"},
		{"no poll interval", func(c *Config) { c.Client.PollIntervalMS = 0 }, "poll_interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.True(t, strings.HasPrefix(s, "{"))
	assert.Contains(t, s, `"sweep_schedule": "@every 1m"`)
}
