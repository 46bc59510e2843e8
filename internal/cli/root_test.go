package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/internal/app"
	"github.com/harun/toolrun/internal/config"
)

// resetFlags restores every flag to its default; cobra keeps parsed values
// on the package-level commands between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	resetFlags(cmd)

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// testServer starts an in-process gateway with the built-in tools and
// returns its URL and a config path that does not exist yet.
func testServer(t *testing.T) (string, string) {
	t.Helper()
	a, err := app.New(config.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ts := httptest.NewServer(a.Server().Handler())
	t.Cleanup(ts.Close)
	return ts.URL, filepath.Join(t.TempDir(), "toolrun.json")
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "toolrun version")
		assert.Contains(t, out, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		out, err := execute(t, "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "schema-validated tools")
		for _, name := range []string{"serve", "call", "tools", "resume", "status", "configure"} {
			assert.Contains(t, out, name)
		}
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "", logLevelFlag.DefValue, "empty keeps the configured level")

		require.NotNil(t, cmd.PersistentFlags().Lookup("server"))
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	resetFlags(GetRootCmd())
	cfgFile = filepath.Join(t.TempDir(), "toolrun.json")
	logLevel = "debug"
	serverURL = "http://example.test:9000"
	defer resetFlags(GetRootCmd())

	_, cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://example.test:9000", cfg.Client.BaseURL)
	assert.Equal(t, "/api/tools", cfg.Server.Prefix)
}

func TestStatusCommand(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		url, cfgPath := testServer(t)

		out, err := execute(t, "status", "--config", cfgPath, "--server", url)
		require.NoError(t, err)
		assert.Contains(t, out, "Status: running")
		assert.Contains(t, out, "Server: "+url+"/api/tools")
		assert.Contains(t, out, "Tools: 10")
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(nil)
		ts.Close()

		out, err := execute(t, "status", "--config", filepath.Join(t.TempDir(), "none.json"), "--server", ts.URL)
		assert.Error(t, err)
		assert.Contains(t, out, "Status: unreachable")
	})
}
