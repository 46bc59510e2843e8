package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolrun/internal/config"
	"github.com/harun/toolrun/pkg/client"
	"github.com/harun/toolrun/pkg/kvstore"
	"github.com/harun/toolrun/pkg/oracle"
	"github.com/harun/toolrun/pkg/runstore"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	reg := a.Runner().Registry()
	assert.NotNil(t, reg.Find("sum"))
	assert.NotNil(t, reg.Find("kv.archive"))
	assert.Nil(t, reg.Find(oracle.ToolName), "no oracle without a provider")
	assert.IsType(t, &kvstore.Memory{}, a.KV())
	assert.Same(t, a.Bus(), a.Runner().Bus())
	assert.Equal(t, "/api/tools", a.Server().Prefix())
}

func TestNew_OracleAndSQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Oracle.Provider = "openai"
	cfg.Oracle.APIKey = "sk-test"
	cfg.KV.Driver = "sqlite"
	cfg.KV.Path = filepath.Join(t.TempDir(), "kv.db")

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Runner().Registry().Find(oracle.ToolName))
	assert.IsType(t, &kvstore.SQLite{}, a.KV())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Runs.SweepSchedule = "sometimes"

	_, err := New(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestApp_Run(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Port = freePort(t)

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	base := fmt.Sprintf("http://%s", cfg.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	c := client.New(client.Options{BaseURL: base, Prefix: cfg.Server.Prefix})
	out, err := c.CallTool(ctx, "sum", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": float64(3)}, out)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweeper(t *testing.T) {
	runs := runstore.New()
	_, err := runs.Create("r1", "sum")
	require.NoError(t, err)
	require.NoError(t, runs.Start("r1"))
	require.NoError(t, runs.Finish("r1", 1))
	_, err = runs.Create("r2", "sum")
	require.NoError(t, err)
	require.NoError(t, runs.Start("r2"))

	s, err := NewSweeper(runs, "@every 1h", time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, s.Sweep(), "only settled runs expire")
	_, err = runs.Get("r2")
	assert.NoError(t, err)

	_, err = NewSweeper(runs, "bogus", time.Minute, zerolog.Nop())
	assert.Error(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
