// Package app wires the toolrun services using go.uber.org/dig.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"github.com/harun/toolrun/internal/config"
	"github.com/harun/toolrun/internal/metrics"
	"github.com/harun/toolrun/pkg/coretools"
	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/gateway"
	"github.com/harun/toolrun/pkg/kvstore"
	"github.com/harun/toolrun/pkg/oracle"
	"github.com/harun/toolrun/pkg/runstore"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

// oracleTimeout bounds a single argument proposal
const oracleTimeout = 60 * time.Second

// App holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	bus     *eventbus.Bus
	kv      kvstore.Store
	runner  *toolexecutor.Runner
	runs    *runstore.Store
	server  *gateway.Server
	sweeper *Sweeper
}

func (a *App) Config() *config.Config       { return a.cfg }
func (a *App) Metrics() *metrics.Metrics    { return a.metrics }
func (a *App) Bus() *eventbus.Bus           { return a.bus }
func (a *App) KV() kvstore.Store            { return a.kv }
func (a *App) Runner() *toolexecutor.Runner { return a.runner }
func (a *App) Runs() *runstore.Store        { return a.runs }
func (a *App) Server() *gateway.Server      { return a.server }
func (a *App) Sweeper() *Sweeper            { return a.sweeper }

// New builds and wires all services from cfg.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := dig.New()
	providers := []any{
		func() *config.Config { return cfg },
		func() zerolog.Logger { return logger },
		metrics.NewMetrics,
		newBus,
		newKV,
		newRegistry,
		newRunner,
		runstore.New,
		newServer,
		newSweeper,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *App
	err := d.Invoke(func(
		m *metrics.Metrics,
		bus *eventbus.Bus,
		kv kvstore.Store,
		runner *toolexecutor.Runner,
		runs *runstore.Store,
		server *gateway.Server,
		sweeper *Sweeper,
	) {
		result = &App{
			cfg:     cfg,
			logger:  logger,
			metrics: m,
			bus:     bus,
			kv:      kv,
			runner:  runner,
			runs:    runs,
			server:  server,
			sweeper: sweeper,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newBus(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) *eventbus.Bus {
	return eventbus.New(eventbus.Options{
		Buffer:  cfg.Bus.Buffer,
		Logger:  logger.With().Str("component", "eventbus").Logger(),
		Metrics: m,
	})
}

func newKV(cfg *config.Config, logger zerolog.Logger) (kvstore.Store, error) {
	return kvstore.Open(cfg.KV.Driver, cfg.KV.Path, logger.With().Str("component", "kvstore").Logger())
}

func newRegistry(cfg *config.Config, logger zerolog.Logger, kv kvstore.Store) (*toolexecutor.Registry, error) {
	reg := toolexecutor.NewRegistry(logger.With().Str("component", "registry").Logger())

	if err := coretools.RegisterCoreTools(reg, coretools.Options{KV: kv, Logger: logger}); err != nil {
		return nil, err
	}

	if cfg.Oracle.Provider != "" {
		provider, err := oracle.NewProvider(oracle.Config{
			Provider: cfg.Oracle.Provider,
			Model:    cfg.Oracle.Model,
			APIKey:   cfg.Oracle.APIKey,
			BaseURL:  cfg.Oracle.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		spec := oracle.Spec(oracle.ToolOptions{
			Provider: provider,
			Model:    cfg.Oracle.Model,
			Timeout:  oracleTimeout,
			Logger:   logger.With().Str("component", "oracle").Logger(),
		})
		spec.Name = cfg.Oracle.Tool
		if _, err := reg.Define(spec); err != nil {
			return nil, fmt.Errorf("failed to register oracle tool: %w", err)
		}
	}
	return reg, nil
}

func newRunner(cfg *config.Config, logger zerolog.Logger, reg *toolexecutor.Registry, bus *eventbus.Bus, m *metrics.Metrics) *toolexecutor.Runner {
	opts := toolexecutor.Options{
		Registry: reg,
		Bus:      bus,
		Logger:   logger,
		Metrics:  m,
	}
	if cfg.Oracle.Provider != "" {
		opts.OracleTool = cfg.Oracle.Tool
	}
	return toolexecutor.New(opts)
}

func newServer(cfg *config.Config, logger zerolog.Logger, runner *toolexecutor.Runner, runs *runstore.Store, m *metrics.Metrics) (*gateway.Server, error) {
	return gateway.NewServer(gateway.Config{
		Addr:                cfg.Addr(),
		Prefix:              cfg.Server.Prefix,
		Runner:              runner,
		Runs:                runs,
		Keepalive:           cfg.Keepalive(),
		MaxEventResultBytes: cfg.Runs.MaxEventResultBytes,
		AsyncByDefault:      cfg.Runs.AsyncByDefault,
		ShutdownTimeout:     cfg.ShutdownTimeout(),
		Logger:              logger.With().Str("component", "gateway").Logger(),
		Metrics:             m,
	})
}

func newSweeper(cfg *config.Config, logger zerolog.Logger, runs *runstore.Store) (*Sweeper, error) {
	return NewSweeper(runs, cfg.Runs.SweepSchedule, cfg.RunTTL(), logger.With().Str("component", "sweeper").Logger())
}

// Run serves until ctx is done, then shuts the server and the sweep down
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.ListenAndServe()
	})

	a.sweeper.Start()
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
		defer cancel()
		a.sweeper.Stop(shutdownCtx)
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the stores
func (a *App) Close() error {
	return a.kv.Close()
}
