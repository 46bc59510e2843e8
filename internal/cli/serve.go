package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harun/toolrun/internal/app"
	"github.com/harun/toolrun/internal/config"
	"github.com/harun/toolrun/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registered tools over HTTP",
	Long: `Serve the built-in tools on the gateway until interrupted.
Changes to the config file's log level apply without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	zl := log.GetZerolog()

	if err := tracing.InitOpenTelemetry("toolrun"); err != nil {
		zl.Warn().Err(err).Msg("Tracing disabled")
	}

	a, err := app.New(cfg, zl)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			zl.Warn().Err(err).Msg("Ignoring invalid config change")
			return
		}
		if logLevel != "" || next.Logging.Level == cfg.Logging.Level {
			return
		}
		if err := log.SetLevel(next.Logging.Level); err != nil {
			zl.Warn().Err(err).Msg("Failed to apply log level")
			return
		}
		zl.Info().Str("level", next.Logging.Level).Msg("Log level changed")
		cfg.Logging.Level = next.Logging.Level
	}); err != nil {
		zl.Debug().Err(err).Msg("Config watch disabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return tracing.ShutdownOpenTelemetry(shutdownCtx)
	})
	return g.Wait()
}
