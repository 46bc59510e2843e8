package cli

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/toolrun/internal/config"
	"github.com/harun/toolrun/internal/logger"
	"github.com/harun/toolrun/pkg/client"
)

const version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	serverURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "toolrun",
	Short: "toolrun - tool invocation engine",
	Long: `toolrun registers schema-validated tools, runs them locally or over HTTP,
and pauses multi-step plans for confirmation and resumes them from checkpoints.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.toolrun/toolrun.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "gateway base URL override (default from client.base_url)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if serverURL != "" {
		cfg.Client.BaseURL = serverURL
	}
	return loader, cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Output:    cmd.ErrOrStderr(),

		RedactPatterns: cfg.Logging.RedactPatterns,
	})
}

func newClient(cfg *config.Config, log zerolog.Logger) *client.Client {
	return client.New(client.Options{
		BaseURL:    cfg.Client.BaseURL,
		Prefix:     cfg.Server.Prefix,
		HTTPClient: &http.Client{Timeout: cfg.ClientTimeout()},
		Logger:     log,
	})
}

// clientSetup loads config and builds a client for the remote commands
func clientSetup(cmd *cobra.Command) (*config.Config, *client.Client, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newClient(cfg, log.GetZerolog()), nil
}
