package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config represents the main toolrun configuration
type Config struct {
	// Gateway server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Async run bookkeeping
	Runs RunsConfig `json:"runs" mapstructure:"runs"`

	// Event bus
	Bus BusConfig `json:"bus" mapstructure:"bus"`

	// Planner oracle
	Oracle OracleConfig `json:"oracle" mapstructure:"oracle"`

	// Key/value store behind the kv.* tools
	KV KVConfig `json:"kv" mapstructure:"kv"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Remote client used by the CLI
	Client ClientConfig `json:"client" mapstructure:"client"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host                   string `json:"host" mapstructure:"host"`
	Port                   int    `json:"port" mapstructure:"port"`
	Prefix                 string `json:"prefix" mapstructure:"prefix"`
	KeepaliveSeconds       int    `json:"keepalive_seconds" mapstructure:"keepalive_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

// RunsConfig holds run store configuration
type RunsConfig struct {
	TTLSeconds          int    `json:"ttl_seconds" mapstructure:"ttl_seconds"`
	SweepSchedule       string `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron spec
	MaxEventResultBytes int    `json:"max_event_result_bytes" mapstructure:"max_event_result_bytes"`
	AsyncByDefault      bool   `json:"async_by_default" mapstructure:"async_by_default"`
}

// BusConfig holds event bus configuration
type BusConfig struct {
	Buffer int `json:"buffer" mapstructure:"buffer"`
}

// OracleConfig selects the provider behind oracle.fill_args
type OracleConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // "", openai, anthropic
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Tool     string `json:"tool" mapstructure:"tool"`
}

// KVConfig holds key/value store configuration
type KVConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // memory, sqlite
	Path   string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`

	// RedactPatterns are regular expressions masked in addition to the
	// built-in credential rules
	RedactPatterns []string `json:"redact_patterns,omitempty" mapstructure:"redact_patterns"`
}

// ClientConfig holds remote client configuration
type ClientConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	PollIntervalMS int    `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "127.0.0.1",
			Port:                   8787,
			Prefix:                 "/api/tools",
			KeepaliveSeconds:       15,
			ShutdownTimeoutSeconds: 10,
		},
		Runs: RunsConfig{
			TTLSeconds:          600,
			SweepSchedule:       "@every 1m",
			MaxEventResultBytes: 64 << 10,
			AsyncByDefault:      false,
		},
		Bus: BusConfig{
			Buffer: 256,
		},
		Oracle: OracleConfig{
			Tool: "oracle.fill_args",
		},
		KV: KVConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Client: ClientConfig{
			BaseURL:        "http://127.0.0.1:8787",
			PollIntervalMS: 1000,
			TimeoutSeconds: 30,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Addr returns the host:port the gateway listens on
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) Keepalive() time.Duration {
	return time.Duration(c.Server.KeepaliveSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) RunTTL() time.Duration {
	return time.Duration(c.Runs.TTLSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Client.PollIntervalMS) * time.Millisecond
}

func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.Client.TimeoutSeconds) * time.Second
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidatePort(c.Server.Port); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := v.ValidatePrefix(c.Server.Prefix); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Server.KeepaliveSeconds < 1 {
		return fmt.Errorf("server: keepalive_seconds must be at least 1")
	}

	if c.Runs.TTLSeconds < 1 {
		return fmt.Errorf("runs: ttl_seconds must be at least 1")
	}
	if err := v.ValidateSchedule(c.Runs.SweepSchedule); err != nil {
		return fmt.Errorf("runs: %w", err)
	}
	if c.Runs.MaxEventResultBytes < 0 {
		return fmt.Errorf("runs: max_event_result_bytes cannot be negative")
	}

	if c.Bus.Buffer < 1 {
		return fmt.Errorf("bus: buffer must be at least 1")
	}

	if err := v.ValidateProvider(c.Oracle.Provider); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if c.Oracle.Provider != "" && strings.TrimSpace(c.Oracle.Tool) == "" {
		return fmt.Errorf("oracle: tool name is required when a provider is set")
	}

	if err := v.ValidateKVDriver(c.KV.Driver, c.KV.Path); err != nil {
		return fmt.Errorf("kv: %w", err)
	}

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := v.ValidatePatterns(c.Logging.RedactPatterns); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if c.Client.PollIntervalMS < 1 {
		return fmt.Errorf("client: poll_interval_ms must be at least 1")
	}
	return nil
}
