package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d (must be 1-65535)", port)
	}
	return nil
}

// ValidatePrefix validates the route prefix tools are mounted under
func (v *Validator) ValidatePrefix(prefix string) error {
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("invalid prefix %q (must start with /)", prefix)
	}
	return nil
}

// ValidateProvider validates an oracle provider name; empty disables the oracle
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "", "openai", "anthropic":
		return nil
	}
	return fmt.Errorf("invalid provider %s (must be: openai, anthropic)", provider)
}

// ValidateKVDriver validates a kv driver and its path
func (v *Validator) ValidateKVDriver(driver, path string) error {
	switch driver {
	case "", "memory":
		return nil
	case "sqlite":
		if path == "" {
			return fmt.Errorf("path is required for the sqlite driver")
		}
		return nil
	}
	return fmt.Errorf("invalid driver %s (must be: memory, sqlite)", driver)
}

// ValidateSchedule validates a cron spec
func (v *Validator) ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateLogLevel validates a log level
func (v *Validator) ValidateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level %s (must be: debug, info, warn, error)", level)
}

// ValidatePatterns checks that every redact pattern compiles
func (v *Validator) ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
	}
	return nil
}
