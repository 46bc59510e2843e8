// Package oracle proposes tool arguments with a function-calling model. It
// registers as an ordinary tool, oracle.fill_args, which the runner calls
// when a tool plans arguments for another.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harun/toolrun/pkg/toolexecutor"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultMaxTokens      = 1024
)

// ErrNoProposal is returned when the model answers without calling the function
var ErrNoProposal = errors.New("model did not propose arguments")

// Provider asks a model for arguments to one function
type Provider interface {
	// Propose returns the arguments the model chose for req.Function
	Propose(ctx context.Context, req Request) (map[string]any, error)

	// Provider returns the provider name
	Provider() string
}

// Request contains the parameters of one proposal
type Request struct {
	Model       string
	Function    toolexecutor.FunctionDef
	Partial     map[string]any
	Instruction string
	MaxTokens   int
}

// Config selects and authenticates a provider
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// NewProvider creates a provider from cfg
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", cfg.Provider)
	}
}

func systemPrompt(fn toolexecutor.FunctionDef) string {
	return fmt.Sprintf("You fill in arguments for the function %s. Call it exactly once. "+
		"Keep every value the user already supplied and propose the missing ones.", fn.Name)
}

func userPrompt(req Request) (string, error) {
	partial, err := json.Marshal(req.Partial)
	if err != nil {
		return "", fmt.Errorf("failed to marshal partial arguments: %w", err)
	}
	msg := "Known arguments: " + string(partial)
	if req.Instruction != "" {
		msg += "\n" + req.Instruction
	}
	return msg, nil
}

func maxTokens(req Request) int64 {
	if req.MaxTokens > 0 {
		return int64(req.MaxTokens)
	}
	return DefaultMaxTokens
}

func parseArguments(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to parse proposed arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
