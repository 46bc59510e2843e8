package oracle

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Anthropic messages
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() string {
	return ProviderAnthropic
}

// Propose forces a single use of req.Function and returns its input
func (p *AnthropicProvider) Propose(ctx context.Context, req Request) (map[string]any, error) {
	user, err := userPrompt(req)
	if err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = p.model
	}

	fn := req.Function
	toolParam := anthropic.ToolParam{
		Name:        fn.Name,
		Description: anthropic.String(fn.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: fn.Parameters["properties"],
			Required:   fn.Parameters.Required(),
		},
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens(req),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(fn)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: &toolParam}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: fn.Name},
		},
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, err
	}

	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.ToolUseBlock); ok && b.Name == fn.Name {
			return parseArguments(b.JSON.Input.Raw())
		}
	}
	return nil, ErrNoProposal
}
