package reasoning

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string
	MaxTokens int
	Resolver  ModelResolver
}

// AnthropicService calls the Anthropic Messages API.
type AnthropicService struct {
	client    anthropic.Client
	maxTokens int64
	resolver  ModelResolver
}

// NewAnthropicService creates the service. The API key falls back to ANTHROPIC_API_KEY.
func NewAnthropicService(cfg AnthropicConfig) (*AnthropicService, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	resolver := cfg.Resolver
	if resolver.Default == "" {
		resolver.Default = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}

	return &AnthropicService{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens: maxTokens,
		resolver:  resolver,
	}, nil
}

// Reason implements Service.
func (s *AnthropicService) Reason(ctx context.Context, prompt, capability string) (string, error) {
	name := s.resolver.Resolve(capability)
	if !strings.HasPrefix(name, "claude") {
		name = s.resolver.Default
	}

	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(name),
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}
