package classifier

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator calls the Anthropic messages API
type AnthropicGenerator struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropic creates a generator; httpClient may be nil
func NewAnthropic(apiKey string, httpClient *http.Client) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrNoCredentials)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		maxTokens: 1024,
	}, nil
}

func (g *AnthropicGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response")
}
