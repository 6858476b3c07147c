package classifier

import (
	"context"
	"fmt"
	"net/http"
)

// Provider names accepted by NewGenerator
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// NewGenerator builds the generator for a provider
func NewGenerator(ctx context.Context, provider, apiKey string, httpClient *http.Client) (Generator, error) {
	switch provider {
	case ProviderGemini, "":
		g, err := NewGemini(ctx, apiKey, httpClient)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderAnthropic:
		g, err := NewAnthropic(apiKey, httpClient)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
