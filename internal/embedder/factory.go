package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProviderConfig selects and configures an embedding provider
type ProviderConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

// NewProvider creates the provider named by cfg.Provider. An empty name
// selects gemini or openai when a key is present and local otherwise.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = DetectProvider(cfg)
	}

	switch name {
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider NewProvider would use for cfg
func DetectProvider(cfg ProviderConfig) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.APIKey != "" {
		if strings.HasPrefix(cfg.Model, "text-embedding-") {
			return ProviderOpenAI
		}
		return ProviderGemini
	}
	return ProviderLocal
}
