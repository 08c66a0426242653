package embedder

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/dshills/studysearch/pkg/types"
)

// Gemini task types for asymmetric retrieval
const (
	geminiTaskDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskQuery    = "RETRIEVAL_QUERY"
)

// GeminiProvider implements Provider using the Gemini API through the genai SDK.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiProvider creates a Gemini embedder. Output dimensionality is
// requested explicitly so the index width never depends on the model default.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not set", ErrNoProviderEnabled)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = types.EmbeddingDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:    client,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (g *GeminiProvider) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	taskType := geminiTaskDocument
	if task == TaskQuery {
		taskType = geminiTaskQuery
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: genai.Ptr(int32(g.dimension)),
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, ErrEmptyResponse
	}

	return resp.Embeddings[0].Values, nil
}

func (g *GeminiProvider) Dimension() int {
	return g.dimension
}

func (g *GeminiProvider) Name() string {
	return ProviderGemini
}

func (g *GeminiProvider) Model() string {
	return g.model
}

// Close is a no-op; the genai client holds no resources beyond its HTTP client.
func (g *GeminiProvider) Close() error {
	return nil
}
