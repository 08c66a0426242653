package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/studysearch/pkg/types"
)

// Provider configuration
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultGeminiModel = "gemini-embedding-001"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hashing-v1"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultHTTPTimeout   = 30 * time.Second
)

// OpenAIProvider implements Provider using the OpenAI embeddings API or any
// compatible endpoint.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI embedder. The API is asked for
// dimension-wide vectors explicitly.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = types.EmbeddingDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}

	return &OpenAIProvider{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		dimension: cfg.Dimension,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, text string, _ Task) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input":      []string{text},
		"model":      o.model,
		"dimensions": o.dimension,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Body:       string(bodyBytes),
		}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	return apiResp.Data[0].Embedding, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic feature-hashed bag-of-words vectors.
// Texts that share words get similar vectors, which is enough for offline
// use and tests without a remote model.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = types.EmbeddingDimension
	}
	return &LocalProvider{dimension: dimension}
}

func (l *LocalProvider) Embed(ctx context.Context, text string, _ Task) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, l.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			vector[idx]--
		} else {
			vector[idx]++
		}
	}

	return NormalizeVector(vector), nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Name() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return DefaultLocalModel
}

func (l *LocalProvider) Close() error {
	return nil
}
