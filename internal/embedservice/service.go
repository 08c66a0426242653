package embedservice

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dshills/studysearch/internal/embedder"
	"github.com/dshills/studysearch/internal/ratelimit"
)

// BatchResult summarizes a batch. SuccessCount+FailureCount always equals
// the number of inputs, and Errors is keyed by input index.
type BatchResult struct {
	SuccessCount int                        `json:"success_count"`
	FailureCount int                        `json:"failure_count"`
	Errors       map[int]string             `json:"errors"`
	Results      []embedder.EmbeddingResult `json:"-"`
}

// Service applies the per-minute request budget in front of an embedding
// client. Each logical request that reaches the provider takes exactly one
// unit of budget no matter how many times the client retries it.
type Service struct {
	client  *embedder.Client
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// New creates a Service. A nil limiter counts requests in memory without a
// budget.
func New(client *embedder.Client, limiter *ratelimit.Limiter, logger zerolog.Logger) *Service {
	if limiter == nil {
		limiter = ratelimit.New(nil, ratelimit.Config{}, logger)
	}
	return &Service{
		client:  client,
		limiter: limiter,
		logger:  logger.With().Str("component", "embedservice").Logger(),
	}
}

// Client returns the wrapped embedding client.
func (s *Service) Client() *embedder.Client {
	return s.client
}

// GenerateEmbedding embeds a document text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) embedder.EmbeddingResult {
	if strings.TrimSpace(text) == "" {
		return embedder.ErrorResult(embedder.ErrEmptyText)
	}
	return s.client.GenerateEmbedding(ctx, text, s.budget())
}

// EmbedQuery embeds a search query under the same budget.
func (s *Service) EmbedQuery(ctx context.Context, text string) embedder.EmbeddingResult {
	if strings.TrimSpace(text) == "" {
		return embedder.ErrorResult(embedder.ErrEmptyText)
	}
	return s.client.EmbedQuery(ctx, text, s.budget())
}

// budget takes one unit of the request budget for a text the client has to
// send to the provider. Cached texts cost nothing.
func (s *Service) budget() embedder.Option {
	return embedder.WithItemGate(func(ctx context.Context, _ int) error {
		return s.limiter.Acquire(ctx)
	})
}

// GenerateBatchEmbeddings embeds every text, continuing past individual
// failures. Blank texts fail locally and never reach the provider.
func (s *Service) GenerateBatchEmbeddings(ctx context.Context, texts []string) BatchResult {
	out := BatchResult{
		Errors:  make(map[int]string),
		Results: make([]embedder.EmbeddingResult, len(texts)),
	}

	pending := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out.Results[i] = embedder.ErrorResult(embedder.ErrEmptyText)
			continue
		}
		pending = append(pending, text)
		positions = append(positions, i)
	}

	if len(pending) > 0 {
		for j, r := range s.client.GenerateBatchEmbeddings(ctx, pending, s.budget()) {
			out.Results[positions[j]] = r
		}
	}

	for i, r := range out.Results {
		if r.OK() {
			out.SuccessCount++
			continue
		}
		out.FailureCount++
		out.Errors[i] = r.Error
	}

	if out.FailureCount > 0 {
		s.logger.Warn().
			Int("total", len(texts)).
			Int("failed", out.FailureCount).
			Msg("Batch embedding completed with failures")
	}
	return out
}

// GetRateLimitStatus reports current budget usage.
func (s *Service) GetRateLimitStatus(ctx context.Context) ratelimit.Status {
	return s.limiter.Status(ctx)
}

// Close releases the client and the rate limit window.
func (s *Service) Close() error {
	return errors.Join(s.client.Close(), s.limiter.Close())
}
