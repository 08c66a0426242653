package embedder

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dshills/studysearch/internal/metrics"
	"github.com/dshills/studysearch/internal/retry"
	"github.com/dshills/studysearch/pkg/types"
)

// Batch limits
const (
	DefaultBatchSize  = 100
	DefaultBatchDelay = time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Dimension  int
	BatchSize  int
	BatchDelay time.Duration

	// AsymmetricTasks embeds queries with TaskQuery instead of TaskDocument.
	AsymmetricTasks bool

	// CacheSize is the number of vectors kept in memory; 0 disables caching.
	CacheSize int

	// RequestsPerSecond caps provider calls across all goroutines; 0 is unlimited.
	RequestsPerSecond float64

	Policy retry.Policy
}

// DefaultClientConfig returns the standard client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Dimension:       types.EmbeddingDimension,
		BatchSize:       DefaultBatchSize,
		BatchDelay:      DefaultBatchDelay,
		AsymmetricTasks: true,
		CacheSize:       10000,
	}
}

// Client turns text into fixed-width vectors through a Provider. Every
// provider call runs under the retry engine and no raw provider error
// escapes it.
type Client struct {
	provider Provider
	cfg      ClientConfig
	cache    *Cache
	pacer    *rate.Limiter
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client for provider.
func NewClient(provider Provider, cfg ClientConfig, logger zerolog.Logger, m *metrics.Metrics) *Client {
	if cfg.Dimension <= 0 {
		cfg.Dimension = types.EmbeddingDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.Policy.Classify == nil {
		cfg.Policy.Classify = Classify
	}
	cfg.Policy.Logger = logger
	cfg.Policy.Metrics = m

	c := &Client{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "embedder").Str("provider", provider.Name()).Logger(),
		metrics:  m,
		sleep:    sleepContext,
	}
	if cfg.CacheSize > 0 {
		c.cache = NewCache(cfg.CacheSize)
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Dimension returns the enforced vector width.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// GenerateEmbedding embeds text for indexing.
func (c *Client) GenerateEmbedding(ctx context.Context, text string, opts ...Option) EmbeddingResult {
	o := applyOptions(TaskDocument, opts)
	return c.embed(ctx, text, o.task, o.itemGate(0))
}

// EmbedQuery embeds a search query, using the query task when the client is
// configured for asymmetric retrieval.
func (c *Client) EmbedQuery(ctx context.Context, text string, opts ...Option) EmbeddingResult {
	task := TaskDocument
	if c.cfg.AsymmetricTasks {
		task = TaskQuery
	}
	o := applyOptions(task, opts)
	return c.embed(ctx, text, o.task, o.itemGate(0))
}

// embed serves text from the cache when it can. gate runs only on a cache
// miss, before the provider is called.
func (c *Client) embed(ctx context.Context, text string, task Task, gate func(context.Context) error) EmbeddingResult {
	if strings.TrimSpace(text) == "" {
		return failedResult("embed", ErrEmptyText)
	}

	key := cacheKey(task, text)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return EmbeddingResult{Embedding: v}
		}
	}

	if gate != nil {
		if err := gate(ctx); err != nil {
			return failedResult("embed", err)
		}
	}

	res := retry.Execute(ctx, c.cfg.Policy, "embed", func(ctx context.Context) ([]float32, error) {
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}
		v, err := c.provider.Embed(ctx, text, task)
		if err != nil {
			return nil, err
		}
		return FitDimension(v, c.cfg.Dimension)
	})
	c.metrics.EmbeddingRequest(c.provider.Name(), res.OK())

	if !res.OK() {
		c.logger.Debug().
			Err(res.Err).
			Str("kind", res.Err.Kind.String()).
			Int("attempts", res.Attempts).
			Msg("Embedding failed")
		return resultFromError(res.Err)
	}

	if c.cache != nil {
		c.cache.Set(key, res.Value)
	}
	return EmbeddingResult{Embedding: res.Value, Attempts: res.Attempts}
}

// ItemGate runs before an item is sent to the provider. A non-nil error
// fails that item. Cache hits never reach the gate. Single-text calls pass
// index 0.
type ItemGate func(ctx context.Context, index int) error

type callOptions struct {
	gate ItemGate
	task Task
}

func applyOptions(task Task, opts []Option) callOptions {
	o := callOptions{task: task}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o callOptions) itemGate(index int) func(context.Context) error {
	if o.gate == nil {
		return nil
	}
	return func(ctx context.Context) error { return o.gate(ctx, index) }
}

// Option customizes an embedding call.
type Option func(*callOptions)

// WithItemGate installs a per-item gate, used for rate-limit accounting.
func WithItemGate(gate ItemGate) Option {
	return func(o *callOptions) { o.gate = gate }
}

// WithTask overrides the task the call would otherwise use.
func WithTask(task Task) Option {
	return func(o *callOptions) { o.task = task }
}

// GenerateBatchEmbeddings embeds texts in batches of BatchSize, waiting
// BatchDelay between batches. Items within a batch run concurrently and are
// isolated from each other: one failure never aborts the batch. Results are
// returned in input order.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string, opts ...Option) []EmbeddingResult {
	o := applyOptions(TaskDocument, opts)

	results := make([]EmbeddingResult, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		if start > 0 && c.cfg.BatchDelay > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				for i := start; i < len(texts); i++ {
					results[i] = failedResult("embed", err)
				}
				break
			}
		}

		end := min(start+c.cfg.BatchSize, len(texts))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = c.embed(ctx, texts[i], o.task, o.itemGate(i))
				return nil
			})
		}
		_ = g.Wait()

		c.logger.Debug().
			Int("batch_start", start).
			Int("batch_end", end).
			Int("total", len(texts)).
			Msg("Embedded batch")
	}

	return results
}

// Close releases the provider.
func (c *Client) Close() error {
	return c.provider.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
