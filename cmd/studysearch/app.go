package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dshills/studysearch/internal/chunker"
	"github.com/dshills/studysearch/internal/config"
	"github.com/dshills/studysearch/internal/embedder"
	"github.com/dshills/studysearch/internal/embedservice"
	"github.com/dshills/studysearch/internal/indexer"
	"github.com/dshills/studysearch/internal/metrics"
	"github.com/dshills/studysearch/internal/ratelimit"
	"github.com/dshills/studysearch/internal/retry"
	"github.com/dshills/studysearch/internal/searcher"
	"github.com/dshills/studysearch/internal/storage"
)

// app holds the wired components shared by the serve, ingest and search
// commands.
type app struct {
	metrics    *metrics.Metrics
	store      storage.Storage
	embeddings *embedservice.Service
	indexer    *indexer.Indexer
	searcher   *searcher.Searcher
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	m := metrics.New()

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	embeddings, err := newEmbeddings(ctx, cfg, logger, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ch, err := chunker.New(cfg.ChunkerConfig())
	if err != nil {
		_ = embeddings.Close()
		_ = store.Close()
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	idx := indexer.New(store, ch, embeddings, indexer.Config{
		Workers: cfg.Ingest.Workers,
		Retry:   cfg.Ingest.Retry.Policy(),
		Metrics: m,
	}, logger)

	bc := cfg.BreakerConfig()
	bc.Logger = logger
	bc.Metrics = m

	sc := cfg.SearcherConfig()
	sc.Breaker = retry.NewBreaker(bc)
	sc.Metrics = m

	logger.Debug().
		Str("storage", cfg.Database.Driver).
		Str("provider", embeddings.Client().Provider().Name()).
		Str("rate_limit_backend", cfg.RateLimit.Backend).
		Msg("Components initialized")

	return &app{
		metrics:    m,
		store:      store,
		embeddings: embeddings,
		indexer:    idx,
		searcher:   searcher.NewSearcher(store, embeddings, sc, logger),
	}, nil
}

// newEmbeddings builds provider -> client -> rate limited service.
func newEmbeddings(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*embedservice.Service, error) {
	provider, err := embedder.NewProvider(ctx, cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	client := embedder.NewClient(provider, cfg.ClientConfig(), logger, m)

	window, err := newWindow(ctx, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	lc := cfg.LimiterConfig()
	lc.Metrics = m
	return embedservice.New(client, ratelimit.New(window, lc, logger), logger), nil
}

// newWindow returns the shared Redis window when configured and a process
// local one otherwise.
func newWindow(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ratelimit.Window, error) {
	if cfg.RateLimit.Backend != config.BackendRedis {
		return ratelimit.NewMemoryWindow(ratelimit.DefaultWindow), nil
	}

	rc := cfg.RedisConfig()
	client, err := ratelimit.ConnectRedis(ctx, rc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rate limit backend: %w", err)
	}
	return ratelimit.NewRedisWindow(client, rc.Key, ratelimit.DefaultWindow), nil
}

func (a *app) Close() error {
	return errors.Join(a.embeddings.Close(), a.store.Close())
}

// openStore opens storage alone for commands that never embed.
func openStore(ctx context.Context) (storage.Storage, error) {
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}
