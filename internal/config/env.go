package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/studysearch/internal/embedder"
)

// envBinding maps one STUDYSEARCH_* variable onto a config field.
type envBinding struct {
	name string
	set  func(cfg *Config, value string) error
}

var envBindings = []envBinding{
	{"DB_DRIVER", func(c *Config, v string) error { c.Database.Driver = v; return nil }},
	{"DB_PATH", func(c *Config, v string) error { c.Database.Path = v; return nil }},
	{"DB_URL", func(c *Config, v string) error { c.Database.URL = v; return nil }},
	{"DB_MAX_CONNS", func(c *Config, v string) error { return parseInt32(v, &c.Database.MaxConns) }},

	{"EMBEDDING_PROVIDER", func(c *Config, v string) error { c.Embedding.Provider = v; return nil }},
	{"EMBEDDING_MODEL", func(c *Config, v string) error { c.Embedding.Model = v; return nil }},
	{"EMBEDDING_API_KEY", func(c *Config, v string) error { c.Embedding.APIKey = v; return nil }},
	{"EMBEDDING_BASE_URL", func(c *Config, v string) error { c.Embedding.BaseURL = v; return nil }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config, v string) error { return parseInt(v, &c.Embedding.BatchSize) }},
	{"EMBEDDING_BATCH_DELAY", func(c *Config, v string) error { return parseDuration(v, &c.Embedding.BatchDelay) }},
	{"EMBEDDING_TIMEOUT", func(c *Config, v string) error { return parseDuration(v, &c.Embedding.Timeout) }},
	{"EMBEDDING_RPS", func(c *Config, v string) error { return parseFloat(v, &c.Embedding.RequestsPerSecond) }},
	{"EMBEDDING_ASYMMETRIC_TASKS", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Embedding.AsymmetricTasks = &b
		return nil
	}},

	{"RATE_LIMIT_RPM", func(c *Config, v string) error { return parseInt(v, &c.RateLimit.RequestsPerMinute) }},
	{"RATE_LIMIT_BACKEND", func(c *Config, v string) error { c.RateLimit.Backend = strings.ToLower(v); return nil }},
	{"REDIS_ADDR", func(c *Config, v string) error { c.RateLimit.RedisAddr = v; return nil }},
	{"REDIS_PASSWORD", func(c *Config, v string) error { c.RateLimit.RedisPassword = v; return nil }},
	{"REDIS_KEY", func(c *Config, v string) error { c.RateLimit.RedisKey = v; return nil }},

	{"SEARCH_VECTOR_WEIGHT", func(c *Config, v string) error {
		c.Search.VectorWeight = new(float64)
		return parseFloat(v, c.Search.VectorWeight)
	}},
	{"SEARCH_MIN_SIMILARITY", func(c *Config, v string) error {
		c.Search.MinSimilarity = new(float64)
		return parseFloat(v, c.Search.MinSimilarity)
	}},
	{"SEARCH_QUERY_TIMEOUT", func(c *Config, v string) error { return parseDuration(v, &c.Search.QueryTimeout) }},
	{"SEARCH_CACHE_TTL", func(c *Config, v string) error { return parseDuration(v, &c.Search.CacheTTL) }},

	{"INGEST_WORKERS", func(c *Config, v string) error { return parseInt(v, &c.Ingest.Workers) }},

	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil }},
	{"METRICS_ADDR", func(c *Config, v string) error { c.Metrics.Addr = v; return nil }},
}

// applyEnv overlays STUDYSEARCH_* variables onto cfg. Provider specific
// key variables are consulted only when no key was configured.
func applyEnv(cfg *Config) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := os.LookupEnv(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, b.name, err))
		}
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.Provider, cfg.Embedding.APIKey = providerAPIKey(cfg.Embedding.Provider)
	}
	return errors.Join(errs...)
}

// providerAPIKey returns the conventional key variable for provider. With
// no provider named, a Gemini key wins over an OpenAI key and the provider
// is resolved from whichever key was found.
func providerAPIKey(provider string) (string, string) {
	switch strings.ToLower(provider) {
	case embedder.ProviderGemini:
		return provider, os.Getenv("GEMINI_API_KEY")
	case embedder.ProviderOpenAI:
		return provider, os.Getenv("OPENAI_API_KEY")
	case "":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return embedder.ProviderGemini, key
		}
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return embedder.ProviderOpenAI, key
		}
		return "", ""
	default:
		return provider, ""
	}
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseInt32(v string, dst *int32) error {
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return err
	}
	*dst = int32(n)
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseDuration(v string, dst *time.Duration) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
