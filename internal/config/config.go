package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dshills/studysearch/internal/chunker"
	"github.com/dshills/studysearch/internal/embedder"
	"github.com/dshills/studysearch/internal/ratelimit"
	"github.com/dshills/studysearch/internal/retry"
	"github.com/dshills/studysearch/internal/searcher"
	"github.com/dshills/studysearch/internal/storage"
	"github.com/dshills/studysearch/pkg/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STUDYSEARCH_"

// DefaultDBPath is the SQLite file used when none is configured
const DefaultDBPath = "~/.studysearch/studysearch.db"

// Rate limit backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or postgres
	Path     string `yaml:"path"`
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // gemini, openai, local; empty detects from the key
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Dimension         int           `yaml:"dimension"`
	BatchSize         int           `yaml:"batch_size"`
	BatchDelay        time.Duration `yaml:"batch_delay"`
	Timeout           time.Duration `yaml:"timeout"`
	AsymmetricTasks   *bool         `yaml:"asymmetric_tasks"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Retry             RetryConfig   `yaml:"retry"`
}

type RateLimitConfig struct {
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	WarnThreshold     float64 `yaml:"warn_threshold"`
	Backend           string  `yaml:"backend"`
	RedisAddr         string  `yaml:"redis_addr"`
	RedisPassword     string  `yaml:"redis_password"`
	RedisDB           int     `yaml:"redis_db"`
	RedisKey          string  `yaml:"redis_key"`
}

type ChunkingConfig struct {
	ChunkSizeTokens    int     `yaml:"chunk_size_tokens"`
	OverlapTokens      int     `yaml:"overlap_tokens"`
	TokensPerWord      float64 `yaml:"tokens_per_word"`
	MinChunkSizeTokens *int    `yaml:"min_chunk_size_tokens"`
}

type SearchConfig struct {
	DefaultLimit        int           `yaml:"default_limit"`
	AllowedLimits       []int         `yaml:"allowed_limits"`
	VectorWeight        *float64      `yaml:"vector_weight"`
	MinSimilarity       *float64      `yaml:"min_similarity"`
	CandidateMultiplier int           `yaml:"candidate_multiplier"`
	MaxCandidates       int           `yaml:"max_candidates"`
	QueryTimeout        time.Duration `yaml:"query_timeout"`
	CacheSize           *int          `yaml:"cache_size"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	Retry               RetryConfig   `yaml:"retry"`
	Breaker             BreakerConfig `yaml:"breaker"`
}

type IngestConfig struct {
	Workers int         `yaml:"workers"`
	Retry   RetryConfig `yaml:"retry"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// RetryConfig is the serializable part of a retry.Policy.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	Jitter         *float64      `yaml:"jitter"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// Load reads configuration from an optional .env file, an optional YAML
// file and STUDYSEARCH_* environment variables, in increasing precedence.
// An empty path falls back to STUDYSEARCH_CONFIG and then to no file.
func Load(path string) (*Config, error) {
	if err := loadDotenv(".env"); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}

	cfg := &Config{}
	if path != "" {
		if err := readFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenv loads file into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotenv(file string) error {
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", file, err)
	}
	return nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	db := &cfg.Database
	if db.Driver == "" {
		db.Driver = storage.BackendSQLite
	}
	if db.Path == "" {
		db.Path = DefaultDBPath
	}
	db.Path = expandHome(db.Path)
	if db.MaxConns <= 0 {
		db.MaxConns = 10
	}

	emb := &cfg.Embedding
	if emb.Dimension == 0 {
		emb.Dimension = types.EmbeddingDimension
	}
	if emb.BatchSize == 0 {
		emb.BatchSize = embedder.DefaultBatchSize
	}
	if emb.BatchDelay == 0 {
		emb.BatchDelay = embedder.DefaultBatchDelay
	}
	if emb.Timeout == 0 {
		emb.Timeout = embedder.DefaultHTTPTimeout
	}
	if emb.AsymmetricTasks == nil {
		emb.AsymmetricTasks = ptr(true)
	}
	if emb.CacheSize == 0 {
		emb.CacheSize = 10000
	}
	emb.Retry.applyDefaults(embedderRetryDefaults)

	rl := &cfg.RateLimit
	if rl.RequestsPerMinute == 0 {
		rl.RequestsPerMinute = 1000
	}
	if rl.WarnThreshold == 0 {
		rl.WarnThreshold = ratelimit.DefaultWarnThreshold
	}
	if rl.Backend == "" {
		rl.Backend = BackendMemory
	}
	if rl.RedisKey == "" {
		rl.RedisKey = "studysearch:embedding:requests"
	}

	ch := &cfg.Chunking
	if ch.ChunkSizeTokens == 0 {
		ch.ChunkSizeTokens = chunker.DefaultChunkSizeTokens
	}
	if ch.OverlapTokens == 0 {
		ch.OverlapTokens = chunker.DefaultOverlapTokens
	}
	if ch.TokensPerWord == 0 {
		ch.TokensPerWord = chunker.DefaultTokensPerWord
	}
	if ch.MinChunkSizeTokens == nil {
		ch.MinChunkSizeTokens = ptr(chunker.DefaultMinChunkSizeTokens)
	}

	defaults := searcher.DefaultConfig()
	s := &cfg.Search
	if s.DefaultLimit == 0 {
		s.DefaultLimit = defaults.DefaultLimit
	}
	if len(s.AllowedLimits) == 0 {
		s.AllowedLimits = defaults.AllowedLimits
	}
	if s.VectorWeight == nil {
		s.VectorWeight = ptr(defaults.VectorWeight)
	}
	if s.MinSimilarity == nil {
		s.MinSimilarity = ptr(defaults.MinSimilarity)
	}
	if s.CandidateMultiplier == 0 {
		s.CandidateMultiplier = defaults.CandidateMultiplier
	}
	if s.MaxCandidates == 0 {
		s.MaxCandidates = defaults.MaxCandidates
	}
	if s.QueryTimeout == 0 {
		s.QueryTimeout = defaults.QueryTimeout
	}
	if s.CacheSize == nil {
		s.CacheSize = ptr(defaults.CacheSize)
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = defaults.CacheTTL
	}
	s.Retry.applyDefaults(searchRetryDefaults)
	if s.Breaker.Threshold == 0 {
		s.Breaker.Threshold = 5
	}
	if s.Breaker.Window == 0 {
		s.Breaker.Window = time.Minute
	}
	if s.Breaker.Cooldown == 0 {
		s.Breaker.Cooldown = 30 * time.Second
	}

	cfg.Ingest.Retry.applyDefaults(searchRetryDefaults)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

var (
	embedderRetryDefaults = RetryConfig{
		MaxAttempts: retry.DefaultMaxAttempts,
		BaseDelay:   retry.DefaultBaseDelay,
		MaxDelay:    retry.DefaultMaxDelay,
		Multiplier:  retry.DefaultMultiplier,
		Jitter:      ptr(0.1),
	}
	searchRetryDefaults = RetryConfig{
		MaxAttempts: retry.DefaultMaxAttempts,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  retry.DefaultMultiplier,
		Jitter:      ptr(0.1),
	}
)

func (r *RetryConfig) applyDefaults(d RetryConfig) {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	if r.BaseDelay == 0 {
		r.BaseDelay = d.BaseDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = d.MaxDelay
	}
	if r.Multiplier == 0 {
		r.Multiplier = d.Multiplier
	}
	if r.Jitter == nil {
		r.Jitter = d.Jitter
	}
	if r.AttemptTimeout == 0 {
		r.AttemptTimeout = d.AttemptTimeout
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch strings.ToLower(c.Database.Driver) {
	case storage.BackendSQLite:
		if c.Database.Path == "" {
			fail("database.path is required for sqlite")
		}
	case storage.BackendPostgres, "postgresql", "pgvector":
		if c.Database.URL == "" {
			fail("database.url is required for postgres")
		}
	default:
		fail("unsupported database.driver %q", c.Database.Driver)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "", embedder.ProviderGemini, embedder.ProviderOpenAI, embedder.ProviderLocal:
	default:
		fail("unsupported embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension != types.EmbeddingDimension {
		fail("embedding.dimension must be %d, got %d", types.EmbeddingDimension, c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize < 1 {
		fail("embedding.batch_size must be positive")
	}
	if c.Embedding.RequestsPerSecond < 0 {
		fail("embedding.requests_per_second must not be negative")
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		fail("rate_limit.requests_per_minute must not be negative")
	}
	if c.RateLimit.WarnThreshold <= 0 || c.RateLimit.WarnThreshold > 1 {
		fail("rate_limit.warn_threshold must be in (0, 1]")
	}
	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RateLimit.RedisAddr == "" {
			fail("rate_limit.redis_addr is required for the redis backend")
		}
	default:
		fail("unsupported rate_limit.backend %q", c.RateLimit.Backend)
	}

	if err := c.ChunkerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: chunking: %w", ErrInvalidConfig, err))
	}

	s := c.Search
	if !slices.Contains(s.AllowedLimits, s.DefaultLimit) {
		fail("search.default_limit %d is not in allowed_limits %v", s.DefaultLimit, s.AllowedLimits)
	}
	if *s.VectorWeight < 0 || *s.VectorWeight > 1 {
		fail("search.vector_weight must be in [0, 1]")
	}
	if *s.MinSimilarity < 0 || *s.MinSimilarity > 1 {
		fail("search.min_similarity must be in [0, 1]")
	}
	if s.CandidateMultiplier < 1 || s.MaxCandidates < 1 {
		fail("search.candidate_multiplier and search.max_candidates must be positive")
	}

	for name, r := range map[string]RetryConfig{"embedding.retry": c.Embedding.Retry, "search.retry": c.Search.Retry, "ingest.retry": c.Ingest.Retry} {
		if r.MaxAttempts < 1 {
			fail("%s.max_attempts must be positive", name)
		}
		if r.Jitter != nil && (*r.Jitter < 0 || *r.Jitter > 1) {
			fail("%s.jitter must be in [0, 1]", name)
		}
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		fail("log.level %q: %v", c.Log.Level, err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		fail("log.format must be console or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// StorageOptions returns the options for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:   c.Database.Driver,
		Path:     c.Database.Path,
		URL:      c.Database.URL,
		MaxConns: c.Database.MaxConns,
	}
}

// ProviderConfig returns the embedding provider settings.
func (c *Config) ProviderConfig() embedder.ProviderConfig {
	return embedder.ProviderConfig{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		Timeout:   c.Embedding.Timeout,
	}
}

// ClientConfig returns the embedding client settings.
func (c *Config) ClientConfig() embedder.ClientConfig {
	return embedder.ClientConfig{
		Dimension:         c.Embedding.Dimension,
		BatchSize:         c.Embedding.BatchSize,
		BatchDelay:        c.Embedding.BatchDelay,
		AsymmetricTasks:   *c.Embedding.AsymmetricTasks,
		CacheSize:         c.Embedding.CacheSize,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
		Policy:            c.Embedding.Retry.Policy(),
	}
}

// LimiterConfig returns the request budget settings.
func (c *Config) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		WarnThreshold:     c.RateLimit.WarnThreshold,
	}
}

// RedisConfig returns the shared window connection settings.
func (c *Config) RedisConfig() ratelimit.RedisConfig {
	return ratelimit.RedisConfig{
		Addr:     c.RateLimit.RedisAddr,
		Password: c.RateLimit.RedisPassword,
		DB:       c.RateLimit.RedisDB,
		Key:      c.RateLimit.RedisKey,
	}
}

// ChunkerConfig returns the chunk sizing settings.
func (c *Config) ChunkerConfig() chunker.Config {
	cfg := chunker.Config{
		ChunkSizeTokens: c.Chunking.ChunkSizeTokens,
		OverlapTokens:   c.Chunking.OverlapTokens,
		TokensPerWord:   c.Chunking.TokensPerWord,
	}
	if c.Chunking.MinChunkSizeTokens != nil {
		cfg.MinChunkSizeTokens = *c.Chunking.MinChunkSizeTokens
	}
	return cfg
}

// SearcherConfig returns the searcher settings. The caller attaches the
// breaker and metrics.
func (c *Config) SearcherConfig() searcher.Config {
	s := c.Search
	return searcher.Config{
		DefaultLimit:        s.DefaultLimit,
		AllowedLimits:       slices.Clone(s.AllowedLimits),
		VectorWeight:        *s.VectorWeight,
		MinSimilarity:       *s.MinSimilarity,
		CandidateMultiplier: s.CandidateMultiplier,
		MaxCandidates:       s.MaxCandidates,
		QueryTimeout:        s.QueryTimeout,
		CacheSize:           *s.CacheSize,
		CacheTTL:            s.CacheTTL,
		Retry:               s.Retry.Policy(),
	}
}

// BreakerConfig returns the search circuit breaker settings.
func (c *Config) BreakerConfig() retry.BreakerConfig {
	return retry.BreakerConfig{
		Threshold: c.Search.Breaker.Threshold,
		Window:    c.Search.Breaker.Window,
		Cooldown:  c.Search.Breaker.Cooldown,
	}
}

// Policy converts r to a retry policy without classifier or hooks.
func (r RetryConfig) Policy() retry.Policy {
	p := retry.Policy{
		MaxAttempts:    r.MaxAttempts,
		BaseDelay:      r.BaseDelay,
		MaxDelay:       r.MaxDelay,
		Multiplier:     r.Multiplier,
		AttemptTimeout: r.AttemptTimeout,
	}
	if r.Jitter != nil {
		p.Jitter = *r.Jitter
	}
	return p
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func ptr[T any](v T) *T {
	return &v
}
