package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/studysearch/internal/retry"
)

// Common errors
var (
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrNoProviderEnabled   = errors.New("no embedding provider configured")
	ErrEmptyResponse       = errors.New("provider returned no embedding")
)

// Task tells providers that distinguish them whether text is being indexed
// or used as a query.
type Task int

const (
	TaskDocument Task = iota
	TaskQuery
)

func (t Task) String() string {
	if t == TaskQuery {
		return "query"
	}
	return "document"
}

// Provider is a remote or local embedding model.
type Provider interface {
	// Embed returns the provider's raw vector for text
	Embed(ctx context.Context, text string, task Task) ([]float32, error)

	// Name returns the provider name
	Name() string

	// Model returns the model name
	Model() string

	// Dimension returns the dimension the provider is asked to produce
	Dimension() int

	// Close releases any resources held by the provider
	Close() error
}

// EmbeddingResult is either a populated vector with an empty Error, or a nil
// vector with a human-readable Error and its classification.
type EmbeddingResult struct {
	Embedding []float32
	Error     string
	Kind      retry.ErrorKind
	Permanent bool
	Attempts  int
}

// OK reports whether the result carries a vector.
func (r EmbeddingResult) OK() bool {
	return r.Error == "" && r.Embedding != nil
}

func resultFromError(rerr *retry.Error) EmbeddingResult {
	return EmbeddingResult{
		Error:     rerr.Error(),
		Kind:      rerr.Kind,
		Permanent: rerr.Permanent(),
		Attempts:  rerr.Attempts,
	}
}

// failedResult classifies err and builds a result for it without calling
// the provider.
func failedResult(op string, err error) EmbeddingResult {
	c := Classify(err)
	return resultFromError(&retry.Error{Op: op, Kind: c.Kind, Err: err})
}

// ErrorResult builds a classified failure result for err.
func ErrorResult(err error) EmbeddingResult {
	return failedResult("embed", err)
}

// FitDimension enforces the vector width contract. Longer vectors are
// truncated and renormalized; shorter ones cannot be repaired.
func FitDimension(v []float32, dim int) ([]float32, error) {
	switch {
	case len(v) == 0:
		return nil, ErrEmptyResponse
	case len(v) == dim:
		return v, nil
	case len(v) < dim:
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	return NormalizeVector(v[:dim]), nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	result := make([]float32, len(v))
	if sum == 0 {
		copy(result, v)
		return result
	}

	norm := math.Sqrt(sum)
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}

	return result
}

// Cache provides in-memory LRU caching of vectors by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate the entry
func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a copy of v
func (c *Cache) Set(key string, v []float32) {
	stored := make([]float32, len(v))
	copy(stored, v)
	c.cache.Add(key, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func cacheKey(task Task, text string) string {
	return ComputeHash(task.String() + "\x00" + text)
}
