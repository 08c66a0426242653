package searcher

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/studysearch/internal/embedder"
	"github.com/dshills/studysearch/internal/metrics"
	"github.com/dshills/studysearch/internal/retry"
	"github.com/dshills/studysearch/internal/storage"
	"github.com/dshills/studysearch/pkg/types"
)

// SearchMode records which ranking path produced a response
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector similarity fused with keyword rank
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // Keyword rank only
	SearchModeFailed  SearchMode = "failed"  // Every path failed
)

// Breaker operation names
const (
	OpVectorSearch  = "vector_search"
	OpKeywordSearch = "keyword_search"
)

// Store is the subset of storage the searcher queries.
type Store interface {
	SearchVector(ctx context.Context, kind types.ResultKind, vector []float32, limit int, filters storage.Filters) ([]storage.VectorHit, error)
	SearchText(ctx context.Context, kind types.ResultKind, terms []string, limit int, filters storage.Filters) ([]storage.TextHit, error)
}

// QueryEmbedder turns a query into a vector. embedservice.Service and
// embedder.Client both satisfy it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) embedder.EmbeddingResult
}

// Config tunes ranking, pagination and resilience.
type Config struct {
	DefaultLimit  int
	AllowedLimits []int

	VectorWeight  float64
	MinSimilarity float64

	// Each kind fetches min(MaxCandidates, (offset+limit) × CandidateMultiplier)
	// candidates per path.
	CandidateMultiplier int
	MaxCandidates       int

	// QueryTimeout bounds each store attempt.
	QueryTimeout time.Duration

	// CacheSize of 0 disables the response cache.
	CacheSize int
	CacheTTL  time.Duration

	Retry   retry.Policy
	Breaker *retry.Breaker
	Metrics *metrics.Metrics

	Now func() time.Time
}

// DefaultConfig returns the standard search configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:        10,
		AllowedLimits:       []int{10, 25, 50},
		VectorWeight:        0.7,
		MinSimilarity:       0.5,
		CandidateMultiplier: 3,
		MaxCandidates:       500,
		QueryTimeout:        5 * time.Second,
		CacheSize:           1000,
		CacheTTL:            5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.AllowedLimits) == 0 {
		c.AllowedLimits = d.AllowedLimits
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = c.AllowedLimits[0]
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = d.CandidateMultiplier
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Searcher coordinates query embedding, vector search and keyword search,
// and degrades to whichever path still works.
type Searcher struct {
	store    Store
	embedder QueryEmbedder
	cfg      Config
	policy   retry.Policy
	cache    *responseCache
	logger   zerolog.Logger
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store Store, emb QueryEmbedder, cfg Config, logger zerolog.Logger) *Searcher {
	cfg = cfg.withDefaults()
	logger = logger.With().Str("component", "searcher").Logger()

	policy := cfg.Retry
	policy.Classify = storage.Classify
	policy.AttemptTimeout = cfg.QueryTimeout
	policy.Breaker = cfg.Breaker
	policy.Logger = logger
	policy.Metrics = cfg.Metrics

	return &Searcher{
		store:    store,
		embedder: emb,
		cfg:      cfg,
		policy:   policy,
		cache:    newResponseCache(cfg.CacheSize, cfg.CacheTTL, cfg.Now),
		logger:   logger,
	}
}

// params is a validated request with defaults resolved.
type params struct {
	query         string
	terms         []string
	highlight     []string
	filters       types.SearchFilters
	kinds         []types.ResultKind
	limit         int
	offset        int
	boost         bool
	vectorWeight  float64
	minSimilarity float64
}

// Search runs a hybrid query. The error is non-nil only when the request
// fails validation; sub-system failures are reported in the response
// metadata instead.
func (s *Searcher) Search(ctx context.Context, req types.SearchRequest) (*types.SearchResponse, error) {
	startTime := s.cfg.Now()

	p, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	key := computeQueryHash(p)
	if cached, ok := s.cache.get(key); ok {
		cached.Metadata.CacheHit = true
		cached.QueryTime = s.cfg.Now().Sub(startTime)
		return cached, nil
	}

	resp, mode := s.search(ctx, p)
	resp.QueryTime = s.cfg.Now().Sub(startTime)
	s.cfg.Metrics.SearchCompleted(string(mode), resp.QueryTime)

	if !resp.Metadata.DegradedMode {
		s.cache.put(key, resp)
	}

	s.logger.Debug().
		Str("mode", string(mode)).
		Int("total", resp.Total).
		Bool("degraded", resp.Metadata.DegradedMode).
		Dur("duration", resp.QueryTime).
		Msg("Search completed")

	return resp, nil
}

// vectorLeg is the outcome of embedding the query and searching vectors.
type vectorLeg struct {
	hits            []storage.VectorHit
	embeddingFailed bool
	searchFailed    bool
	retries         int
	err             error
}

func (l vectorLeg) ok() bool { return l.err == nil }

// keywordLeg is the outcome of the keyword search.
type keywordLeg struct {
	hits    []storage.TextHit
	failed  bool
	retries int
	err     error
}

func (s *Searcher) search(ctx context.Context, p params) (*types.SearchResponse, SearchMode) {
	var vec vectorLeg
	var kw keywordLeg

	// Keyword rank is only needed up front when it contributes to the score.
	// Without the boost it runs only if the vector path fails.
	var g errgroup.Group
	g.Go(func() error {
		vec = s.runVectorSearch(ctx, p)
		return nil
	})
	if p.boost {
		g.Go(func() error {
			kw = s.runKeywordSearch(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	if !p.boost && !vec.ok() {
		kw = s.runKeywordSearch(ctx, p)
	}

	meta := types.SearchMetadata{
		EmbeddingFailed:     vec.embeddingFailed,
		VectorSearchFailed:  vec.searchFailed,
		KeywordSearchFailed: kw.failed,
		RetryAttempts:       vec.retries + kw.retries,
		VectorResultCount:   len(vec.hits),
		KeywordResultCount:  len(kw.hits),
	}

	var mode SearchMode
	var fused []candidate
	switch {
	case vec.ok() && p.boost && !kw.failed:
		mode = SearchModeHybrid
		meta.HybridSearchUsed = true
		fused = fuseHybrid(vec.hits, kw.hits, p.vectorWeight)
	case vec.ok():
		mode = SearchModeVector
		fused = fuseVectorOnly(vec.hits)
	case !kw.failed:
		mode = SearchModeKeyword
		meta.FallbackToKeywordSearch = true
		fused = fuseKeywordOnly(kw.hits)
	default:
		mode = SearchModeFailed
	}
	meta.DegradedMode = vec.embeddingFailed || vec.searchFailed || kw.failed

	if mode == SearchModeFailed {
		s.logger.Error().
			AnErr("vector_error", vec.err).
			AnErr("keyword_error", kw.err).
			Msg("All search paths failed")
		return &types.SearchResponse{
			Results:    []types.SearchResult{},
			Pagination: paginate(0, p.offset, p.limit),
			Metadata:   meta,
			Error: &types.SearchError{
				Message:      fmt.Sprintf("search unavailable: vector: %v; keyword: %v", vec.err, kw.err),
				DegradedMode: true,
			},
		}, mode
	}

	if meta.DegradedMode {
		s.logger.Warn().
			Str("mode", string(mode)).
			Bool("embedding_failed", vec.embeddingFailed).
			Bool("vector_failed", vec.searchFailed).
			Bool("keyword_failed", kw.failed).
			Msg("Search degraded")
	}

	sortCandidates(fused)

	page := pageSlice(fused, p.offset, p.limit)
	results := make([]types.SearchResult, len(page))
	for i, c := range page {
		results[i] = c.toResult(GenerateSnippet(c.hit.Content, p.highlight, DefaultSnippetLength))
	}

	return &types.SearchResponse{
		Results:    results,
		Total:      len(fused),
		Pagination: paginate(len(fused), p.offset, p.limit),
		Metadata:   meta,
	}, mode
}

// runVectorSearch embeds the query and searches every enabled kind.
func (s *Searcher) runVectorSearch(ctx context.Context, p params) vectorLeg {
	var leg vectorLeg

	emb := s.embedder.EmbedQuery(ctx, p.query)
	if emb.Attempts > 1 {
		leg.retries += emb.Attempts - 1
	}
	if !emb.OK() {
		leg.embeddingFailed = true
		leg.err = fmt.Errorf("embed query: %s", emb.Error)
		return leg
	}

	filters := s.storeFilters(p)
	maxDistance := storage.DistanceFromSimilarity(p.minSimilarity)
	filters.MaxDistance = &maxDistance

	limit := s.candidateLimit(p)
	perKind := make([][]storage.VectorHit, len(p.kinds))
	attempts := make([]int, len(p.kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range p.kinds {
		g.Go(func() error {
			res := retry.Execute(gctx, s.policy, OpVectorSearch, func(ctx context.Context) ([]storage.VectorHit, error) {
				return s.store.SearchVector(ctx, kind, emb.Embedding, limit, filters)
			})
			attempts[i] = res.Attempts
			if !res.OK() {
				return res.Err
			}
			perKind[i] = res.Value
			return nil
		})
	}
	err := g.Wait()

	for _, a := range attempts {
		if a > 1 {
			leg.retries += a - 1
		}
	}
	if err != nil {
		leg.searchFailed = true
		leg.err = err
		return leg
	}

	for _, hits := range perKind {
		for _, h := range hits {
			if distanceToSimilarity(h.Distance) < p.minSimilarity {
				continue
			}
			leg.hits = append(leg.hits, h)
		}
	}
	return leg
}

// runKeywordSearch ranks every enabled kind by lexical relevance. An empty
// term list yields no candidates and is not a failure.
func (s *Searcher) runKeywordSearch(ctx context.Context, p params) keywordLeg {
	var leg keywordLeg
	if len(p.terms) == 0 {
		return leg
	}

	filters := s.storeFilters(p)
	limit := s.candidateLimit(p)
	perKind := make([][]storage.TextHit, len(p.kinds))
	attempts := make([]int, len(p.kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range p.kinds {
		g.Go(func() error {
			res := retry.Execute(gctx, s.policy, OpKeywordSearch, func(ctx context.Context) ([]storage.TextHit, error) {
				return s.store.SearchText(ctx, kind, p.terms, limit, filters)
			})
			attempts[i] = res.Attempts
			if !res.OK() {
				return res.Err
			}
			perKind[i] = res.Value
			return nil
		})
	}
	err := g.Wait()

	for _, a := range attempts {
		if a > 1 {
			leg.retries += a - 1
		}
	}
	if err != nil {
		leg.failed = true
		leg.err = err
		return leg
	}

	for _, hits := range perKind {
		leg.hits = append(leg.hits, hits...)
	}
	return leg
}

func (s *Searcher) storeFilters(p params) storage.Filters {
	return storage.Filters{
		CourseIDs: p.filters.CourseIDs,
		Category:  p.filters.Category,
		DateFrom:  p.filters.DateFrom,
		DateTo:    p.filters.DateTo,
	}
}

func (s *Searcher) candidateLimit(p params) int {
	return min(s.cfg.MaxCandidates, (p.offset+p.limit)*s.cfg.CandidateMultiplier)
}

// validateRequest checks the request before any I/O and resolves defaults.
func (s *Searcher) validateRequest(req types.SearchRequest) (params, error) {
	p := params{
		query:         strings.TrimSpace(req.Query),
		filters:       req.Filters,
		offset:        req.Offset,
		limit:         req.Limit,
		boost:         true,
		vectorWeight:  s.cfg.VectorWeight,
		minSimilarity: s.cfg.MinSimilarity,
	}

	if p.query == "" {
		return p, &types.ValidationError{Field: "query", Message: "cannot be empty"}
	}

	if p.limit == 0 {
		p.limit = s.cfg.DefaultLimit
	}
	if !slices.Contains(s.cfg.AllowedLimits, p.limit) {
		return p, &types.ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("must be one of %v, got %d", s.cfg.AllowedLimits, req.Limit),
		}
	}

	if p.offset < 0 {
		return p, &types.ValidationError{Field: "offset", Message: "must be non-negative"}
	}

	if req.IncludeKeywordBoost != nil {
		p.boost = *req.IncludeKeywordBoost
	}

	if req.VectorWeight != nil {
		p.vectorWeight = *req.VectorWeight
	}
	if p.vectorWeight < 0 || p.vectorWeight > 1 {
		return p, &types.ValidationError{Field: "vector_weight", Message: "must be between 0 and 1"}
	}

	if req.Filters.MinSimilarity != nil {
		p.minSimilarity = *req.Filters.MinSimilarity
	}
	if p.minSimilarity < 0 || p.minSimilarity > 1 {
		return p, &types.ValidationError{Field: "min_similarity", Message: "must be between 0 and 1"}
	}

	if req.Filters.DateFrom != nil && req.Filters.DateTo != nil && req.Filters.DateFrom.After(*req.Filters.DateTo) {
		return p, &types.ValidationError{Field: "date_from", Message: "must not be after date_to"}
	}

	p.kinds = types.AllKinds
	if len(req.Filters.ContentTypes) > 0 {
		p.kinds = nil
		for _, k := range types.AllKinds {
			if slices.Contains(req.Filters.ContentTypes, k) {
				p.kinds = append(p.kinds, k)
			}
		}
		for _, k := range req.Filters.ContentTypes {
			if !k.Valid() {
				return p, &types.ValidationError{Field: "content_types", Message: fmt.Sprintf("unknown type %q", k)}
			}
		}
	}

	p.terms = ExtractTerms(p.query)
	p.highlight = p.terms
	if len(p.highlight) == 0 {
		p.highlight = strings.Fields(strings.ToLower(p.query))
	}

	return p, nil
}

// InvalidateCache drops every cached response. Callers invoke it after
// ingestion changes the index.
func (s *Searcher) InvalidateCache() {
	s.cache.purge()
}
