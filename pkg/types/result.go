package types

import "time"

// ResultKind tags which entity a search result refers to.
type ResultKind string

const (
	KindChunk   ResultKind = "chunk"
	KindLecture ResultKind = "lecture"
	KindConcept ResultKind = "concept"
)

// AllKinds lists every searchable kind in sort order.
var AllKinds = []ResultKind{KindChunk, KindLecture, KindConcept}

// Valid reports whether k is a known result kind.
func (k ResultKind) Valid() bool {
	switch k {
	case KindChunk, KindLecture, KindConcept:
		return true
	}
	return false
}

// SearchFilters narrows the candidate set before ranking.
type SearchFilters struct {
	CourseIDs     []string     `json:"course_ids,omitempty"`
	Category      string       `json:"category,omitempty"`
	DateFrom      *time.Time   `json:"date_from,omitempty"`
	DateTo        *time.Time   `json:"date_to,omitempty"`
	ContentTypes  []ResultKind `json:"content_types,omitempty"`
	MinSimilarity *float64     `json:"min_similarity,omitempty"`
}

// SearchRequest is a natural-language query plus filters, pagination and
// hybrid tuning. Nil pointer fields take the searcher's configured defaults.
type SearchRequest struct {
	Query   string        `json:"query"`
	Filters SearchFilters `json:"filters"`

	Limit  int `json:"limit"`
	Offset int `json:"offset"`

	IncludeKeywordBoost *bool    `json:"include_keyword_boost,omitempty"`
	VectorWeight        *float64 `json:"vector_weight,omitempty"`
}

// Source is the denormalized snapshot of a result's owning entity. It is
// implemented only by ChunkSource, LectureSource and ConceptSource.
type Source interface {
	Base() SourceBase
	sourceKind() ResultKind
}

// SourceBase holds the display fields every result kind carries.
type SourceBase struct {
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
}

// ChunkSource describes a lecture chunk hit.
type ChunkSource struct {
	SourceBase
	LectureID    string `json:"lecture_id"`
	LectureTitle string `json:"lecture_title"`
	ChunkIndex   int    `json:"chunk_index"`
	PageNumber   *int   `json:"page_number,omitempty"`
}

// LectureSource describes a whole-lecture hit.
type LectureSource struct {
	SourceBase
	Category    string     `json:"category,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// ConceptSource describes a concept hit.
type ConceptSource struct {
	SourceBase
	LectureID    string `json:"lecture_id"`
	LectureTitle string `json:"lecture_title"`
}

func (s ChunkSource) Base() SourceBase   { return s.SourceBase }
func (s LectureSource) Base() SourceBase { return s.SourceBase }
func (s ConceptSource) Base() SourceBase { return s.SourceBase }

func (ChunkSource) sourceKind() ResultKind   { return KindChunk }
func (LectureSource) sourceKind() ResultKind { return KindLecture }
func (ConceptSource) sourceKind() ResultKind { return KindConcept }

// SourceKind returns the result kind a source variant belongs to.
func SourceKind(s Source) ResultKind {
	if s == nil {
		return ""
	}
	return s.sourceKind()
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	ID             string     `json:"id"`
	Kind           ResultKind `json:"type"`
	Title          string     `json:"title"`
	Snippet        string     `json:"snippet"`
	Similarity     float64    `json:"similarity"`
	RelevanceScore float64    `json:"relevance_score"`
	Source         Source     `json:"source"`

	// Content is the full text the snippet was cut from. Not serialized.
	Content string `json:"-"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == "" {
		return ErrInvalidResultID
	}

	if sr.RelevanceScore < 0 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Similarity < 0 || sr.Similarity > 1 {
		return ErrInvalidSimilarity
	}

	if sr.Source == nil || SourceKind(sr.Source) != sr.Kind {
		return ErrMissingSource
	}

	return nil
}

// Pagination describes the slice of the ranked list a response carries.
type Pagination struct {
	Offset     int  `json:"offset"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
	PrevOffset *int `json:"prev_offset,omitempty"`
}

// SearchMetadata records which degraded-mode paths a request took.
type SearchMetadata struct {
	HybridSearchUsed        bool `json:"hybrid_search_used"`
	EmbeddingFailed         bool `json:"embedding_failed"`
	FallbackToKeywordSearch bool `json:"fallback_to_keyword_search"`
	VectorSearchFailed      bool `json:"vector_search_failed"`
	KeywordSearchFailed     bool `json:"keyword_search_failed"`
	DegradedMode            bool `json:"degraded_mode"`
	RetryAttempts           int  `json:"retry_attempts"`
	VectorResultCount       int  `json:"vector_result_count"`
	KeywordResultCount      int  `json:"keyword_result_count"`
	CacheHit                bool `json:"cache_hit"`
}

// SearchError is set on a response only when every search path failed.
type SearchError struct {
	Message      string `json:"message"`
	DegradedMode bool   `json:"degraded_mode"`
}

// SearchResponse is the ranked, paginated answer to a SearchRequest.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	Total      int            `json:"total"`
	QueryTime  time.Duration  `json:"query_time_ns"`
	Pagination Pagination     `json:"pagination"`
	Metadata   SearchMetadata `json:"metadata"`
	Error      *SearchError   `json:"error,omitempty"`
}
