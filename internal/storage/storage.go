package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/studysearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrUnsupportedKind is returned for a result kind the store cannot search
	ErrUnsupportedKind = errors.New("unsupported result kind")
)

// Storage persists courses, lectures, chunks and concepts and answers the
// two retrieval primitives the searcher needs: nearest-neighbour search over
// embeddings and ranked full-text search.
type Storage interface {
	// Course and lecture operations
	UpsertCourse(ctx context.Context, course *Course) error
	UpsertLecture(ctx context.Context, lecture *Lecture) error
	GetLecture(ctx context.Context, lectureID string) (*Lecture, error)
	DeleteLecture(ctx context.Context, lectureID string) error

	// Chunk operations
	ReplaceChunks(ctx context.Context, lectureID string, chunks []types.Chunk) error
	ListChunksMissingEmbedding(ctx context.Context, lectureID string) ([]types.Chunk, error)
	UpdateChunkEmbedding(ctx context.Context, chunkID string, vector []float32) error

	// Embedding and concept operations
	UpdateLectureEmbedding(ctx context.Context, lectureID string, vector []float32) error
	UpsertConcept(ctx context.Context, concept *Concept) error
	UpdateConceptEmbedding(ctx context.Context, conceptID string, vector []float32) error

	// Search operations
	SearchVector(ctx context.Context, kind types.ResultKind, vector []float32, limit int, filters Filters) ([]VectorHit, error)
	SearchText(ctx context.Context, kind types.ResultKind, terms []string, limit int, filters Filters) ([]TextHit, error)

	GetStatus(ctx context.Context) (*Status, error)
	Close() error
}

// Course groups lectures
type Course struct {
	ID        string
	Name      string
	Category  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lecture is one source document. Its chunks are owned by it and deleted
// with it.
type Lecture struct {
	ID           string
	CourseID     string
	Title        string
	Description  string
	Content      string
	Category     string
	SourcePath   string
	PublishedAt  *time.Time
	HasEmbedding bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Concept is a named term defined in a lecture.
type Concept struct {
	ID           string
	LectureID    string
	Name         string
	Definition   string
	HasEmbedding bool
	CreatedAt    time.Time
}

// Filters are applied as predicates inside the store queries, before the
// limit, so they shrink the candidate set rather than the result page.
type Filters struct {
	CourseIDs []string
	Category  string
	DateFrom  *time.Time
	DateTo    *time.Time

	// MaxDistance drops vector candidates farther than this cosine distance.
	// Nil disables the check.
	MaxDistance *float64
}

// Hit is the denormalized row behind a search result: the matched entity
// plus the display fields of its lecture and course.
type Hit struct {
	ID      string
	Kind    types.ResultKind
	Title   string
	Content string

	CourseID     string
	CourseName   string
	Category     string
	LectureID    string
	LectureTitle string
	ChunkIndex   int
	PageNumber   *int
	PublishedAt  *time.Time
}

// VectorHit is a nearest-neighbour match. Distance is cosine distance in
// [0, 2].
type VectorHit struct {
	Hit
	Distance float64
}

// TextHit is a full-text match. Score is backend specific, positive, and
// higher is better.
type TextHit struct {
	Hit
	Score float64
}

// Status contains statistics about the index
type Status struct {
	Backend          string
	SchemaVersion    string
	Courses          int
	Lectures         int
	LecturesEmbedded int
	Chunks           int
	ChunksEmbedded   int
	Concepts         int
	IndexSizeMB      float64
	Health           HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

// DistanceFromSimilarity converts a minimum similarity into the maximum
// cosine distance accepted by SearchVector.
func DistanceFromSimilarity(minSimilarity float64) float64 {
	return 2 * (1 - minSimilarity)
}
