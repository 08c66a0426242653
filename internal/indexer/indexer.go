package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/studysearch/internal/chunker"
	"github.com/dshills/studysearch/internal/embedder"
	"github.com/dshills/studysearch/internal/embedservice"
	"github.com/dshills/studysearch/internal/metrics"
	"github.com/dshills/studysearch/internal/retry"
	"github.com/dshills/studysearch/internal/storage"
	"github.com/dshills/studysearch/pkg/types"
)

// ErrIngestInProgress is returned when another file or directory ingest
// holds the lock.
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Embedder is the embedding surface the indexer needs. *embedservice.Service
// satisfies it.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) embedder.EmbeddingResult
	GenerateBatchEmbeddings(ctx context.Context, texts []string) embedservice.BatchResult
}

// Config contains configuration for the indexer
type Config struct {
	Workers int // Number of concurrent file workers (default: runtime.NumCPU())

	// Retry wraps storage writes; its Classify is always storage.Classify.
	Retry   retry.Policy
	Metrics *metrics.Metrics
}

// ConceptInput is a named definition attached to a lecture.
type ConceptInput struct {
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
}

// LectureInput is one lecture ready for ingestion.
type LectureInput struct {
	CourseID    string
	CourseName  string
	Category    string
	LectureID   string
	Title       string
	Description string
	SourcePath  string
	PublishedAt *time.Time
	Pages       []chunker.Page
	Concepts    []ConceptInput
}

// IngestStats reports what a single lecture ingest stored. Embedding
// failures are counted here and do not fail the ingest.
type IngestStats struct {
	LectureID        string
	Chunks           int
	ChunksEmbedded   int
	ChunksFailed     int
	Concepts         int
	ConceptsEmbedded int
	LectureEmbedded  bool
	ErrorMessages    []string
	Duration         time.Duration
}

// Statistics contains statistics about a directory ingest
type Statistics struct {
	FilesIngested  int
	FilesFailed    int
	ChunksCreated  int
	ChunksEmbedded int
	ChunksFailed   int
	Duration       time.Duration
	ErrorMessages  []string
}

// Indexer coordinates the ingestion pipeline: load -> chunk -> store -> embed
type Indexer struct {
	storage  storage.Storage
	chunker  *chunker.Chunker
	embedder Embedder
	policy   retry.Policy
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	workers int
	lock    IngestLock
}

// New creates a new Indexer instance
func New(store storage.Storage, ch *chunker.Chunker, emb Embedder, cfg Config, logger zerolog.Logger) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	logger = logger.With().Str("component", "indexer").Logger()

	policy := cfg.Retry
	policy.Classify = storage.Classify
	policy.Logger = logger
	policy.Metrics = cfg.Metrics

	return &Indexer{
		storage:  store,
		chunker:  ch,
		embedder: emb,
		policy:   policy,
		metrics:  cfg.Metrics,
		logger:   logger,
		workers:  cfg.Workers,
	}
}

// write runs a storage mutation under the retry engine so lock contention
// and dropped connections do not fail an ingest.
func (idx *Indexer) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	res := retry.Execute(ctx, idx.policy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return res.Error()
}

// IngestLecture stores a lecture with its chunks and concepts and embeds
// them. Chunks are replaced atomically, so re-ingesting a lecture leaves no
// stale chunks behind.
func (idx *Indexer) IngestLecture(ctx context.Context, in LectureInput) (*IngestStats, error) {
	startTime := time.Now()

	if strings.TrimSpace(in.CourseID) == "" {
		return nil, &types.ValidationError{Field: "course_id", Message: "cannot be empty"}
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, &types.ValidationError{Field: "title", Message: "cannot be empty"}
	}
	if in.LectureID == "" {
		in.LectureID = uuid.NewString()
	}
	if in.CourseName == "" {
		in.CourseName = in.CourseID
	}

	stats := &IngestStats{LectureID: in.LectureID, ErrorMessages: make([]string, 0)}
	log := idx.logger.With().Str("lecture_id", in.LectureID).Logger()

	course := &storage.Course{ID: in.CourseID, Name: in.CourseName, Category: in.Category}
	if err := idx.write(ctx, "upsert_course", func(ctx context.Context) error {
		return idx.storage.UpsertCourse(ctx, course)
	}); err != nil {
		return nil, fmt.Errorf("failed to store course: %w", err)
	}

	lecture := &storage.Lecture{
		ID:          in.LectureID,
		CourseID:    in.CourseID,
		Title:       in.Title,
		Description: chunker.Normalize(in.Description),
		Content:     joinPages(in.Pages),
		Category:    in.Category,
		SourcePath:  in.SourcePath,
		PublishedAt: in.PublishedAt,
	}
	if err := idx.write(ctx, "upsert_lecture", func(ctx context.Context) error {
		return idx.storage.UpsertLecture(ctx, lecture)
	}); err != nil {
		return nil, fmt.Errorf("failed to store lecture: %w", err)
	}

	chunks := idx.chunker.ChunkPages(in.LectureID, in.Pages)
	if err := idx.write(ctx, "replace_chunks", func(ctx context.Context) error {
		return idx.storage.ReplaceChunks(ctx, in.LectureID, chunks)
	}); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	stats.Chunks = len(chunks)
	idx.metrics.ChunksIngested(len(chunks))

	idx.embedChunks(ctx, chunks, stats)
	idx.embedLecture(ctx, lecture, stats)
	if err := idx.storeConcepts(ctx, in.LectureID, in.Concepts, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	log.Info().
		Int("chunks", stats.Chunks).
		Int("embedded", stats.ChunksEmbedded).
		Int("failed", stats.ChunksFailed).
		Int("concepts", stats.Concepts).
		Dur("duration", stats.Duration).
		Msg("Lecture ingested")

	return stats, nil
}

func (idx *Indexer) embedChunks(ctx context.Context, chunks []types.Chunk, stats *IngestStats) {
	if len(chunks) == 0 {
		return
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	batch := idx.embedder.GenerateBatchEmbeddings(ctx, texts)
	for i, res := range batch.Results {
		if !res.OK() {
			stats.ChunksFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("chunk %d: %s", chunks[i].ChunkIndex, res.Error))
			continue
		}
		err := idx.write(ctx, "update_chunk_embedding", func(ctx context.Context) error {
			return idx.storage.UpdateChunkEmbedding(ctx, chunks[i].ID, res.Embedding)
		})
		if err != nil {
			stats.ChunksFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("chunk %d: %v", chunks[i].ChunkIndex, err))
			continue
		}
		stats.ChunksEmbedded++
	}
}

// embedLecture embeds the title and description, the fields a whole-lecture
// match is judged on.
func (idx *Indexer) embedLecture(ctx context.Context, lecture *storage.Lecture, stats *IngestStats) {
	text := strings.TrimSpace(lecture.Title + ". " + lecture.Description)

	res := idx.embedder.GenerateEmbedding(ctx, text)
	if !res.OK() {
		stats.ErrorMessages = append(stats.ErrorMessages, "lecture: "+res.Error)
		return
	}
	if err := idx.write(ctx, "update_lecture_embedding", func(ctx context.Context) error {
		return idx.storage.UpdateLectureEmbedding(ctx, lecture.ID, res.Embedding)
	}); err != nil {
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("lecture: %v", err))
		return
	}
	stats.LectureEmbedded = true
}

func (idx *Indexer) storeConcepts(ctx context.Context, lectureID string, inputs []ConceptInput, stats *IngestStats) error {
	concepts := make([]*storage.Concept, 0, len(inputs))
	texts := make([]string, 0, len(inputs))

	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			continue
		}
		c := &storage.Concept{
			ID:         uuid.NewString(),
			LectureID:  lectureID,
			Name:       name,
			Definition: chunker.Normalize(in.Definition),
		}
		if err := idx.write(ctx, "upsert_concept", func(ctx context.Context) error {
			return idx.storage.UpsertConcept(ctx, c)
		}); err != nil {
			return fmt.Errorf("failed to store concept %q: %w", name, err)
		}
		concepts = append(concepts, c)
		texts = append(texts, strings.TrimSpace(c.Name+": "+c.Definition))
	}
	stats.Concepts = len(concepts)
	if len(concepts) == 0 {
		return nil
	}

	batch := idx.embedder.GenerateBatchEmbeddings(ctx, texts)
	for i, res := range batch.Results {
		if !res.OK() {
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("concept %q: %s", concepts[i].Name, res.Error))
			continue
		}
		if err := idx.write(ctx, "update_concept_embedding", func(ctx context.Context) error {
			return idx.storage.UpdateConceptEmbedding(ctx, concepts[i].ID, res.Embedding)
		}); err != nil {
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("concept %q: %v", concepts[i].Name, err))
			continue
		}
		stats.ConceptsEmbedded++
	}
	return nil
}

// IngestFile loads one lecture file and ingests it. Values set in meta win
// over the file's front matter; the title falls back to the file name and
// the lecture id to a stable id derived from the absolute path.
func (idx *Indexer) IngestFile(ctx context.Context, path string, meta LectureInput) (*IngestStats, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer idx.lock.Release()

	return idx.ingestFile(ctx, path, meta)
}

func (idx *Indexer) ingestFile(ctx context.Context, path string, meta LectureInput) (*IngestStats, error) {
	doc, err := LoadPages(ctx, path)
	if err != nil {
		return nil, err
	}

	in := meta
	in.Pages = doc.Pages
	in.SourcePath = path
	fm := doc.Meta

	if in.Title == "" {
		in.Title = fm.Title
	}
	if in.Title == "" {
		in.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if in.Description == "" {
		in.Description = fm.Description
	}
	if in.Category == "" {
		in.Category = fm.Category
	}
	if in.CourseID == "" {
		in.CourseID = fm.Course
	}
	if in.CourseName == "" {
		in.CourseName = fm.CourseName
	}
	if in.PublishedAt == nil {
		in.PublishedAt = fm.PublishedAt
	}
	if len(in.Concepts) == 0 {
		in.Concepts = fm.Concepts
	}
	if in.LectureID == "" {
		in.LectureID = LectureIDForPath(path)
	}

	return idx.IngestLecture(ctx, in)
}

// LectureIDForPath derives a stable lecture id from a file path so
// re-ingesting the same file updates it in place.
func LectureIDForPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

// IngestDirectory ingests every supported file under dir with a bounded
// worker pool. A failing file is recorded and does not stop the others.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, meta LectureInput) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	files, err := discoverFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	// Per-file identity comes from each file, not the shared meta.
	meta.LectureID = ""
	meta.Title = ""

	stats := &Statistics{ErrorMessages: make([]string, 0)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, path := range files {
		g.Go(func() error {
			s, err := idx.ingestFile(gctx, path, meta)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.FilesFailed++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				idx.logger.Warn().Err(err).Str("path", path).Msg("Failed to ingest file")
				return nil
			}
			stats.FilesIngested++
			stats.ChunksCreated += s.Chunks
			stats.ChunksEmbedded += s.ChunksEmbedded
			stats.ChunksFailed += s.ChunksFailed
			return nil
		})
	}
	_ = g.Wait()

	stats.Duration = time.Since(startTime)
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// discoverFiles finds all supported lecture files under root
func discoverFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Skip hidden directories
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || !Supported(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})

	return files, err
}

func joinPages(pages []chunker.Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if text := chunker.Normalize(p.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
