package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/studysearch/internal/chunker"
	"github.com/dshills/studysearch/internal/embedder"
	"github.com/dshills/studysearch/internal/embedservice"
	"github.com/dshills/studysearch/internal/retry"
	"github.com/dshills/studysearch/internal/storage"
	"github.com/dshills/studysearch/pkg/types"
)

// mockEmbedder returns unit vectors and fails any text matching failOn.
type mockEmbedder struct {
	mu        sync.Mutex
	failOn    string
	calls     int
	batchSize []int
}

func (m *mockEmbedder) embed(text string) embedder.EmbeddingResult {
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return embedder.ErrorResult(&embedder.HTTPError{StatusCode: 400, Body: "rejected"})
	}
	v := make([]float32, types.EmbeddingDimension)
	v[0] = 1
	return embedder.EmbeddingResult{Embedding: v, Attempts: 1}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) embedder.EmbeddingResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.embed(text)
}

func (m *mockEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) embedservice.BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batchSize = append(m.batchSize, len(texts))

	out := embedservice.BatchResult{Errors: map[int]string{}, Results: make([]embedder.EmbeddingResult, len(texts))}
	for i, text := range texts {
		out.Results[i] = m.embed(text)
		if out.Results[i].OK() {
			out.SuccessCount++
		} else {
			out.FailureCount++
			out.Errors[i] = out.Results[i].Error
		}
	}
	return out
}

// setupTestStorage creates an in-memory SQLite database for testing
func setupTestStorage(t testing.TB) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(context.Background(), ":memory:")
	require.NoError(t, err, "Failed to create test storage")
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func setupTestIndexer(t testing.TB, store storage.Storage, emb Embedder) *Indexer {
	t.Helper()

	ch, err := chunker.New(chunker.Config{
		ChunkSizeTokens:    26,
		OverlapTokens:      5,
		TokensPerWord:      1.3,
		MinChunkSizeTokens: 5,
	})
	require.NoError(t, err)

	return New(store, ch, emb, Config{
		Workers: 2,
		Retry:   retry.Policy{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }},
	}, zerolog.Nop())
}

// createTestFile creates a file under dir, creating parents as needed
func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))

	return filePath
}

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix
	}
	return strings.Join(parts, " ")
}

func pageNum(n int) *int { return &n }

func TestIngestLectureStoresAndEmbeds(t *testing.T) {
	store := setupTestStorage(t)
	emb := &mockEmbedder{}
	idx := setupTestIndexer(t, store, emb)
	ctx := context.Background()

	stats, err := idx.IngestLecture(ctx, LectureInput{
		CourseID:    "cardio",
		CourseName:  "Cardiology",
		Category:    "medicine",
		LectureID:   "heart",
		Title:       "The Heart",
		Description: "  Chambers and   valves ",
		Pages: []chunker.Page{
			{Number: pageNum(1), Text: words("atrium", 50)},
			{Number: pageNum(2), Text: words("ventricle", 10)},
		},
		Concepts: []ConceptInput{
			{Name: "Systole", Definition: "Contraction phase"},
			{Name: "Diastole", Definition: "Relaxation phase"},
			{Name: "   "},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "heart", stats.LectureID)
	assert.Greater(t, stats.Chunks, 2)
	assert.Equal(t, stats.Chunks, stats.ChunksEmbedded)
	assert.Zero(t, stats.ChunksFailed)
	assert.True(t, stats.LectureEmbedded)
	assert.Equal(t, 2, stats.Concepts)
	assert.Equal(t, 2, stats.ConceptsEmbedded)
	assert.Empty(t, stats.ErrorMessages)

	lecture, err := store.GetLecture(ctx, "heart")
	require.NoError(t, err)
	assert.Equal(t, "Chambers and valves", lecture.Description)
	assert.True(t, lecture.HasEmbedding)
	assert.True(t, strings.HasPrefix(lecture.Content, "atrium atrium"))

	missing, err := store.ListChunksMissingEmbedding(ctx, "heart")
	require.NoError(t, err)
	assert.Empty(t, missing)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Courses)
	assert.Equal(t, 1, status.LecturesEmbedded)
	assert.Equal(t, stats.Chunks, status.ChunksEmbedded)
	assert.Equal(t, 2, status.Concepts)
}

func TestIngestLectureAssignsID(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &mockEmbedder{})

	stats, err := idx.IngestLecture(context.Background(), LectureInput{
		CourseID: "cardio",
		Title:    "Untitled",
		Pages:    []chunker.Page{{Text: "short body"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stats.LectureID)

	_, err = store.GetLecture(context.Background(), stats.LectureID)
	require.NoError(t, err)
}

func TestIngestLectureValidation(t *testing.T) {
	idx := setupTestIndexer(t, setupTestStorage(t), &mockEmbedder{})

	tests := []struct {
		name  string
		input LectureInput
		field string
	}{
		{"missing course", LectureInput{Title: "x"}, "course_id"},
		{"blank title", LectureInput{CourseID: "c", Title: "  "}, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idx.IngestLecture(context.Background(), tt.input)
			var verr *types.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestIngestLecturePartialEmbeddingFailure(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &mockEmbedder{failOn: "zebra"})
	ctx := context.Background()

	stats, err := idx.IngestLecture(ctx, LectureInput{
		CourseID:  "bio",
		LectureID: "animals",
		Title:     "Animals",
		Pages: []chunker.Page{
			{Number: pageNum(1), Text: words("lion", 12)},
			{Number: pageNum(2), Text: words("zebra", 12)},
		},
		Concepts: []ConceptInput{{Name: "Stripes", Definition: "zebra pattern"}},
	})
	require.NoError(t, err, "embedding failures must not fail the ingest")

	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, stats.ChunksEmbedded)
	assert.Equal(t, 1, stats.ChunksFailed)
	assert.Equal(t, 1, stats.Concepts)
	assert.Zero(t, stats.ConceptsEmbedded)
	assert.Len(t, stats.ErrorMessages, 2)

	missing, err := store.ListChunksMissingEmbedding(ctx, "animals")
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, 1, missing[0].ChunkIndex)
	require.NotNil(t, missing[0].PageNumber)
	assert.Equal(t, 2, *missing[0].PageNumber)
}

func TestIngestLectureReplacesChunks(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &mockEmbedder{})
	ctx := context.Background()

	in := LectureInput{
		CourseID:  "cardio",
		LectureID: "heart",
		Title:     "The Heart",
		Pages:     []chunker.Page{{Text: words("atrium", 80)}},
	}
	first, err := idx.IngestLecture(ctx, in)
	require.NoError(t, err)

	in.Pages = []chunker.Page{{Text: "a much shorter revision"}}
	second, err := idx.IngestLecture(ctx, in)
	require.NoError(t, err)

	assert.Greater(t, first.Chunks, second.Chunks)
	assert.Equal(t, 1, second.Chunks)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Lectures)
	assert.Equal(t, 1, status.Chunks)
}

func TestIngestFileUsesFrontMatter(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &mockEmbedder{})
	ctx := context.Background()

	path := createTestFile(t, t.TempDir(), "heart.md", `---
title: The Heart
description: Chambers and valves
category: medicine
course: cardio
course_name: Cardiology
published_at: 2024-01-10T00:00:00Z
concepts:
  - name: Systole
    definition: Contraction phase
---
# The Heart

The heart pumps blood through four chambers.
`)

	stats, err := idx.IngestFile(ctx, path, LectureInput{})
	require.NoError(t, err)
	assert.Equal(t, LectureIDForPath(path), stats.LectureID)
	assert.Equal(t, 1, stats.Concepts)

	lecture, err := store.GetLecture(ctx, stats.LectureID)
	require.NoError(t, err)
	assert.Equal(t, "cardio", lecture.CourseID)
	assert.Equal(t, "The Heart", lecture.Title)
	assert.Equal(t, "medicine", lecture.Category)
	assert.Equal(t, path, lecture.SourcePath)
	require.NotNil(t, lecture.PublishedAt)
	assert.True(t, lecture.PublishedAt.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
	assert.NotContains(t, lecture.Content, "course_name")
}

func TestIngestFileMetaOverridesFrontMatter(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &mockEmbedder{})
	ctx := context.Background()

	path := createTestFile(t, t.TempDir(), "notes.md", "---\ntitle: From File\ncourse: filecourse\n---\nbody text\n")

	stats, err := idx.IngestFile(ctx, path, LectureInput{CourseID: "override", Title: "From Caller"})
	require.NoError(t, err)

	lecture, err := store.GetLecture(ctx, stats.LectureID)
	require.NoError(t, err)
	assert.Equal(t, "override", lecture.CourseID)
	assert.Equal(t, "From Caller", lecture.Title)
}

func TestIngestFileTitleFallsBackToFilename(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &mockEmbedder{})
	ctx := context.Background()

	path := createTestFile(t, t.TempDir(), "week-3-valves.txt", "Valves keep blood moving forward.")

	stats, err := idx.IngestFile(ctx, path, LectureInput{CourseID: "cardio"})
	require.NoError(t, err)

	lecture, err := store.GetLecture(ctx, stats.LectureID)
	require.NoError(t, err)
	assert.Equal(t, "week-3-valves", lecture.Title)

	// Same path, same lecture.
	again, err := idx.IngestFile(ctx, path, LectureInput{CourseID: "cardio"})
	require.NoError(t, err)
	assert.Equal(t, stats.LectureID, again.LectureID)
}

func TestIngestFileErrors(t *testing.T) {
	idx := setupTestIndexer(t, setupTestStorage(t), &mockEmbedder{})
	dir := t.TempDir()

	_, err := idx.IngestFile(context.Background(), createTestFile(t, dir, "slides.docx", "x"), LectureInput{CourseID: "c"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = idx.IngestFile(context.Background(), filepath.Join(dir, "missing.txt"), LectureInput{CourseID: "c"})
	assert.Error(t, err)

	_, err = idx.IngestFile(context.Background(), createTestFile(t, dir, "nocourse.txt", "body"), LectureInput{})
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestIngestDirectory(t *testing.T) {
	store := setupTestStorage(t)
	idx := setupTestIndexer(t, store, &mockEmbedder{})
	dir := t.TempDir()

	createTestFile(t, dir, "week1.md", "# Week 1\n\nIntroduction to cardiology.")
	createTestFile(t, dir, "nested/week2.txt", "Valves and chambers.")
	createTestFile(t, dir, "broken.md", "---\ntitle: [unclosed\n---\nbody")
	createTestFile(t, dir, "data.json", "{}")
	createTestFile(t, dir, ".git/HEAD.md", "ref")
	createTestFile(t, dir, ".draft.md", "hidden")

	stats, err := idx.IngestDirectory(context.Background(), dir, LectureInput{CourseID: "cardio", Title: "ignored"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesIngested)
	assert.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "broken.md")
	assert.Equal(t, 2, stats.ChunksCreated)
	assert.Equal(t, 2, stats.ChunksEmbedded)

	status, err := store.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Lectures)
}

func TestIngestLockRejectsConcurrentIngest(t *testing.T) {
	idx := setupTestIndexer(t, setupTestStorage(t), &mockEmbedder{})
	path := createTestFile(t, t.TempDir(), "a.txt", "body")

	require.True(t, idx.lock.TryAcquire())

	_, err := idx.IngestFile(context.Background(), path, LectureInput{CourseID: "c"})
	assert.ErrorIs(t, err, ErrIngestInProgress)
	_, err = idx.IngestDirectory(context.Background(), filepath.Dir(path), LectureInput{CourseID: "c"})
	assert.ErrorIs(t, err, ErrIngestInProgress)

	idx.lock.Release()
	_, err = idx.IngestFile(context.Background(), path, LectureInput{CourseID: "c"})
	assert.NoError(t, err)
}

func TestIngestLock(t *testing.T) {
	var l IngestLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}

// TestIngestWithLocalEmbeddings runs the full pipeline through the
// embedding service and the deterministic local provider.
func TestIngestWithLocalEmbeddings(t *testing.T) {
	store := setupTestStorage(t)
	client := embedder.NewClient(embedder.NewLocalProvider(types.EmbeddingDimension), embedder.ClientConfig{BatchSize: 4}, zerolog.Nop(), nil)
	svc := embedservice.New(client, nil, zerolog.Nop())
	idx := setupTestIndexer(t, store, svc)
	ctx := context.Background()

	stats, err := idx.IngestLecture(ctx, LectureInput{
		CourseID:  "cardio",
		LectureID: "heart",
		Title:     "The Heart",
		Pages:     []chunker.Page{{Text: words("myocardium", 60)}},
	})
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, stats.ChunksEmbedded)

	query := svc.EmbedQuery(ctx, "myocardium")
	require.True(t, query.OK())

	hits, err := store.SearchVector(ctx, types.KindChunk, query.Embedding, 10, storage.Filters{})
	require.NoError(t, err)
	assert.Len(t, hits, stats.Chunks)
}

func TestLectureIDForPathIsStable(t *testing.T) {
	a := LectureIDForPath("lectures/heart.md")
	b := LectureIDForPath("lectures/heart.md")
	c := LectureIDForPath("lectures/lungs.md")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.md", "a")
	createTestFile(t, dir, "b.PDF", "b")
	createTestFile(t, dir, "sub/c.markdown", "c")
	createTestFile(t, dir, "sub/d.go", "package d")
	createTestFile(t, dir, ".cache/e.txt", "e")

	files, err := discoverFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.ElementsMatch(t, []string{"a.md", "b.PDF", "c.markdown"}, names)
}

func TestIngestDirectoryMissingRoot(t *testing.T) {
	idx := setupTestIndexer(t, setupTestStorage(t), &mockEmbedder{})

	_, err := idx.IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), LectureInput{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrIngestInProgress))
}
