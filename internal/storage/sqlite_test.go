package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/studysearch/internal/retry"
	"github.com/dshills/studysearch/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func page(n int) *int { return &n }

// vec returns a stored-width vector whose first two components are x and y.
func vec(x, y float32) []float32 {
	v := make([]float32, types.EmbeddingDimension)
	v[0], v[1] = x, y
	return v
}

func chunk(id, lectureID string, index int, content string, vec []float32) types.Chunk {
	return types.Chunk{
		ID:               id,
		SourceDocumentID: lectureID,
		ChunkIndex:       index,
		PageNumber:       page(index + 1),
		Content:          content,
		TokenCount:       10,
		WordCount:        8,
		CharCount:        len([]rune(content)),
		Embedding:        vec,
	}
}

// seed creates two courses with one lecture each. The cardiology chunk
// vector points along x, the poetry chunks along y.
func seed(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertCourse(ctx, &Course{ID: "cardio", Name: "Cardiology 101", Category: "medicine"}))
	require.NoError(t, s.UpsertCourse(ctx, &Course{ID: "poetry", Name: "Medieval Poetry", Category: "humanities"}))

	require.NoError(t, s.UpsertLecture(ctx, &Lecture{
		ID: "heart", CourseID: "cardio", Title: "The Cardiac Cycle",
		Description: "Systole and diastole", Content: "The cardiac cycle has two phases.",
		Category: "medicine", PublishedAt: date(2024, 1, 10),
	}))
	require.NoError(t, s.UpsertLecture(ctx, &Lecture{
		ID: "verse", CourseID: "poetry", Title: "Alliterative Verse",
		Content: "Old English poetry relies on alliteration.",
		Category: "humanities", PublishedAt: date(2024, 6, 1),
	}))

	require.NoError(t, s.ReplaceChunks(ctx, "heart", []types.Chunk{
		chunk("heart-0", "heart", 0, "Cardiac output equals stroke volume times heart rate.", vec(1, 0)),
		chunk("heart-1", "heart", 1, "The mitral valve closes at the start of systole.", nil),
	}))
	require.NoError(t, s.ReplaceChunks(ctx, "verse", []types.Chunk{
		chunk("verse-0", "verse", 0, "Beowulf uses alliteration in every line.", vec(0, 1)),
		chunk("verse-1", "verse", 1, "Caesura splits each line into two halves.", vec(0.6, 0.8)),
	}))
}

func TestSQLiteLectureRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	l, err := s.GetLecture(ctx, "heart")
	require.NoError(t, err)
	assert.Equal(t, "cardio", l.CourseID)
	assert.Equal(t, "The Cardiac Cycle", l.Title)
	require.NotNil(t, l.PublishedAt)
	assert.True(t, l.PublishedAt.Equal(*date(2024, 1, 10)))
	assert.False(t, l.HasEmbedding)

	require.NoError(t, s.UpdateLectureEmbedding(ctx, "heart", vec(1, 0)))
	l, err = s.GetLecture(ctx, "heart")
	require.NoError(t, err)
	assert.True(t, l.HasEmbedding)

	_, err = s.GetLecture(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateLectureEmbedding(ctx, "missing", []float32{1}), ErrNotFound)
}

func TestSQLiteChunksMissingEmbedding(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	missing, err := s.ListChunksMissingEmbedding(ctx, "heart")
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "heart-1", missing[0].ID)
	assert.Equal(t, "heart", missing[0].SourceDocumentID)
	require.NotNil(t, missing[0].PageNumber)
	assert.Equal(t, 2, *missing[0].PageNumber)

	require.NoError(t, s.UpdateChunkEmbedding(ctx, "heart-1", vec(0.9, 0.1)))
	missing, err = s.ListChunksMissingEmbedding(ctx, "heart")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSQLiteReplaceChunksReplaces(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunks(ctx, "heart", []types.Chunk{
		chunk("heart-new", "heart", 0, "Preload and afterload shape contraction.", nil),
	}))

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Chunks)

	hits, err := s.SearchText(ctx, types.KindChunk, []string{"mitral"}, 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits, "old chunk text must leave the FTS index")

	hits, err = s.SearchText(ctx, types.KindChunk, []string{"afterload"}, 10, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "heart-new", hits[0].ID)
}

func TestSQLiteReplaceChunksRollsBack(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	// Duplicate chunk_index violates the unique constraint mid-transaction.
	err := s.ReplaceChunks(ctx, "heart", []types.Chunk{
		chunk("dup-a", "heart", 0, "first", nil),
		chunk("dup-b", "heart", 0, "second", nil),
	})
	require.Error(t, err)
	assert.Equal(t, retry.KindConstraint, Classify(err).Kind)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, status.Chunks, "original chunks survive the failed replace")
}

func TestSQLiteSearchVectorOrdersByDistance(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	hits, err := s.SearchVector(ctx, types.KindChunk, vec(1, 0), 10, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 3, "chunks without embeddings are skipped")

	assert.Equal(t, "heart-0", hits[0].ID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.Equal(t, "verse-1", hits[1].ID)
	assert.InDelta(t, 0.4, hits[1].Distance, 1e-6)
	assert.Equal(t, "verse-0", hits[2].ID)
	assert.InDelta(t, 1.0, hits[2].Distance, 1e-9)

	h := hits[0]
	assert.Equal(t, types.KindChunk, h.Kind)
	assert.Equal(t, "The Cardiac Cycle", h.Title)
	assert.Equal(t, "heart", h.LectureID)
	assert.Equal(t, "Cardiology 101", h.CourseName)
	assert.Equal(t, 0, h.ChunkIndex)
	require.NotNil(t, h.PageNumber)
	assert.Equal(t, 1, *h.PageNumber)
}

func TestSQLiteSearchVectorFiltersBeforeLimit(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	hits, err := s.SearchVector(ctx, types.KindChunk, vec(1, 0), 1, Filters{CourseIDs: []string{"poetry"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "verse-1", hits[0].ID)

	maxDistance := 0.5
	hits, err = s.SearchVector(ctx, types.KindChunk, vec(1, 0), 10, Filters{MaxDistance: &maxDistance})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.SearchVector(ctx, types.KindChunk, vec(1, 0), 10, Filters{
		DateFrom: date(2024, 3, 1),
		DateTo:   date(2024, 12, 31),
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "verse", h.LectureID)
	}

	hits, err = s.SearchVector(ctx, types.KindChunk, vec(1, 0), 10, Filters{Category: "medicine"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "heart-0", hits[0].ID)
}

func TestSQLiteSearchText(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	hits, err := s.SearchText(ctx, types.KindChunk, []string{"cardiac"}, 10, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "heart-0", hits[0].ID)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = s.SearchText(ctx, types.KindChunk, []string{"alliteration", "line"}, 10, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "verse-0", hits[0].ID, "matching both terms ranks first")
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	hits, err = s.SearchText(ctx, types.KindChunk, []string{"alliteration"}, 10, Filters{CourseIDs: []string{"cardio"}})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.SearchText(ctx, types.KindLecture, []string{"cardiac"}, 10, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "heart", hits[0].ID)
	assert.Contains(t, hits[0].Content, "Systole and diastole")

	hits, err = s.SearchText(ctx, types.KindChunk, nil, 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.SearchText(ctx, types.KindChunk, []string{`"OR NEAR(`}, 10, Filters{})
	require.NoError(t, err, "operators are quoted, not parsed")
	assert.Empty(t, hits)
}

func TestSQLiteConcepts(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	c := &Concept{ID: "c-1", LectureID: "heart", Name: "Stroke volume", Definition: "Blood ejected per beat"}
	require.NoError(t, s.UpsertConcept(ctx, c))
	require.NoError(t, s.UpdateConceptEmbedding(ctx, c.ID, vec(1, 0)))

	again := &Concept{ID: "c-2", LectureID: "heart", Name: "Stroke volume", Definition: "Blood ejected per beat"}
	require.NoError(t, s.UpsertConcept(ctx, again))
	assert.Equal(t, "c-1", again.ID, "existing concept keeps its id")

	hits, err := s.SearchVector(ctx, types.KindConcept, vec(1, 0), 5, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1, "unchanged definition keeps its embedding")
	assert.Equal(t, "Stroke volume", hits[0].Title)
	assert.Equal(t, "The Cardiac Cycle", hits[0].LectureTitle)

	changed := &Concept{ID: "c-3", LectureID: "heart", Name: "Stroke volume", Definition: "End-diastolic minus end-systolic volume"}
	require.NoError(t, s.UpsertConcept(ctx, changed))
	hits, err = s.SearchVector(ctx, types.KindConcept, vec(1, 0), 5, Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits, "changed definition clears the stale embedding")

	text, err := s.SearchText(ctx, types.KindConcept, []string{"diastolic"}, 5, Filters{})
	require.NoError(t, err)
	require.Len(t, text, 1)
	assert.Equal(t, "c-1", text[0].ID)
}

func TestSQLiteDeleteLectureCascades(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.UpsertConcept(ctx, &Concept{ID: "c-1", LectureID: "heart", Name: "Preload"}))
	require.NoError(t, s.DeleteLecture(ctx, "heart"))
	assert.ErrorIs(t, s.DeleteLecture(ctx, "heart"), ErrNotFound)

	status, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Lectures)
	assert.Equal(t, 2, status.Chunks)
	assert.Equal(t, 0, status.Concepts)

	hits, err := s.SearchText(ctx, types.KindChunk, []string{"cardiac"}, 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSQLiteGetStatus(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)

	status, err := s.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sqlite-"+BuildMode, status.Backend)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, 2, status.Courses)
	assert.Equal(t, 2, status.Lectures)
	assert.Equal(t, 0, status.LecturesEmbedded)
	assert.Equal(t, 4, status.Chunks)
	assert.Equal(t, 3, status.ChunksEmbedded)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.True(t, status.Health.FTSIndexesBuilt)
}

func TestSQLiteForeignKeyIsConstraint(t *testing.T) {
	s := setupTestDB(t)

	err := s.UpsertLecture(context.Background(), &Lecture{ID: "orphan", CourseID: "nope", Title: "x"})
	require.Error(t, err)
	assert.Equal(t, retry.KindConstraint, Classify(err).Kind)
}

func TestSQLiteUnsupportedKind(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.SearchVector(context.Background(), "slide", []float32{1}, 5, Filters{})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Equal(t, retry.KindInvalidInput, Classify(err).Kind)
}
