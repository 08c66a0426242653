package indexer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dshills/studysearch/internal/chunker"
)

func benchPages(pages, wordsPerPage int) []chunker.Page {
	out := make([]chunker.Page, pages)
	for i := range out {
		var sb strings.Builder
		for w := range wordsPerPage {
			fmt.Fprintf(&sb, "term%d ", w%97)
		}
		out[i] = chunker.Page{Number: pageNum(i + 1), Text: sb.String()}
	}
	return out
}

// BenchmarkIngestLecture benchmarks a full lecture ingest against in-memory SQLite
func BenchmarkIngestLecture(b *testing.B) {
	store := setupTestStorage(b)
	idx := setupTestIndexer(b, store, &mockEmbedder{})
	pages := benchPages(10, 400)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := idx.IngestLecture(ctx, LectureInput{
			CourseID:  "bench",
			LectureID: "lecture",
			Title:     "Benchmark",
			Pages:     pages,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDiscoverFiles benchmarks directory walking
func BenchmarkDiscoverFiles(b *testing.B) {
	dir := b.TempDir()
	for i := range 200 {
		createTestFile(b, dir, fmt.Sprintf("week%d/lecture%d.md", i%10, i), "body")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := discoverFiles(dir); err != nil {
			b.Fatal(err)
		}
	}
}
