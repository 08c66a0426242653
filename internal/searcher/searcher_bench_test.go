package searcher

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dshills/studysearch/internal/storage"
	"github.com/dshills/studysearch/pkg/types"
)

func benchHits(n int) ([]storage.VectorHit, []storage.TextHit) {
	vectorHits := make([]storage.VectorHit, n)
	textHits := make([]storage.TextHit, n)
	for i := range n {
		vectorHits[i] = vhit(types.KindChunk, fmt.Sprintf("v%04d", i), float64(i%100)/100)
		textHits[i] = thit(types.KindChunk, fmt.Sprintf("v%04d", (i*7)%n), "cardiac output", float64(i%50))
	}
	return vectorHits, textHits
}

func BenchmarkFuseHybrid(b *testing.B) {
	vectorHits, textHits := benchHits(500)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fused := fuseHybrid(vectorHits, textHits, 0.7)
		sortCandidates(fused)
	}
}

func BenchmarkGenerateSnippet(b *testing.B) {
	content := strings.Repeat("The left ventricle pumps blood into the aorta. ", 40) + "Cardiac output is the product."
	terms := []string{"cardiac", "output"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = GenerateSnippet(content, terms, DefaultSnippetLength)
	}
}

func BenchmarkQueryHashing(b *testing.B) {
	p := params{
		query:   "cardiac output during exercise",
		filters: types.SearchFilters{CourseIDs: []string{"b", "a"}, Category: "medicine"},
		kinds:   types.AllKinds,
		limit:   10,
		boost:   true,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = computeQueryHash(p)
	}
}

func BenchmarkSearch(b *testing.B) {
	vectorHits, textHits := benchHits(150)
	store := &fakeStore{
		vectorHits: map[types.ResultKind][]storage.VectorHit{types.KindChunk: vectorHits},
		textHits:   map[types.ResultKind][]storage.TextHit{types.KindChunk: textHits},
	}
	cfg := DefaultConfig()
	cfg.CacheSize = 0
	s := NewSearcher(store, &mockEmbedder{}, cfg, zerolog.Nop())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(ctx, types.SearchRequest{Query: "cardiac output"}); err != nil {
			b.Fatal(err)
		}
	}
}
