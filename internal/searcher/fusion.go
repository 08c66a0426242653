package searcher

import (
	"math"
	"slices"
	"sort"

	"github.com/dshills/studysearch/internal/storage"
	"github.com/dshills/studysearch/pkg/types"
)

// candidate is one fused entity before pagination.
type candidate struct {
	hit        storage.Hit
	similarity float64
	keyword    float64 // normalized to [0, 1]
	relevance  float64
}

type candidateKey struct {
	kind types.ResultKind
	id   string
}

// distanceToSimilarity maps cosine distance in [0, 2] onto [0, 1].
func distanceToSimilarity(distance float64) float64 {
	return clamp01(1 - distance/2)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// maxKeywordScore returns the normalizer for keyword scores. Scores are
// relative to the current candidate set only.
func maxKeywordScore(hits []storage.TextHit) float64 {
	maxScore := 0.0
	for _, h := range hits {
		maxScore = math.Max(maxScore, h.Score)
	}
	return maxScore
}

func normalizeKeyword(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return clamp01(score / maxScore)
}

// fuseHybrid merges both candidate lists. An entity found by only one path
// scores zero on the other.
func fuseHybrid(vectorHits []storage.VectorHit, textHits []storage.TextHit, vectorWeight float64) []candidate {
	byKey := make(map[candidateKey]*candidate, len(vectorHits)+len(textHits))
	order := make([]candidateKey, 0, len(vectorHits)+len(textHits))

	for _, h := range vectorHits {
		key := candidateKey{h.Kind, h.ID}
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
			byKey[key] = &candidate{hit: h.Hit}
		}
		byKey[key].similarity = math.Max(byKey[key].similarity, distanceToSimilarity(h.Distance))
	}

	maxScore := maxKeywordScore(textHits)
	for _, h := range textHits {
		key := candidateKey{h.Kind, h.ID}
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
			byKey[key] = &candidate{hit: h.Hit}
		}
		byKey[key].keyword = math.Max(byKey[key].keyword, normalizeKeyword(h.Score, maxScore))
	}

	fused := make([]candidate, len(order))
	for i, key := range order {
		c := byKey[key]
		c.relevance = clamp01(vectorWeight*c.similarity + (1-vectorWeight)*c.keyword)
		fused[i] = *c
	}
	return fused
}

// fuseVectorOnly ranks by similarity alone.
func fuseVectorOnly(vectorHits []storage.VectorHit) []candidate {
	fused := make([]candidate, len(vectorHits))
	for i, h := range vectorHits {
		sim := distanceToSimilarity(h.Distance)
		fused[i] = candidate{hit: h.Hit, similarity: sim, relevance: sim}
	}
	return fused
}

// fuseKeywordOnly ranks by normalized keyword score; similarity is zero.
func fuseKeywordOnly(textHits []storage.TextHit) []candidate {
	maxScore := maxKeywordScore(textHits)
	fused := make([]candidate, len(textHits))
	for i, h := range textHits {
		kw := normalizeKeyword(h.Score, maxScore)
		fused[i] = candidate{hit: h.Hit, keyword: kw, relevance: kw}
	}
	return fused
}

// sortCandidates orders by relevance, then similarity, then kind and id so
// identical inputs always produce the same page.
func sortCandidates(cs []candidate) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.relevance != b.relevance {
			return a.relevance > b.relevance
		}
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if a.hit.Kind != b.hit.Kind {
			return kindRank(a.hit.Kind) < kindRank(b.hit.Kind)
		}
		return a.hit.ID < b.hit.ID
	})
}

func kindRank(k types.ResultKind) int {
	return slices.Index(types.AllKinds, k)
}

func pageSlice(cs []candidate, offset, limit int) []candidate {
	if offset >= len(cs) {
		return nil
	}
	return cs[offset:min(offset+limit, len(cs))]
}

func paginate(total, offset, limit int) types.Pagination {
	p := types.Pagination{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		HasMore: offset+limit < total,
	}
	if p.HasMore {
		next := offset + limit
		p.NextOffset = &next
	}
	if offset > 0 {
		prev := max(0, offset-limit)
		p.PrevOffset = &prev
	}
	return p
}

// toResult builds the public result with the source variant for its kind.
func (c candidate) toResult(snippet string) types.SearchResult {
	h := c.hit
	base := types.SourceBase{CourseID: h.CourseID, CourseName: h.CourseName}

	var source types.Source
	switch h.Kind {
	case types.KindLecture:
		source = types.LectureSource{SourceBase: base, Category: h.Category, PublishedAt: h.PublishedAt}
	case types.KindConcept:
		source = types.ConceptSource{SourceBase: base, LectureID: h.LectureID, LectureTitle: h.LectureTitle}
	default:
		source = types.ChunkSource{
			SourceBase:   base,
			LectureID:    h.LectureID,
			LectureTitle: h.LectureTitle,
			ChunkIndex:   h.ChunkIndex,
			PageNumber:   h.PageNumber,
		}
	}

	return types.SearchResult{
		ID:             h.ID,
		Kind:           h.Kind,
		Title:          h.Title,
		Snippet:        snippet,
		Similarity:     c.similarity,
		RelevanceScore: c.relevance,
		Source:         source,
		Content:        h.Content,
	}
}
