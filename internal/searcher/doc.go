// Package searcher implements hybrid lecture search combining vector
// similarity and keyword matching.
//
// A query moves through these steps:
//   - Embed the query; keyword search starts at the same time
//   - Vector search each enabled kind (chunk, lecture, concept)
//   - Fuse the two candidate sets into one relevance score
//   - Sort, paginate and cut highlighted snippets for the page
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, embedService, searcher.DefaultConfig(), logger)
//
//	resp, err := s.Search(ctx, types.SearchRequest{
//	    Query: "cardiac output",
//	    Limit: 10,
//	})
//	if err != nil {
//	    // Only validation errors are returned
//	}
//	for _, r := range resp.Results {
//	    fmt.Printf("%s %.2f %s\n", r.Kind, r.RelevanceScore, r.Snippet)
//	}
//
// # Scoring
//
// Cosine distance d from the store becomes similarity max(0, min(1, 1-d/2)).
// Keyword scores are divided by the highest keyword score in the candidate
// set. In hybrid mode
//
//	relevance = w × similarity + (1-w) × keyword
//
// where w is the vector weight (default 0.7). With the keyword boost off the
// relevance is the similarity. In keyword-only mode it is the normalized
// keyword score and similarity is zero.
//
// # Degraded Mode
//
// Sub-system failures never fail the request:
//   - Embedding or vector search fails: keyword-only results
//   - Keyword search fails: vector-only results
//   - Both fail: empty results with Error.DegradedMode set
//
// Response metadata records which of these happened. Store calls run under
// the retry engine with a per-attempt timeout and the vector_search and
// keyword_search circuit breakers.
//
// # Caching
//
// Non-degraded responses are cached in an LRU with a TTL, keyed by the
// normalized request. InvalidateCache clears it after ingestion.
package searcher
