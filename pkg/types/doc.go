// Package types provides shared type definitions for studysearch.
//
// This package defines the data model used across the chunker, the storage
// backends, the search engine and the MCP surface.
//
// # Chunks
//
// Chunk is a token-bounded window of normalized lecture text:
//
//	chunk := types.Chunk{
//	    SourceDocumentID: lectureID,
//	    ChunkIndex:       0,
//	    Content:          "The heart has four chambers.",
//	}
//
// Embeddings are always EmbeddingDimension floats long; the storage schema
// declares the same width.
//
// # Search Results
//
// SearchResult carries a tagged Source variant instead of a free-form
// metadata map. The variant matches the result Kind:
//
//	switch src := result.Source.(type) {
//	case types.ChunkSource:
//	    fmt.Println(src.LectureTitle, src.ChunkIndex)
//	case types.LectureSource:
//	    fmt.Println(src.Category)
//	case types.ConceptSource:
//	    fmt.Println(src.LectureTitle)
//	}
//
// Similarity and RelevanceScore are normalized to the [0, 1] range, with
// higher values indicating better matches.
//
// # Degraded Mode
//
// SearchResponse.Metadata states whether hybrid search ran, whether query
// embedding failed and whether the engine fell back to keyword search.
// SearchResponse.Error is only set when no search path produced results.
package types
