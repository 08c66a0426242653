// Package indexer coordinates the ingestion pipeline for lecture material.
//
// A lecture is loaded, split into chunks, stored, and then embedded. The
// indexer owns no retrieval logic; it only fills the store the searcher
// reads from.
//
// # Basic Usage
//
//	idx := indexer.New(store, chunker, embedService, indexer.Config{Workers: 4}, logger)
//
//	stats, err := idx.IngestFile(ctx, "lectures/heart.md", indexer.LectureInput{
//	    CourseID: "cardio",
//	})
//
// # Input Formats
//
// Plain text and markdown files are read as a single page and may start
// with a YAML front matter block:
//
//	---
//	title: The Heart
//	course: cardio
//	category: medicine
//	published_at: 2024-01-10T00:00:00Z
//	concepts:
//	  - name: Systole
//	    definition: Contraction phase of the cardiac cycle
//	---
//
// PDF files yield one numbered page per non-empty page, so chunks carry
// the page they came from.
//
// # Failure Handling
//
// Store writes run under the retry engine. Embedding failures do not fail
// an ingest: the affected chunks are stored without a vector, counted in
// IngestStats, and listed by storage.ListChunksMissingEmbedding so they can
// be embedded later. Re-ingesting a file replaces its chunks because the
// lecture id is derived from the file path.
//
// # Concurrency
//
// IngestDirectory processes files with a bounded worker pool. Only one
// file or directory ingest runs per Indexer; a second one fails with
// ErrIngestInProgress.
package indexer
