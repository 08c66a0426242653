// Package storage persists courses, lectures, chunks and concepts and
// answers the two retrieval primitives of hybrid search: nearest-neighbour
// lookup over embeddings and ranked full-text search.
//
// # Backends
//
// Two backends implement the Storage interface:
//   - SQLite: a single file (or ":memory:"), FTS5 for keyword search and
//     cosine distance computed in Go over the filtered candidates
//   - Postgres: pgvector columns with HNSW indexes and generated tsvector
//     columns with GIN indexes
//
// The SQLite driver is chosen at build time. The default build uses the
// pure Go modernc.org/sqlite driver; building with -tags sqlite_cgo switches
// to github.com/mattn/go-sqlite3.
//
// # Database Schema
//
// Tables:
//   - courses: course name and category
//   - lectures: title, description, content, category, published_at, embedding
//   - lecture_chunks: ordered chunks of a lecture, optional page number, embedding
//   - concepts: named definitions within a lecture, unique per lecture by name
//   - *_fts: external-content full-text indexes kept in sync by triggers
//
// Deleting a lecture removes its chunks and concepts.
//
// # Basic Usage
//
//	st, err := storage.Open(ctx, storage.Options{Path: "studysearch.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	hits, err := st.SearchVector(ctx, types.KindChunk, queryVector, 50, storage.Filters{
//	    CourseIDs: []string{"cardio"},
//	})
//
// Filters are applied inside the query before the limit. Vector hits carry
// cosine distance in [0, 2]; text hits carry a backend-specific score where
// higher is better.
//
// # Errors
//
// Classify maps driver errors from both backends onto the retry taxonomy so
// callers can run storage calls under retry.Execute.
//
// # Migrations
//
// Schema versions are semantic versions recorded in schema_version. Open
// applies pending migrations; Rollback reverts the newest one.
package storage
