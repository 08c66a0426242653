package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/studysearch/pkg/types"
)

// sqliteKind describes how one result kind is selected. Every kind yields
// the same hit columns so scanning is shared.
type sqliteKind struct {
	columns   string
	table     string // base table with alias; its rowid backs the FTS index
	joins     string
	embedding string
	id        string
	fts       string
	ftsRowID  string
	bm25      string
}

const hitColumns = `, l.id, l.title, l.category, l.published_at, co.id, co.name`

var sqliteKinds = map[types.ResultKind]sqliteKind{
	types.KindChunk: {
		columns:   `ch.id, l.title, ch.content, ch.chunk_index, ch.page_number` + hitColumns,
		table:     "lecture_chunks ch",
		joins:     " JOIN lectures l ON l.id = ch.lecture_id JOIN courses co ON co.id = l.course_id",
		embedding: "ch.embedding",
		id:        "ch.id",
		fts:       "lecture_chunks_fts",
		ftsRowID:  "ch.rowid",
		bm25:      "bm25(lecture_chunks_fts)",
	},
	types.KindLecture: {
		columns:   `l.id, l.title, TRIM(l.description || ' ' || l.content), 0, NULL` + hitColumns,
		table:     "lectures l",
		joins:     " JOIN courses co ON co.id = l.course_id",
		embedding: "l.embedding",
		id:        "l.id",
		fts:       "lectures_fts",
		ftsRowID:  "l.rowid",
		bm25:      "bm25(lectures_fts, 10.0, 5.0, 1.0)",
	},
	types.KindConcept: {
		columns:   `cp.id, cp.name, cp.definition, 0, NULL` + hitColumns,
		table:     "concepts cp",
		joins:     " JOIN lectures l ON l.id = cp.lecture_id JOIN courses co ON co.id = l.course_id",
		embedding: "cp.embedding",
		id:        "cp.id",
		fts:       "concepts_fts",
		ftsRowID:  "cp.rowid",
		bm25:      "bm25(concepts_fts, 5.0, 1.0)",
	},
}

// vectorFrom is the FROM clause for scanning stored embeddings.
func (k sqliteKind) vectorFrom() string {
	return k.table + k.joins
}

// textFrom is the FROM clause for FTS search. The row-id join must bind the
// base table before the remaining joins reference its alias.
func (k sqliteKind) textFrom() string {
	return k.fts + " JOIN " + k.table + " ON " + k.ftsRowID + " = " + k.fts + ".rowid" + k.joins
}

func lookupKind(kind types.ResultKind) (sqliteKind, error) {
	k, ok := sqliteKinds[kind]
	if !ok {
		return sqliteKind{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	return k, nil
}

// searchVector ranks rows of one kind by cosine distance to queryVector.
// SQLite has no vector index here, so candidates matching the filters are
// scored in Go.
func searchVector(ctx context.Context, db *sql.DB, kind types.ResultKind, queryVector []float32, limit int, filters Filters) ([]VectorHit, error) {
	k, err := lookupKind(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []VectorHit{}, nil
	}

	var args sqliteArgs
	query := "SELECT " + k.columns + ", " + k.embedding +
		" FROM " + k.vectorFrom() +
		" WHERE " + k.embedding + " IS NOT NULL" +
		whereClause(filterClauses(filters, args.bind))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]VectorHit, 0, 256)
	for rows.Next() {
		var hit VectorHit
		var blob []byte
		if err := scanHit(rows, &hit.Hit, &blob); err != nil {
			return nil, err
		}
		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		hit.Kind = kind
		hit.Distance = cosineDistance(queryVector, vector)
		if filters.MaxDistance != nil && hit.Distance > *filters.MaxDistance {
			continue
		}
		candidates = append(candidates, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortByDistance(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// searchText performs BM25 full-text search using FTS5. Scores are negated
// so higher is better.
func searchText(ctx context.Context, db *sql.DB, kind types.ResultKind, terms []string, limit int, filters Filters) ([]TextHit, error) {
	k, err := lookupKind(kind)
	if err != nil {
		return nil, err
	}
	match := buildMatchQuery(terms)
	if match == "" || limit <= 0 {
		return []TextHit{}, nil
	}

	args := sqliteArgs{match}
	query := "SELECT " + k.columns + ", -" + k.bm25 + " AS score" +
		" FROM " + k.textFrom() +
		" WHERE " + k.fts + " MATCH ?" +
		whereClause(filterClauses(filters, args.bind)) +
		" ORDER BY score DESC, " + k.id + " LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextHit, 0, limit)
	for rows.Next() {
		var hit TextHit
		if err := scanHit(rows, &hit.Hit, &hit.Score); err != nil {
			return nil, err
		}
		hit.Kind = kind
		results = append(results, hit)
	}
	return results, rows.Err()
}

// scanHit reads the shared hit columns followed by one extra column.
func scanHit(rows *sql.Rows, h *Hit, extra any) error {
	var page sql.NullInt64
	var publishedAt sql.NullTime
	var chunkIndex int
	if err := rows.Scan(&h.ID, &h.Title, &h.Content, &chunkIndex, &page,
		&h.LectureID, &h.LectureTitle, &h.Category, &publishedAt,
		&h.CourseID, &h.CourseName, extra); err != nil {
		return fmt.Errorf("failed to scan result: %w", err)
	}
	h.ChunkIndex = chunkIndex
	h.PageNumber = intPtr(page)
	if publishedAt.Valid {
		t := publishedAt.Time
		h.PublishedAt = &t
	}
	return nil
}

// buildMatchQuery quotes each term as an FTS5 string and ORs them, so no
// term can be read as an operator or column filter.
func buildMatchQuery(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance matches pgvector's <=> operator: 1 - cosine similarity,
// in [0, 2].
func cosineDistance(a, b []float32) float64 {
	d := 1 - cosineSimilarity(a, b)
	return math.Max(0, math.Min(2, d))
}

// sortByDistance orders hits nearest first, ties by id.
func sortByDistance(hits []VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}
