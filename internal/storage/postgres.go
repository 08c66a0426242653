package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/dshills/studysearch/pkg/types"
)

// PostgresStorage implements Storage on Postgres with the pgvector
// extension. Vector search uses the <=> cosine distance operator and keyword
// search ranks generated tsvector columns with ts_rank.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects, pings and migrates.
func NewPostgresStorage(ctx context.Context, url string, maxConns int32) (*PostgresStorage, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := ApplyPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Pool exposes the pool for migration commands.
func (p *PostgresStorage) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStorage) UpsertCourse(ctx context.Context, course *Course) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO courses (id, name, category)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, course.ID, course.Name, course.Category).Scan(&course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}
	return nil
}

func (p *PostgresStorage) UpsertLecture(ctx context.Context, lecture *Lecture) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO lectures (id, course_id, title, description, content, category, source_path, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			content = EXCLUDED.content,
			category = EXCLUDED.category,
			source_path = EXCLUDED.source_path,
			published_at = EXCLUDED.published_at,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`, lecture.ID, lecture.CourseID, lecture.Title, lecture.Description, lecture.Content,
		lecture.Category, lecture.SourcePath, utcTime(lecture.PublishedAt)).Scan(&lecture.CreatedAt, &lecture.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert lecture: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetLecture(ctx context.Context, lectureID string) (*Lecture, error) {
	var l Lecture
	err := p.pool.QueryRow(ctx, `
		SELECT id, course_id, title, description, content, category, source_path,
		       published_at, embedding IS NOT NULL, created_at, updated_at
		FROM lectures
		WHERE id = $1
	`, lectureID).Scan(
		&l.ID, &l.CourseID, &l.Title, &l.Description, &l.Content, &l.Category, &l.SourcePath,
		&l.PublishedAt, &l.HasEmbedding, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (p *PostgresStorage) DeleteLecture(ctx context.Context, lectureID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM lectures WHERE id = $1`, lectureID)
	if err != nil {
		return fmt.Errorf("failed to delete lecture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceChunks swaps a lecture's chunks in one transaction, sending the
// inserts as a single batch.
func (p *PostgresStorage) ReplaceChunks(ctx context.Context, lectureID string, chunks []types.Chunk) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM lecture_chunks WHERE lecture_id = $1`, lectureID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range chunks {
			c := &chunks[i]
			var embedding any
			if c.HasEmbedding() {
				embedding = pgvector.NewVector(c.Embedding)
			}
			batch.Queue(`
				INSERT INTO lecture_chunks (id, lecture_id, chunk_index, page_number, content, token_count, word_count, char_count, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, c.ID, lectureID, c.ChunkIndex, c.PageNumber, c.Content, c.TokenCount, c.WordCount, c.CharCount, embedding)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
}

func (p *PostgresStorage) ListChunksMissingEmbedding(ctx context.Context, lectureID string) ([]types.Chunk, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, lecture_id, chunk_index, page_number, content, token_count, word_count, char_count
		FROM lecture_chunks
		WHERE lecture_id = $1 AND embedding IS NULL
		ORDER BY chunk_index
	`, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]types.Chunk, 0)
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.ID, &c.SourceDocumentID, &c.ChunkIndex, &c.PageNumber, &c.Content,
			&c.TokenCount, &c.WordCount, &c.CharCount); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (p *PostgresStorage) UpdateChunkEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	return p.updateEmbedding(ctx, "lecture_chunks", chunkID, vector)
}

func (p *PostgresStorage) UpdateLectureEmbedding(ctx context.Context, lectureID string, vector []float32) error {
	return p.updateEmbedding(ctx, "lectures", lectureID, vector)
}

func (p *PostgresStorage) UpdateConceptEmbedding(ctx context.Context, conceptID string, vector []float32) error {
	return p.updateEmbedding(ctx, "concepts", conceptID, vector)
}

func (p *PostgresStorage) updateEmbedding(ctx context.Context, table, id string, vector []float32) error {
	tag, err := p.pool.Exec(ctx, "UPDATE "+table+" SET embedding = $1 WHERE id = $2", pgvector.NewVector(vector), id)
	if err != nil {
		return fmt.Errorf("failed to update %s embedding: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) UpsertConcept(ctx context.Context, concept *Concept) error {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO concepts (id, lecture_id, name, definition)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lecture_id, name) DO UPDATE SET
			definition = EXCLUDED.definition,
			embedding = CASE WHEN concepts.definition = EXCLUDED.definition THEN concepts.embedding ELSE NULL END
		RETURNING id, created_at
	`, concept.ID, concept.LectureID, concept.Name, concept.Definition).Scan(&concept.ID, &concept.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert concept: %w", err)
	}
	return nil
}

// pgKind mirrors sqliteKind for the Postgres dialect.
type pgKind struct {
	columns string
	from    string
	alias   string
	rank    string
}

const pgHitColumns = `, l.id, l.title, l.category, l.published_at, co.id, co.name`

var pgKinds = map[types.ResultKind]pgKind{
	types.KindChunk: {
		columns: `ch.id, l.title, ch.content, ch.chunk_index, ch.page_number` + pgHitColumns,
		from:    `lecture_chunks ch JOIN lectures l ON l.id = ch.lecture_id JOIN courses co ON co.id = l.course_id`,
		alias:   "ch",
	},
	types.KindLecture: {
		columns: `l.id, l.title, TRIM(l.description || ' ' || l.content), 0, NULL::int` + pgHitColumns,
		from:    `lectures l JOIN courses co ON co.id = l.course_id`,
		alias:   "l",
	},
	types.KindConcept: {
		columns: `cp.id, cp.name, cp.definition, 0, NULL::int` + pgHitColumns,
		from:    `concepts cp JOIN lectures l ON l.id = cp.lecture_id JOIN courses co ON co.id = l.course_id`,
		alias:   "cp",
	},
}

func (p *PostgresStorage) SearchVector(ctx context.Context, kind types.ResultKind, vector []float32, limit int, filters Filters) ([]VectorHit, error) {
	k, ok := pgKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	if limit <= 0 {
		return []VectorHit{}, nil
	}

	args := pgArgs{pgvector.NewVector(vector)}
	distance := k.alias + ".embedding <=> $1"
	clauses := filterClauses(filters, args.bind)
	if filters.MaxDistance != nil {
		clauses = append(clauses, distance+" <= "+args.bind(*filters.MaxDistance))
	}

	query := "SELECT " + k.columns + ", " + distance + " AS distance" +
		" FROM " + k.from +
		" WHERE " + k.alias + ".embedding IS NOT NULL" +
		whereClause(clauses) +
		" ORDER BY distance, " + k.alias + ".id" +
		" LIMIT " + args.bind(limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]VectorHit, 0, limit)
	for rows.Next() {
		var hit VectorHit
		if err := scanPgHit(rows, &hit.Hit, &hit.Distance); err != nil {
			return nil, err
		}
		hit.Kind = kind
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (p *PostgresStorage) SearchText(ctx context.Context, kind types.ResultKind, terms []string, limit int, filters Filters) ([]TextHit, error) {
	k, ok := pgKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	tsQuery := buildTSQuery(terms)
	if tsQuery == "" || limit <= 0 {
		return []TextHit{}, nil
	}

	args := pgArgs{tsQuery}
	search := k.alias + ".search_vector"
	query := "SELECT " + k.columns + ", ts_rank(" + search + ", to_tsquery('english', $1)) AS score" +
		" FROM " + k.from +
		" WHERE " + search + " @@ to_tsquery('english', $1)" +
		whereClause(filterClauses(filters, args.bind)) +
		" ORDER BY score DESC, " + k.alias + ".id" +
		" LIMIT " + args.bind(limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute text search: %w", err)
	}
	defer rows.Close()

	hits := make([]TextHit, 0, limit)
	for rows.Next() {
		var hit TextHit
		var score float32
		if err := scanPgHit(rows, &hit.Hit, &score); err != nil {
			return nil, err
		}
		hit.Kind = kind
		hit.Score = float64(score)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func scanPgHit(rows pgx.Rows, h *Hit, extra any) error {
	if err := rows.Scan(&h.ID, &h.Title, &h.Content, &h.ChunkIndex, &h.PageNumber,
		&h.LectureID, &h.LectureTitle, &h.Category, &h.PublishedAt,
		&h.CourseID, &h.CourseName, extra); err != nil {
		return fmt.Errorf("failed to scan result: %w", err)
	}
	return nil
}

// buildTSQuery ORs the terms for to_tsquery. Anything but letters and
// digits is dropped so no term can inject tsquery operators.
func buildTSQuery(terms []string) string {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, t)
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, " | ")
}

func (p *PostgresStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Backend: "postgres"}

	version, err := postgresSchemaVersion(ctx, p.pool)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version

	var size int64
	err = p.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM courses),
			(SELECT COUNT(*) FROM lectures),
			(SELECT COUNT(*) FROM lectures WHERE embedding IS NOT NULL),
			(SELECT COUNT(*) FROM lecture_chunks),
			(SELECT COUNT(*) FROM lecture_chunks WHERE embedding IS NOT NULL),
			(SELECT COUNT(*) FROM concepts),
			pg_database_size(current_database())
	`).Scan(&status.Courses, &status.Lectures, &status.LecturesEmbedded,
		&status.Chunks, &status.ChunksEmbedded, &status.Concepts, &size)
	if err != nil {
		return nil, err
	}
	status.IndexSizeMB = float64(size) / (1024 * 1024)

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.ChunksEmbedded > 0,
		FTSIndexesBuilt:     version != "",
	}
	return status, nil
}
