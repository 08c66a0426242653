package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/studysearch/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(ctx context.Context, dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the handle for migration commands.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Course and lecture operations

func (s *SQLiteStorage) UpsertCourse(ctx context.Context, course *Course) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (id, name, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			updated_at = excluded.updated_at
	`, course.ID, course.Name, course.Category, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}
	course.UpdatedAt = now
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) UpsertLecture(ctx context.Context, lecture *Lecture) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lectures (id, course_id, title, description, content, category, source_path, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_id = excluded.course_id,
			title = excluded.title,
			description = excluded.description,
			content = excluded.content,
			category = excluded.category,
			source_path = excluded.source_path,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at
	`, lecture.ID, lecture.CourseID, lecture.Title, lecture.Description, lecture.Content,
		lecture.Category, lecture.SourcePath, utcTime(lecture.PublishedAt), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert lecture: %w", err)
	}
	lecture.UpdatedAt = now
	if lecture.CreatedAt.IsZero() {
		lecture.CreatedAt = now
	}
	return nil
}

func (s *SQLiteStorage) GetLecture(ctx context.Context, lectureID string) (*Lecture, error) {
	var l Lecture
	var publishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, title, description, content, category, source_path,
		       published_at, embedding IS NOT NULL, created_at, updated_at
		FROM lectures
		WHERE id = ?
	`, lectureID).Scan(
		&l.ID, &l.CourseID, &l.Title, &l.Description, &l.Content, &l.Category, &l.SourcePath,
		&publishedAt, &l.HasEmbedding, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		l.PublishedAt = &t
	}
	return &l, nil
}

func (s *SQLiteStorage) DeleteLecture(ctx context.Context, lectureID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lectures WHERE id = ?`, lectureID)
	if err != nil {
		return fmt.Errorf("failed to delete lecture: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk operations

// ReplaceChunks swaps a lecture's chunks in a single transaction.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, lectureID string, chunks []types.Chunk) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM lecture_chunks WHERE lecture_id = ?`, lectureID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lecture_chunks (id, lecture_id, chunk_index, page_number, content, token_count, word_count, char_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i := range chunks {
		c := &chunks[i]
		var embedding []byte
		if c.HasEmbedding() {
			embedding = serializeVector(c.Embedding)
		}
		if _, err = stmt.ExecContext(ctx, c.ID, lectureID, c.ChunkIndex, c.PageNumber, c.Content,
			c.TokenCount, c.WordCount, c.CharCount, embedding); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) ListChunksMissingEmbedding(ctx context.Context, lectureID string) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lecture_id, chunk_index, page_number, content, token_count, word_count, char_count
		FROM lecture_chunks
		WHERE lecture_id = ? AND embedding IS NULL
		ORDER BY chunk_index
	`, lectureID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]types.Chunk, 0)
	for rows.Next() {
		var c types.Chunk
		var page sql.NullInt64
		if err := rows.Scan(&c.ID, &c.SourceDocumentID, &c.ChunkIndex, &page, &c.Content,
			&c.TokenCount, &c.WordCount, &c.CharCount); err != nil {
			return nil, err
		}
		c.PageNumber = intPtr(page)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) UpdateChunkEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	return s.updateEmbedding(ctx, "lecture_chunks", chunkID, vector)
}

func (s *SQLiteStorage) UpdateLectureEmbedding(ctx context.Context, lectureID string, vector []float32) error {
	return s.updateEmbedding(ctx, "lectures", lectureID, vector)
}

func (s *SQLiteStorage) UpdateConceptEmbedding(ctx context.Context, conceptID string, vector []float32) error {
	return s.updateEmbedding(ctx, "concepts", conceptID, vector)
}

// updateEmbedding writes a vector; table is always one of our constants.
func (s *SQLiteStorage) updateEmbedding(ctx context.Context, table, id string, vector []float32) error {
	res, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET embedding = ? WHERE id = ?", serializeVector(vector), id)
	if err != nil {
		return fmt.Errorf("failed to update %s embedding: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) UpsertConcept(ctx context.Context, concept *Concept) error {
	now := time.Now().UTC()
	// Concepts are unique per lecture by name; re-ingesting keeps the id.
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO concepts (id, lecture_id, name, definition, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(lecture_id, name) DO UPDATE SET
			definition = excluded.definition,
			embedding = CASE WHEN concepts.definition = excluded.definition THEN concepts.embedding ELSE NULL END
		RETURNING id
	`, concept.ID, concept.LectureID, concept.Name, concept.Definition, now).Scan(&concept.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert concept: %w", err)
	}
	if concept.CreatedAt.IsZero() {
		concept.CreatedAt = now
	}
	return nil
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, kind types.ResultKind, vector []float32, limit int, filters Filters) ([]VectorHit, error) {
	return searchVector(ctx, s.db, kind, vector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, kind types.ResultKind, terms []string, limit int, filters Filters) ([]TextHit, error) {
	return searchText(ctx, s.db, kind, terms, limit, filters)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Backend: "sqlite-" + BuildMode}

	version, err := sqliteSchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version

	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM courses", &status.Courses},
		{"SELECT COUNT(*) FROM lectures", &status.Lectures},
		{"SELECT COUNT(*) FROM lectures WHERE embedding IS NOT NULL", &status.LecturesEmbedded},
		{"SELECT COUNT(*) FROM lecture_chunks", &status.Chunks},
		{"SELECT COUNT(*) FROM lecture_chunks WHERE embedding IS NOT NULL", &status.ChunksEmbedded},
		{"SELECT COUNT(*) FROM concepts", &status.Concepts},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.ChunksEmbedded > 0,
		FTSIndexesBuilt:     version != "",
	}

	return status, nil
}

func utcTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
