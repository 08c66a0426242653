package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMigrations contains all Postgres migrations in order
var PostgresMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      postgresV1Up,
		Down:    postgresV1Down,
	},
}

const postgresV1Up = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lectures (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    source_path TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ,
    embedding vector(1536),
    search_vector tsvector GENERATED ALWAYS AS (
        setweight(to_tsvector('english', title), 'A') ||
        setweight(to_tsvector('english', description), 'B') ||
        setweight(to_tsvector('english', content), 'D')
    ) STORED,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_lectures_course ON lectures(course_id);
CREATE INDEX IF NOT EXISTS idx_lectures_category ON lectures(category);
CREATE INDEX IF NOT EXISTS idx_lectures_published ON lectures(published_at);
CREATE INDEX IF NOT EXISTS idx_lectures_search ON lectures USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_lectures_embedding ON lectures USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS lecture_chunks (
    id TEXT PRIMARY KEY,
    lecture_id TEXT NOT NULL REFERENCES lectures(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    page_number INTEGER,
    content TEXT NOT NULL,
    token_count INTEGER NOT NULL,
    word_count INTEGER NOT NULL,
    char_count INTEGER NOT NULL,
    embedding vector(1536),
    search_vector tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (lecture_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_lecture ON lecture_chunks(lecture_id);
CREATE INDEX IF NOT EXISTS idx_chunks_search ON lecture_chunks USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON lecture_chunks USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS concepts (
    id TEXT PRIMARY KEY,
    lecture_id TEXT NOT NULL REFERENCES lectures(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    definition TEXT NOT NULL DEFAULT '',
    embedding vector(1536),
    search_vector tsvector GENERATED ALWAYS AS (
        setweight(to_tsvector('english', name), 'A') ||
        setweight(to_tsvector('english', definition), 'B')
    ) STORED,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (lecture_id, name)
);

CREATE INDEX IF NOT EXISTS idx_concepts_lecture ON concepts(lecture_id);
CREATE INDEX IF NOT EXISTS idx_concepts_search ON concepts USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_concepts_embedding ON concepts USING hnsw (embedding vector_cosine_ops);
`

const postgresV1Down = `
DROP TABLE IF EXISTS concepts;
DROP TABLE IF EXISTS lecture_chunks;
DROP TABLE IF EXISTS lectures;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS schema_version;
`

func postgresSchemaVersion(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	var exists bool
	if err := pool.QueryRow(ctx, "SELECT to_regclass('schema_version') IS NOT NULL").Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if !exists {
		return "", nil
	}

	var version string
	err := pool.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema_version: %w", err)
	}
	return version, nil
}

// ApplyPostgresMigrations runs pending migrations, each in its own
// transaction.
func ApplyPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	current, err := postgresSchemaVersion(ctx, pool)
	if err != nil {
		return err
	}

	pending, err := pendingMigrations(current, PostgresMigrations)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, migration.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", migration.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}
	return nil
}

// RollbackPostgresMigration rolls back the most recent migration
func RollbackPostgresMigration(ctx context.Context, pool *pgxpool.Pool) error {
	current, err := postgresSchemaVersion(ctx, pool)
	if err != nil {
		return err
	}
	if current == "" {
		return errors.New("no migrations to rollback")
	}

	migration := findMigration(PostgresMigrations, current)
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := pool.Exec(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", current, err)
	}
	return nil
}
