package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.0.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// SQLiteMigrations contains all SQLite migrations in order
var SQLiteMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      sqliteV1Up,
		Down:    sqliteV1Down,
	},
}

const sqliteV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS lectures (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    source_path TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMP,
    embedding BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_lectures_course ON lectures(course_id);
CREATE INDEX IF NOT EXISTS idx_lectures_category ON lectures(category);
CREATE INDEX IF NOT EXISTS idx_lectures_published ON lectures(published_at);

CREATE TABLE IF NOT EXISTS lecture_chunks (
    id TEXT PRIMARY KEY,
    lecture_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    page_number INTEGER,
    content TEXT NOT NULL,
    token_count INTEGER NOT NULL,
    word_count INTEGER NOT NULL,
    char_count INTEGER NOT NULL,
    embedding BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (lecture_id) REFERENCES lectures(id) ON DELETE CASCADE,
    UNIQUE(lecture_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_lecture ON lecture_chunks(lecture_id);

CREATE TABLE IF NOT EXISTS concepts (
    id TEXT PRIMARY KEY,
    lecture_id TEXT NOT NULL,
    name TEXT NOT NULL,
    definition TEXT NOT NULL DEFAULT '',
    embedding BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (lecture_id) REFERENCES lectures(id) ON DELETE CASCADE,
    UNIQUE(lecture_id, name)
);

CREATE INDEX IF NOT EXISTS idx_concepts_lecture ON concepts(lecture_id);

-- External-content FTS5 tables; the triggers use the 'delete' command so
-- the index never drifts from the source rows.
CREATE VIRTUAL TABLE IF NOT EXISTS lecture_chunks_fts USING fts5(
    content,
    content='lecture_chunks',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS lecture_chunks_ai AFTER INSERT ON lecture_chunks BEGIN
    INSERT INTO lecture_chunks_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS lecture_chunks_ad AFTER DELETE ON lecture_chunks BEGIN
    INSERT INTO lecture_chunks_fts(lecture_chunks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS lecture_chunks_au AFTER UPDATE OF content ON lecture_chunks BEGIN
    INSERT INTO lecture_chunks_fts(lecture_chunks_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO lecture_chunks_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS lectures_fts USING fts5(
    title, description, content,
    content='lectures',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS lectures_ai AFTER INSERT ON lectures BEGIN
    INSERT INTO lectures_fts(rowid, title, description, content)
    VALUES (new.rowid, new.title, new.description, new.content);
END;

CREATE TRIGGER IF NOT EXISTS lectures_ad AFTER DELETE ON lectures BEGIN
    INSERT INTO lectures_fts(lectures_fts, rowid, title, description, content)
    VALUES ('delete', old.rowid, old.title, old.description, old.content);
END;

CREATE TRIGGER IF NOT EXISTS lectures_au AFTER UPDATE OF title, description, content ON lectures BEGIN
    INSERT INTO lectures_fts(lectures_fts, rowid, title, description, content)
    VALUES ('delete', old.rowid, old.title, old.description, old.content);
    INSERT INTO lectures_fts(rowid, title, description, content)
    VALUES (new.rowid, new.title, new.description, new.content);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS concepts_fts USING fts5(
    name, definition,
    content='concepts',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS concepts_ai AFTER INSERT ON concepts BEGIN
    INSERT INTO concepts_fts(rowid, name, definition) VALUES (new.rowid, new.name, new.definition);
END;

CREATE TRIGGER IF NOT EXISTS concepts_ad AFTER DELETE ON concepts BEGIN
    INSERT INTO concepts_fts(concepts_fts, rowid, name, definition)
    VALUES ('delete', old.rowid, old.name, old.definition);
END;

CREATE TRIGGER IF NOT EXISTS concepts_au AFTER UPDATE OF name, definition ON concepts BEGIN
    INSERT INTO concepts_fts(concepts_fts, rowid, name, definition)
    VALUES ('delete', old.rowid, old.name, old.definition);
    INSERT INTO concepts_fts(rowid, name, definition) VALUES (new.rowid, new.name, new.definition);
END;
`

const sqliteV1Down = `
DROP TRIGGER IF EXISTS concepts_au;
DROP TRIGGER IF EXISTS concepts_ad;
DROP TRIGGER IF EXISTS concepts_ai;
DROP TRIGGER IF EXISTS lectures_au;
DROP TRIGGER IF EXISTS lectures_ad;
DROP TRIGGER IF EXISTS lectures_ai;
DROP TRIGGER IF EXISTS lecture_chunks_au;
DROP TRIGGER IF EXISTS lecture_chunks_ad;
DROP TRIGGER IF EXISTS lecture_chunks_ai;

DROP TABLE IF EXISTS concepts_fts;
DROP TABLE IF EXISTS lectures_fts;
DROP TABLE IF EXISTS lecture_chunks_fts;
DROP TABLE IF EXISTS concepts;
DROP TABLE IF EXISTS lecture_chunks;
DROP TABLE IF EXISTS lectures;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS schema_version;
`

// pendingMigrations returns the migrations newer than current, in order.
// An empty current version means nothing has been applied.
func pendingMigrations(current string, all []Migration) ([]Migration, error) {
	if current == "" {
		current = "0.0.0"
	}
	currentVersion, err := semver.NewVersion(current)
	if err != nil {
		return nil, fmt.Errorf("invalid current schema version %s: %w", current, err)
	}

	var pending []Migration
	for _, migration := range all {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		// Skip if already applied
		if !currentVersion.LessThan(migrationVersion) {
			continue
		}
		pending = append(pending, migration)
		currentVersion = migrationVersion
	}
	return pending, nil
}

// sqliteSchemaVersion reads the newest applied version, or "" before the
// first migration.
func sqliteSchemaVersion(ctx context.Context, db *sql.DB) (string, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var version string
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC, version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema_version: %w", err)
	}
	return version, nil
}

// ApplyMigrations runs all pending SQLite migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := sqliteSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	pending, err := pendingMigrations(current, SQLiteMigrations)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// RollbackMigration rolls back the most recent SQLite migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := sqliteSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current == "" {
		return errors.New("no migrations to rollback")
	}

	migration := findMigration(SQLiteMigrations, current)
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", current, err)
	}

	// The down script may have dropped schema_version itself.
	_, _ = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", current)
	return nil
}

func findMigration(all []Migration, version string) *Migration {
	for i := range all {
		if all[i].Version == version {
			return &all[i]
		}
	}
	return nil
}
