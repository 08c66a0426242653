package storage

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Driver   string
	Path     string // SQLite file, or ":memory:"
	URL      string // Postgres connection string
	MaxConns int32
}

// Open creates the configured backend and applies pending migrations.
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch strings.ToLower(opts.Driver) {
	case "", BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSQLiteStorage(ctx, opts.Path)
	case BackendPostgres, "postgresql", "pgvector":
		if opts.URL == "" {
			return nil, fmt.Errorf("postgres backend requires a url")
		}
		return NewPostgresStorage(ctx, opts.URL, opts.MaxConns)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
}

// Migrate applies pending migrations for an already open store and returns
// the resulting schema version.
func Migrate(ctx context.Context, s Storage) (string, error) {
	switch st := s.(type) {
	case *SQLiteStorage:
		if err := ApplyMigrations(ctx, st.db); err != nil {
			return "", err
		}
		return sqliteSchemaVersion(ctx, st.db)
	case *PostgresStorage:
		if err := ApplyPostgresMigrations(ctx, st.pool); err != nil {
			return "", err
		}
		return postgresSchemaVersion(ctx, st.pool)
	default:
		return "", fmt.Errorf("migrations not supported for %T", s)
	}
}

// Rollback reverts the newest migration of an open store.
func Rollback(ctx context.Context, s Storage) error {
	switch st := s.(type) {
	case *SQLiteStorage:
		return RollbackMigration(ctx, st.db)
	case *PostgresStorage:
		return RollbackPostgresMigration(ctx, st.pool)
	default:
		return fmt.Errorf("migrations not supported for %T", s)
	}
}
