//go:build !sqlite_cgo

package storage

// Default build: pure Go SQLite, no C compiler required. FTS5 is built in.
//
// Driver used: modernc.org/sqlite

import (
	"errors"

	"modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)

func sqliteErrorCode(err error) (int, bool) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code(), true
	}
	return 0, false
}
