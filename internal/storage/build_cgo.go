//go:build sqlite_cgo

package storage

// Compiled with the sqlite_cgo tag to use the C SQLite library:
//
//   CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

func sqliteErrorCode(err error) (int, bool) {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return int(sqliteErr.ExtendedCode), true
	}
	return 0, false
}
