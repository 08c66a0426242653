package storage

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dshills/studysearch/internal/retry"
)

// SQLite primary result codes
const (
	sqliteError     = 1
	sqliteBusy      = 5
	sqliteLocked    = 6
	sqliteInterrupt = 9
	sqliteFull      = 13
	sqliteCantOpen  = 14
	sqliteConstrain = 19
)

// Classify maps storage errors from either backend onto the retry taxonomy.
// Lock contention and pool pressure are transient; statement and constraint
// errors are permanent.
func Classify(err error) retry.Classification {
	if c, ok := retry.ClassifyKnown(err); ok {
		return c
	}
	if c, ok := classifyPostgres(err); ok {
		return c
	}
	if c, ok := classifySQLite(err); ok {
		return c
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupportedKind) {
		return retry.Classification{Kind: retry.KindInvalidInput}
	}
	return retry.Classification{Kind: retry.KindUnknown}
}

func classifyPostgres(err error) (retry.Classification, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retry.Classification{Kind: pgCodeKind(pgErr.Code)}, true
	}

	if pgconn.Timeout(err) {
		return retry.Classification{Kind: retry.KindTimeout}, true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return retry.Classification{Kind: retry.KindNetwork}, true
	}
	if pgconn.SafeToRetry(err) {
		return retry.Classification{Kind: retry.KindNetwork}, true
	}
	return retry.Classification{}, false
}

func pgCodeKind(code string) retry.ErrorKind {
	switch code {
	case "40001", "40P01", "55P03":
		return retry.KindContention
	case "53300":
		return retry.KindPoolExhausted
	case "57P01", "57P02", "57P03", "53000", "53100", "53200":
		return retry.KindUnavailable
	case "57014":
		return retry.KindQueryTooComplex
	}

	switch {
	case strings.HasPrefix(code, "08"):
		return retry.KindNetwork
	case strings.HasPrefix(code, "23"):
		return retry.KindConstraint
	case strings.HasPrefix(code, "42"), strings.HasPrefix(code, "22"):
		return retry.KindInvalidInput
	case strings.HasPrefix(code, "28"):
		return retry.KindAuth
	}
	return retry.KindUnknown
}

func classifySQLite(err error) (retry.Classification, bool) {
	code, ok := sqliteErrorCode(err)
	if !ok {
		return retry.Classification{}, false
	}

	switch code & 0xff {
	case sqliteBusy, sqliteLocked:
		return retry.Classification{Kind: retry.KindContention}, true
	case sqliteInterrupt:
		return retry.Classification{Kind: retry.KindTimeout}, true
	case sqliteCantOpen, sqliteFull:
		return retry.Classification{Kind: retry.KindUnavailable}, true
	case sqliteConstrain:
		return retry.Classification{Kind: retry.KindConstraint}, true
	case sqliteError:
		return retry.Classification{Kind: retry.KindInvalidInput}, true
	}
	return retry.Classification{Kind: retry.KindUnknown}, true
}
