package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/studysearch/internal/retry"
)

func TestClassifyPostgresCodes(t *testing.T) {
	tests := []struct {
		code string
		want retry.ErrorKind
	}{
		{"40001", retry.KindContention},
		{"40P01", retry.KindContention},
		{"55P03", retry.KindContention},
		{"53300", retry.KindPoolExhausted},
		{"57P01", retry.KindUnavailable},
		{"53100", retry.KindUnavailable},
		{"57014", retry.KindQueryTooComplex},
		{"08006", retry.KindNetwork},
		{"23505", retry.KindConstraint},
		{"42P01", retry.KindInvalidInput},
		{"22P02", retry.KindInvalidInput},
		{"28P01", retry.KindAuth},
		{"XX000", retry.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("query failed: %w", &pgconn.PgError{Code: tt.code, Message: "boom"})
			assert.Equal(t, tt.want, Classify(err).Kind)
		})
	}
}

func TestClassifyGenericErrors(t *testing.T) {
	assert.Equal(t, retry.KindCanceled, Classify(context.Canceled).Kind)
	assert.Equal(t, retry.KindTimeout, Classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, retry.KindInvalidInput, Classify(ErrNotFound).Kind)
	assert.Equal(t, retry.KindUnknown, Classify(errors.New("mystery")).Kind)
}

func TestClassifySQLiteErrors(t *testing.T) {
	s := setupTestDB(t)

	_, err := s.DB().ExecContext(context.Background(), "SELEC nonsense")
	require.Error(t, err)
	assert.Equal(t, retry.KindInvalidInput, Classify(err).Kind)
	assert.False(t, Classify(err).Kind.Transient())
}
