package embedder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/dshills/studysearch/internal/retry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       retry.ErrorKind
		retryAfter time.Duration
	}{
		{name: "429", err: &HTTPError{StatusCode: 429, RetryAfter: 2 * time.Second}, want: retry.KindRateLimited, retryAfter: 2 * time.Second},
		{name: "408", err: &HTTPError{StatusCode: 408}, want: retry.KindTimeout},
		{name: "500", err: &HTTPError{StatusCode: 500}, want: retry.KindUnavailable},
		{name: "503", err: &HTTPError{StatusCode: 503}, want: retry.KindUnavailable},
		{name: "504", err: &HTTPError{StatusCode: 504}, want: retry.KindTimeout},
		{name: "400", err: &HTTPError{StatusCode: 400}, want: retry.KindInvalidInput},
		{name: "413", err: &HTTPError{StatusCode: 413}, want: retry.KindInvalidInput},
		{name: "401", err: &HTTPError{StatusCode: 401}, want: retry.KindAuth},
		{name: "403", err: &HTTPError{StatusCode: 403}, want: retry.KindAuth},
		{name: "wrapped http", err: fmt.Errorf("call: %w", &HTTPError{StatusCode: 429}), want: retry.KindRateLimited},
		{name: "deadline", err: context.DeadlineExceeded, want: retry.KindTimeout},
		{name: "canceled", err: context.Canceled, want: retry.KindCanceled},
		{name: "empty text", err: ErrEmptyText, want: retry.KindInvalidInput},
		{name: "dimension", err: fmt.Errorf("%w: got 3", ErrDimensionMismatch), want: retry.KindInvalidInput},
		{name: "unknown", err: errors.New("mystery"), want: retry.KindUnknown},
		{
			name: "genai resource exhausted with retry info",
			err: genai.APIError{
				Code:   429,
				Status: "RESOURCE_EXHAUSTED",
				Details: []map[string]any{
					{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "3s"},
				},
			},
			want:       retry.KindRateLimited,
			retryAfter: 3 * time.Second,
		},
		{name: "genai unavailable", err: genai.APIError{Code: 503, Status: "UNAVAILABLE"}, want: retry.KindUnavailable},
		{name: "genai bad argument", err: genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, want: retry.KindInvalidInput},
		{name: "genai auth", err: genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, want: retry.KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.retryAfter, got.RetryAfter)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter("Wed, 01 Jan 2025 12:00:30 GMT", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 01 Jan 2025 11:00:00 GMT", now))
}
