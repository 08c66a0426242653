package embedder

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/dshills/studysearch/internal/retry"
)

// HTTPError is returned by HTTP providers for non-2xx responses.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// Classify maps provider errors onto the retry taxonomy. Rate limits,
// timeouts and server errors are transient; malformed input and
// authentication failures are permanent.
func Classify(err error) retry.Classification {
	if c, ok := retry.ClassifyKnown(err); ok {
		return c
	}

	switch {
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrDimensionMismatch):
		return retry.Classification{Kind: retry.KindInvalidInput}
	case errors.Is(err, ErrEmptyResponse):
		return retry.Classification{Kind: retry.KindUnavailable}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode, "", httpErr.RetryAfter)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Status, retryInfoDelay(apiErr.Details))
	}

	return retry.Classification{Kind: retry.KindUnknown}
}

func classifyStatus(code int, status string, retryAfter time.Duration) retry.Classification {
	switch strings.ToUpper(status) {
	case "RESOURCE_EXHAUSTED":
		return retry.Classification{Kind: retry.KindRateLimited, RetryAfter: retryAfter}
	case "UNAVAILABLE":
		return retry.Classification{Kind: retry.KindUnavailable, RetryAfter: retryAfter}
	case "DEADLINE_EXCEEDED":
		return retry.Classification{Kind: retry.KindTimeout}
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return retry.Classification{Kind: retry.KindAuth}
	case "INVALID_ARGUMENT":
		return retry.Classification{Kind: retry.KindInvalidInput}
	}

	switch {
	case code == http.StatusTooManyRequests:
		return retry.Classification{Kind: retry.KindRateLimited, RetryAfter: retryAfter}
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return retry.Classification{Kind: retry.KindTimeout}
	case code >= 500:
		return retry.Classification{Kind: retry.KindUnavailable, RetryAfter: retryAfter}
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return retry.Classification{Kind: retry.KindAuth}
	case code >= 400:
		return retry.Classification{Kind: retry.KindInvalidInput}
	}
	return retry.Classification{Kind: retry.KindUnknown}
}

// parseRetryAfter reads a Retry-After header in either seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// retryInfoDelay extracts google.rpc.RetryInfo.retryDelay from API error details.
func retryInfoDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		typ, _ := d["@type"].(string)
		if !strings.HasSuffix(typ, "RetryInfo") {
			continue
		}
		raw, _ := d["retryDelay"].(string)
		if delay, err := time.ParseDuration(raw); err == nil && delay > 0 {
			return delay
		}
	}
	return 0
}
