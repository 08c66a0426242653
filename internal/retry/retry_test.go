package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("upstream unavailable")
	errPermanent = errors.New("malformed input")
)

func testClassify(err error) Classification {
	switch {
	case errors.Is(err, errTransient):
		return Classification{Kind: KindUnavailable}
	case errors.Is(err, errPermanent):
		return Classification{Kind: KindInvalidInput}
	}
	return DefaultClassify(err)
}

// recordSleeps returns a Sleep func that records delays without waiting.
func recordSleeps(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func testPolicy(delays *[]time.Duration) Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Classify:    testClassify,
		Sleep:       recordSleeps(delays),
	}
}

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3} {
		var delays []time.Duration
		var calls int
		res := Execute(context.Background(), testPolicy(&delays), "embed", func(ctx context.Context) (string, error) {
			calls++
			if calls <= n {
				return "", errTransient
			}
			return "ok", nil
		})

		require.True(t, res.OK(), "n=%d", n)
		assert.Equal(t, "ok", res.Value)
		assert.Equal(t, n+1, calls, "n=%d: expected exactly n+1 calls", n)
		assert.Equal(t, n+1, res.Attempts)
		assert.Len(t, delays, n)
	}
}

func TestExecutePermanentErrorNotRetried(t *testing.T) {
	var delays []time.Duration
	var calls int
	res := Execute(context.Background(), testPolicy(&delays), "embed", func(ctx context.Context) (int, error) {
		calls++
		return 0, errPermanent
	})

	require.False(t, res.OK())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.Permanent())
	assert.Equal(t, KindInvalidInput, res.Err.Kind)
	assert.ErrorIs(t, res.Error(), errPermanent)
	assert.Empty(t, delays)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	var calls int
	res := Execute(context.Background(), testPolicy(&delays), "vector_search", func(ctx context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	require.False(t, res.OK())
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, res.Attempts)
	assert.False(t, res.Permanent(), "exhausted transient failures stay transient")
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, delays)
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt    int
		retryAfter time.Duration
		want       time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 5 * time.Second},
		{attempt: 10, want: 5 * time.Second},
		{attempt: 0, retryAfter: 7 * time.Second, want: 7 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt, tt.retryAfter), "attempt %d", tt.attempt)
	}
}

func TestDelayJitterStaysInBounds(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 2, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := p.Delay(0, 0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestExecuteRetryAfterOverridesBackoff(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)
	p.Classify = func(err error) Classification {
		return Classification{Kind: KindRateLimited, RetryAfter: 3 * time.Second}
	}

	var calls int
	res := Execute(context.Background(), p, "embed", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("429")
		}
		return 1, nil
	})

	require.True(t, res.OK())
	assert.Equal(t, []time.Duration{3 * time.Second}, delays)
}

func TestExecuteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	res := Execute(ctx, Policy{MaxAttempts: 5, Classify: testClassify}, "embed", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errTransient
	})

	require.False(t, res.OK())
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindCanceled, res.Err.Kind)
}

func TestExecuteAttemptTimeoutIsTransient(t *testing.T) {
	var delays []time.Duration
	p := testPolicy(&delays)
	p.MaxAttempts = 2
	p.AttemptTimeout = 10 * time.Millisecond

	var calls int32
	res := Execute(context.Background(), p, "keyword_search", func(ctx context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 42, nil
	})

	require.True(t, res.OK())
	assert.Equal(t, 42, res.Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, delays, 1)
}

func TestClassifyKnown(t *testing.T) {
	c, ok := ClassifyKnown(context.DeadlineExceeded)
	require.True(t, ok)
	assert.Equal(t, KindTimeout, c.Kind)

	c, ok = ClassifyKnown(&Error{Kind: KindRateLimited, RetryAfter: time.Second})
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, c.Kind)
	assert.Equal(t, time.Second, c.RetryAfter)

	_, ok = ClassifyKnown(errors.New("boom"))
	assert.False(t, ok)
	assert.Equal(t, KindUnknown, DefaultClassify(errors.New("boom")).Kind)
	assert.False(t, KindUnknown.Transient())
}
