package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryWindowSlides(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	w := NewMemoryWindow(time.Minute)

	for range 3 {
		_, err := w.Record(ctx, clock.Now())
		require.NoError(t, err)
		clock.Advance(20 * time.Second)
	}

	n, _ := w.Count(ctx, clock.Now())
	assert.Equal(t, 2, n, "first request is exactly one minute old")

	oldest, _ := w.Oldest(ctx, clock.Now())
	assert.Equal(t, clock.Now().Add(-40*time.Second), oldest)

	clock.Advance(time.Minute)
	n, _ = w.Count(ctx, clock.Now())
	assert.Equal(t, 0, n)

	assert.Equal(t, DefaultWindow, NewMemoryWindow(0).Size())
}

func TestMemoryWindowReserve(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	w := NewMemoryWindow(time.Minute)

	for i := 1; i <= 2; i++ {
		n, ok, err := w.Reserve(ctx, now, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, n)
	}

	n, ok, err := w.Reserve(ctx, now, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, n)

	_, ok, _ = w.Reserve(ctx, now, 0)
	assert.True(t, ok, "zero limit never rejects")
}

func TestLimiterStatus(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := New(NewMemoryWindow(time.Minute), Config{RequestsPerMinute: 10, Now: clock.Now}, zerolog.Nop())

	for range 4 {
		require.NoError(t, l.Acquire(ctx))
	}
	require.NoError(t, l.Record(ctx))

	s := l.Status(ctx)
	assert.Equal(t, Status{RequestsInLastMinute: 5, AvailableRequests: 5, Limit: 10}, s)

	clock.Advance(61 * time.Second)
	s = l.Status(ctx)
	assert.Equal(t, 0, s.RequestsInLastMinute)
	assert.Equal(t, 10, s.AvailableRequests)
}

func TestLimiterWarnsOncePerCrossing(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	var warnings []Status
	l := New(NewMemoryWindow(time.Minute), Config{
		RequestsPerMinute: 10,
		WarnThreshold:     0.8,
		OnWarn:            func(s Status) { warnings = append(warnings, s) },
		Now:               clock.Now,
	}, zerolog.Nop())

	for range 7 {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Empty(t, warnings)

	require.NoError(t, l.Acquire(ctx))
	require.Len(t, warnings, 1)
	assert.Equal(t, 8, warnings[0].RequestsInLastMinute)
	assert.Equal(t, 2, warnings[0].AvailableRequests)

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Len(t, warnings, 1, "no repeat while above threshold")

	clock.Advance(2 * time.Minute)
	for range 8 {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Len(t, warnings, 2, "re-armed after usage dropped")
}

func TestLimiterAcquireWaitsWhenFull(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	var slept []time.Duration
	l := New(NewMemoryWindow(time.Minute), Config{
		RequestsPerMinute: 2,
		PollInterval:      10 * time.Second,
		Now:               clock.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			clock.Advance(d)
			return nil
		},
	}, zerolog.Nop())

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Empty(t, slept)

	require.NoError(t, l.Acquire(ctx))
	require.NotEmpty(t, slept)

	var total time.Duration
	for _, d := range slept {
		assert.LessOrEqual(t, d, 10*time.Second)
		total += d
	}
	assert.GreaterOrEqual(t, total, time.Minute)
	assert.Equal(t, 1, l.Status(ctx).RequestsInLastMinute, "both earlier requests aged out")
}

func TestLimiterWaitFollowsWindowSize(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	var slept []time.Duration
	l := New(NewMemoryWindow(10*time.Second), Config{
		RequestsPerMinute: 1,
		PollInterval:      30 * time.Second,
		Now:               clock.Now,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			clock.Advance(d)
			return nil
		},
	}, zerolog.Nop())

	require.NoError(t, l.Acquire(ctx))
	clock.Advance(4 * time.Second)
	require.NoError(t, l.Acquire(ctx))

	assert.Equal(t, []time.Duration{6 * time.Second}, slept, "wait until the oldest request leaves a 10s window")
}

func TestLimiterAcquireRespectsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock()

	l := New(NewMemoryWindow(time.Minute), Config{
		RequestsPerMinute: 1,
		Now:               clock.Now,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, zerolog.Nop())

	require.NoError(t, l.Acquire(ctx))
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, l.Status(context.Background()).RequestsInLastMinute)
}

func TestLimiterUnlimitedStillCounts(t *testing.T) {
	ctx := context.Background()
	l := New(nil, Config{}, zerolog.Nop())

	for range 50 {
		require.NoError(t, l.Acquire(ctx))
	}
	s := l.Status(ctx)
	assert.Equal(t, 50, s.RequestsInLastMinute)
	assert.Equal(t, 0, s.AvailableRequests)
	assert.Equal(t, 0, s.Limit)
}

func TestLimiterConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryWindow(time.Minute), Config{RequestsPerMinute: 1000}, zerolog.Nop())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_ = l.Acquire(ctx)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, l.Status(ctx).RequestsInLastMinute)
}
