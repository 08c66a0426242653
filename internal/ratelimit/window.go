package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the sliding window length for per-minute budgets.
const DefaultWindow = time.Minute

// Window is a sliding log of request timestamps. Implementations must be
// safe for concurrent use; the Redis implementation is also safe across
// processes.
type Window interface {
	// Record unconditionally logs one request at now and returns the
	// in-window count including it.
	Record(ctx context.Context, now time.Time) (int, error)

	// Reserve logs one request at now only if fewer than limit requests are
	// already in the window. It returns the in-window count after the call
	// and whether the request was logged. A limit <= 0 never rejects.
	Reserve(ctx context.Context, now time.Time, limit int) (int, bool, error)

	// Count returns the number of requests inside the window ending at now.
	Count(ctx context.Context, now time.Time) (int, error)

	// Oldest returns the timestamp of the oldest in-window request, or the
	// zero time if the window is empty.
	Oldest(ctx context.Context, now time.Time) (time.Time, error)

	// Size is the window length.
	Size() time.Duration

	Close() error
}

// MemoryWindow keeps timestamps in process memory.
type MemoryWindow struct {
	size time.Duration

	mu    sync.Mutex
	times []time.Time
}

// NewMemoryWindow creates an in-process window of the given length.
func NewMemoryWindow(size time.Duration) *MemoryWindow {
	if size <= 0 {
		size = DefaultWindow
	}
	return &MemoryWindow{size: size}
}

// evict drops timestamps at or before now-size. Callers hold mu.
func (w *MemoryWindow) evict(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

func (w *MemoryWindow) Record(_ context.Context, now time.Time) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	w.insert(now)
	return len(w.times), nil
}

func (w *MemoryWindow) Reserve(_ context.Context, now time.Time, limit int) (int, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	if limit > 0 && len(w.times) >= limit {
		return len(w.times), false, nil
	}
	w.insert(now)
	return len(w.times), true, nil
}

// insert keeps times sorted even if callers pass a clock that is not
// monotonic across goroutines.
func (w *MemoryWindow) insert(now time.Time) {
	i := len(w.times)
	for i > 0 && w.times[i-1].After(now) {
		i--
	}
	w.times = append(w.times, time.Time{})
	copy(w.times[i+1:], w.times[i:])
	w.times[i] = now
}

func (w *MemoryWindow) Count(_ context.Context, now time.Time) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	return len(w.times), nil
}

func (w *MemoryWindow) Oldest(_ context.Context, now time.Time) (time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	if len(w.times) == 0 {
		return time.Time{}, nil
	}
	return w.times[0], nil
}

func (w *MemoryWindow) Size() time.Duration {
	return w.size
}

func (w *MemoryWindow) Close() error {
	return nil
}
