package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/studysearch/internal/metrics"
)

// Defaults for Config
const (
	DefaultRequestsPerMinute = 3000
	DefaultWarnThreshold     = 0.8
	DefaultPollInterval      = 250 * time.Millisecond
)

// Status is a snapshot of the per-minute budget.
type Status struct {
	RequestsInLastMinute int `json:"requests_in_last_minute"`
	AvailableRequests    int `json:"available_requests"`
	Limit                int `json:"limit"`
}

// Config configures a Limiter.
type Config struct {
	// RequestsPerMinute is the budget; <= 0 disables waiting but requests are
	// still counted.
	RequestsPerMinute int

	// WarnThreshold is the fraction of the budget at which OnWarn fires.
	WarnThreshold float64
	OnWarn        func(Status)

	// PollInterval caps how long Acquire sleeps before rechecking a full
	// window.
	PollInterval time.Duration

	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *metrics.Metrics
}

// Limiter enforces a sliding-window request budget over a Window.
type Limiter struct {
	window Window
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	warned bool
}

// New creates a Limiter over window.
func New(window Window, cfg Config, logger zerolog.Logger) *Limiter {
	if window == nil {
		window = NewMemoryWindow(DefaultWindow)
	}
	if cfg.WarnThreshold <= 0 || cfg.WarnThreshold > 1 {
		cfg.WarnThreshold = DefaultWarnThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Limiter{
		window: window,
		cfg:    cfg,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Acquire takes one unit of budget, waiting while the window is full.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		now := l.cfg.Now()
		count, ok, err := l.window.Reserve(ctx, now, l.cfg.RequestsPerMinute)
		if err != nil {
			return err
		}
		if ok {
			l.observe(count)
			return nil
		}

		wait := l.cfg.PollInterval
		if oldest, err := l.window.Oldest(ctx, now); err == nil && !oldest.IsZero() {
			if d := oldest.Add(l.window.Size()).Sub(now); d > 0 && d < wait {
				wait = d
			}
		}

		l.logger.Debug().
			Int("in_window", count).
			Int("limit", l.cfg.RequestsPerMinute).
			Dur("wait", wait).
			Msg("Rate limit reached, waiting")

		if err := l.cfg.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("waiting for rate limit: %w", err)
		}
	}
}

// Record counts one request without waiting.
func (l *Limiter) Record(ctx context.Context) error {
	count, err := l.window.Record(ctx, l.cfg.Now())
	if err != nil {
		return err
	}
	l.observe(count)
	return nil
}

// Status reports current usage. A window read error is logged and reported
// as an empty window.
func (l *Limiter) Status(ctx context.Context) Status {
	count, err := l.window.Count(ctx, l.cfg.Now())
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to read rate limit window")
		count = 0
	}
	l.rearm(count)
	return l.status(count)
}

// Close releases the window.
func (l *Limiter) Close() error {
	return l.window.Close()
}

func (l *Limiter) status(count int) Status {
	s := Status{RequestsInLastMinute: count, Limit: l.cfg.RequestsPerMinute}
	if l.cfg.RequestsPerMinute > 0 {
		s.AvailableRequests = max(0, l.cfg.RequestsPerMinute-count)
	}
	return s
}

func (l *Limiter) crossed(count int) bool {
	if l.cfg.RequestsPerMinute <= 0 {
		return false
	}
	return float64(count) >= l.cfg.WarnThreshold*float64(l.cfg.RequestsPerMinute)
}

// observe fires the warning once per upward crossing of the threshold.
func (l *Limiter) observe(count int) {
	l.cfg.Metrics.RateLimitUsage(count)

	if !l.crossed(count) {
		l.rearm(count)
		return
	}

	l.mu.Lock()
	fire := !l.warned
	l.warned = true
	l.mu.Unlock()

	if !fire {
		return
	}

	s := l.status(count)
	l.logger.Warn().
		Int("in_window", s.RequestsInLastMinute).
		Int("limit", s.Limit).
		Float64("threshold", l.cfg.WarnThreshold).
		Msg("Embedding rate limit nearly exhausted")
	if l.cfg.OnWarn != nil {
		l.cfg.OnWarn(s)
	}
}

func (l *Limiter) rearm(count int) {
	if l.crossed(count) {
		return
	}
	l.mu.Lock()
	l.warned = false
	l.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
