package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/studysearch/internal/metrics"
)

// Defaults applied by Policy.withDefaults
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMultiplier  = 2.0
)

// Policy configures how an operation is retried.
type Policy struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Cap on the computed delay
	Multiplier  float64       // Exponential backoff multiplier
	Jitter      float64       // Fraction of the delay to randomize, 0..1

	// AttemptTimeout bounds each attempt; zero leaves attempts unbounded.
	AttemptTimeout time.Duration

	Classify Classifier
	Breaker  *Breaker

	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.Classify == nil {
		p.Classify = DefaultClassify
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay returns the wait before retry number attempt (zero-indexed).
// A positive retryAfter overrides the computed backoff.
func (p Policy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
		d = math.Max(0, math.Min(d, float64(p.MaxDelay)))
	}

	return time.Duration(d)
}

// Result is the outcome of Execute. Err is nil on success.
type Result[T any] struct {
	Value    T
	Attempts int
	Err      *Error
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Permanent reports whether the terminal error was classified permanent.
func (r Result[T]) Permanent() bool {
	return r.Err != nil && r.Err.Permanent()
}

// Error returns the terminal error as a plain error value, nil on success.
func (r Result[T]) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Execute runs fn under policy p. Transient failures are retried with
// exponential backoff until MaxAttempts is reached; permanent failures and
// cancellation of ctx stop immediately. The terminal error is always a
// classified *Error.
func Execute[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) Result[T] {
	p = p.withDefaults()
	log := p.Logger.With().Str("op", op).Logger()

	if err := p.Breaker.Allow(op); err != nil {
		return Result[T]{Err: &Error{Op: op, Kind: KindCircuitOpen, Err: err}}
	}

	for attempt := 0; ; attempt++ {
		value, err := runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			p.Breaker.Success(op)
			return Result[T]{Value: value, Attempts: attempt + 1}
		}

		c := p.classify(ctx, err)
		p.Breaker.Failure(op, c.Kind)

		terminal := &Error{Op: op, Kind: c.Kind, Attempts: attempt + 1, RetryAfter: c.RetryAfter, Err: err}
		if !c.Kind.Transient() || attempt+1 >= p.MaxAttempts || ctx.Err() != nil {
			return Result[T]{Attempts: attempt + 1, Err: terminal}
		}

		delay := p.Delay(attempt, c.RetryAfter)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Str("kind", c.Kind.String()).
			Msg("Retrying operation")
		p.Metrics.RetryAttempt(op, c.Kind.String())

		if err := p.Sleep(ctx, delay); err != nil {
			terminal.Kind = KindCanceled
			return Result[T]{Attempts: attempt + 1, Err: terminal}
		}

		// Another caller may have tripped the breaker while we slept.
		if err := p.Breaker.Allow(op); err != nil {
			return Result[T]{Attempts: attempt + 1, Err: &Error{Op: op, Kind: KindCircuitOpen, Attempts: attempt + 1, Err: err}}
		}
	}
}

// runAttempt invokes fn once, bounded by AttemptTimeout. An attempt that
// outlives its own deadline is reported as a timeout even when fn returned a
// different error for it.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return value, &attemptTimeoutError{timeout: timeout, err: err}
	}
	return value, err
}

type attemptTimeoutError struct {
	timeout time.Duration
	err     error
}

func (e *attemptTimeoutError) Error() string {
	return "attempt exceeded " + e.timeout.String() + ": " + e.err.Error()
}

func (e *attemptTimeoutError) Unwrap() error {
	return e.err
}

func (p Policy) classify(ctx context.Context, err error) Classification {
	// The caller gave up; nothing downstream should be blamed.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return Classification{Kind: KindCanceled}
		}
		return Classification{Kind: KindTimeout}
	}

	var timeoutErr *attemptTimeoutError
	if errors.As(err, &timeoutErr) {
		return Classification{Kind: KindTimeout}
	}
	return p.Classify(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
