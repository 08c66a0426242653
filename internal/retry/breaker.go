package retry

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/studysearch/internal/metrics"
)

// State is the circuit state of one operation.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive infrastructure failures inside
	// Window that opens the circuit.
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration

	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Breaker tracks consecutive failures per operation name. A nil *Breaker
// allows everything.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	circuits map[string]*circuit
}

type circuit struct {
	state        State
	failures     int
	firstFailure time.Time
	openedAt     time.Time
	probing      bool
}

// NewBreaker creates a Breaker. Zero config values default to 5 failures,
// a one minute window and a 30 second cooldown.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, circuits: make(map[string]*circuit)}
}

func (b *Breaker) get(op string) *circuit {
	c, ok := b.circuits[op]
	if !ok {
		c = &circuit{}
		b.circuits[op] = c
	}
	return c
}

// Allow reports whether op may run now. After the cooldown a single caller
// is let through as a half-open probe.
func (b *Breaker) Allow(op string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(op)
	switch c.state {
	case StateOpen:
		if b.cfg.Now().Sub(c.openedAt) < b.cfg.Cooldown {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, op)
		}
		c.state = StateHalfOpen
		c.probing = true
		b.cfg.Logger.Info().Str("op", op).Msg("Circuit half-open, probing")
		return nil
	case StateHalfOpen:
		if c.probing {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, op)
		}
		c.probing = true
	}
	return nil
}

// Success closes the circuit for op.
func (b *Breaker) Success(op string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(op)
	if c.state != StateClosed {
		b.cfg.Logger.Info().Str("op", op).Msg("Circuit closed")
		b.cfg.Metrics.BreakerState(op, false)
	}
	*c = circuit{}
}

// Failure records a failed call. Only infrastructure kinds count toward
// opening; a permanent answer from the dependency resets the streak.
func (b *Breaker) Failure(op string, kind ErrorKind) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(op)
	now := b.cfg.Now()

	if kind == KindCanceled || kind == KindCircuitOpen {
		c.probing = false
		return
	}

	if !kind.infrastructure() {
		if c.state != StateClosed {
			b.cfg.Metrics.BreakerState(op, false)
		}
		*c = circuit{}
		return
	}

	if c.state == StateHalfOpen {
		b.open(op, c, now)
		return
	}

	if c.failures == 0 || now.Sub(c.firstFailure) > b.cfg.Window {
		c.failures = 1
		c.firstFailure = now
	} else {
		c.failures++
	}

	if c.failures >= b.cfg.Threshold {
		b.open(op, c, now)
	}
}

func (b *Breaker) open(op string, c *circuit, now time.Time) {
	c.state = StateOpen
	c.openedAt = now
	c.probing = false
	c.failures = 0
	b.cfg.Logger.Warn().
		Str("op", op).
		Dur("cooldown", b.cfg.Cooldown).
		Msg("Circuit opened")
	b.cfg.Metrics.BreakerState(op, true)
}

// State returns the current state for op, moving an expired open circuit to
// half-open for reporting purposes only.
func (b *Breaker) State(op string) State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[op]
	if !ok {
		return StateClosed
	}
	if c.state == StateOpen && b.cfg.Now().Sub(c.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return c.state
}
