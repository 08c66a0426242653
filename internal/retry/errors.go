package retry

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is wrapped by every error produced while a breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrorKind is the closed set of failure classes the engine distinguishes.
// Transient kinds are retried, everything else fails immediately.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// Transient
	KindTimeout
	KindNetwork
	KindRateLimited
	KindUnavailable
	KindPoolExhausted
	KindContention

	// Permanent
	KindInvalidInput
	KindAuth
	KindQueryTooComplex
	KindConstraint
	KindCircuitOpen
	KindCanceled
)

var kindNames = map[ErrorKind]string{
	KindUnknown:         "unknown",
	KindTimeout:         "timeout",
	KindNetwork:         "network",
	KindRateLimited:     "rate_limited",
	KindUnavailable:     "unavailable",
	KindPoolExhausted:   "pool_exhausted",
	KindContention:      "contention",
	KindInvalidInput:    "invalid_input",
	KindAuth:            "auth",
	KindQueryTooComplex: "query_too_complex",
	KindConstraint:      "constraint",
	KindCircuitOpen:     "circuit_open",
	KindCanceled:        "canceled",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transient reports whether failures of this kind are worth retrying.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindTimeout, KindNetwork, KindRateLimited, KindUnavailable, KindPoolExhausted, KindContention:
		return true
	}
	return false
}

// infrastructure reports whether the kind says the dependency itself is
// unhealthy, which is what the breaker counts.
func (k ErrorKind) infrastructure() bool {
	return k.Transient()
}

// Classification is what a classifier derives from a raw error.
type Classification struct {
	Kind ErrorKind
	// RetryAfter is a server-suggested delay; zero when absent.
	RetryAfter time.Duration
}

// Error is the terminal error of an Execute call. Callers above the retry
// engine inspect Kind instead of provider-specific fields.
type Error struct {
	Op         string
	Kind       ErrorKind
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) [%s]: %v", e.Op, e.Attempts, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying later could not help.
func (e *Error) Permanent() bool {
	return !e.Kind.Transient()
}

// KindOf returns the classified kind of err, or KindUnknown when err was
// not produced by the retry engine.
func KindOf(err error) ErrorKind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindUnknown
}
