package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Classifier maps a raw error to a Classification.
type Classifier func(err error) Classification

// DefaultClassify recognizes context, network and already-classified errors.
// Anything else is KindUnknown, which is permanent.
func DefaultClassify(err error) Classification {
	if c, ok := ClassifyKnown(err); ok {
		return c
	}
	return Classification{Kind: KindUnknown}
}

// ClassifyKnown applies the classifications shared by every dependency.
// Provider and database classifiers call it first and fall back to their own
// taxonomy when ok is false.
func ClassifyKnown(err error) (Classification, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return Classification{Kind: rerr.Kind, RetryAfter: rerr.RetryAfter}, true
	}
	if c, ok := ClassifyContext(err); ok {
		return c, true
	}
	return ClassifyNet(err)
}

// ClassifyContext maps context errors. A deadline is a timeout and may be
// retried; cancellation is permanent.
func ClassifyContext(err error) (Classification, bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Kind: KindTimeout}, true
	case errors.Is(err, context.Canceled):
		return Classification{Kind: KindCanceled}, true
	}
	return Classification{}, false
}

// ClassifyNet maps transport-level failures to timeout or network.
func ClassifyNet(err error) (Classification, bool) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: KindTimeout}, true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return Classification{Kind: KindNetwork}, true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classification{Kind: KindNetwork}, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Kind: KindNetwork}, true
	}

	return Classification{}, false
}
