package indexer

import "sync/atomic"

// IngestLock is a non-blocking lock. A second file or directory ingest
// fails fast with ErrIngestInProgress instead of queueing.
type IngestLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire reports whether the lock was taken.
func (l *IngestLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release must only be called by the holder.
func (l *IngestLock) Release() {
	l.state.Store(0)
}
