// Package shutdown coordinates graceful termination of the telemetry server:
// the HTTP listener stops first, in-flight ingest requests drain, background
// producers (sweeper, policy watcher) stop, queued database writes flush and
// the database closes last.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTrackerClosed is returned when an operation starts after shutdown began.
var ErrTrackerClosed = errors.New("shutdown: not accepting new operations")

// OperationTracker counts in-flight operations so shutdown can wait for them.
//
// Usage:
//
//	if !tracker.Start() {
//	    return ErrTrackerClosed
//	}
//	defer tracker.Done()
type OperationTracker struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	active atomic.Int64
	closed bool
}

// NewOperationTracker creates an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start registers one operation. It returns false once the tracker is
// closed; the caller must not call Done in that case.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	return true
}

// Done ends one operation started with Start.
func (t *OperationTracker) Done() {
	t.active.Add(-1)
	t.wg.Done()
}

// Close rejects later Start calls. Running operations are unaffected.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Wait blocks until every operation is done or ctx ends.
func (t *OperationTracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount returns the number of running operations.
func (t *OperationTracker) ActiveCount() int64 {
	return t.active.Load()
}

// IsClosed reports whether Close was called.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
