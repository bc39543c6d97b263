package core

import (
	"context"
	"sync"
	"time"
)

// PeriodicTask runs a function on a fixed interval in a background goroutine
// until stopped. It is the cancellation handle for the idle sweep, the
// classifier evaluation loop and packet emission.
//
// The task function receives a context that is cancelled on Stop, so a slow
// tick (for example a packet POST) is interrupted during shutdown.
//
// Usage:
//
//	task := NewPeriodicTask("idle-sweep", 30*time.Second, sweeper.Sweep)
//	task.Start(ctx)
//	defer task.Stop()
type PeriodicTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	// RunImmediately fires one tick as soon as Start is called.
	RunImmediately bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	ticks   int64
}

// NewPeriodicTask creates a stopped task. Intervals below one millisecond are
// raised to one millisecond.
func NewPeriodicTask(name string, interval time.Duration, fn func(ctx context.Context)) *PeriodicTask {
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return &PeriodicTask{
		name:     name,
		interval: interval,
		fn:       fn,
	}
}

// Name returns the task name.
func (t *PeriodicTask) Name() string {
	return t.name
}

// Interval returns the tick interval.
func (t *PeriodicTask) Interval() time.Duration {
	return t.interval
}

// Start launches the loop. The loop ends when ctx is cancelled or Stop is
// called. Calling Start on a running task is a no-op.
func (t *PeriodicTask) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true

	t.wg.Add(1)
	go t.loop(loopCtx)
}

// Stop cancels the loop and blocks until the in-flight tick (if any) returns.
// Safe to call more than once and on a task that was never started.
func (t *PeriodicTask) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.running = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

// IsRunning reports whether the loop is active.
func (t *PeriodicTask) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Ticks returns how many times the task function has completed.
func (t *PeriodicTask) Ticks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

func (t *PeriodicTask) loop(ctx context.Context) {
	defer t.wg.Done()

	if t.RunImmediately {
		t.runOnce(ctx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runOnce(ctx)
		}
	}
}

func (t *PeriodicTask) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	t.fn(ctx)

	t.mu.Lock()
	t.ticks++
	t.mu.Unlock()
}
