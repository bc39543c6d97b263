package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultChannelCapacity is the default buffer size for queued writes.
const DefaultChannelCapacity = 256

// DefaultDrainTimeout is the maximum time to wait for pending writes during shutdown.
const DefaultDrainTimeout = 10 * time.Second

// WriteOperation is one queued write.
type WriteOperation struct {
	// Data holds the write payload
	Data any
	// Timestamp when the operation was queued
	Timestamp time.Time
}

// WriteHandler applies one write operation.
type WriteHandler func(ctx context.Context, op WriteOperation) error

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	// ChannelCapacity is the buffer size for pending writes
	ChannelCapacity int
	// DrainTimeout bounds Stop
	DrainTimeout time.Duration
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		ChannelCapacity: DefaultChannelCapacity,
		DrainTimeout:    DefaultDrainTimeout,
	}
}

// AsyncWriterStats reports write outcomes.
type AsyncWriterStats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Pending int   `json:"pending"`
}

// AsyncWriter takes database writes off the request path. Writes are queued
// on a buffered channel and applied by one background goroutine; a full
// queue drops the write rather than blocking the caller.
//
// Usage:
//
//	w := NewAsyncWriter(repo.WriteHandler(), DefaultAsyncWriterConfig(), logger)
//	w.Start()
//	defer w.Stop()
//	w.Write(record)
type AsyncWriter struct {
	writeChan chan WriteOperation
	handler   WriteHandler
	config    AsyncWriterConfig
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewAsyncWriter creates a stopped writer.
func NewAsyncWriter(handler WriteHandler, config AsyncWriterConfig, logger *zap.Logger) *AsyncWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncWriter{
		writeChan: make(chan WriteOperation, config.ChannelCapacity),
		handler:   handler,
		config:    config,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the background goroutine. Calling it twice is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.stopped {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

// IsStarted returns whether the background goroutine is running.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.stopped
}

func (w *AsyncWriter) processWrites() {
	defer w.wg.Done()

	for {
		// stop takes priority over queued writes; drain handles the rest
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		default:
		}

		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case op := <-w.writeChan:
			w.apply(op)
		}
	}
}

// drain applies what is still queued, bounded by DrainTimeout.
func (w *AsyncWriter) drain() {
	deadline := time.Now().Add(w.config.DrainTimeout)
	for time.Now().Before(deadline) {
		select {
		case op := <-w.writeChan:
			w.apply(op)
		default:
			return
		}
	}
	if n := len(w.writeChan); n > 0 {
		w.dropped.Add(int64(n))
		w.logger.Warn("Async writer drain timed out", zap.Int("dropped", n))
	}
}

func (w *AsyncWriter) apply(op WriteOperation) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.handler(ctx, op); err != nil {
		w.failed.Add(1)
		w.logger.Error("Async write failed", zap.Error(err))
		return
	}
	w.written.Add(1)
}

// Write queues data. It never blocks: false means the queue was full or the
// writer is stopped, and the write was dropped.
func (w *AsyncWriter) Write(data any) bool {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		w.dropped.Add(1)
		return false
	}

	select {
	case w.writeChan <- WriteOperation{Data: data, Timestamp: time.Now()}:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("Async write queue full, dropping write", zap.Int("capacity", w.config.ChannelCapacity))
		return false
	}
}

// Pending returns the number of queued writes.
func (w *AsyncWriter) Pending() int {
	return len(w.writeChan)
}

// Stats returns the write counters.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
		Pending: w.Pending(),
	}
}

// Stop drains the queue and waits for the background goroutine. Later
// writes are dropped. Safe to call more than once.
func (w *AsyncWriter) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}
