package shutdown

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Manager ties signal handling, in-flight request tracking and the ordered
// shutdown steps together.
//
// Usage:
//
//	m := shutdown.NewManager(logger)
//	m.Register("http", shutdown.PhaseListeners, shutdown.ServerStep(srv))
//	m.Register("async-writer", shutdown.PhaseWriters, shutdown.StopStep(writer.Stop))
//	m.Register("database", shutdown.PhaseStorage, shutdown.CloseStep(database))
//	m.Start()
//	<-m.Context().Done()
//	err := m.Shutdown()
//	os.Exit(m.ExitCode(err))
type Manager struct {
	logger    *zap.Logger
	timeout   time.Duration
	forceExit func(code int)

	ctx    context.Context
	cancel context.CancelCauseFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal

	mu       sync.Mutex
	started  bool
	shutdown bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the overall shutdown timeout.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithForceExit replaces os.Exit for the second-signal path.
func WithForceExit(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.forceExit = exit
	}
}

// NewManager creates a manager with an uncancelled context.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancelCause(context.Background())

	m := &Manager{
		logger:    logger,
		timeout:   DefaultTimeout,
		forceExit: os.Exit,
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewOperationTracker(),
		registry:  NewRegistry(),
		sigChan:   make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing exit")
		m.forceExit(core.ExitCodeError)
	})
	return m
}

// Context is cancelled when shutdown is triggered.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a shutdown step.
func (m *Manager) Register(name string, phase int, fn core.ShutdownFunc) {
	m.registry.Register(name, phase, fn)
	m.logger.Debug("Registered shutdown step", zap.String("name", name), zap.Int("phase", phase))
}

// Start listens for SIGINT and SIGTERM. Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.HandleSignal(sig)
		}
	}()
}

// HandleSignal applies one received signal.
func (m *Manager) HandleSignal(sig os.Signal) {
	if m.signals.Observe(sig) == 1 {
		m.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		m.cancel(errors.New("signal: " + sig.String()))
	}
}

// Trigger starts shutdown without a signal, e.g. when the listener fails.
func (m *Manager) Trigger(cause error) {
	m.logger.Warn("Shutdown triggered", zap.Error(cause))
	m.cancel(cause)
}

// Shutdown stops accepting tracked operations, waits for running ones, then
// runs every step. The whole sequence shares one timeout. Later calls return
// nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel(context.Canceled)
	begin := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Info("Shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Strings("steps", m.registry.Names()))

	m.tracker.Close()
	if err := m.tracker.Wait(ctx); err != nil {
		m.logger.Warn("In-flight operations did not finish",
			zap.Int64("remaining", m.tracker.ActiveCount()))
	}

	// give the steps at least a second even if draining used the budget
	stepCtx := ctx
	if deadline, _ := ctx.Deadline(); time.Until(deadline) < time.Second {
		var stepCancel context.CancelFunc
		stepCtx, stepCancel = context.WithTimeout(context.Background(), time.Second)
		defer stepCancel()
	}

	errs := m.registry.Run(stepCtx)
	for _, err := range errs {
		m.logger.Error("Shutdown step failed", zap.Error(err))
	}

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}

	m.logger.Info("Shutdown complete",
		zap.Duration("duration", time.Since(begin)),
		zap.Int("failed_steps", len(errs)))
	return errors.Join(errs...)
}

// ExitCode returns the process exit code: a step failure wins, then the
// signal convention, then success.
func (m *Manager) ExitCode(shutdownErr error) int {
	if shutdownErr != nil {
		return core.ExitCodeError
	}
	return m.signals.ExitCode()
}

// WrapOperation runs fn as a tracked operation. It returns ErrTrackerClosed
// without calling fn once shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		return ErrTrackerClosed
	}
	defer m.tracker.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Middleware tracks each request as an operation and answers 503 once
// shutdown has begun.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.tracker.Start() {
			w.Header().Set("Connection", "close")
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		defer m.tracker.Done()
		next.ServeHTTP(w, r)
	})
}

// ActiveOperations returns the number of tracked operations in flight.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Steps returns registered step names in execution order.
func (m *Manager) Steps() []string {
	return m.registry.Names()
}
