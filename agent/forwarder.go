package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
	"cognitive_backend/signals"
)

// ForwarderConfig configures the SignalForwarder.
type ForwarderConfig struct {
	FlushInterval time.Duration
	// MaxPending bounds the queue between flushes; the oldest entries are
	// dropped when it is full.
	MaxPending  int
	SendTimeout time.Duration
}

// DefaultForwarderConfig flushes every 2 seconds.
func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		FlushInterval: 2 * time.Second,
		MaxPending:    256,
		SendTimeout:   DefaultSendTimeout,
	}
}

// SignalForwarder mirrors captured interaction events to the server
// aggregator as discrete signals. Events are queued and sent in one batch per
// flush. Like packet emission it is fire-and-forget: a failed batch is logged
// and discarded.
type SignalForwarder struct {
	session *Session
	sink    SignalSink
	cfg     ForwarderConfig
	logger  *zap.Logger
	task    *core.PeriodicTask

	mu      sync.Mutex
	pending []WireSignal

	forwarded atomic.Int64
	dropped   atomic.Int64
}

// NewSignalForwarder creates a stopped forwarder.
func NewSignalForwarder(session *Session, sink SignalSink, cfg ForwarderConfig, logger *zap.Logger) *SignalForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultForwarderConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = d.MaxPending
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = d.SendTimeout
	}

	f := &SignalForwarder{session: session, sink: sink, cfg: cfg, logger: logger}
	f.task = core.NewPeriodicTask("signal-forwarder", cfg.FlushInterval, func(ctx context.Context) {
		f.Flush(ctx)
	})
	return f
}

// ToWireSignal converts an interaction event to an aggregator signal.
// Hover events have no aggregator counterpart and return ok=false. Key
// identity is not forwarded.
func ToWireSignal(kind EventKind, p EventPayload) (WireSignal, bool) {
	switch kind {
	case KindMouseMove:
		return WireSignal{Type: signals.TypeMouseMovement, Payload: signals.MousePayload{X: p.X, Y: p.Y, Type: "move"}}, true
	case KindClick:
		return WireSignal{Type: signals.TypeMouseMovement, Payload: signals.MousePayload{X: p.X, Y: p.Y, Type: "click"}}, true
	case KindScroll:
		return WireSignal{Type: signals.TypeScrollDepth, Payload: signals.ScrollPayload{Percentage: p.ScrollPercent}}, true
	case KindKeyDown:
		return WireSignal{Type: signals.TypeKeystroke, Payload: signals.KeystrokePayload{}}, true
	case KindVisibility:
		return WireSignal{Type: signals.TypeBrowserHidden, Payload: signals.HiddenPayload{Hidden: !p.Visible}}, true
	case KindPanelFocus:
		return WireSignal{Type: signals.TypeWindowFocus, Payload: signals.FocusPayload{Focused: p.Focused}}, true
	default:
		return WireSignal{}, false
	}
}

// Observe queues an interaction event for the next flush.
func (f *SignalForwarder) Observe(kind EventKind, p EventPayload) {
	sig, ok := ToWireSignal(kind, p)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, sig)
	if over := len(f.pending) - f.cfg.MaxPending; over > 0 {
		f.pending = append(f.pending[:0], f.pending[over:]...)
		f.dropped.Add(int64(over))
	}
}

// Pending returns the number of queued signals.
func (f *SignalForwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Register announces the session to the aggregator.
func (f *SignalForwarder) Register(ctx context.Context) error {
	sendCtx, cancel := context.WithTimeout(ctx, f.cfg.SendTimeout)
	defer cancel()
	return f.sink.InitSubject(sendCtx, f.session.SubjectID(), f.session.ID())
}

// Flush sends the queued signals as one batch.
func (f *SignalForwarder) Flush(ctx context.Context) {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, f.cfg.SendTimeout)
	defer cancel()

	if err := f.sink.SendSignals(sendCtx, f.session.SubjectID(), batch); err != nil {
		f.dropped.Add(int64(len(batch)))
		f.logger.Warn("Signal batch dropped", zap.Int("signals", len(batch)), zap.Error(err))
		return
	}
	f.forwarded.Add(int64(len(batch)))
}

// Start begins periodic flushing.
func (f *SignalForwarder) Start(ctx context.Context) {
	f.task.Start(ctx)
}

// Stop halts flushing and sends what is still queued.
func (f *SignalForwarder) Stop(ctx context.Context) {
	f.task.Stop()
	f.Flush(ctx)
}

// Forwarded returns the number of signals delivered.
func (f *SignalForwarder) Forwarded() int64 {
	return f.forwarded.Load()
}

// Dropped returns the number of signals dropped by overflow or failed sends.
func (f *SignalForwarder) Dropped() int64 {
	return f.dropped.Load()
}
