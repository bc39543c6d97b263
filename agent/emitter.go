package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
)

// EmitterConfig configures packet emission.
type EmitterConfig struct {
	Interval      time.Duration
	WindowSeconds int
	SendTimeout   time.Duration
	Focus         FocusConfig
}

// DefaultEmitterConfig returns a 5 second interval with a 5 second window.
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		Interval:      5 * time.Second,
		WindowSeconds: DefaultWindowSeconds,
		SendTimeout:   DefaultSendTimeout,
		Focus:         DefaultFocusConfig(),
	}
}

// EmitterStats reports emission counters.
type EmitterStats struct {
	Sent       int64     `json:"sent"`
	Failed     int64     `json:"failed"`
	LastError  string    `json:"last_error,omitempty"`
	LastSentAt time.Time `json:"last_sent_at,omitempty"`
}

// Emitter snapshots a Session every interval and transmits one packet.
// A failed send is logged and counted; it is never retried and never stops
// later ticks.
type Emitter struct {
	session   *Session
	transport Transport
	now       core.Clock
	logger    *zap.Logger
	task      *core.PeriodicTask

	cfgMu sync.RWMutex
	cfg   EmitterConfig

	sent   atomic.Int64
	failed atomic.Int64

	mu         sync.Mutex
	lastError  string
	lastSentAt time.Time
}

// NewEmitter creates a stopped emitter.
func NewEmitter(session *Session, transport Transport, cfg EmitterConfig, clock core.Clock, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultEmitterConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = d.WindowSeconds
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = d.SendTimeout
	}
	if cfg.Focus.StatePenalties == nil {
		cfg.Focus = d.Focus
	}

	e := &Emitter{
		session:   session,
		transport: transport,
		now:       clock.OrSystem(),
		logger:    logger,
		cfg:       cfg,
	}
	e.task = core.NewPeriodicTask("packet-emitter", cfg.Interval, e.Tick)
	return e
}

// SetFocusConfig replaces the focus penalties used by later packets.
func (e *Emitter) SetFocusConfig(focus FocusConfig) {
	e.cfgMu.Lock()
	e.cfg.Focus = focus
	e.cfgMu.Unlock()
}

func (e *Emitter) config() EmitterConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// BuildPacket takes a point-in-time copy of classifier and capture state and
// computes the packet from the copy only, so events arriving meanwhile cannot
// change a packet under construction.
func (e *Emitter) BuildPacket() Packet {
	cfg := e.config()

	metrics := e.session.Agent.Snapshot()
	state, log := e.session.Classifier.Snapshot()

	dist := ComputeTimeDistribution(log, state, cfg.WindowSeconds)

	return Packet{
		UserID:         e.session.UserID(),
		SessionID:      e.session.ID(),
		Timestamp:      e.now().UTC(),
		CognitiveState: state,
		ActiveSeconds:  dist.Active,
		IdleSeconds:    dist.Idle,
		AwaySeconds:    dist.Away,
		FocusScore:     FocusScore(metrics, state, dist, cfg.Focus),
		RawSignals:     metrics,
	}
}

// Tick builds and sends one packet.
func (e *Emitter) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.recordFailure(fmt.Errorf("panic during emission: %v", r))
		}
	}()

	packet := e.BuildPacket()

	sendCtx, cancel := context.WithTimeout(ctx, e.config().SendTimeout)
	defer cancel()

	if err := e.transport.Send(sendCtx, packet); err != nil {
		e.recordFailure(err)
		return
	}

	e.sent.Add(1)
	e.mu.Lock()
	e.lastSentAt = packet.Timestamp
	e.mu.Unlock()

	e.logger.Debug("Telemetry packet sent",
		zap.String("session_id", packet.SessionID),
		zap.String("state", string(packet.CognitiveState)),
		zap.Int("focus_score", packet.FocusScore))
}

func (e *Emitter) recordFailure(err error) {
	e.failed.Add(1)
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
	e.logger.Warn("Telemetry packet dropped", zap.Error(err))
}

// Start begins emitting until ctx is cancelled or Stop is called.
func (e *Emitter) Start(ctx context.Context) {
	e.task.Start(ctx)
}

// Stop halts emission and waits for an in-flight send.
func (e *Emitter) Stop() {
	e.task.Stop()
}

// Stats returns the emission counters.
func (e *Emitter) Stats() EmitterStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EmitterStats{
		Sent:       e.sent.Load(),
		Failed:     e.failed.Load(),
		LastError:  e.lastError,
		LastSentAt: e.lastSentAt,
	}
}
