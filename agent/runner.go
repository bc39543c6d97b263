package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
)

// RunnerConfig configures every client-side component.
type RunnerConfig struct {
	Capture          CaptureConfig
	Classifier       ClassifierConfig
	Emitter          EmitterConfig
	Forwarder        ForwarderConfig
	EvaluateInterval time.Duration
}

// DefaultRunnerConfig evaluates once per second and emits every 5 seconds.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Capture:          DefaultCaptureConfig(),
		Classifier:       DefaultClassifierConfig(),
		Emitter:          DefaultEmitterConfig(),
		Forwarder:        DefaultForwarderConfig(),
		EvaluateInterval: time.Second,
	}
}

// Runner wires a capture agent, classifier and emitter into one session and
// owns their scheduled tasks. When a SignalSink is given it also forwards
// interaction events to the server aggregator.
//
// Usage:
//
//	transport := agent.NewHTTPTransport("http://localhost:8090", 0)
//	r := agent.NewRunner(agent.DefaultRunnerConfig(), identity, transport, transport, nil, logger)
//	r.Start(ctx)
//	r.RecordEvent(agent.KindKeyDown, agent.EventPayload{Key: "a"})
//	defer r.Stop(ctx)
type Runner struct {
	session   *Session
	evaluate  *core.PeriodicTask
	emitter   *Emitter
	forwarder *SignalForwarder
	logger    *zap.Logger
}

// NewRunner builds a stopped runner. sink may be nil to disable signal
// forwarding; clock may be nil for the system clock.
func NewRunner(cfg RunnerConfig, identity IdentitySource, transport Transport, sink SignalSink, clock core.Clock, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EvaluateInterval <= 0 {
		cfg.EvaluateInterval = time.Second
	}

	capture := NewCaptureAgent(cfg.Capture, clock)
	classifier := NewClassifier(capture, cfg.Classifier, clock, logger)
	session := NewSession(capture, classifier, identity)

	r := &Runner{
		session: session,
		emitter: NewEmitter(session, transport, cfg.Emitter, clock, logger),
		logger:  logger,
	}
	r.evaluate = core.NewPeriodicTask("classifier", cfg.EvaluateInterval, func(context.Context) {
		classifier.Evaluate()
	})
	if sink != nil {
		r.forwarder = NewSignalForwarder(session, sink, cfg.Forwarder, logger)
	}
	return r
}

// Session returns the runner's cognitive session.
func (r *Runner) Session() *Session {
	return r.session
}

// Emitter returns the packet emitter.
func (r *Runner) Emitter() *Emitter {
	return r.emitter
}

// Forwarder returns the signal forwarder, or nil when forwarding is disabled.
func (r *Runner) Forwarder() *SignalForwarder {
	return r.forwarder
}

// Reconfigure swaps classifier thresholds and focus penalties without
// restarting the session.
func (r *Runner) Reconfigure(classifier ClassifierConfig, focus FocusConfig) {
	r.session.Classifier.SetConfig(classifier)
	r.emitter.SetFocusConfig(focus)
	r.logger.Info("Capture session reconfigured",
		zap.Duration("idle_after", classifier.IdleAfter),
		zap.Duration("away_after", classifier.AwayAfter))
}

// RecordEvent feeds one interaction event to the capture agent and, when
// enabled, queues it for forwarding.
func (r *Runner) RecordEvent(kind EventKind, p EventPayload) {
	r.session.Agent.RecordEvent(kind, p)
	if r.forwarder != nil {
		r.forwarder.Observe(kind, p)
	}
}

// Start registers with the aggregator (a failure is logged, not fatal) and
// starts evaluation, emission and forwarding.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Capture session started",
		zap.String("session_id", r.session.ID()),
		zap.String("subject_id", r.session.SubjectID()))

	if r.forwarder != nil {
		if err := r.forwarder.Register(ctx); err != nil {
			r.logger.Warn("Aggregator registration failed", zap.Error(err))
		}
		r.forwarder.Start(ctx)
	}
	r.evaluate.Start(ctx)
	r.emitter.Start(ctx)
}

// Stop halts every task. Queued signals get one final flush using ctx.
func (r *Runner) Stop(ctx context.Context) {
	r.emitter.Stop()
	r.evaluate.Stop()
	if r.forwarder != nil {
		r.forwarder.Stop(ctx)
	}

	stats := r.emitter.Stats()
	r.logger.Info("Capture session stopped",
		zap.String("session_id", r.session.ID()),
		zap.Int64("packets_sent", stats.Sent),
		zap.Int64("packets_failed", stats.Failed))
}
