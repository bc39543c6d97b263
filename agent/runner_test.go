package agent

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"cognitive_backend/core"
)

func TestRunner_ForwardsAndEmits(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.EvaluateInterval = 5 * time.Millisecond
	cfg.Emitter.Interval = 10 * time.Millisecond
	cfg.Forwarder.FlushInterval = 10 * time.Millisecond

	transport := &recordingTransport{}
	sink := &fakeSink{}
	r := NewRunner(cfg, StaticIdentity{User: "bob"}, transport, sink, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	r.RecordEvent(KindKeyDown, EventPayload{Key: "x"})
	r.RecordEvent(KindHover, EventPayload{Target: "menu"})
	r.RecordEvent(KindClick, EventPayload{X: 1, Y: 1})

	deadline := time.Now().Add(2 * time.Second)
	for transport.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop(context.Background())

	if transport.count() < 2 {
		t.Errorf("packets sent = %d, want at least 2", transport.count())
	}
	if len(sink.inits) != 1 || sink.inits[0][:4] != "bob/" {
		t.Errorf("inits = %v", sink.inits)
	}
	if r.Forwarder().Forwarded() != 2 {
		t.Errorf("Forwarded() = %d, want 2", r.Forwarder().Forwarded())
	}
	if got := r.Session().Agent.Snapshot().KeypressCount; got != 1 {
		t.Errorf("KeypressCount = %d, want 1", got)
	}
}

func TestRunner_WithoutSink(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil, &recordingTransport{}, nil, nil, nil)
	if r.Forwarder() != nil {
		t.Error("Forwarder() should be nil without a sink")
	}
	r.RecordEvent(KindKeyDown, EventPayload{})
	if r.Session().SubjectID() != r.Session().ID() {
		t.Error("anonymous subject id should be the session id")
	}
}

func TestRunner_Reconfigure(t *testing.T) {
	clock := core.NewManualClock(start)
	r := NewRunner(DefaultRunnerConfig(), nil, &recordingTransport{}, nil, clock.Clock(), nil)

	cfg := DefaultClassifierConfig()
	cfg.ThinkingAfter = 2 * time.Second
	cfg.IdleAfter = 4 * time.Second
	cfg.AwayAfter = 8 * time.Second
	r.Reconfigure(cfg, DefaultFocusConfig())

	clock.Advance(5 * time.Second)
	if got := r.Session().Classifier.Evaluate(); got != StateIdle {
		t.Errorf("Evaluate() = %v, want %v after lowering thresholds", got, StateIdle)
	}
}
