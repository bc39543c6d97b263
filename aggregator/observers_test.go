package aggregator

import (
	"testing"
	"time"

	"cognitive_backend/signals"
)

func TestSubscribe_ReceivesCapturedSignals(t *testing.T) {
	agg, _ := newTestAggregator(t, DefaultConfig())
	agg.Initialize("alice", "s1")

	events, cancel := agg.Subscribe(4)
	defer cancel()

	agg.CaptureKeystroke("alice", signals.KeystrokePayload{Key: "q"})

	select {
	case ev := <-events:
		if ev.SubjectID != "alice" || ev.SessionID != "s1" {
			t.Errorf("event ids = %s/%s", ev.SubjectID, ev.SessionID)
		}
		if ev.Signal.Type != signals.TypeKeystroke {
			t.Errorf("Signal.Type = %s", ev.Signal.Type)
		}
		if ev.State.KeystrokeRate != 1 {
			t.Errorf("State.KeystrokeRate = %d, want 1", ev.State.KeystrokeRate)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscribe_SlowObserverNeverBlocks(t *testing.T) {
	agg, _ := newTestAggregator(t, DefaultConfig())
	agg.Initialize("alice", "s1")

	_, cancel := agg.Subscribe(2)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			agg.CaptureKeystroke("alice", signals.KeystrokePayload{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture blocked on a full observer channel")
	}
	if got := agg.DroppedEvents(); got != 8 {
		t.Errorf("DroppedEvents() = %d, want 8", got)
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	agg, _ := newTestAggregator(t, DefaultConfig())
	agg.Initialize("alice", "s1")

	events, cancel := agg.Subscribe(0)
	if agg.ObserverCount() != 1 {
		t.Fatalf("ObserverCount() = %d, want 1", agg.ObserverCount())
	}

	cancel()
	cancel()

	if _, open := <-events; open {
		t.Error("channel still open after cancel")
	}
	if agg.ObserverCount() != 0 {
		t.Errorf("ObserverCount() = %d after cancel", agg.ObserverCount())
	}

	// publishing after cancel must not panic
	agg.CaptureKeystroke("alice", signals.KeystrokePayload{})
}

func TestSubscribe_IdleTransitionEvent(t *testing.T) {
	agg, clock := newTestAggregator(t, DefaultConfig())
	agg.Initialize("alice", "s1")
	events, cancel := agg.Subscribe(4)
	defer cancel()

	clock.Advance(3 * time.Minute)
	agg.SweepIdle()

	select {
	case ev := <-events:
		if ev.Signal.Type != signals.TypeIdleTime || ev.Signal.Meaning != signals.MeaningIdle {
			t.Errorf("event signal = %s/%s, want idle_time/idle", ev.Signal.Type, ev.Signal.Meaning)
		}
		if !ev.State.IsIdle {
			t.Error("event state not idle")
		}
	case <-time.After(time.Second):
		t.Fatal("no idle event published")
	}
}
