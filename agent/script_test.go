package agent

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLoadScript(t *testing.T) {
	script := `
# warm-up
{"at_ms": 1200, "kind": "keydown", "key": "a"}
{"at_ms": 0, "kind": "mouse_move", "x": 10, "y": 20}

{"at_ms": 500, "kind": "scroll", "scroll_percent": 40}
`
	events, err := LoadScript(strings.NewReader(script))
	if err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}

	wantKinds := []EventKind{KindMouseMove, KindScroll, KindKeyDown}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Errorf("events[%d].Kind = %q, want %q", i, events[i].Kind, want)
		}
	}
	if events[0].X != 10 || events[0].Y != 20 {
		t.Errorf("mouse payload = %+v", events[0].EventPayload)
	}
}

func TestLoadScript_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"bad json", `{"at_ms": 1`, "line 1"},
		{"unknown kind", "\n{\"at_ms\": 1, \"kind\": \"teleport\"}", "line 2: unknown event kind"},
		{"negative offset", `{"at_ms": -5, "kind": "click"}`, "negative at_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScript(strings.NewReader(tt.script))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadScript() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSyntheticScript(t *testing.T) {
	a := SyntheticScript(7, 2*time.Minute)
	b := SyntheticScript(7, 2*time.Minute)

	if len(a) == 0 {
		t.Fatal("SyntheticScript() produced no events")
	}
	if len(a) != len(b) {
		t.Fatalf("same seed produced %d and %d events", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("event %d differs: %+v vs %+v", i, a[i], b[i])
		}
		if !a[i].Kind.Valid() {
			t.Errorf("event %d has invalid kind %q", i, a[i].Kind)
		}
		if i > 0 && a[i].AtMs < a[i-1].AtMs {
			t.Fatalf("events not sorted at %d", i)
		}
	}
}

func TestReplay_Cancelled(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig(), nil, &recordingTransport{}, nil, nil, nil)
	events := []ScriptEvent{
		{AtMs: 0, Kind: KindKeyDown},
		{AtMs: 60_000, Kind: KindKeyDown},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := Replay(ctx, r, events, 1); err != context.DeadlineExceeded {
		t.Errorf("Replay() error = %v, want DeadlineExceeded", err)
	}
	if got := r.Session().Agent.Snapshot().KeypressCount; got != 1 {
		t.Errorf("keystrokes = %d, want 1", got)
	}
}
