package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func writePolicy(t *testing.T, path, doc string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicy(t, path, "aggregator:\n  idle_threshold_ms: 60000\n")

	changes := make(chan *Policy, 4)
	w, err := NewWatcher(path, zaptest.NewLogger(t), func(p *Policy) { changes <- p })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()
	w.debounce = 10 * time.Millisecond

	if got := w.Current().Aggregator.IdleThresholdMs; got != 60000 {
		t.Fatalf("initial idle threshold = %d, want 60000", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// an unrelated file in the same directory is ignored
	writePolicy(t, filepath.Join(filepath.Dir(path), "other.yaml"), "x: 1\n")
	writePolicy(t, path, "aggregator:\n  idle_threshold_ms: 30000\n")

	select {
	case p := <-changes:
		if p.Aggregator.IdleThresholdMs != 30000 {
			t.Errorf("reloaded idle threshold = %d, want 30000", p.Aggregator.IdleThresholdMs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	// a broken edit keeps the previous policy
	writePolicy(t, path, "aggregator: [not, a, map]\n")
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, failed := w.Reloads(); failed > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for rejected reload")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := w.Current().Aggregator.IdleThresholdMs; got != 30000 {
		t.Errorf("idle threshold after bad edit = %d, want 30000", got)
	}
}

func TestNewWatcher_InitialLoadMustSucceed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicy(t, path, "classifier: {idle_after_seconds: 1}\n")

	if _, err := NewWatcher(path, nil, nil); err == nil {
		t.Error("NewWatcher() should fail for an invalid policy")
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicy(t, path, "")

	w, err := NewWatcher(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
