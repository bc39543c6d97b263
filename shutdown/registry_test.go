package shutdown

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_PhaseOrder(t *testing.T) {
	r := NewRegistry()
	var ran []string
	add := func(name string, phase int) {
		r.Register(name, phase, func(context.Context) error {
			ran = append(ran, name)
			return nil
		})
	}
	add("database", PhaseStorage)
	add("http", PhaseListeners)
	add("sweeper", PhaseProducers)
	add("policy-watcher", PhaseProducers)
	add("async-writer", PhaseWriters)

	want := []string{"http", "sweeper", "policy-watcher", "async-writer", "database"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if errs := r.Run(context.Background()); len(errs) != 0 {
		t.Fatalf("Run() errors = %v", errs)
	}
	if !reflect.DeepEqual(ran, want) {
		t.Errorf("run order = %v, want %v", ran, want)
	}
}

func TestRegistry_CollectsFailures(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	var last bool

	r.Register("fails", PhaseWriters, func(context.Context) error { return boom })
	r.Register("panics", PhaseWriters, func(context.Context) error { panic("bad") })
	r.Register("last", PhaseStorage, func(context.Context) error { last = true; return nil })

	errs := r.Run(context.Background())
	if len(errs) != 2 {
		t.Fatalf("Run() returned %d errors, want 2", len(errs))
	}
	if !last {
		t.Error("steps after a failure should still run")
	}

	var stepErr *StepError
	if !errors.As(errs[0], &stepErr) || stepErr.Step != "fails" {
		t.Errorf("errs[0] = %v, want StepError for fails", errs[0])
	}
	if !errors.Is(errs[0], boom) {
		t.Error("StepError should unwrap to the step error")
	}
}

func TestRegistry_RunsOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("once", PhaseStorage, func(context.Context) error { calls++; return nil })

	r.Run(context.Background())
	r.Run(context.Background())
	r.Register("late", PhaseStorage, func(context.Context) error { calls++; return nil })

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (late registration ignored)", r.Count())
	}
}
