package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cognitive_backend/core"
)

// Phases order shutdown steps. Lower phases run first; steps within a phase
// run in registration order.
const (
	// PhaseListeners stops accepting connections
	PhaseListeners = 10
	// PhaseProducers stops sweepers, watchers and capture sessions
	PhaseProducers = 20
	// PhaseWriters flushes queued writes
	PhaseWriters = 30
	// PhaseStorage closes databases and files
	PhaseStorage = 40
	// PhaseLogs syncs and closes log output
	PhaseLogs = 50
)

type step struct {
	name  string
	phase int
	fn    core.ShutdownFunc
}

// StepError reports which shutdown step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("shutdown: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Registry holds the ordered shutdown steps. It runs once; registration after
// Run is ignored.
type Registry struct {
	mu     sync.Mutex
	steps  []step
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a step to phase.
func (r *Registry) Register(name string, phase int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.steps = append(r.steps, step{name: name, phase: phase, fn: fn})
}

func (r *Registry) ordered() []step {
	sorted := make([]step, len(r.steps))
	copy(sorted, r.steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].phase < sorted[j].phase })
	return sorted
}

// Run executes every step in order, including after failures, and returns the
// failures as *StepError values. A panicking step is reported as a failure.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	steps := r.ordered()
	r.mu.Unlock()

	var errs []error
	for _, s := range steps {
		if err := runStep(ctx, s); err != nil {
			errs = append(errs, &StepError{Step: s.name, Err: err})
		}
	}
	return errs
}

func runStep(ctx context.Context, s step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.fn(ctx)
}

// Names returns step names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := r.ordered()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}

// Count returns the number of registered steps.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}
