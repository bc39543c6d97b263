package shutdown

import (
	"os"
	"sync"
	"syscall"

	"cognitive_backend/core"
)

// SignalCounter counts termination signals: the first starts a graceful
// shutdown, reaching forceAfter calls onForce.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	first      os.Signal
	forceAfter int
	onForce    func()
}

// NewSignalCounter creates a counter. onForce may be nil.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	if forceAfter < 1 {
		forceAfter = 2
	}
	return &SignalCounter{forceAfter: forceAfter, onForce: onForce}
}

// Observe records sig and returns the new count. onForce runs outside the
// lock when the count reaches forceAfter.
func (s *SignalCounter) Observe(sig os.Signal) int {
	s.mu.Lock()
	s.count++
	if s.first == nil {
		s.first = sig
	}
	count := s.count
	force := count == s.forceAfter && s.onForce != nil
	onForce := s.onForce
	s.mu.Unlock()

	if force {
		onForce()
	}
	return count
}

// Count returns the number of signals observed.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// ExitCode maps the first signal to its conventional exit code, or
// ExitCodeSuccess when no signal arrived.
func (s *SignalCounter) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SignalExitCode(s.first)
}

// SignalExitCode returns 130 for SIGINT, 143 for SIGTERM and 0 for nil.
func SignalExitCode(sig os.Signal) int {
	switch sig {
	case nil:
		return core.ExitCodeSuccess
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeError
	}
}
