package agent

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
)

// State is a cognitive state label.
type State string

// Cognitive states.
const (
	StateOnTask     State = "ON_TASK"
	StateThinking   State = "THINKING"
	StateDeepFocus  State = "DEEP_FOCUS"
	StateIdle       State = "IDLE"
	StateDistracted State = "DISTRACTED"
	StateAway       State = "AWAY"
	StateOffTask    State = "OFF_TASK"
)

// AllStates lists every cognitive state.
var AllStates = []State{
	StateOnTask, StateThinking, StateDeepFocus, StateIdle,
	StateDistracted, StateAway, StateOffTask,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// Transition is one entry of the transition log.
type Transition struct {
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// ClassifierConfig holds the classifier's heuristic thresholds.
type ClassifierConfig struct {
	ThinkingAfter   time.Duration
	IdleAfter       time.Duration
	AwayAfter       time.Duration
	RapidClickLimit int
	HoverLoopLimit  int
	DeepFocusWPM    float64
	DeepFocusDwell  time.Duration
	LogCapacity     int
}

// DefaultClassifierConfig returns the default thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ThinkingAfter:   10 * time.Second,
		IdleAfter:       60 * time.Second,
		AwayAfter:       120 * time.Second,
		RapidClickLimit: 2,
		HoverLoopLimit:  5,
		DeepFocusWPM:    30,
		DeepFocusDwell:  2 * time.Minute,
		LogCapacity:     300,
	}
}

// Decide selects a state from a metrics snapshot. Rules are checked in order
// and the first match wins:
//
//  1. tab hidden: AWAY once inactive for AwayAfter, else DISTRACTED
//  2. inactive for AwayAfter: AWAY
//  3. inactive for IdleAfter: IDLE
//  4. panel not focused: OFF_TASK
//  5. rapid clicks or hover loops over their limits: DISTRACTED
//  6. fast typing, long dwell, keyboard recently used: DEEP_FOCUS
//  7. inactive for ThinkingAfter: THINKING
//  8. otherwise ON_TASK
func Decide(m Metrics, cfg ClassifierConfig) State {
	inactive := time.Duration(m.InactivityMs) * time.Millisecond
	keyboardInactive := time.Duration(m.KeyboardInactivityMs) * time.Millisecond
	dwell := time.Duration(m.DwellTimeMs) * time.Millisecond

	switch {
	case !m.TabVisible:
		if inactive >= cfg.AwayAfter {
			return StateAway
		}
		return StateDistracted
	case inactive >= cfg.AwayAfter:
		return StateAway
	case inactive >= cfg.IdleAfter:
		return StateIdle
	case !m.PanelFocused:
		return StateOffTask
	case m.RapidClickCount > cfg.RapidClickLimit || m.HoverLoops > cfg.HoverLoopLimit:
		return StateDistracted
	case m.TypingSpeedWPM >= cfg.DeepFocusWPM && dwell >= cfg.DeepFocusDwell && keyboardInactive < cfg.ThinkingAfter:
		return StateDeepFocus
	case inactive >= cfg.ThinkingAfter:
		return StateThinking
	default:
		return StateOnTask
	}
}

// Classifier is the cognitive-state machine. It starts in ON_TASK and has no
// terminal state. Every evaluation, including one that repeats the current
// state, is appended to a bounded transition log.
type Classifier struct {
	source *CaptureAgent
	now    core.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	cfg     ClassifierConfig
	current State
	log     []Transition
}

// NewClassifier creates a classifier reading from source.
func NewClassifier(source *CaptureAgent, cfg ClassifierConfig, clock core.Clock, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = DefaultClassifierConfig().LogCapacity
	}
	return &Classifier{
		source:  source,
		now:     clock.OrSystem(),
		logger:  logger,
		cfg:     cfg,
		current: StateOnTask,
	}
}

// SetConfig replaces the thresholds used by later evaluations.
func (c *Classifier) SetConfig(cfg ClassifierConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = c.cfg.LogCapacity
	}
	c.cfg = cfg
}

// Evaluate reads the capture snapshot, moves to the next state and logs it.
func (c *Classifier) Evaluate() State {
	m := c.source.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := Decide(m, c.cfg)
	if next != c.current {
		c.logger.Debug("Cognitive state changed",
			zap.String("from", string(c.current)),
			zap.String("to", string(next)),
			zap.Int64("inactivity_ms", m.InactivityMs))
	}
	c.current = next

	c.log = append(c.log, Transition{State: next, Timestamp: c.now()})
	if len(c.log) > c.cfg.LogCapacity {
		c.log = append(c.log[:0], c.log[len(c.log)-c.cfg.LogCapacity:]...)
	}
	return next
}

// CurrentState returns the most recent state.
func (c *Classifier) CurrentState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// TransitionLog returns a copy of the transition log, oldest first.
func (c *Classifier) TransitionLog() []Transition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Transition, len(c.log))
	copy(out, c.log)
	return out
}

// Snapshot returns the current state and a copy of the transition log read
// under one lock, so the two always agree.
func (c *Classifier) Snapshot() (State, []Transition) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Transition, len(c.log))
	copy(out, c.log)
	return c.current, out
}
