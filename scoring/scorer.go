// Package scoring derives an activity score, a productivity label and a risk
// label from a subject's current aggregator state. Every function here is
// total: any input yields a label.
package scoring

import (
	"math"
	"sync/atomic"

	"cognitive_backend/aggregator"
)

// Productivity labels.
const (
	LabelIdle             = "idle"
	LabelDistracted       = "distracted"
	LabelOffTask          = "off-task"
	LabelHighlyProductive = "highly-productive"
	LabelProductive       = "productive"
	LabelLowProductivity  = "low-productivity"
)

// Risk labels.
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// State is the scorer's input: the subset of aggregator state it reads.
type State struct {
	WindowFocus    bool
	KeystrokeRate  float64
	MouseMovement  float64
	ScrollRate     float64
	TaskTabActive  bool
	IdleTimeMs     int64
	IsIdle         bool
	BrowserHidden  bool
	AppSwitchCount int
}

// StateFrom adapts an aggregator state.
func StateFrom(s aggregator.CurrentState) State {
	return State{
		WindowFocus:    s.WindowFocus,
		KeystrokeRate:  float64(s.KeystrokeRate),
		MouseMovement:  float64(s.MouseMovement),
		ScrollRate:     float64(s.ScrollRate),
		TaskTabActive:  s.TaskTabActive,
		IdleTimeMs:     s.IdleTimeMs,
		IsIdle:         s.IsIdle,
		BrowserHidden:  s.BrowserHidden,
		AppSwitchCount: s.AppSwitchCount,
	}
}

// Weights of the activity score components. They sum to 1.
type Weights struct {
	Keystroke float64 `json:"keystroke" yaml:"keystroke"`
	Mouse     float64 `json:"mouse" yaml:"mouse"`
	Scroll    float64 `json:"scroll" yaml:"scroll"`
	Focus     float64 `json:"focus" yaml:"focus"`
	TaskTab   float64 `json:"task_tab" yaml:"task_tab"`
}

// Thresholds holds every tunable of the scorer.
type Thresholds struct {
	Weights Weights `json:"weights" yaml:"weights"`

	// KeystrokeRate and MouseRate are the per-minute rates that count as
	// full activity.
	KeystrokeRate float64 `json:"keystroke_rate" yaml:"keystroke_rate"`
	MouseRate     float64 `json:"mouse_rate" yaml:"mouse_rate"`

	// IdleMs marks the subject idle when IdleTimeMs reaches it.
	IdleMs int64 `json:"idle_ms" yaml:"idle_ms"`

	HighlyProductive int `json:"highly_productive" yaml:"highly_productive"`
	Productive       int `json:"productive" yaml:"productive"`

	// Risk contributions.
	RiskNotFocused      int `json:"risk_not_focused" yaml:"risk_not_focused"`
	RiskBrowserHidden   int `json:"risk_browser_hidden" yaml:"risk_browser_hidden"`
	RiskNotOnTaskTab    int `json:"risk_not_on_task_tab" yaml:"risk_not_on_task_tab"`
	RiskIdle            int `json:"risk_idle" yaml:"risk_idle"`
	RiskAppSwitches     int `json:"risk_app_switches" yaml:"risk_app_switches"`
	AppSwitchLimit      int `json:"app_switch_limit" yaml:"app_switch_limit"`
	RiskHighThreshold   int `json:"risk_high" yaml:"risk_high"`
	RiskMediumThreshold int `json:"risk_medium" yaml:"risk_medium"`
}

// DefaultThresholds returns the production weights and thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Weights: Weights{
			Keystroke: 0.3,
			Mouse:     0.2,
			Scroll:    0.1,
			Focus:     0.2,
			TaskTab:   0.2,
		},
		KeystrokeRate:       30,
		MouseRate:           20,
		IdleMs:              120000,
		HighlyProductive:    70,
		Productive:          40,
		RiskNotFocused:      30,
		RiskBrowserHidden:   40,
		RiskNotOnTaskTab:    50,
		RiskIdle:            20,
		RiskAppSwitches:     15,
		AppSwitchLimit:      10,
		RiskHighThreshold:   70,
		RiskMediumThreshold: 40,
	}
}

// Classification is the scorer's output for one subject.
type Classification struct {
	ActivityScore int    `json:"activity_score"`
	Productivity  string `json:"productivity"`
	Risk          string `json:"risk"`
	RiskScore     int    `json:"risk_score"`
}

// ActivityScore returns the weighted activity score, 0-100.
//
// Keystroke and mouse rates contribute their ratio to the threshold, capped
// at 100%. Scroll contributes 50 when any scrolling happened in the window.
// Focus and task tab contribute 100 when true.
func ActivityScore(s State, t Thresholds) int {
	score := t.Weights.Keystroke*ratio(s.KeystrokeRate, t.KeystrokeRate) +
		t.Weights.Mouse*ratio(s.MouseMovement, t.MouseRate) +
		t.Weights.Scroll*binary(s.ScrollRate > 0, 50) +
		t.Weights.Focus*binary(s.WindowFocus, 100) +
		t.Weights.TaskTab*binary(s.TaskTabActive, 100)

	return clamp(int(math.Round(score)), 0, 100)
}

// ProductivityLabel checks idle, then focus, then task tab, then grades the
// activity score.
func ProductivityLabel(s State, t Thresholds) string {
	switch {
	case isIdle(s, t):
		return LabelIdle
	case !s.WindowFocus:
		return LabelDistracted
	case !s.TaskTabActive:
		return LabelOffTask
	}

	score := ActivityScore(s, t)
	switch {
	case score >= t.HighlyProductive:
		return LabelHighlyProductive
	case score >= t.Productive:
		return LabelProductive
	default:
		return LabelLowProductivity
	}
}

// RiskScore returns the additive risk score.
func RiskScore(s State, t Thresholds) int {
	risk := 0
	if !s.WindowFocus {
		risk += t.RiskNotFocused
	}
	if s.BrowserHidden {
		risk += t.RiskBrowserHidden
	}
	if !s.TaskTabActive {
		risk += t.RiskNotOnTaskTab
	}
	if isIdle(s, t) {
		risk += t.RiskIdle
	}
	if s.AppSwitchCount > t.AppSwitchLimit {
		risk += t.RiskAppSwitches
	}
	return risk
}

// RiskLabel maps the risk score to high, medium or low.
func RiskLabel(s State, t Thresholds) string {
	risk := RiskScore(s, t)
	switch {
	case risk >= t.RiskHighThreshold:
		return RiskHigh
	case risk >= t.RiskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Evaluate computes the full classification.
func Evaluate(s State, t Thresholds) Classification {
	return Classification{
		ActivityScore: ActivityScore(s, t),
		Productivity:  ProductivityLabel(s, t),
		Risk:          RiskLabel(s, t),
		RiskScore:     RiskScore(s, t),
	}
}

// Scorer evaluates states against thresholds that can be swapped at runtime
// (policy reload) without locking readers.
type Scorer struct {
	thresholds atomic.Pointer[Thresholds]
}

// NewScorer creates a Scorer with the given thresholds.
func NewScorer(t Thresholds) *Scorer {
	s := &Scorer{}
	s.SetThresholds(t)
	return s
}

// SetThresholds replaces the thresholds.
func (s *Scorer) SetThresholds(t Thresholds) {
	s.thresholds.Store(&t)
}

// Thresholds returns the active thresholds.
func (s *Scorer) Thresholds() Thresholds {
	return *s.thresholds.Load()
}

// Evaluate scores a scorer input.
func (s *Scorer) Evaluate(state State) Classification {
	return Evaluate(state, s.Thresholds())
}

// Classify scores an aggregator state.
func (s *Scorer) Classify(state aggregator.CurrentState) Classification {
	return s.Evaluate(StateFrom(state))
}

func isIdle(s State, t Thresholds) bool {
	return s.IsIdle || (t.IdleMs > 0 && s.IdleTimeMs >= t.IdleMs)
}

func ratio(value, threshold float64) float64 {
	if threshold <= 0 || value <= 0 {
		return 0
	}
	return math.Min(value/threshold, 1) * 100
}

func binary(on bool, value float64) float64 {
	if on {
		return value
	}
	return 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
