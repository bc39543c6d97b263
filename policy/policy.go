// Package policy loads the heuristic thresholds shared by the probe and the
// server from a YAML file.
//
// Every key is optional; missing keys keep their built-in default, so an
// empty file is a valid policy. Durations are written as integer seconds or
// milliseconds as the key name says.
//
// Example policy.yaml:
//
//	classifier:
//	  thinking_after_seconds: 10
//	  idle_after_seconds: 60
//	  away_after_seconds: 120
//	aggregator:
//	  idle_threshold_ms: 120000
//	  work_domains: [github.com, jira.example.com]
//	scoring:
//	  weights: {keystroke: 0.3, mouse: 0.2, scroll: 0.1, focus: 0.2, task_tab: 0.2}
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cognitive_backend/agent"
	"cognitive_backend/aggregator"
	"cognitive_backend/core"
	"cognitive_backend/scoring"
)

// ClassifierPolicy mirrors agent.ClassifierConfig.
type ClassifierPolicy struct {
	ThinkingAfterSeconds  int     `yaml:"thinking_after_seconds"`
	IdleAfterSeconds      int     `yaml:"idle_after_seconds"`
	AwayAfterSeconds      int     `yaml:"away_after_seconds"`
	RapidClickLimit       int     `yaml:"rapid_click_limit"`
	HoverLoopLimit        int     `yaml:"hover_loop_limit"`
	DeepFocusWPM          float64 `yaml:"deep_focus_wpm"`
	DeepFocusDwellSeconds int     `yaml:"deep_focus_dwell_seconds"`
}

// FocusPolicy mirrors agent.FocusConfig. StatePenalties is keyed by state
// label (ON_TASK, AWAY, ...); listed states replace the default penalty.
type FocusPolicy struct {
	InactivityMs          int64               `yaml:"inactivity_ms"`
	InactivityPenalty     int                 `yaml:"inactivity_penalty"`
	RapidClickLimit       int                 `yaml:"rapid_click_limit"`
	RapidClickPenalty     int                 `yaml:"rapid_click_penalty"`
	HoverLoopLimit        int                 `yaml:"hover_loop_limit"`
	HoverLoopPenalty      int                 `yaml:"hover_loop_penalty"`
	TabHiddenPenalty      int                 `yaml:"tab_hidden_penalty"`
	PanelUnfocusedPenalty int                 `yaml:"panel_unfocused_penalty"`
	StatePenalties        map[agent.State]int `yaml:"state_penalties"`
	AwaySecondPenalty     int                 `yaml:"away_second_penalty"`
	IdleSecondPenalty     int                 `yaml:"idle_second_penalty"`
}

// AggregatorPolicy mirrors the tunable part of aggregator.Config.
type AggregatorPolicy struct {
	BufferCapacity    int      `yaml:"buffer_capacity"`
	RateWindowSeconds int      `yaml:"rate_window_seconds"`
	IdleThresholdMs   int64    `yaml:"idle_threshold_ms"`
	SweepSeconds      int      `yaml:"sweep_interval_seconds"`
	MouseJitterPx     float64  `yaml:"mouse_jitter_px"`
	ScrollJitterPct   float64  `yaml:"scroll_jitter_pct"`
	WorkDomains       []string `yaml:"work_domains"`
}

// Policy is the whole heuristic policy document.
type Policy struct {
	Classifier ClassifierPolicy   `yaml:"classifier"`
	Focus      FocusPolicy        `yaml:"focus"`
	Aggregator AggregatorPolicy   `yaml:"aggregator"`
	Scoring    scoring.Thresholds `yaml:"scoring"`

	// Source is the file the policy was read from; empty for defaults.
	Source string `yaml:"-"`
}

// Default returns the built-in policy.
func Default() *Policy {
	c := agent.DefaultClassifierConfig()
	f := agent.DefaultFocusConfig()
	a := aggregator.DefaultConfig()

	penalties := make(map[agent.State]int, len(f.StatePenalties))
	for k, v := range f.StatePenalties {
		penalties[k] = v
	}

	return &Policy{
		Classifier: ClassifierPolicy{
			ThinkingAfterSeconds:  int(c.ThinkingAfter / time.Second),
			IdleAfterSeconds:      int(c.IdleAfter / time.Second),
			AwayAfterSeconds:      int(c.AwayAfter / time.Second),
			RapidClickLimit:       c.RapidClickLimit,
			HoverLoopLimit:        c.HoverLoopLimit,
			DeepFocusWPM:          c.DeepFocusWPM,
			DeepFocusDwellSeconds: int(c.DeepFocusDwell / time.Second),
		},
		Focus: FocusPolicy{
			InactivityMs:          f.InactivityMs,
			InactivityPenalty:     f.InactivityPenalty,
			RapidClickLimit:       f.RapidClickLimit,
			RapidClickPenalty:     f.RapidClickPenalty,
			HoverLoopLimit:        f.HoverLoopLimit,
			HoverLoopPenalty:      f.HoverLoopPenalty,
			TabHiddenPenalty:      f.TabHiddenPenalty,
			PanelUnfocusedPenalty: f.PanelUnfocusedPenalty,
			StatePenalties:        penalties,
			AwaySecondPenalty:     f.AwaySecondPenalty,
			IdleSecondPenalty:     f.IdleSecondPenalty,
		},
		Aggregator: AggregatorPolicy{
			BufferCapacity:    a.BufferCapacity,
			RateWindowSeconds: int(a.RateWindow / time.Second),
			IdleThresholdMs:   a.IdleThreshold.Milliseconds(),
			SweepSeconds:      int(a.SweepInterval / time.Second),
			MouseJitterPx:     a.MouseJitterPx,
			ScrollJitterPct:   a.ScrollJitterPct,
		},
		Scoring: scoring.DefaultThresholds(),
	}
}

// Load reads a policy file. An empty path returns Default(). Read and parse
// failures are returned as *core.ConfigError.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ErrPolicyUnreadable(path, err.Error())
	}

	p, err := Parse(bytes.NewReader(data))
	if err != nil {
		var cfgErr *core.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, core.ErrPolicyUnreadable(path, err.Error())
	}
	p.Source = path
	return p, nil
}

// Parse decodes a policy document over the defaults and validates it.
func Parse(r io.Reader) (*Policy, error) {
	p := Default()
	// unset means "same as the aggregator"
	p.Scoring.IdleMs = 0

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("policy: failed to parse: %w", err)
	}
	if p.Scoring.IdleMs == 0 {
		p.Scoring.IdleMs = p.Aggregator.IdleThresholdMs
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the policy for values no component can work with.
func (p *Policy) Validate() error {
	c := p.Classifier
	if c.ThinkingAfterSeconds <= 0 || c.IdleAfterSeconds <= 0 || c.AwayAfterSeconds <= 0 {
		return core.ErrInvalidPolicy("classifier", "inactivity thresholds must be positive")
	}
	if !(c.ThinkingAfterSeconds < c.IdleAfterSeconds && c.IdleAfterSeconds < c.AwayAfterSeconds) {
		return core.ErrInvalidPolicy("classifier", "thresholds must satisfy thinking < idle < away")
	}

	for state := range p.Focus.StatePenalties {
		if !state.Valid() {
			return core.ErrInvalidPolicy("focus.state_penalties", fmt.Sprintf("unknown state %q", state))
		}
	}

	a := p.Aggregator
	if a.BufferCapacity <= 0 {
		return core.ErrInvalidPolicy("aggregator.buffer_capacity", "must be positive")
	}
	if a.RateWindowSeconds <= 0 || a.SweepSeconds <= 0 {
		return core.ErrInvalidPolicy("aggregator", "rate window and sweep interval must be positive")
	}
	if a.IdleThresholdMs <= 0 {
		return core.ErrInvalidPolicy("aggregator.idle_threshold_ms", "must be positive")
	}

	s := p.Scoring
	w := s.Weights
	sum := w.Keystroke + w.Mouse + w.Scroll + w.Focus + w.TaskTab
	if math.Abs(sum-1) > 0.001 {
		return core.ErrInvalidPolicy("scoring.weights", fmt.Sprintf("must sum to 1, got %.3f", sum))
	}
	if s.KeystrokeRate <= 0 || s.MouseRate <= 0 {
		return core.ErrInvalidPolicy("scoring", "keystroke_rate and mouse_rate must be positive")
	}
	if s.Productive > s.HighlyProductive {
		return core.ErrInvalidPolicy("scoring", "productive must not exceed highly_productive")
	}
	if s.RiskMediumThreshold > s.RiskHighThreshold {
		return core.ErrInvalidPolicy("scoring", "risk_medium must not exceed risk_high")
	}
	// the scorer's idle risk must agree with the aggregator's idle flag
	if s.IdleMs != a.IdleThresholdMs {
		return core.ErrInvalidPolicy("scoring.idle_ms",
			fmt.Sprintf("must equal aggregator.idle_threshold_ms (%d), got %d", a.IdleThresholdMs, s.IdleMs))
	}
	return nil
}

// ClassifierConfig converts the classifier section.
func (p *Policy) ClassifierConfig() agent.ClassifierConfig {
	cfg := agent.DefaultClassifierConfig()
	c := p.Classifier
	cfg.ThinkingAfter = time.Duration(c.ThinkingAfterSeconds) * time.Second
	cfg.IdleAfter = time.Duration(c.IdleAfterSeconds) * time.Second
	cfg.AwayAfter = time.Duration(c.AwayAfterSeconds) * time.Second
	cfg.RapidClickLimit = c.RapidClickLimit
	cfg.HoverLoopLimit = c.HoverLoopLimit
	cfg.DeepFocusWPM = c.DeepFocusWPM
	cfg.DeepFocusDwell = time.Duration(c.DeepFocusDwellSeconds) * time.Second
	return cfg
}

// FocusConfig converts the focus section. States missing from the file keep
// their default penalty.
func (p *Policy) FocusConfig() agent.FocusConfig {
	f := p.Focus
	cfg := agent.DefaultFocusConfig()
	for k, v := range f.StatePenalties {
		cfg.StatePenalties[k] = v
	}
	cfg.InactivityMs = f.InactivityMs
	cfg.InactivityPenalty = f.InactivityPenalty
	cfg.RapidClickLimit = f.RapidClickLimit
	cfg.RapidClickPenalty = f.RapidClickPenalty
	cfg.HoverLoopLimit = f.HoverLoopLimit
	cfg.HoverLoopPenalty = f.HoverLoopPenalty
	cfg.TabHiddenPenalty = f.TabHiddenPenalty
	cfg.PanelUnfocusedPenalty = f.PanelUnfocusedPenalty
	cfg.AwaySecondPenalty = f.AwaySecondPenalty
	cfg.IdleSecondPenalty = f.IdleSecondPenalty
	return cfg
}

// AggregatorConfig applies the aggregator section on top of base, keeping
// the fields the policy does not cover (window entry bound, observer buffer).
func (p *Policy) AggregatorConfig(base aggregator.Config) aggregator.Config {
	a := p.Aggregator
	base.BufferCapacity = a.BufferCapacity
	base.RateWindow = time.Duration(a.RateWindowSeconds) * time.Second
	base.IdleThreshold = time.Duration(a.IdleThresholdMs) * time.Millisecond
	base.SweepInterval = time.Duration(a.SweepSeconds) * time.Second
	base.MouseJitterPx = a.MouseJitterPx
	base.ScrollJitterPct = a.ScrollJitterPct
	base.WorkDomains = append([]string(nil), a.WorkDomains...)
	return base
}
