// Package agent is the client side of the pipeline: it captures interaction
// events, classifies them into a cognitive state and emits periodic
// telemetry packets to the server.
package agent

import (
	"math"
	"sync"
	"time"

	"cognitive_backend/core"
)

// EventKind identifies a raw interaction event.
type EventKind string

// Interaction event kinds.
const (
	KindMouseMove  EventKind = "mouse_move"
	KindClick      EventKind = "click"
	KindHover      EventKind = "hover"
	KindScroll     EventKind = "scroll"
	KindKeyDown    EventKind = "keydown"
	KindVisibility EventKind = "visibility"
	KindPanelFocus EventKind = "panel_focus"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindMouseMove, KindClick, KindHover, KindScroll, KindKeyDown, KindVisibility, KindPanelFocus:
		return true
	}
	return false
}

// EventPayload carries the fields used by each event kind:
// X/Y for mouse_move and click, Target for hover, ScrollPercent for scroll,
// Key for keydown, Visible for visibility and Focused for panel_focus.
type EventPayload struct {
	X             float64 `json:"x,omitempty"`
	Y             float64 `json:"y,omitempty"`
	Target        string  `json:"target,omitempty"`
	ScrollPercent float64 `json:"scroll_percent,omitempty"`
	Key           string  `json:"key,omitempty"`
	Visible       bool    `json:"visible,omitempty"`
	Focused       bool    `json:"focused,omitempty"`
}

// CaptureConfig bounds the capture agent's short-lived history.
type CaptureConfig struct {
	// RapidClickWindow is the window in which clicks count as rapid.
	RapidClickWindow time.Duration
	// HoverWindow is the window in which re-hovering a target is a loop.
	HoverWindow time.Duration
	// TypingWindow is the window typing speed is measured over.
	TypingWindow time.Duration
	// CharsPerWord converts keystrokes to words.
	CharsPerWord float64
	// VelocityDecay is how long after the last move velocity reads as 0.
	VelocityDecay time.Duration

	MaxClicks    int
	MaxHovers    int
	MaxKeystroke int
}

// DefaultCaptureConfig returns the default capture windows.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		RapidClickWindow: time.Second,
		HoverWindow:      5 * time.Second,
		TypingWindow:     time.Minute,
		CharsPerWord:     5,
		VelocityDecay:    time.Second,
		MaxClicks:        64,
		MaxHovers:        64,
		MaxKeystroke:     1000,
	}
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	d := DefaultCaptureConfig()
	if c.RapidClickWindow <= 0 {
		c.RapidClickWindow = d.RapidClickWindow
	}
	if c.HoverWindow <= 0 {
		c.HoverWindow = d.HoverWindow
	}
	if c.TypingWindow <= 0 {
		c.TypingWindow = d.TypingWindow
	}
	if c.CharsPerWord <= 0 {
		c.CharsPerWord = d.CharsPerWord
	}
	if c.VelocityDecay <= 0 {
		c.VelocityDecay = d.VelocityDecay
	}
	if c.MaxClicks <= 0 {
		c.MaxClicks = d.MaxClicks
	}
	if c.MaxHovers <= 0 {
		c.MaxHovers = d.MaxHovers
	}
	if c.MaxKeystroke <= 0 {
		c.MaxKeystroke = d.MaxKeystroke
	}
	return c
}

// Metrics is the capture agent's derived view of recent interaction. Its
// JSON form is the raw_signals object of a telemetry packet.
type Metrics struct {
	DwellTimeMs          int64   `json:"dwell_time_ms"`
	HoverLoops           int     `json:"hover_loops"`
	RapidClickCount      int     `json:"rapid_click_count"`
	ScrollDepth          float64 `json:"scroll_depth"`
	MouseVelocity        float64 `json:"mouse_velocity"`
	InactivityMs         int64   `json:"inactivity_ms"`
	KeyboardInactivityMs int64   `json:"keyboard_inactivity_ms"`
	MouseInactivityMs    int64   `json:"mouse_inactivity_ms"`
	KeypressCount        int64   `json:"keypress_count"`
	TypingSpeedWPM       float64 `json:"typing_speed_wpm"`
	TabVisible           bool    `json:"tab_visible"`
	PanelFocused         bool    `json:"panel_focused"`
}

type hover struct {
	target string
	at     time.Time
}

// CaptureAgent turns raw interaction events into Metrics without keeping
// unbounded history. Inactivity durations are derived from the clock at
// Snapshot time, so they grow while no matching event arrives and drop to
// zero on the next one. Before any event they count from agent creation.
//
// Safe for concurrent use.
type CaptureAgent struct {
	mu  sync.Mutex
	cfg CaptureConfig
	now core.Clock

	lastEvent time.Time
	lastKey   time.Time
	lastMouse time.Time

	lastMoveAt   time.Time
	lastMoveX    float64
	lastMoveY    float64
	hasMove      bool
	velocity     float64
	clicks       []time.Time
	hovers       []hover
	keys         []time.Time
	keypresses   int64
	scrollDepth  float64
	tabVisible   bool
	panelFocused bool
	focusSince   time.Time
}

// NewCaptureAgent creates an agent. The tab starts visible and the panel
// focused. A nil clock means the system clock.
func NewCaptureAgent(cfg CaptureConfig, clock core.Clock) *CaptureAgent {
	clock = clock.OrSystem()
	start := clock()
	return &CaptureAgent{
		cfg:          cfg.withDefaults(),
		now:          clock,
		lastEvent:    start,
		lastKey:      start,
		lastMouse:    start,
		tabVisible:   true,
		panelFocused: true,
		focusSince:   start,
	}
}

// RecordEvent folds one interaction event into the agent. Unknown kinds are
// ignored.
func (a *CaptureAgent) RecordEvent(kind EventKind, p EventPayload) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	switch kind {
	case KindMouseMove:
		if a.hasMove {
			if dt := now.Sub(a.lastMoveAt).Seconds(); dt > 0 {
				a.velocity = math.Hypot(p.X-a.lastMoveX, p.Y-a.lastMoveY) / dt
			}
		}
		a.lastMoveX, a.lastMoveY, a.lastMoveAt, a.hasMove = p.X, p.Y, now, true
		a.lastMouse = now
	case KindClick:
		a.clicks = appendBounded(a.clicks, now, a.cfg.MaxClicks)
		a.lastMouse = now
	case KindHover:
		a.hovers = append(a.hovers, hover{target: p.Target, at: now})
		if len(a.hovers) > a.cfg.MaxHovers {
			a.hovers = append(a.hovers[:0], a.hovers[len(a.hovers)-a.cfg.MaxHovers:]...)
		}
		a.lastMouse = now
	case KindScroll:
		a.scrollDepth = math.Max(0, math.Min(100, p.ScrollPercent))
	case KindKeyDown:
		a.keys = appendBounded(a.keys, now, a.cfg.MaxKeystroke)
		a.keypresses++
		a.lastKey = now
	case KindVisibility:
		a.tabVisible = p.Visible
		// visibility changes are not user input
		return
	case KindPanelFocus:
		if p.Focused && !a.panelFocused {
			a.focusSince = now
		}
		a.panelFocused = p.Focused
	default:
		return
	}
	a.lastEvent = now
}

// Snapshot returns the current metrics. It only holds the agent's lock for
// the duration of the copy.
func (a *CaptureAgent) Snapshot() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	m := Metrics{
		HoverLoops:           a.hoverLoops(now),
		RapidClickCount:      countSince(a.clicks, now.Add(-a.cfg.RapidClickWindow)),
		ScrollDepth:          a.scrollDepth,
		InactivityMs:         sinceMs(now, a.lastEvent),
		KeyboardInactivityMs: sinceMs(now, a.lastKey),
		MouseInactivityMs:    sinceMs(now, a.lastMouse),
		KeypressCount:        a.keypresses,
		TabVisible:           a.tabVisible,
		PanelFocused:         a.panelFocused,
	}

	if a.hasMove && now.Sub(a.lastMoveAt) < a.cfg.VelocityDecay {
		m.MouseVelocity = math.Round(a.velocity*100) / 100
	}
	if a.panelFocused {
		m.DwellTimeMs = sinceMs(now, a.focusSince)
	}

	recentKeys := countSince(a.keys, now.Add(-a.cfg.TypingWindow))
	perMinute := float64(recentKeys) * float64(time.Minute) / float64(a.cfg.TypingWindow)
	m.TypingSpeedWPM = math.Round(perMinute/a.cfg.CharsPerWord*10) / 10

	return m
}

// hoverLoops counts hovers inside the hover window whose target was already
// hovered earlier in the same window.
func (a *CaptureAgent) hoverLoops(now time.Time) int {
	cutoff := now.Add(-a.cfg.HoverWindow)
	seen := make(map[string]bool)
	loops := 0
	for _, h := range a.hovers {
		if !h.at.After(cutoff) {
			continue
		}
		if seen[h.target] {
			loops++
		}
		seen[h.target] = true
	}
	return loops
}

func appendBounded(ts []time.Time, t time.Time, max int) []time.Time {
	ts = append(ts, t)
	if len(ts) > max {
		ts = append(ts[:0], ts[len(ts)-max:]...)
	}
	return ts
}

func countSince(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func sinceMs(now, t time.Time) int64 {
	d := now.Sub(t).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
