package aggregator

import (
	"time"

	"cognitive_backend/signals"
)

// CurrentState holds the derived fields of a subject. Rates are events in
// the trailing rate window (per minute with the default config).
type CurrentState struct {
	WindowFocus    bool    `json:"window_focus"`
	KeystrokeRate  int     `json:"keystroke_rate"`
	MouseMovement  int     `json:"mouse_movement"`
	ScrollDepth    float64 `json:"scroll_depth"`
	ScrollRate     int     `json:"scroll_rate"`
	TaskTabActive  bool    `json:"task_tab_active"`
	IdleTimeMs     int64   `json:"idle_time"`
	IsIdle         bool    `json:"is_idle"`
	AppSwitchCount int     `json:"app_switch_count"`
	BrowserHidden  bool    `json:"browser_hidden"`
	ActiveURL      string  `json:"active_url,omitempty"`
	ActiveDomain   string  `json:"active_domain,omitempty"`
	CurrentApp     string  `json:"current_app,omitempty"`
}

// initialState is the state of a freshly initialized subject: focused, on a
// work tab, visible and not idle until signals say otherwise.
func initialState() CurrentState {
	return CurrentState{
		WindowFocus:   true,
		TaskTabActive: true,
	}
}

// Snapshot is a point-in-time copy of one subject.
type Snapshot struct {
	SubjectID   string       `json:"subject_id"`
	SessionID   string       `json:"session_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	State       CurrentState `json:"state"`
	SignalCount int          `json:"signal_count"`
}

// Statistics summarises a subject's signal history.
type Statistics struct {
	SubjectID      string                  `json:"subject_id"`
	TotalCaptured  int64                   `json:"total_captured"`
	Buffered       int                     `json:"buffered"`
	BufferCapacity int                     `json:"buffer_capacity"`
	ByType         map[signals.Type]int    `json:"by_type"`
	ByMeaning      map[signals.Meaning]int `json:"by_meaning"`
	KeystrokeRate  int                     `json:"keystroke_rate"`
	MouseRate      int                     `json:"mouse_rate"`
	ScrollRate     int                     `json:"scroll_rate"`
	AppSwitchCount int                     `json:"app_switch_count"`
	IdleTimeMs     int64                   `json:"idle_time"`
	TrackedForMs   int64                   `json:"tracked_for_ms"`
	FirstSignalAt  *time.Time              `json:"first_signal_at,omitempty"`
	LastSignalAt   *time.Time              `json:"last_signal_at,omitempty"`
}

// WindowProof describes one sliding window in a LiveProof dump.
type WindowProof struct {
	LengthMs int64      `json:"length_ms"`
	Stored   int        `json:"stored"`
	InWindow int        `json:"in_window"`
	Oldest   *time.Time `json:"oldest,omitempty"`
}

// LiveProof is the diagnostic dump of a subject. It demonstrates that signals
// are arriving and shows the raw bookkeeping behind the derived state.
type LiveProof struct {
	Snapshot      Snapshot               `json:"snapshot"`
	GeneratedAt   time.Time              `json:"generated_at"`
	LastKeystroke *time.Time             `json:"last_keystroke,omitempty"`
	LastMouse     *time.Time             `json:"last_mouse,omitempty"`
	LastScroll    *time.Time             `json:"last_scroll,omitempty"`
	LastActivity  time.Time              `json:"last_activity"`
	Windows       map[string]WindowProof `json:"windows"`
	RecentSignals []signals.Signal       `json:"recent_signals"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
