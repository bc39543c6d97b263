package signals

// Typed payloads accepted by the aggregator ingestion API. JSON field names
// follow the probe wire format.

// FocusPayload reports whether the work window has focus.
type FocusPayload struct {
	Focused bool `json:"focused"`
}

// HiddenPayload reports whether the browser tab is hidden.
type HiddenPayload struct {
	Hidden bool `json:"hidden"`
}

// KeystrokePayload is one key press. Key may be empty when the probe
// redacts key identity.
type KeystrokePayload struct {
	Key string `json:"key"`
}

// MousePayload is one pointer event. Type is the DOM event kind
// ("move", "click", ...).
type MousePayload struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Type string  `json:"type"`
}

// ScrollPayload is a scroll position report. Percentage is 0-100.
type ScrollPayload struct {
	Percentage float64 `json:"percentage"`
	Direction  string  `json:"direction,omitempty"`
	Position   float64 `json:"position,omitempty"`
}

// TabPayload describes the active browser tab.
type TabPayload struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Domain   string `json:"domain"`
	IsActive bool   `json:"isActive"`
}

// AppSwitchPayload describes a switch between desktop applications.
type AppSwitchPayload struct {
	FromApp string `json:"fromApp"`
	ToApp   string `json:"toApp"`
	Reason  string `json:"reason,omitempty"`
}

// IdlePayload is attached to server-generated idle_time signals.
type IdlePayload struct {
	IdleMs int64 `json:"idle_ms"`
}
