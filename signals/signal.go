// Package signals defines the discrete activity signals exchanged between
// capture probes and the server aggregator, and decodes them at the transport
// boundary.
package signals

import (
	"time"
)

// Type identifies the kind of a Signal.
type Type string

// Signal types.
const (
	TypeWindowFocus   Type = "window_focus"
	TypeKeystroke     Type = "keystroke"
	TypeMouseMovement Type = "mouse_movement"
	TypeScrollDepth   Type = "scroll_depth"
	TypeTaskTabActive Type = "task_tab_active"
	TypeIdleTime      Type = "idle_time"
	TypeAppSwitch     Type = "app_switch"
	TypeBrowserHidden Type = "browser_hidden"
)

// AllTypes lists every signal type in a stable order.
var AllTypes = []Type{
	TypeWindowFocus,
	TypeKeystroke,
	TypeMouseMovement,
	TypeScrollDepth,
	TypeTaskTabActive,
	TypeIdleTime,
	TypeAppSwitch,
	TypeBrowserHidden,
}

// Valid reports whether t is a known signal type.
func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Ingestible reports whether probes may submit signals of this type.
// idle_time is produced only by the server's idle sweep.
func (t Type) Ingestible() bool {
	return t.Valid() && t != TypeIdleTime
}

// Meaning is the short classification label attached at capture time.
type Meaning string

// Meaning labels.
const (
	MeaningRealActivity  Meaning = "real_activity"
	MeaningLowActivity   Meaning = "low_activity"
	MeaningFocused       Meaning = "focused"
	MeaningUnfocused     Meaning = "unfocused"
	MeaningOnTask        Meaning = "on_task"
	MeaningOffTask       Meaning = "off_task"
	MeaningContextSwitch Meaning = "context_switch"
	MeaningHidden        Meaning = "hidden"
	MeaningVisible       Meaning = "visible"
	MeaningIdle          Meaning = "idle"
)

// Signal is one discrete, timestamped observation. Signals are values: the
// metadata map is copied on construction and by Clone, so a Signal handed out
// by the aggregator cannot be used to mutate its history.
type Signal struct {
	Type      Type              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Value     any               `json:"value"`
	Meaning   Meaning           `json:"meaning"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New builds a Signal, copying metadata.
func New(typ Type, ts time.Time, value any, meaning Meaning, metadata map[string]string) Signal {
	return Signal{
		Type:      typ,
		Timestamp: ts,
		Value:     value,
		Meaning:   meaning,
		Metadata:  copyMetadata(metadata),
	}
}

// Clone returns a copy of s that shares no mutable state with it.
func (s Signal) Clone() Signal {
	s.Metadata = copyMetadata(s.Metadata)
	return s
}

// Meta returns a single metadata value, or "" when absent.
func (s Signal) Meta(key string) string {
	return s.Metadata[key]
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
