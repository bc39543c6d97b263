package signals

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// Transport-boundary errors. Both are returned wrapped; test with errors.Is.
var (
	ErrUnknownSignalType = errors.New("unknown signal type")
	ErrMalformedPayload  = errors.New("malformed signal payload")
)

// Event is a decoded ingestion request: a signal type plus its typed payload.
// Payload holds one of the *Payload value types of this package.
type Event struct {
	Type    Type
	Payload any
}

type wireEvent struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEvent decodes {"type": "...", "payload": {...}}.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return DecodePayload(w.Type, w.Payload)
}

// DecodeBatch decodes a JSON array of events. Entries that fail to decode are
// returned in errs (keyed by index) and skipped; the rest are returned in order.
// Only a body that is not a JSON array is a hard error.
func DecodeBatch(data []byte) (events []Event, errs map[int]error, err error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: batch must be a JSON array: %v", ErrMalformedPayload, err)
	}

	for i, item := range raw {
		ev, decodeErr := DecodeEvent(item)
		if decodeErr != nil {
			if errs == nil {
				errs = make(map[int]error)
			}
			errs[i] = decodeErr
			continue
		}
		events = append(events, ev)
	}
	return events, errs, nil
}

// DecodePayload decodes the payload for a known signal type.
//
// window_focus and browser_hidden also accept a bare JSON boolean.
func DecodePayload(typ Type, raw json.RawMessage) (Event, error) {
	if !typ.Ingestible() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownSignalType, typ)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Event{}, fmt.Errorf("%w: %s: payload is required", ErrMalformedPayload, typ)
	}

	var (
		payload any
		err     error
	)
	switch typ {
	case TypeWindowFocus:
		var v bool
		v, err = decodeFlag(raw, "focused")
		payload = FocusPayload{Focused: v}
	case TypeBrowserHidden:
		var v bool
		v, err = decodeFlag(raw, "hidden")
		payload = HiddenPayload{Hidden: v}
	case TypeKeystroke:
		var p KeystrokePayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypeMouseMovement:
		var p MousePayload
		if err = json.Unmarshal(raw, &p); err == nil {
			err = validateMouse(p)
		}
		payload = p
	case TypeScrollDepth:
		var p ScrollPayload
		if err = json.Unmarshal(raw, &p); err == nil {
			err = validateScroll(p)
		}
		payload = p
	case TypeTaskTabActive:
		var p TabPayload
		if err = json.Unmarshal(raw, &p); err == nil {
			p, err = normalizeTab(p)
		}
		payload = p
	case TypeAppSwitch:
		var p AppSwitchPayload
		if err = json.Unmarshal(raw, &p); err == nil && p.ToApp == "" {
			err = errors.New("toApp is required")
		}
		payload = p
	}

	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, typ, err)
	}
	return Event{Type: typ, Payload: payload}, nil
}

// decodeFlag accepts either a bare boolean or an object carrying field.
func decodeFlag(raw json.RawMessage, field string) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	var obj map[string]*bool
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false, err
	}
	v, ok := obj[field]
	if !ok || v == nil {
		return false, fmt.Errorf("%s is required", field)
	}
	return *v, nil
}

func validateMouse(p MousePayload) error {
	if !finite(p.X) || !finite(p.Y) {
		return errors.New("coordinates must be finite")
	}
	return nil
}

func validateScroll(p ScrollPayload) error {
	if !finite(p.Percentage) || p.Percentage < 0 || p.Percentage > 100 {
		return fmt.Errorf("percentage %v out of range 0-100", p.Percentage)
	}
	return nil
}

// normalizeTab fills Domain from URL when the probe omitted it.
func normalizeTab(p TabPayload) (TabPayload, error) {
	if p.Domain == "" && p.URL != "" {
		u, err := url.Parse(p.URL)
		if err != nil {
			return p, fmt.Errorf("invalid url: %v", err)
		}
		p.Domain = u.Hostname()
	}
	p.Domain = strings.ToLower(p.Domain)
	return p, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
