package signals

import (
	"errors"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    any
		wantErr error
	}{
		{
			name:  "keystroke",
			input: `{"type":"keystroke","payload":{"key":"a"}}`,
			want:  KeystrokePayload{Key: "a"},
		},
		{
			name:  "mouse",
			input: `{"type":"mouse_movement","payload":{"x":10,"y":20.5,"type":"move"}}`,
			want:  MousePayload{X: 10, Y: 20.5, Type: "move"},
		},
		{
			name:  "focus bare boolean",
			input: `{"type":"window_focus","payload":false}`,
			want:  FocusPayload{Focused: false},
		},
		{
			name:  "hidden object",
			input: `{"type":"browser_hidden","payload":{"hidden":true}}`,
			want:  HiddenPayload{Hidden: true},
		},
		{
			name:  "scroll",
			input: `{"type":"scroll_depth","payload":{"percentage":42,"direction":"down"}}`,
			want:  ScrollPayload{Percentage: 42, Direction: "down"},
		},
		{
			name:  "tab domain derived from url",
			input: `{"type":"task_tab_active","payload":{"url":"https://Jira.Example.com/browse/X-1","isActive":true}}`,
			want:  TabPayload{URL: "https://Jira.Example.com/browse/X-1", Domain: "jira.example.com", IsActive: true},
		},
		{
			name:  "app switch",
			input: `{"type":"app_switch","payload":{"fromApp":"IDE","toApp":"Slack"}}`,
			want:  AppSwitchPayload{FromApp: "IDE", ToApp: "Slack"},
		},
		{
			name:    "unknown type",
			input:   `{"type":"heartbeat","payload":{}}`,
			wantErr: ErrUnknownSignalType,
		},
		{
			name:    "idle_time is server-only",
			input:   `{"type":"idle_time","payload":{"idle_ms":5}}`,
			wantErr: ErrUnknownSignalType,
		},
		{
			name:    "missing payload",
			input:   `{"type":"keystroke"}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "focus without field",
			input:   `{"type":"window_focus","payload":{"other":true}}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "scroll out of range",
			input:   `{"type":"scroll_depth","payload":{"percentage":140}}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "app switch without target",
			input:   `{"type":"app_switch","payload":{"fromApp":"IDE"}}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "wrong payload shape",
			input:   `{"type":"mouse_movement","payload":"fast"}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "not json",
			input:   `{type:`,
			wantErr: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeEvent() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent() unexpected error: %v", err)
			}
			if ev.Payload != tt.want {
				t.Errorf("DecodeEvent() payload = %#v, want %#v", ev.Payload, tt.want)
			}
		})
	}
}

func TestDecodeBatch_SkipsBadEntries(t *testing.T) {
	body := `[
		{"type":"keystroke","payload":{"key":"a"}},
		{"type":"teleport","payload":{}},
		{"type":"scroll_depth","payload":{"percentage":-1}},
		{"type":"window_focus","payload":true}
	]`

	events, errs, err := DecodeBatch([]byte(body))
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Type != TypeKeystroke || events[1].Type != TypeWindowFocus {
		t.Errorf("events out of order: %v, %v", events[0].Type, events[1].Type)
	}
	if !errors.Is(errs[1], ErrUnknownSignalType) {
		t.Errorf("errs[1] = %v, want ErrUnknownSignalType", errs[1])
	}
	if !errors.Is(errs[2], ErrMalformedPayload) {
		t.Errorf("errs[2] = %v, want ErrMalformedPayload", errs[2])
	}
}

func TestDecodeBatch_NotAnArray(t *testing.T) {
	if _, _, err := DecodeBatch([]byte(`{"type":"keystroke"}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("DecodeBatch() error = %v, want ErrMalformedPayload", err)
	}
}
