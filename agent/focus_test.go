package agent

import (
	"testing"
	"time"
)

func logOf(states ...State) []Transition {
	log := make([]Transition, len(states))
	for i, s := range states {
		log[i] = Transition{State: s, Timestamp: start.Add(time.Duration(i) * time.Second)}
	}
	return log
}

func TestComputeTimeDistribution(t *testing.T) {
	tests := []struct {
		name    string
		log     []Transition
		current State
		want    TimeDistribution
	}{
		{"empty log, on task", nil, StateOnTask, TimeDistribution{Active: 5}},
		{"empty log, away", nil, StateAway, TimeDistribution{Away: 5}},
		{"five entries", logOf(StateOnTask, StateIdle, StateAway, StateDistracted, StateDeepFocus), StateDeepFocus, TimeDistribution{Active: 2, Idle: 1, Away: 2}},
		{"only the last five count", logOf(StateAway, StateAway, StateAway, StateOnTask, StateOnTask, StateOnTask, StateOnTask, StateOnTask), StateOnTask, TimeDistribution{Active: 5}},
		{"young session scales up", logOf(StateOnTask, StateIdle), StateIdle, TimeDistribution{Active: 3, Idle: 2}},
		{"three buckets from three entries", logOf(StateThinking, StateIdle, StateAway), StateAway, TimeDistribution{Active: 2, Idle: 2, Away: 1}},
		{"off task is active", logOf(StateOffTask), StateOffTask, TimeDistribution{Active: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTimeDistribution(tt.log, tt.current, 5)
			if got != tt.want {
				t.Errorf("ComputeTimeDistribution() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// Whatever the log looks like, the buckets sum to the window.
func TestComputeTimeDistribution_AlwaysSumsToWindow(t *testing.T) {
	for window := 1; window <= 9; window++ {
		for n := 0; n <= 12; n++ {
			states := make([]State, n)
			for i := range states {
				states[i] = AllStates[(i*5+n)%len(AllStates)]
			}
			d := ComputeTimeDistribution(logOf(states...), StateIdle, window)
			if d.Total() != window {
				t.Fatalf("window=%d n=%d: %+v sums to %d", window, n, d, d.Total())
			}
			if d.Active < 0 || d.Idle < 0 || d.Away < 0 {
				t.Fatalf("negative bucket: %+v", d)
			}
		}
	}
}

func TestFocusScore(t *testing.T) {
	cfg := DefaultFocusConfig()

	tests := []struct {
		name  string
		m     Metrics
		state State
		dist  TimeDistribution
		want  int
	}{
		{"engaged", engaged(), StateOnTask, TimeDistribution{Active: 5}, 100},
		{"deep focus bonus is capped", engaged(), StateDeepFocus, TimeDistribution{Active: 5}, 100},
		{"inactive thinker", Metrics{TabVisible: true, PanelFocused: true, InactivityMs: 12000}, StateThinking, TimeDistribution{Active: 5}, 80},
		{"exactly 10000ms is not penalised", Metrics{TabVisible: true, PanelFocused: true, InactivityMs: 10000}, StateThinking, TimeDistribution{Active: 5}, 100},
		{"restless", Metrics{TabVisible: true, PanelFocused: true, RapidClickCount: 3, HoverLoops: 6}, StateDistracted, TimeDistribution{Active: 3, Away: 2}, 100 - 15 - 10 - 30 - 10},
		{"idle seconds", Metrics{TabVisible: true, PanelFocused: true, InactivityMs: 70000}, StateIdle, TimeDistribution{Active: 2, Idle: 3}, 100 - 20 - 25 - 9},
		{
			name:  "everything wrong clamps to zero",
			m:     Metrics{InactivityMs: 500000, RapidClickCount: 9, HoverLoops: 9},
			state: StateAway,
			dist:  TimeDistribution{Away: 5},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FocusScore(tt.m, tt.state, tt.dist, cfg); got != tt.want {
				t.Errorf("FocusScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFocusScore_AlwaysInRange(t *testing.T) {
	cfg := DefaultFocusConfig()
	cfg.StatePenalties[StateDeepFocus] = -500

	for _, state := range AllStates {
		for away := 0; away <= 5; away++ {
			for _, visible := range []bool{true, false} {
				m := Metrics{TabVisible: visible, InactivityMs: int64(away) * 20000, RapidClickCount: away}
				d := TimeDistribution{Active: 5 - away, Away: away}
				if got := FocusScore(m, state, d, cfg); got < 0 || got > 100 {
					t.Fatalf("FocusScore(%s, away=%d) = %d out of range", state, away, got)
				}
			}
		}
	}
}
