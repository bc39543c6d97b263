package agent

import (
	"sort"
)

// DefaultWindowSeconds is the length of the time distribution window.
const DefaultWindowSeconds = 5

// TimeDistribution splits the trailing window into active, idle and away
// seconds. The three always sum to the window length.
type TimeDistribution struct {
	Active int `json:"active_seconds"`
	Idle   int `json:"idle_seconds"`
	Away   int `json:"away_seconds"`
}

// Total returns Active + Idle + Away.
func (d TimeDistribution) Total() int {
	return d.Active + d.Idle + d.Away
}

// ComputeTimeDistribution buckets the last window transition-log entries:
// AWAY and DISTRACTED count as away, IDLE as idle, the rest as active. Each
// entry is treated as one second, which is exact only while the classifier
// evaluates once per second. With an empty log the current state fills the
// window.
//
// Shares are rounded with the largest-remainder method, so the result always
// sums to window.
func ComputeTimeDistribution(log []Transition, current State, window int) TimeDistribution {
	if window <= 0 {
		window = DefaultWindowSeconds
	}

	var counts [3]int // active, idle, away
	if len(log) == 0 {
		counts[bucketOf(current)] = 1
	} else {
		if len(log) > window {
			log = log[len(log)-window:]
		}
		for _, t := range log {
			counts[bucketOf(t.State)]++
		}
	}

	n := counts[0] + counts[1] + counts[2]
	var shares [3]int
	type remainder struct {
		bucket int
		frac   int // numerator of the fractional part, over n
	}
	rems := make([]remainder, 0, 3)
	assigned := 0
	for i, c := range counts {
		shares[i] = c * window / n
		assigned += shares[i]
		rems = append(rems, remainder{bucket: i, frac: c * window % n})
	}

	// ties keep bucket order: active, idle, away
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].frac > rems[j].frac })
	for i := 0; assigned < window; i++ {
		shares[rems[i%3].bucket]++
		assigned++
	}

	return TimeDistribution{Active: shares[0], Idle: shares[1], Away: shares[2]}
}

func bucketOf(s State) int {
	switch s {
	case StateIdle:
		return 1
	case StateAway, StateDistracted:
		return 2
	default:
		return 0
	}
}

// FocusConfig holds the focus score penalties and the limits that trigger
// them. State penalties are subtracted; a negative penalty is a bonus.
type FocusConfig struct {
	InactivityMs          int64
	InactivityPenalty     int
	RapidClickLimit       int
	RapidClickPenalty     int
	HoverLoopLimit        int
	HoverLoopPenalty      int
	TabHiddenPenalty      int
	PanelUnfocusedPenalty int
	StatePenalties        map[State]int
	AwaySecondPenalty     int
	IdleSecondPenalty     int
}

// DefaultFocusConfig returns the default penalties.
func DefaultFocusConfig() FocusConfig {
	return FocusConfig{
		InactivityMs:          10000,
		InactivityPenalty:     20,
		RapidClickLimit:       2,
		RapidClickPenalty:     15,
		HoverLoopLimit:        5,
		HoverLoopPenalty:      10,
		TabHiddenPenalty:      30,
		PanelUnfocusedPenalty: 20,
		StatePenalties: map[State]int{
			StateAway:       40,
			StateDistracted: 30,
			StateIdle:       25,
			StateOffTask:    35,
			StateDeepFocus:  -10,
		},
		AwaySecondPenalty: 5,
		IdleSecondPenalty: 3,
	}
}

// FocusScore starts at 100, applies every penalty and clamps to [0,100].
func FocusScore(m Metrics, state State, d TimeDistribution, cfg FocusConfig) int {
	score := 100

	if m.InactivityMs > cfg.InactivityMs {
		score -= cfg.InactivityPenalty
	}
	if m.RapidClickCount > cfg.RapidClickLimit {
		score -= cfg.RapidClickPenalty
	}
	if m.HoverLoops > cfg.HoverLoopLimit {
		score -= cfg.HoverLoopPenalty
	}
	if !m.TabVisible {
		score -= cfg.TabHiddenPenalty
	}
	if !m.PanelFocused {
		score -= cfg.PanelUnfocusedPenalty
	}
	score -= cfg.StatePenalties[state]
	score -= d.Away * cfg.AwaySecondPenalty
	score -= d.Idle * cfg.IdleSecondPenalty

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
