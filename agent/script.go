package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"
	"time"
)

// ScriptEvent is one line of an interaction script: an event kind, its
// payload, and its offset in milliseconds from the start of the replay.
//
//	{"at_ms": 1200, "kind": "keydown", "key": "a"}
type ScriptEvent struct {
	AtMs int64     `json:"at_ms"`
	Kind EventKind `json:"kind"`
	EventPayload
}

// LoadScript reads a JSON-lines script. Blank lines and lines starting with
// '#' are skipped. Events are returned sorted by offset.
func LoadScript(r io.Reader) ([]ScriptEvent, error) {
	var events []ScriptEvent

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var ev ScriptEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return nil, fmt.Errorf("agent: script line %d: %w", line, err)
		}
		if !ev.Kind.Valid() {
			return nil, fmt.Errorf("agent: script line %d: unknown event kind %q", line, ev.Kind)
		}
		if ev.AtMs < 0 {
			return nil, fmt.Errorf("agent: script line %d: negative at_ms", line)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("agent: failed to read script: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].AtMs < events[j].AtMs })
	return events, nil
}

// Replay feeds events to the runner at their offsets. speed scales time
// (2 replays twice as fast); speed <= 0 means real time. Returns ctx.Err()
// if cancelled before the last event.
func Replay(ctx context.Context, r *Runner, events []ScriptEvent, speed float64) error {
	if speed <= 0 {
		speed = 1
	}

	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, ev := range events {
		due := start.Add(time.Duration(float64(ev.AtMs) * float64(time.Millisecond) / speed))
		if wait := time.Until(due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		r.RecordEvent(ev.Kind, ev.EventPayload)
	}
	return nil
}

// SyntheticScript generates a plausible work session of the given length:
// alternating phases of typing, reading with scrolls, restless clicking,
// a hidden tab and silence. The same seed yields the same script.
func SyntheticScript(seed uint64, length time.Duration) []ScriptEvent {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var events []ScriptEvent

	at := int64(0)
	end := length.Milliseconds()
	x, y := 400.0, 300.0

	for at < end {
		phaseLen := int64(5000 + rng.IntN(15000))
		phaseEnd := min(at+phaseLen, end)

		switch rng.IntN(5) {
		case 0: // typing
			for at < phaseEnd {
				events = append(events, ScriptEvent{AtMs: at, Kind: KindKeyDown, EventPayload: EventPayload{Key: string(rune('a' + rng.IntN(26)))}})
				at += int64(80 + rng.IntN(220))
			}
		case 1: // reading
			pct := 0.0
			for at < phaseEnd {
				pct = min(100, pct+rng.Float64()*8)
				events = append(events, ScriptEvent{AtMs: at, Kind: KindScroll, EventPayload: EventPayload{ScrollPercent: pct}})
				at += int64(700 + rng.IntN(2500))
			}
		case 2: // restless
			for at < phaseEnd {
				x += rng.Float64()*200 - 100
				y += rng.Float64()*200 - 100
				events = append(events, ScriptEvent{AtMs: at, Kind: KindMouseMove, EventPayload: EventPayload{X: x, Y: y}})
				if rng.IntN(3) == 0 {
					events = append(events, ScriptEvent{AtMs: at + 50, Kind: KindClick, EventPayload: EventPayload{X: x, Y: y}})
				}
				if rng.IntN(2) == 0 {
					target := fmt.Sprintf("menu-%d", rng.IntN(3))
					events = append(events, ScriptEvent{AtMs: at + 80, Kind: KindHover, EventPayload: EventPayload{Target: target}})
				}
				at += int64(150 + rng.IntN(300))
			}
		case 3: // tab hidden
			events = append(events, ScriptEvent{AtMs: at, Kind: KindVisibility, EventPayload: EventPayload{Visible: false}})
			events = append(events, ScriptEvent{AtMs: phaseEnd, Kind: KindVisibility, EventPayload: EventPayload{Visible: true}})
			at = phaseEnd
		default: // silence
			at = phaseEnd
		}
		at = max(at, phaseEnd)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].AtMs < events[j].AtMs })
	return events
}
