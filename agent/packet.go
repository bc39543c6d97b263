package agent

import (
	"errors"
	"fmt"
	"time"
)

// Packet is the telemetry packet sent once per emission tick. Packets are
// independent snapshots; none refers to an earlier one.
type Packet struct {
	UserID         *string   `json:"user_id"`
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	CognitiveState State     `json:"cognitive_state"`
	ActiveSeconds  int       `json:"active_seconds"`
	IdleSeconds    int       `json:"idle_seconds"`
	AwaySeconds    int       `json:"away_seconds"`
	FocusScore     int       `json:"focus_score"`
	RawSignals     Metrics   `json:"raw_signals"`
}

// ErrInvalidPacket is returned (wrapped) by Packet.Validate.
var ErrInvalidPacket = errors.New("invalid telemetry packet")

// Validate checks a packet received from an untrusted probe. window is the
// expected distribution length (DefaultWindowSeconds when <= 0).
func (p Packet) Validate(window int) error {
	if window <= 0 {
		window = DefaultWindowSeconds
	}
	switch {
	case p.SessionID == "":
		return fmt.Errorf("%w: session_id is required", ErrInvalidPacket)
	case p.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidPacket)
	case !p.CognitiveState.Valid():
		return fmt.Errorf("%w: unknown cognitive_state %q", ErrInvalidPacket, p.CognitiveState)
	case p.FocusScore < 0 || p.FocusScore > 100:
		return fmt.Errorf("%w: focus_score %d out of range 0-100", ErrInvalidPacket, p.FocusScore)
	case p.ActiveSeconds < 0 || p.IdleSeconds < 0 || p.AwaySeconds < 0:
		return fmt.Errorf("%w: negative time distribution", ErrInvalidPacket)
	case p.ActiveSeconds+p.IdleSeconds+p.AwaySeconds != window:
		return fmt.Errorf("%w: time distribution sums to %d, want %d",
			ErrInvalidPacket, p.ActiveSeconds+p.IdleSeconds+p.AwaySeconds, window)
	}
	return nil
}

// Distribution returns the packet's time distribution.
func (p Packet) Distribution() TimeDistribution {
	return TimeDistribution{Active: p.ActiveSeconds, Idle: p.IdleSeconds, Away: p.AwaySeconds}
}

// User returns the user id, or "" for an anonymous packet.
func (p Packet) User() string {
	if p.UserID == nil {
		return ""
	}
	return *p.UserID
}
