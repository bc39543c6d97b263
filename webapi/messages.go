package webapi

import (
	"time"

	"cognitive_backend/aggregator"
	"cognitive_backend/scoring"
)

// Live feed message types.
const (
	// MessageTypeSignalCaptured carries one aggregator SignalEvent.
	MessageTypeSignalCaptured = "signal_captured"

	// MessageTypeTelemetryPacket carries one accepted telemetry packet.
	MessageTypeTelemetryPacket = "telemetry_packet"

	// MessageTypeClassification carries one scorer result from an idle sweep.
	MessageTypeClassification = "classification"
)

// WSMessage is the envelope for every live feed message.
type WSMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewWSMessage stamps a message with at.
func NewWSMessage(msgType string, at time.Time, data any) WSMessage {
	return WSMessage{Type: msgType, Timestamp: at, Data: data}
}

// ClassificationData is the payload of a classification message and of the
// state endpoint.
type ClassificationData struct {
	SubjectID      string                  `json:"subject_id"`
	SessionID      string                  `json:"session_id,omitempty"`
	State          aggregator.CurrentState `json:"state"`
	Classification scoring.Classification  `json:"classification"`
}
