// Package metrics provides pure data types for the pipeline counters.
// This file contains atom-level type definitions with no behavior.
package metrics

import "time"

// PacketRecord is one telemetry packet as seen by the packet sink.
type PacketRecord struct {
	// RequestID correlates the record with the probe's request log
	RequestID string `json:"request_id,omitempty"`

	SessionID string `json:"session_id"`

	// UserID is empty for anonymous sessions
	UserID string `json:"user_id,omitempty"`

	// State is the cognitive state label the probe reported
	State string `json:"state"`

	FocusScore int `json:"focus_score"`

	// Status is "accepted" or "rejected"
	Status string `json:"status"`

	// ErrorMsg holds the validation failure when Status is "rejected"
	ErrorMsg string `json:"error_msg,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// SignalOutcome is the result of one ingestion attempt.
type SignalOutcome string

// Ingestion outcomes.
const (
	// SignalIngested: stored in a tracked subject's buffer
	SignalIngested SignalOutcome = "ingested"
	// SignalIgnored: subject not tracked
	SignalIgnored SignalOutcome = "ignored"
	// SignalRejected: unknown type or malformed payload
	SignalRejected SignalOutcome = "rejected"
)

// IngestMetrics is the aggregated view served on /api/metrics.
type IngestMetrics struct {
	PacketsReceived int64 `json:"packets_received"`
	PacketsAccepted int64 `json:"packets_accepted"`
	PacketsRejected int64 `json:"packets_rejected"`

	SignalsIngested int64 `json:"signals_ingested"`
	SignalsIgnored  int64 `json:"signals_ignored"`
	SignalsRejected int64 `json:"signals_rejected"`

	// SignalsByType counts ingested signals per signal type
	SignalsByType map[string]int64 `json:"signals_by_type"`

	// ByState contains per-cognitive-state packet statistics
	ByState map[string]*StateMetrics `json:"by_state"`

	// Classifications counts scorer results pushed after idle sweeps
	Classifications int64 `json:"classifications"`
}

// StateMetrics summarizes accepted packets reporting one cognitive state.
type StateMetrics struct {
	Count         int64   `json:"count"`
	AvgFocusScore float64 `json:"avg_focus_score"`
}

// SystemStatus represents the overall server health.
type SystemStatus struct {
	// Health is "running" or "degraded"
	Health string `json:"health"`

	Version string `json:"version"`

	Uptime time.Duration `json:"uptime"`

	TrackedSubjects int `json:"tracked_subjects"`

	// DroppedEvents counts observer notifications lost to slow subscribers
	DroppedEvents int64 `json:"dropped_events"`

	LastCheck time.Time `json:"last_check"`
}

// Status constants for PacketRecord
const (
	PacketStatusAccepted = "accepted"
	PacketStatusRejected = "rejected"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning  = "running"
	SystemHealthDegraded = "degraded"
)
