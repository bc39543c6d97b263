// Package metrics provides the MetricsStore organism for in-memory metrics storage.
// This file contains the MetricsStore which implements the MetricsCollector interface.
package metrics

import (
	"sync"
	"time"
)

// MetricsStore is an in-memory store for the pipeline counters. It
// implements the MetricsCollector interface and keeps a bounded history of
// recent telemetry packets next to the running totals.
//
// Usage:
//
//	store := NewMetricsStore(DefaultStoreConfig(), time.Now())
//	store.RecordPacket(record)
//	store.RecordSignal("keystroke", metrics.SignalIngested)
//	m := store.GetIngestMetrics()
type MetricsStore struct {
	mu sync.RWMutex

	// Packet history (circular)
	packetHistory []PacketRecord
	packetCap     int
	packetHead    int
	packetSize    int

	// Packet aggregation
	packetsReceived int64
	packetsAccepted int64
	packetsRejected int64
	byState         map[string]*stateStats

	// Signal aggregation
	signalsIngested int64
	signalsIgnored  int64
	signalsRejected int64
	signalsByType   map[string]int64

	classifications int64

	// Aggregator snapshot
	trackedSubjects int
	droppedEvents   int64

	startTime time.Time
	version   string
}

type stateStats struct {
	count      int64
	focusTotal int64
}

// StoreConfig configures the MetricsStore behavior.
type StoreConfig struct {
	// PacketHistoryCapacity is the max number of packets to retain
	PacketHistoryCapacity int
	// Version is the application version string
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		PacketHistoryCapacity: 100,
		Version:               "0.0.0",
	}
}

// NewMetricsStore creates a new MetricsStore. startTime is used to calculate
// uptime.
func NewMetricsStore(config StoreConfig, startTime time.Time) *MetricsStore {
	cap := config.PacketHistoryCapacity
	if cap < 1 {
		cap = 100
	}

	return &MetricsStore{
		packetHistory: make([]PacketRecord, cap),
		packetCap:     cap,
		byState:       make(map[string]*stateStats),
		signalsByType: make(map[string]int64),
		startTime:     startTime,
		version:       config.Version,
	}
}

// RecordPacket logs one telemetry packet.
func (s *MetricsStore) RecordPacket(p PacketRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packetHistory[s.packetHead] = p
	s.packetHead = (s.packetHead + 1) % s.packetCap
	if s.packetSize < s.packetCap {
		s.packetSize++
	}

	s.packetsReceived++
	if p.Status != PacketStatusAccepted {
		s.packetsRejected++
		return
	}
	s.packetsAccepted++

	stats, ok := s.byState[p.State]
	if !ok {
		stats = &stateStats{}
		s.byState[p.State] = stats
	}
	stats.count++
	stats.focusTotal += int64(p.FocusScore)
}

// GetRecentPackets returns the N most recent packet records, oldest first.
// If limit exceeds available records, all available are returned.
func (s *MetricsStore) GetRecentPackets(limit int) []PacketRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.packetSize == 0 {
		return []PacketRecord{}
	}
	if limit > s.packetSize {
		limit = s.packetSize
	}

	result := make([]PacketRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.packetHead - limit + i + s.packetCap) % s.packetCap
		result[i] = s.packetHistory[idx]
	}
	return result
}

// RecordSignal counts one ingestion attempt.
func (s *MetricsStore) RecordSignal(signalType string, outcome SignalOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch outcome {
	case SignalIngested:
		s.signalsIngested++
		s.signalsByType[signalType]++
	case SignalIgnored:
		s.signalsIgnored++
	default:
		s.signalsRejected++
	}
}

// RecordClassification counts one scorer result.
func (s *MetricsStore) RecordClassification() {
	s.mu.Lock()
	s.classifications++
	s.mu.Unlock()
}

// GetIngestMetrics returns the aggregated counters.
func (s *MetricsStore) GetIngestMetrics() IngestMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := IngestMetrics{
		PacketsReceived: s.packetsReceived,
		PacketsAccepted: s.packetsAccepted,
		PacketsRejected: s.packetsRejected,
		SignalsIngested: s.signalsIngested,
		SignalsIgnored:  s.signalsIgnored,
		SignalsRejected: s.signalsRejected,
		SignalsByType:   make(map[string]int64, len(s.signalsByType)),
		ByState:         make(map[string]*StateMetrics, len(s.byState)),
		Classifications: s.classifications,
	}
	for typ, n := range s.signalsByType {
		m.SignalsByType[typ] = n
	}
	for state, stats := range s.byState {
		var avg float64
		if stats.count > 0 {
			avg = float64(stats.focusTotal) / float64(stats.count)
		}
		m.ByState[state] = &StateMetrics{Count: stats.count, AvgFocusScore: avg}
	}
	return m
}

// UpdateSubjects records the aggregator's tracked subject count and
// observer drop counter.
func (s *MetricsStore) UpdateSubjects(tracked int, droppedEvents int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackedSubjects = tracked
	s.droppedEvents = droppedEvents
}

// GetSystemStatus returns the overall health. The server reports degraded
// once at least 10 packets arrived and more were rejected than accepted.
func (s *MetricsStore) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if s.packetsReceived >= 10 && s.packetsRejected > s.packetsAccepted {
		health = SystemHealthDegraded
	}

	return SystemStatus{
		Health:          health,
		Version:         s.version,
		Uptime:          time.Since(s.startTime),
		TrackedSubjects: s.trackedSubjects,
		DroppedEvents:   s.droppedEvents,
		LastCheck:       time.Now(),
	}
}

// Verify MetricsStore implements MetricsCollector interface
var _ MetricsCollector = (*MetricsStore)(nil)
