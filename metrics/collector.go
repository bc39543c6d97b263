// Package metrics provides the MetricsCollector interface for the ingestion
// pipeline counters.
package metrics

// MetricsCollector defines the interface for collecting pipeline metrics.
//
// Implementation strategy:
// - Methods must be concurrency-safe; they are called from HTTP handlers
// - Zero values are returned for unavailable metrics
type MetricsCollector interface {
	// RecordPacket logs one telemetry packet, accepted or rejected.
	RecordPacket(p PacketRecord)

	// GetRecentPackets returns up to limit packet records, oldest first.
	GetRecentPackets(limit int) []PacketRecord

	// RecordSignal counts one ingestion attempt of the given signal type.
	RecordSignal(signalType string, outcome SignalOutcome)

	// RecordClassification counts one scorer result.
	RecordClassification()

	// GetIngestMetrics returns the aggregated counters.
	GetIngestMetrics() IngestMetrics

	// UpdateSubjects records the number of tracked subjects and the
	// observer drop count, both read from the aggregator.
	UpdateSubjects(tracked int, droppedEvents int64)

	// GetSystemStatus returns the overall health.
	GetSystemStatus() SystemStatus
}
