package webapi

import (
	"net/http"

	"cognitive_backend/db"
	"cognitive_backend/metrics"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	TrackedSubjects int    `json:"tracked_subjects"`
}

// handleHealth answers 200 while the process is up, including when degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.refreshSubjects()
	st := s.deps.Metrics.GetSystemStatus()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          st.Health,
		Version:         st.Version,
		UptimeSeconds:   int64(st.Uptime.Seconds()),
		TrackedSubjects: st.TrackedSubjects,
	})
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	Status        metrics.SystemStatus   `json:"status"`
	Ingest        metrics.IngestMetrics  `json:"ingest"`
	RecentPackets []metrics.PacketRecord `json:"recent_packets"`
	FeedClients   int                    `json:"feed_clients"`
	FeedDropped   int64                  `json:"feed_dropped"`
	Writer        *db.AsyncWriterStats   `json:"writer,omitempty"`
}

// handleMetrics serves the pipeline counters. Query: packets (recent packet
// count, default 20).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "packets", 20)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "packets must be a non-negative integer")
		return
	}

	s.refreshSubjects()
	resp := MetricsResponse{
		Status:        s.deps.Metrics.GetSystemStatus(),
		Ingest:        s.deps.Metrics.GetIngestMetrics(),
		RecentPackets: s.deps.Metrics.GetRecentPackets(n),
	}
	if b := s.deps.Broadcaster; b != nil {
		resp.FeedClients = b.ClientCount()
		resp.FeedDropped = b.Dropped()
	}
	if s.deps.WriterStats != nil {
		stats := s.deps.WriterStats()
		resp.Writer = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refreshSubjects() {
	s.deps.Metrics.UpdateSubjects(len(s.deps.Aggregator.Subjects()), s.deps.Aggregator.DroppedEvents())
}
