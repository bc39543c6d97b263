package webapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cognitive_backend/agent"
	"cognitive_backend/db"
	"cognitive_backend/metrics"
)

// handleTelemetry is the packet sink: validate, count, persist, broadcast.
// Re-delivery of a packet with the same X-Request-Id is acknowledged without
// storing it twice.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	reqID := middleware.GetReqID(r.Context())
	received := s.now().UTC()

	var p agent.Packet
	err := json.Unmarshal(body, &p)
	if err == nil {
		err = p.Validate(s.cfg.WindowSeconds)
	}
	if err != nil {
		s.deps.Metrics.RecordPacket(metrics.PacketRecord{
			RequestID:  reqID,
			SessionID:  p.SessionID,
			UserID:     p.User(),
			State:      string(p.CognitiveState),
			Status:     metrics.PacketStatusRejected,
			ErrorMsg:   err.Error(),
			ReceivedAt: received,
		})
		s.log.Warn("Telemetry packet rejected", zap.String("request_id", reqID), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.deps.Store != nil {
		raw, _ := json.Marshal(p.RawSignals)
		_, err := s.deps.Store.InsertPacket(r.Context(), db.PacketRecord{
			RequestID:      reqID,
			UserID:         p.UserID,
			SessionID:      p.SessionID,
			CognitiveState: string(p.CognitiveState),
			ActiveSeconds:  p.ActiveSeconds,
			IdleSeconds:    p.IdleSeconds,
			AwaySeconds:    p.AwaySeconds,
			FocusScore:     p.FocusScore,
			RawSignals:     raw,
			Timestamp:      p.Timestamp,
			ReceivedAt:     received,
		})
		switch {
		case errors.Is(err, db.ErrDuplicatePacket):
			writeJSON(w, http.StatusOK, StatusResponse{Status: StatusDuplicate, SessionID: p.SessionID, RequestID: reqID})
			return
		case err != nil:
			// the packet is valid; losing it is logged, not charged to the probe
			s.log.Error("Failed to persist telemetry packet", zap.String("request_id", reqID), zap.Error(err))
		}
	}

	s.deps.Metrics.RecordPacket(metrics.PacketRecord{
		RequestID:  reqID,
		SessionID:  p.SessionID,
		UserID:     p.User(),
		State:      string(p.CognitiveState),
		FocusScore: p.FocusScore,
		Status:     metrics.PacketStatusAccepted,
		ReceivedAt: received,
	})
	if s.deps.Broadcaster != nil {
		s.deps.Broadcaster.Broadcast(NewWSMessage(MessageTypeTelemetryPacket, received, p))
	}

	writeJSON(w, http.StatusAccepted, StatusResponse{Status: StatusAccepted, SessionID: p.SessionID, RequestID: reqID})
}

// RecentPacketsResponse is the body of GET /api/telemetry/recent.
type RecentPacketsResponse struct {
	Packets []db.PacketRecord `json:"packets"`
	Count   int               `json:"count"`
	Limit   int               `json:"limit"`
}

// handleRecentPackets serves persisted packets, newest first.
// Query: subject (user or session id), since, limit.
func (s *Server) handleRecentPackets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "packet persistence is disabled")
		return
	}

	limit, err := queryInt(r, "limit", db.DefaultQueryLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, db.MaxQueryLimit)
	since, err := queryTime(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC3339 or unix milliseconds")
		return
	}

	packets, err := s.deps.Store.RecentPackets(r.Context(), db.PacketQuery{
		Subject: r.URL.Query().Get("subject"),
		Since:   since,
		Limit:   limit,
	})
	if err != nil {
		s.log.Error("Failed to read telemetry packets", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read packets")
		return
	}
	writeJSON(w, http.StatusOK, RecentPacketsResponse{Packets: packets, Count: len(packets), Limit: limit})
}
