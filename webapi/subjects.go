package webapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cognitive_backend/aggregator"
	"cognitive_backend/db"
	"cognitive_backend/metrics"
	"cognitive_backend/signals"
)

type initRequest struct {
	SessionID string `json:"session_id"`
}

// handleInit starts tracking a subject. The body is optional; without a
// session id one is generated.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	id := subjectID(r)
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var req initRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "body must be {\"session_id\": \"...\"}")
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	status := StatusTracked
	if s.deps.Aggregator.Initialize(id, req.SessionID) {
		status = StatusInitialized
	}
	snap, _ := s.deps.Aggregator.GetState(id)
	writeJSON(w, http.StatusOK, StatusResponse{Status: status, SubjectID: id, SessionID: snap.SessionID})
}

// handleSignal ingests one typed signal. The body is the payload.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	id := subjectID(r)
	typ := signals.Type(chi.URLParam(r, "type"))
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	ev, err := signals.DecodePayload(typ, body)
	if err != nil {
		s.deps.Metrics.RecordSignal(string(typ), metrics.SignalRejected)
		s.log.Warn("Signal rejected",
			zap.String("subject_id", id),
			zap.String("type", string(typ)),
			zap.Error(err))
		status := http.StatusBadRequest
		if errors.Is(err, signals.ErrUnknownSignalType) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	if !s.deps.Aggregator.CaptureEvent(id, ev) {
		s.deps.Metrics.RecordSignal(string(typ), metrics.SignalIgnored)
		writeJSON(w, http.StatusAccepted, StatusResponse{Status: StatusIgnored, SubjectID: id})
		return
	}
	s.deps.Metrics.RecordSignal(string(typ), metrics.SignalIngested)
	writeJSON(w, http.StatusOK, StatusResponse{Status: StatusCaptured, SubjectID: id})
}

// BatchResponse reports per-entry outcomes of a batch. Errors is keyed by
// the entry's index in the request array.
type BatchResponse struct {
	Status   string            `json:"status"`
	Captured int               `json:"captured"`
	Ignored  int               `json:"ignored"`
	Rejected int               `json:"rejected"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// handleSignalBatch ingests a JSON array of {"type", "payload"} entries. Bad
// entries are logged and skipped; the rest are ingested in order.
func (s *Server) handleSignalBatch(w http.ResponseWriter, r *http.Request) {
	id := subjectID(r)
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	events, errs, err := signals.DecodeBatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := BatchResponse{Rejected: len(errs)}
	if len(errs) > 0 {
		resp.Errors = make(map[string]string, len(errs))
		for i, e := range errs {
			resp.Errors[strconv.Itoa(i)] = e.Error()
			s.deps.Metrics.RecordSignal("", metrics.SignalRejected)
		}
		s.log.Warn("Skipped malformed signals in batch",
			zap.String("subject_id", id),
			zap.Int("rejected", len(errs)),
			zap.Int("total", len(errs)+len(events)))
	}

	for _, ev := range events {
		if s.deps.Aggregator.CaptureEvent(id, ev) {
			resp.Captured++
			s.deps.Metrics.RecordSignal(string(ev.Type), metrics.SignalIngested)
		} else {
			resp.Ignored++
			s.deps.Metrics.RecordSignal(string(ev.Type), metrics.SignalIgnored)
		}
	}

	code := http.StatusOK
	resp.Status = StatusCaptured
	if resp.Captured == 0 && resp.Ignored > 0 {
		code = http.StatusAccepted
		resp.Status = StatusIgnored
	}
	writeJSON(w, code, resp)
}

// handleSignalHistory returns buffered signals in [start, end], oldest first.
func (s *Server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339 or unix milliseconds")
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339 or unix milliseconds")
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		writeError(w, http.StatusBadRequest, "end is before start")
		return
	}

	id := subjectID(r)
	history, ok := s.deps.Aggregator.GetSignals(id, start, end)
	if !ok {
		writeError(w, http.StatusNotFound, "subject not tracked")
		return
	}
	if history == nil {
		history = []signals.Signal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id": id,
		"signals":    history,
		"count":      len(history),
	})
}

// StateResponse is the body of GET /api/subjects/{id}/state.
type StateResponse struct {
	Snapshot       aggregator.Snapshot `json:"snapshot"`
	Classification ClassificationData  `json:"classification"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Aggregator.GetState(subjectID(r))
	if !ok {
		writeError(w, http.StatusNotFound, "subject not tracked")
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Snapshot: snap, Classification: s.classify(snap)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.deps.Aggregator.GetStatistics(subjectID(r))
	if !ok {
		writeError(w, http.StatusNotFound, "subject not tracked")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleLiveProof serves the diagnostic dump. Query: recent (signal count).
func (s *Server) handleLiveProof(w http.ResponseWriter, r *http.Request) {
	recent, err := queryInt(r, "recent", s.cfg.LiveProofSignals)
	if err != nil || recent < 1 {
		writeError(w, http.StatusBadRequest, "recent must be a positive integer")
		return
	}
	proof, ok := s.deps.Aggregator.LiveProof(subjectID(r), recent)
	if !ok {
		writeError(w, http.StatusNotFound, "subject not tracked")
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

// handleClassifications serves persisted sweep classifications, newest first.
func (s *Server) handleClassifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "packet persistence is disabled")
		return
	}
	limit, err := queryInt(r, "limit", db.DefaultQueryLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	id := subjectID(r)
	records, err := s.deps.Store.RecentClassifications(r.Context(), id, limit)
	if err != nil {
		s.log.Error("Failed to read classifications", zap.String("subject_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read classifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id":      id,
		"classifications": records,
		"count":           len(records),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := subjectID(r)
	if !s.deps.Aggregator.StopTracking(id) {
		writeJSON(w, http.StatusAccepted, StatusResponse{Status: StatusIgnored, SubjectID: id})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: StatusStopped, SubjectID: id})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := subjectID(r)
	if !s.deps.Aggregator.ClearSignals(id) {
		writeJSON(w, http.StatusAccepted, StatusResponse{Status: StatusIgnored, SubjectID: id})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: StatusCleared, SubjectID: id})
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	ids := s.deps.Aggregator.Subjects()
	writeJSON(w, http.StatusOK, map[string]any{"subjects": ids, "count": len(ids)})
}
