// Package webapi is the server's HTTP surface: the telemetry packet sink,
// the aggregator's per-subject ingestion and read endpoints, pipeline
// metrics, and the websocket live feed.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cognitive_backend/agent"
	"cognitive_backend/aggregator"
	"cognitive_backend/core"
	"cognitive_backend/db"
	"cognitive_backend/metrics"
	"cognitive_backend/scoring"
	"cognitive_backend/shutdown"
)

// PacketStore persists packets and classifications. *db.Repository
// implements it.
type PacketStore interface {
	InsertPacket(ctx context.Context, rec db.PacketRecord) (int64, error)
	RecentPackets(ctx context.Context, q db.PacketQuery) ([]db.PacketRecord, error)
	InsertClassification(ctx context.Context, rec db.ClassificationRecord) (int64, error)
	RecentClassifications(ctx context.Context, subjectID string, limit int) ([]db.ClassificationRecord, error)
}

// Config holds the HTTP surface settings.
type Config struct {
	// WindowSeconds is the time distribution length packets must sum to
	WindowSeconds int
	// MaxBodyBytes bounds request bodies
	MaxBodyBytes int64
	// LiveProofSignals is the default number of signals in a live-proof dump
	LiveProofSignals int
	// RequestLog configures the request log middleware
	RequestLog RequestLogConfig
}

// DefaultConfig returns a 5 second window and 256KB bodies.
func DefaultConfig() Config {
	return Config{
		WindowSeconds:    agent.DefaultWindowSeconds,
		MaxBodyBytes:     256 << 10,
		LiveProofSignals: 10,
		RequestLog:       RequestLogConfig{SkipPaths: []string{"/health"}},
	}
}

// Deps are the collaborators behind the HTTP surface. Aggregator, Scorer and
// Metrics are required; the rest may be nil.
type Deps struct {
	Aggregator  *aggregator.Aggregator
	Scorer      *scoring.Scorer
	Metrics     metrics.MetricsCollector
	Store       PacketStore
	Broadcaster *Broadcaster
	Shutdown    *shutdown.Manager
	// WriterStats reports the async writer queue on /api/metrics
	WriterStats func() db.AsyncWriterStats
	Clock       core.Clock
	Logger      *zap.Logger
}

// Server routes requests to the aggregator, scorer and packet sink.
//
// Usage:
//
//	srv := webapi.NewServer(webapi.DefaultConfig(), webapi.Deps{
//	    Aggregator: agg, Scorer: scorer, Metrics: store, Store: repo,
//	    Broadcaster: feed, Logger: logger,
//	})
//	go srv.RunSignalFeed(ctx)
//	sweeper.AfterSweep = srv.AfterSweep
//	http.ListenAndServe(addr, srv.Router())
type Server struct {
	cfg  Config
	deps Deps
	now  core.Clock
	log  *zap.Logger
}

// NewServer creates a server.
func NewServer(cfg Config, deps Deps) *Server {
	d := DefaultConfig()
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = d.WindowSeconds
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.LiveProofSignals <= 0 {
		cfg.LiveProofSignals = d.LiveProofSignals
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{cfg: cfg, deps: deps, now: deps.Clock.OrSystem(), log: deps.Logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.cfg.RequestLog, s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.deps.Broadcaster != nil {
		r.Get("/ws", s.deps.Broadcaster.HandleConnection)
	}

	r.Route("/api", func(r chi.Router) {
		if s.deps.Shutdown != nil {
			r.Use(s.deps.Shutdown.Middleware)
		}

		r.Post("/telemetry", s.handleTelemetry)
		r.Get("/telemetry/recent", s.handleRecentPackets)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/subjects", s.handleSubjects)

		r.Route("/subjects/{id}", func(r chi.Router) {
			r.Post("/init", s.handleInit)
			r.Post("/signals", s.handleSignalBatch)
			r.Post("/signals/{type}", s.handleSignal)
			r.Get("/signals", s.handleSignalHistory)
			r.Get("/state", s.handleState)
			r.Get("/stats", s.handleStats)
			r.Get("/live-proof", s.handleLiveProof)
			r.Get("/classifications", s.handleClassifications)
			r.Post("/stop", s.handleStop)
			r.Post("/clear", s.handleClear)
		})
	})
	return r
}

// ErrorResponse is the body of every 4xx/5xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusResponse acknowledges a write.
type StatusResponse struct {
	Status    string `json:"status"`
	SubjectID string `json:"subject_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Write acknowledgements.
const (
	StatusAccepted    = "accepted"
	StatusDuplicate   = "duplicate"
	StatusCaptured    = "captured"
	StatusIgnored     = "ignored"
	StatusInitialized = "initialized"
	StatusTracked     = "already_tracked"
	StatusStopped     = "stopped"
	StatusCleared     = "cleared"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are out; nothing useful to do with an encode error
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return nil, false
	}
	return body, true
}

// subjectID returns the {id} path parameter. Subject ids may be e-mail
// addresses or contain escaped characters.
func subjectID(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(id); err == nil {
			return unescaped
		}
	}
	return id
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// queryTime parses an optional RFC3339 timestamp or unix milliseconds.
func queryTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
