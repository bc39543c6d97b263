package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned by repository calls after the database is closed.
var ErrClosed = errors.New("db: database is closed")

// ErrDuplicatePacket is returned by InsertPacket when a packet with the same
// request id is already stored. Re-delivery of a packet is harmless.
var ErrDuplicatePacket = errors.New("db: duplicate telemetry packet")

// Query limits for the Recent* methods.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 1000
)

// PacketRecord is one row of telemetry_packets.
type PacketRecord struct {
	ID             int64           `json:"id"`
	RequestID      string          `json:"request_id,omitempty"`
	UserID         *string         `json:"user_id"`
	SessionID      string          `json:"session_id"`
	CognitiveState string          `json:"cognitive_state"`
	ActiveSeconds  int             `json:"active_seconds"`
	IdleSeconds    int             `json:"idle_seconds"`
	AwaySeconds    int             `json:"away_seconds"`
	FocusScore     int             `json:"focus_score"`
	RawSignals     json.RawMessage `json:"raw_signals"`
	Timestamp      time.Time       `json:"timestamp"`
	ReceivedAt     time.Time       `json:"received_at"`
}

// ClassificationRecord is one row of subject_classifications.
type ClassificationRecord struct {
	ID            int64     `json:"id"`
	SubjectID     string    `json:"subject_id"`
	SessionID     string    `json:"session_id,omitempty"`
	ActivityScore int       `json:"activity_score"`
	Productivity  string    `json:"productivity"`
	Risk          string    `json:"risk"`
	RiskScore     int       `json:"risk_score"`
	IsIdle        bool      `json:"is_idle"`
	IdleMs        int64     `json:"idle_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// PacketQuery filters RecentPackets. Subject matches either the user id or
// the session id.
type PacketQuery struct {
	Subject string
	Since   time.Time
	Limit   int
}

// Repository reads and writes the sink tables. With an async writer
// attached, inserts are queued and return id 0.
type Repository struct {
	db   *Database
	seen *recentRequestIDs

	mu    sync.RWMutex
	async *AsyncWriter
}

// NewRepository creates a repository that writes synchronously until
// UseAsyncWriter is called.
func NewRepository(database *Database) *Repository {
	return &Repository{db: database, seen: newRecentRequestIDs(DefaultRecentRequestIDs)}
}

// UseAsyncWriter routes inserts through w. The writer must be built from
// this repository's WriteHandler.
func (r *Repository) UseAsyncWriter(w *AsyncWriter) {
	r.mu.Lock()
	r.async = w
	r.mu.Unlock()
}

func (r *Repository) queue(data any) bool {
	r.mu.RLock()
	w := r.async
	r.mu.RUnlock()
	return w != nil && w.IsStarted() && w.Write(data)
}

func (r *Repository) conn() (*sql.DB, error) {
	if r.db == nil {
		return nil, ErrClosed
	}
	conn := r.db.DB()
	if conn == nil {
		return nil, ErrClosed
	}
	return conn, nil
}

// WriteHandler applies queued PacketRecord and ClassificationRecord values.
func (r *Repository) WriteHandler() WriteHandler {
	return func(ctx context.Context, op WriteOperation) error {
		switch rec := op.Data.(type) {
		case PacketRecord:
			_, err := r.insertPacket(ctx, rec)
			if errors.Is(err, ErrDuplicatePacket) {
				return nil
			}
			return err
		case ClassificationRecord:
			_, err := r.insertClassification(ctx, rec)
			return err
		default:
			return fmt.Errorf("db: unsupported write operation %T", op.Data)
		}
	}
}

// InsertPacket stores a telemetry packet. A full async queue falls back to a
// synchronous write.
//
// A request id seen before returns ErrDuplicatePacket before anything is
// queued: recent ids are checked in memory (covering packets still in the
// async queue), older ones against the table.
func (r *Repository) InsertPacket(ctx context.Context, rec PacketRecord) (int64, error) {
	if rec.RequestID != "" {
		if !r.seen.claim(rec.RequestID) {
			return 0, ErrDuplicatePacket
		}
		exists, err := r.packetExists(ctx, rec.RequestID)
		if err != nil {
			r.seen.release(rec.RequestID)
			return 0, err
		}
		if exists {
			return 0, ErrDuplicatePacket
		}
	}

	if r.queue(rec) {
		return 0, nil
	}
	id, err := r.insertPacket(ctx, rec)
	if err != nil && !errors.Is(err, ErrDuplicatePacket) && rec.RequestID != "" {
		r.seen.release(rec.RequestID)
	}
	return id, err
}

func (r *Repository) packetExists(ctx context.Context, requestID string) (bool, error) {
	conn, err := r.conn()
	if err != nil {
		return false, err
	}
	var exists bool
	err = conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM telemetry_packets WHERE request_id = ?)`, requestID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up telemetry packet: %w", err)
	}
	return exists, nil
}

func (r *Repository) insertPacket(ctx context.Context, rec PacketRecord) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}

	raw := rec.RawSignals
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now()
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO telemetry_packets (
			request_id, user_id, session_id, cognitive_state,
			active_seconds, idle_seconds, away_seconds, focus_score,
			raw_signals, packet_ts, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`,
		nullString(rec.RequestID), rec.UserID, rec.SessionID, rec.CognitiveState,
		rec.ActiveSeconds, rec.IdleSeconds, rec.AwaySeconds, rec.FocusScore,
		string(raw), rec.Timestamp.UnixMilli(), rec.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert telemetry packet: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, ErrDuplicatePacket
	}
	return res.LastInsertId()
}

// RecentPackets returns packets newest first.
func (r *Repository) RecentPackets(ctx context.Context, q PacketQuery) ([]PacketRecord, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, COALESCE(request_id, ''), user_id, session_id, cognitive_state,
		       active_seconds, idle_seconds, away_seconds, focus_score,
		       raw_signals, packet_ts, received_at
		FROM telemetry_packets
		WHERE received_at >= ?`
	args := []any{sinceMillis(q.Since)}
	if q.Subject != "" {
		query += ` AND (user_id = ? OR session_id = ?)`
		args = append(args, q.Subject, q.Subject)
	}
	query += ` ORDER BY received_at DESC, id DESC LIMIT ?`
	args = append(args, clampLimit(q.Limit))

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry packets: %w", err)
	}
	defer rows.Close()

	records := []PacketRecord{}
	for rows.Next() {
		var (
			rec        PacketRecord
			userID     sql.NullString
			raw        string
			ts, recvAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.RequestID, &userID, &rec.SessionID, &rec.CognitiveState,
			&rec.ActiveSeconds, &rec.IdleSeconds, &rec.AwaySeconds, &rec.FocusScore,
			&raw, &ts, &recvAt); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry packet row: %w", err)
		}
		if userID.Valid {
			rec.UserID = &userID.String
		}
		rec.RawSignals = json.RawMessage(raw)
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.ReceivedAt = time.UnixMilli(recvAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating telemetry packet rows: %w", err)
	}
	return records, nil
}

// CountPackets returns the number of stored packets.
func (r *Repository) CountPackets(ctx context.Context) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_packets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count telemetry packets: %w", err)
	}
	return n, nil
}

// InsertClassification stores a scorer result.
func (r *Repository) InsertClassification(ctx context.Context, rec ClassificationRecord) (int64, error) {
	if r.queue(rec) {
		return 0, nil
	}
	return r.insertClassification(ctx, rec)
}

func (r *Repository) insertClassification(ctx context.Context, rec ClassificationRecord) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO subject_classifications (
			subject_id, session_id, activity_score, productivity,
			risk, risk_score, is_idle, idle_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubjectID, nullString(rec.SessionID), rec.ActivityScore, rec.Productivity,
		rec.Risk, rec.RiskScore, rec.IsIdle, rec.IdleMs, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert classification: %w", err)
	}
	return res.LastInsertId()
}

// RecentClassifications returns a subject's classifications newest first.
func (r *Repository) RecentClassifications(ctx context.Context, subjectID string, limit int) ([]ClassificationRecord, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, subject_id, COALESCE(session_id, ''), activity_score, productivity,
		       risk, risk_score, is_idle, idle_ms, created_at
		FROM subject_classifications
		WHERE subject_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, subjectID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	records := []ClassificationRecord{}
	for rows.Next() {
		var (
			rec       ClassificationRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.SessionID, &rec.ActivityScore, &rec.Productivity,
			&rec.Risk, &rec.RiskScore, &rec.IsIdle, &rec.IdleMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan classification row: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classification rows: %w", err)
	}
	return records, nil
}

// nullString stores an empty string as NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sinceMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return min(limit, MaxQueryLimit)
}
