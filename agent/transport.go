package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"cognitive_backend/signals"
)

// Transport delivers telemetry packets. Delivery is at-most-once per call:
// implementations must not retry.
type Transport interface {
	Send(ctx context.Context, p Packet) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, p Packet) error

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, p Packet) error {
	return f(ctx, p)
}

// WireSignal is one entry of a batch sent to the aggregator.
type WireSignal struct {
	Type    signals.Type `json:"type"`
	Payload any          `json:"payload"`
}

// SignalSink receives discrete signals for the server aggregator.
type SignalSink interface {
	InitSubject(ctx context.Context, subjectID, sessionID string) error
	SendSignals(ctx context.Context, subjectID string, batch []WireSignal) error
}

// HTTPTransport talks to the server's HTTP API. It implements Transport and
// SignalSink.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// DefaultSendTimeout bounds every request made by HTTPTransport.
const DefaultSendTimeout = 3 * time.Second

// NewHTTPTransport creates a transport for the server at baseURL
// (e.g. "http://localhost:8090"). timeout <= 0 uses DefaultSendTimeout.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Send POSTs the packet to /api/telemetry. Each request carries a fresh
// X-Request-Id so server logs can be correlated with probe logs.
func (t *HTTPTransport) Send(ctx context.Context, p Packet) error {
	return t.postJSON(ctx, "/api/telemetry", p)
}

// InitSubject POSTs /api/subjects/{id}/init.
func (t *HTTPTransport) InitSubject(ctx context.Context, subjectID, sessionID string) error {
	body := map[string]string{"session_id": sessionID}
	return t.postJSON(ctx, "/api/subjects/"+url.PathEscape(subjectID)+"/init", body)
}

// SendSignals POSTs a batch to /api/subjects/{id}/signals.
func (t *HTTPTransport) SendSignals(ctx context.Context, subjectID string, batch []WireSignal) error {
	return t.postJSON(ctx, "/api/subjects/"+url.PathEscape(subjectID)+"/signals", batch)
}

func (t *HTTPTransport) postJSON(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("agent: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agent: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent: POST %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("agent: POST %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
