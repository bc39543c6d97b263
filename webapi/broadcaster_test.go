package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"cognitive_backend/signals"
)

func dialFeed(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func startBroadcaster(t *testing.T) (*Broadcaster, *httptest.Server) {
	t.Helper()
	b := NewBroadcaster(DefaultBroadcasterConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.HandleConnection)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return b, ts
}

func TestBroadcaster_DeliversToEveryClient(t *testing.T) {
	b, ts := startBroadcaster(t)
	c1 := dialFeed(t, ts.URL)
	c2 := dialFeed(t, ts.URL)
	waitFor(t, "two clients", func() bool { return b.ClientCount() == 2 })

	b.Broadcast(NewWSMessage(MessageTypeTelemetryPacket, start, map[string]int{"focus_score": 88}))

	for _, c := range []*websocket.Conn{c1, c2} {
		msg := readMessage(t, c)
		if msg.Type != MessageTypeTelemetryPacket || !msg.Timestamp.Equal(start) {
			t.Errorf("message = %+v", msg)
		}
	}
}

func TestBroadcaster_ClientDisconnect(t *testing.T) {
	b, ts := startBroadcaster(t)
	c := dialFeed(t, ts.URL)
	waitFor(t, "client", func() bool { return b.ClientCount() == 1 })

	c.Close()
	waitFor(t, "client removal", func() bool { return b.ClientCount() == 0 })
}

func TestBroadcaster_Close(t *testing.T) {
	b, ts := startBroadcaster(t)
	c := dialFeed(t, ts.URL)
	waitFor(t, "client", func() bool { return b.ClientCount() == 1 })

	b.Close()
	b.Close()

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after Close = %v, want going away", err)
	}
	if b.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after Close", b.ClientCount())
	}

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("connect after Close = %d, want 503", resp.StatusCode)
	}
}

func TestBroadcaster_DropsWhenQueueFull(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{BroadcastBuffer: 1}, zaptest.NewLogger(t))

	// not running: the queue fills and stays full
	b.Broadcast(NewWSMessage(MessageTypeClassification, start, nil))
	b.Broadcast(NewWSMessage(MessageTypeClassification, start, nil))
	b.Broadcast(NewWSMessage(MessageTypeClassification, start, nil))

	if got := b.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestSignalFeed(t *testing.T) {
	env := newTestEnv(t)
	b := NewBroadcaster(DefaultBroadcasterConfig(), zaptest.NewLogger(t))
	env.srv.deps.Broadcaster = b
	handler := env.srv.Router()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	feedDone := make(chan struct{})
	go func() {
		env.srv.RunSignalFeed(ctx)
		close(feedDone)
	}()
	waitFor(t, "feed subscription", func() bool { return env.agg.ObserverCount() == 1 })

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	conn := dialFeed(t, ts.URL)
	waitFor(t, "client", func() bool { return b.ClientCount() == 1 })

	env.agg.Initialize("alice", "s-1")
	env.agg.CaptureKeystroke("alice", signals.KeystrokePayload{Key: "a"})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeSignalCaptured {
		t.Fatalf("type = %q, want %q", msg.Type, MessageTypeSignalCaptured)
	}
	data, _ := json.Marshal(msg.Data)
	if !strings.Contains(string(data), `"alice"`) || !strings.Contains(string(data), `"keystroke"`) {
		t.Errorf("data = %s", data)
	}

	env.clock.Advance(3 * time.Minute)
	env.srv.AfterSweep(ctx, env.agg.SweepIdle())

	// the idle_time signal from the sweep and the classification both arrive
	seen := map[string]bool{}
	for len(seen) < 2 {
		seen[readMessage(t, conn).Type] = true
	}
	if !seen[MessageTypeClassification] || !seen[MessageTypeSignalCaptured] {
		t.Errorf("messages after sweep = %v", seen)
	}

	cancel()
	select {
	case <-feedDone:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSignalFeed did not return after cancel")
	}
	if env.agg.ObserverCount() != 0 {
		t.Error("feed subscription not released")
	}
}
