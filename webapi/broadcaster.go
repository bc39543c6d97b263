package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// BroadcasterConfig holds the websocket timings and buffer sizes.
type BroadcasterConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	// BroadcastBuffer is the queue between Broadcast and the hub goroutine
	BroadcastBuffer int
	// ClientBuffer is the per-client send queue; a client that falls this far
	// behind is disconnected
	ClientBuffer int
}

// DefaultBroadcasterConfig returns 30s pings with a 60s pong deadline.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageSize:  512,
		BroadcastBuffer: 256,
		ClientBuffer:    64,
	}
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// Broadcaster fans live feed messages out to websocket clients. One hub
// goroutine (Run) owns the client set; each client has its own write pump so
// a slow client never delays the others.
//
// Usage:
//
//	b := webapi.NewBroadcaster(webapi.DefaultBroadcasterConfig(), logger)
//	go b.Run(ctx)
//	router.Get("/ws", b.HandleConnection)
//	b.Broadcast(webapi.NewWSMessage(webapi.MessageTypeClassification, now, data))
type Broadcaster struct {
	cfg      BroadcasterConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	clients atomic.Int32
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewBroadcaster creates a broadcaster. Call Run before accepting connections.
func NewBroadcaster(cfg BroadcasterConfig, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultBroadcasterConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = d.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = d.BroadcastBuffer
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = d.ClientBuffer
	}

	return &Broadcaster{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the feed is read-only telemetry; dashboards may be served elsewhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, cfg.BroadcastBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled or Close is called, then
// disconnects every client.
func (b *Broadcaster) Run(ctx context.Context) {
	defer close(b.done)
	clients := make(map[*wsClient]struct{})

	b.logger.Info("Live feed started")
	for {
		select {
		case <-ctx.Done():
			b.disconnectAll(clients)
			return
		case <-b.stop:
			b.disconnectAll(clients)
			return

		case c := <-b.register:
			clients[c] = struct{}{}
			b.clients.Store(int32(len(clients)))
			b.logger.Debug("Live feed client connected", zap.String("remote", c.remote), zap.Int("clients", len(clients)))

		case c := <-b.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				b.clients.Store(int32(len(clients)))
				b.logger.Debug("Live feed client disconnected", zap.String("remote", c.remote), zap.Int("clients", len(clients)))
			}

		case msg := <-b.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
					b.sent.Add(1)
				default:
					delete(clients, c)
					close(c.send)
					b.logger.Warn("Live feed client too slow, disconnecting", zap.String("remote", c.remote))
				}
			}
			b.clients.Store(int32(len(clients)))
		}
	}
}

func (b *Broadcaster) disconnectAll(clients map[*wsClient]struct{}) {
	for c := range clients {
		delete(clients, c)
		close(c.send)
	}
	b.clients.Store(0)
	b.logger.Info("Live feed stopped")
}

// HandleConnection upgrades the request and registers the client.
func (b *Broadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	select {
	case <-b.stop:
		http.Error(w, "live feed closed", http.StatusServiceUnavailable)
		return
	case <-b.done:
		http.Error(w, "live feed closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, b.cfg.ClientBuffer), remote: r.RemoteAddr}
	select {
	case b.register <- c:
	case <-b.done:
		conn.Close()
		return
	}

	go b.writePump(c)
	go b.readPump(c)
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped and counted.
func (b *Broadcaster) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("Failed to encode live feed message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	select {
	case b.broadcast <- data:
	default:
		b.dropped.Add(1)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	return int(b.clients.Load())
}

// Dropped returns the number of messages dropped at the broadcast queue.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops Run and disconnects every client. Safe to call more than once.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// readPump discards client messages and keeps the pong deadline fresh.
func (b *Broadcaster) readPump(c *wsClient) {
	defer func() {
		select {
		case b.unregister <- c:
		case <-b.done:
		}
	}()

	c.conn.SetReadLimit(b.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(b.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(b.cfg.PongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("Live feed read error", zap.String("remote", c.remote), zap.Error(err))
			}
			return
		}
	}
}

// writePump is the only writer on the connection: messages and pings.
func (b *Broadcaster) writePump(c *wsClient) {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
