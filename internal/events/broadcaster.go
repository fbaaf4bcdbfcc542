package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"token-presale-ledger/internal/domain"
)

// BroadcasterConfig configures websocket feed behavior.
type BroadcasterConfig struct {
	// WriteTimeout is timeout for writing a frame to a subscriber.
	WriteTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// PongTimeout is how long to wait for a pong before dropping the client.
	PongTimeout time.Duration
	// SendBuffer is the per-client outbound queue size. A client that falls
	// this far behind is disconnected rather than slowing the feed.
	SendBuffer int
}

// DefaultBroadcasterConfig returns default feed configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		SendBuffer:   64,
	}
}

// wsEnvelope is the frame sent to subscribers.
type wsEnvelope struct {
	Type    string       `json:"type"`
	Payload domain.Event `json:"payload"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Broadcaster fans committed ledger events out to websocket subscribers.
// It implements Sink, so it plugs into the same fan-out as the log and
// archive sinks. Slow or dead clients are dropped, never waited on.
type Broadcaster struct {
	config   BroadcasterConfig
	logger   *log.Logger
	upgrader websocket.Upgrader

	clients   map[string]*wsClient
	clientsMu sync.RWMutex

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewBroadcaster creates a websocket event broadcaster.
func NewBroadcaster(logger *log.Logger, config *BroadcasterConfig) *Broadcaster {
	cfg := DefaultBroadcasterConfig()
	if config != nil {
		cfg = *config
	}

	return &Broadcaster{
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*wsClient),
		done:    make(chan struct{}),
	}
}

// Publish queues the event for every connected subscriber.
func (b *Broadcaster) Publish(_ context.Context, ev domain.Event) error {
	if b.closed.Load() {
		return nil
	}

	payload, err := json.Marshal(wsEnvelope{Type: ev.EventType(), Payload: ev})
	if err != nil {
		return err
	}

	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	for _, client := range b.clients {
		select {
		case client.send <- payload:
		default:
			// Queue full: the write pump will be starved anyway, let the
			// drop happen there by closing the channel path via unregister.
			b.logger.Printf("subscriber %s is not keeping up, dropping", client.id)
			go b.unregister(client.id)
		}
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket subscription.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Printf("websocket upgrade: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, b.config.SendBuffer),
	}

	b.clientsMu.Lock()
	b.clients[client.id] = client
	b.clientsMu.Unlock()
	b.logger.Printf("subscriber %s connected from %s", client.id, r.RemoteAddr)

	b.wg.Add(2)
	go b.writePump(client)
	go b.readPump(client)
}

// SubscriberCount returns the number of connected clients.
func (b *Broadcaster) SubscriberCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Close disconnects all subscribers and stops the broadcaster.
func (b *Broadcaster) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	close(b.done)

	b.clientsMu.Lock()
	for id, client := range b.clients {
		client.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		client.conn.Close()
		delete(b.clients, id)
	}
	b.clientsMu.Unlock()

	b.wg.Wait()
	return nil
}

// unregister removes a client and closes its connection.
func (b *Broadcaster) unregister(id string) {
	b.clientsMu.Lock()
	client, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.clientsMu.Unlock()

	if ok {
		client.conn.Close()
	}
}

// writePump drains the client queue onto the connection and keeps the
// connection alive with pings.
func (b *Broadcaster) writePump(client *wsClient) {
	defer b.wg.Done()
	defer b.unregister(client.id)

	ticker := time.NewTicker(b.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case payload := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(b.config.WriteTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(b.config.WriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes and discards inbound frames so pongs and close frames
// are processed. The feed is one-way.
func (b *Broadcaster) readPump(client *wsClient) {
	defer b.wg.Done()
	defer b.unregister(client.id)

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(b.config.PongTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(b.config.PongTimeout))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ Sink = (*Broadcaster)(nil)
