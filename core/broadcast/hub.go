// Package broadcast fans dispatched events out to websocket clients.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"go.opentelemetry.io/otel/metric"
)

const defaultWriteTimeout = 2 * time.Second

// Conn is the part of a websocket connection the hub writes to.
// *websocket.Conn satisfies it.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type peer struct {
	conn Conn
	mu   sync.Mutex
}

func (p *peer) write(messageType int, data []byte, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(messageType, data)
}

type Hub struct {
	writeTimeout time.Duration

	mu    sync.RWMutex
	peers map[string]*peer

	dropped metric.Int64Counter
}

type Option func(*Hub)

func WithWriteTimeout(timeout time.Duration) Option {
	return func(h *Hub) {
		if timeout > 0 {
			h.writeTimeout = timeout
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		writeTimeout: defaultWriteTimeout,
		peers:        map[string]*peer{},
	}
	for _, opt := range opts {
		opt(h)
	}

	dropped, err := meter.Int64Counter("broadcast.peers.dropped",
		metric.WithDescription("Number of clients dropped after a failed write"))
	if err != nil {
		logger.Warn("failed to create dropped peers counter", "error", err)
	}
	h.dropped = dropped
	return h
}

// Register forwards kinds, or DefaultKinds when none are given, to every
// connected client.
func (h *Hub) Register(subscriber dispatch.Subscriber, kinds ...events.Kind) {
	if len(kinds) == 0 {
		kinds = DefaultKinds()
	}
	for _, kind := range kinds {
		subscriber.Subscribe(kind, h.Handle, dispatch.WithName("broadcast"))
	}
}

func (h *Hub) Add(conn Conn) string {
	id := uuid.NewString()

	h.mu.Lock()
	h.peers[id] = &peer{conn: conn}
	count := len(h.peers)
	h.mu.Unlock()

	logger.Info("client connected", "peer", id, "peers", count)
	return id
}

// Remove forgets the peer and closes its connection. Unknown ids are
// ignored.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	p, ok := h.peers[id]
	delete(h.peers, id)
	count := len(h.peers)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = p.conn.Close()
	logger.Info("client disconnected", "peer", id, "peers", count)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Send writes v as JSON to one peer.
func (h *Hub) Send(id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	p, ok := h.peers[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return p.write(websocket.TextMessage, data, h.writeTimeout)
}

// Handle is a dispatch.Handler. Clients that fail to take the message are
// dropped; the failure never reaches the dispatcher.
func (h *Hub) Handle(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(NewMessage(event))
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode broadcast message", "kind", event.Kind(), "error", err)
		return nil
	}

	h.mu.RLock()
	peers := make(map[string]*peer, len(h.peers))
	for id, p := range h.peers {
		peers[id] = p
	}
	h.mu.RUnlock()

	for id, p := range peers {
		if err := p.write(websocket.TextMessage, data, h.writeTimeout); err != nil {
			logger.WarnContext(ctx, "dropping client after failed write", "peer", id, "error", err)
			if h.dropped != nil {
				h.dropped.Add(ctx, 1)
			}
			h.Remove(id)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	peers := h.peers
	h.peers = map[string]*peer{}
	h.mu.Unlock()

	for _, p := range peers {
		p.mu.Lock()
		_ = p.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = p.conn.Close()
		p.mu.Unlock()
	}
	return nil
}
