package ws

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/event"
)

// ErrTooManyConnections is returned by AddClient when the client limit is
// reached.
var ErrTooManyConnections = errors.New("ws: too many connections")

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster fans outbound events to every connected UI client. It is an
// event.Sink: Emit never blocks, and a client that cannot keep up is
// disconnected. A client that connects later still receives the latest
// server-error.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
	log      *zap.SugaredLogger
	lastErr  []byte // latest server-error frame, replayed to new clients

	emitMu sync.Mutex // held for a whole Emit so frames queue in seq order
	seq    uint64
}

// NewBroadcaster returns a Broadcaster accepting at most maxConns clients;
// zero means unlimited.
func NewBroadcaster(maxConns int, log *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		log:      log,
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyConnections
	}
	c := &client{conn: conn, b: b, send: make(chan []byte, 64)}
	if b.lastErr != nil {
		c.send <- b.lastErr
	}
	b.clients[c] = true
	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Emit(ev event.Event) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	env := Envelope{Type: ev.EventName(), Seq: b.seq + 1, Payload: ev}
	data, err := json.Marshal(env)
	if err != nil {
		b.log.Errorw("marshal event", "event", env.Type, "err", err)
		return
	}
	b.seq = env.Seq

	// a client gets this frame either live or as a replay, never both
	b.mu.Lock()
	if _, ok := ev.(event.ServerError); ok {
		b.lastErr = data
	}
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		if !b.trySend(c, data) {
			b.log.Warnw("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// trySend queues data for c unless its buffer is full. A client removed
// concurrently counts as delivered.
func (b *Broadcaster) trySend(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}
