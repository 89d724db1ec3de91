// Package gateway is the WebSocket endpoint browser extension agents connect
// to. Every data frame an agent sends is relayed as a server-message event
// and acknowledged; tab commands travel the other way.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/event"
)

var (
	// ErrNoAgent is returned by Send when no agent is connected.
	ErrNoAgent = errors.New("gateway: no extension agent connected")
	// ErrListen wraps a failure to bind the listening socket.
	ErrListen = errors.New("gateway: listen failed")
)

const sendBuffer = 32

// Config controls the gateway endpoint.
type Config struct {
	Host           string
	Port           int
	Ack            string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxConnections int
	ExtensionIDs   []string
}

type Gateway struct {
	cfg          Config
	sink         event.Sink
	log          *zap.SugaredLogger
	extensionIDs map[string]bool
	upgrader     websocket.Upgrader

	ctx context.Context // set by Serve before the first connection

	mu      sync.Mutex
	conns   map[*agentConn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// New creates a Gateway. Events go to sink.
func New(cfg Config, sink event.Sink, log *zap.SugaredLogger) *Gateway {
	if cfg.Ack == "" {
		cfg.Ack = "received"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	g := &Gateway{
		cfg:          cfg,
		sink:         sink,
		log:          log,
		ctx:          context.Background(),
		extensionIDs: make(map[string]bool),
		conns:        make(map[*agentConn]struct{}),
	}
	for _, id := range cfg.ExtensionIDs {
		if id != "" {
			g.extensionIDs[id] = true
		}
	}
	g.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return g.allowedOrigin(r.Header.Get("Origin"))
		},
	}
	return g
}

// Addr is the configured listen address.
func (g *Gateway) Addr() string {
	return net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
}

// Run binds the configured address and serves until ctx is done. A bind
// failure is published as a server-error event and returned wrapped in
// ErrListen.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.Addr())
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrListen, err)
		g.log.Errorw("gateway listen", "addr", g.Addr(), "err", err)
		g.sink.Emit(event.ServerError{Message: err.Error()})
		return err
	}
	return g.Serve(ctx, ln)
}

// Serve accepts agents on ln until ctx is done. It returns once every
// connection has been sent a close frame and its handler has exited.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.ctx = ctx
	srv := &http.Server{Handler: g}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	g.log.Infow("gateway listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			g.log.Errorw("gateway accept loop stopped", "err", err)
		}
	}

	// Hijacked connections are not closed by srv.Close; their handlers
	// see ctx and say goodbye themselves.
	srv.Close()
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()
	g.wg.Wait()
	g.log.Infow("gateway stopped")
	return nil
}

// ConnCount reports the number of connected agents.
func (g *Gateway) ConnCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Send delivers cmd to every connected agent. It returns ErrNoAgent when no
// agent could take it.
func (g *Gateway) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeCommand(cmd)
	if err != nil {
		return err
	}

	g.mu.Lock()
	conns := make([]*agentConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	delivered := 0
	for _, c := range conns {
		if c.enqueue(data) {
			delivered++
		} else {
			g.log.Warnw("agent send buffer full", "conn", c.id)
		}
	}
	if delivered == 0 {
		return ErrNoAgent
	}
	g.log.Debugw("command forwarded", "type", cmd.commandType(), "agents", delivered)
	return nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowedHost(r.Host) {
		http.Error(w, "invalid host", http.StatusForbidden)
		return
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if g.cfg.MaxConnections > 0 && len(g.conns) >= g.cfg.MaxConnections {
		g.mu.Unlock()
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debugw("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newAgentConn(ws)
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
	g.log.Infow("agent connected", "conn", c.id, "remote", r.RemoteAddr)

	g.handle(g.ctx, c)

	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
	g.log.Infow("agent disconnected", "conn", c.id)
}

type frame struct {
	kind int
	data []byte
	err  error
}

// handle serves one agent until it leaves, fails or ctx is done.
func (g *Gateway) handle(ctx context.Context, c *agentConn) {
	frames := make(chan frame)
	quit := make(chan struct{})
	go g.writePump(c)
	go g.readPump(c, frames, quit)

	defer func() {
		c.stop()
		<-c.done
		c.ws.Close()
		close(quit)
	}()

	for {
		// shutdown wins over pending frames
		select {
		case <-ctx.Done():
			g.goodbye(c)
			return
		default:
		}

		select {
		case <-ctx.Done():
			g.goodbye(c)
			return
		case <-c.done:
			return
		case f := <-frames:
			if f.err != nil {
				if websocket.IsCloseError(f.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					g.log.Debugw("agent closed connection", "conn", c.id)
				} else {
					g.log.Debugw("agent read failed", "conn", c.id, "err", f.err)
				}
				return
			}
			g.sink.Emit(event.InboundMessage{Text: string(f.data)})
			if !c.enqueue([]byte(g.cfg.Ack)) {
				g.log.Warnw("agent too slow, disconnecting", "conn", c.id)
				return
			}
		}
	}
}

func (g *Gateway) goodbye(c *agentConn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.cfg.WriteTimeout)); err != nil {
		g.log.Debugw("close frame", "conn", c.id, "err", err)
	}
}

func (g *Gateway) readPump(c *agentConn, frames chan<- frame, quit <-chan struct{}) {
	if g.cfg.PingInterval > 0 {
		wait := 2 * g.cfg.PingInterval
		c.ws.SetReadDeadline(time.Now().Add(wait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(wait))
		})
	}
	for {
		kind, data, err := c.ws.ReadMessage()
		select {
		case frames <- frame{kind: kind, data: data, err: err}:
		case <-quit:
			return
		}
		if err != nil {
			return
		}
	}
}

func (g *Gateway) writePump(c *agentConn) {
	defer close(c.done)

	var tick <-chan time.Time
	if g.cfg.PingInterval > 0 {
		ticker := time.NewTicker(g.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				g.log.Debugw("agent write failed", "conn", c.id, "err", err)
				return
			}
		case <-tick:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.cfg.WriteTimeout)); err != nil {
				g.log.Debugw("agent ping failed", "conn", c.id, "err", err)
				return
			}
		}
	}
}

type agentConn struct {
	id   string
	ws   *websocket.Conn
	done chan struct{} // closed when the write pump exits

	mu      sync.Mutex
	send    chan []byte
	stopped bool
}

func newAgentConn(ws *websocket.Conn) *agentConn {
	return &agentConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues msg for the write pump without blocking. It reports false
// when the connection is stopped or its buffer is full.
func (c *agentConn) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *agentConn) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.send)
	}
}
