package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/room4-2/agentwire/messages"
)

const (
	eventBufferSize = 256
	writeTimeout    = 10 * time.Second
	dialTimeout     = 10 * time.Second
)

// ErrNotConnected is returned when writing before the gateway handshake
var ErrNotConnected = errors.New("not connected to gateway")

// ConnectionState is owned by Connection; everyone else only reads it
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Event is delivered on Connection.Events. A nil Frame marks a state
// change; State is only meaningful then.
type Event struct {
	State ConnectionState
	Frame messages.Frame
}

// ConnectionOptions configures a Connection
type ConnectionOptions struct {
	Dialer    *websocket.Dialer
	Backoff   Backoff
	KeepAlive time.Duration
	Logger    *log.Logger
}

// socket is one physical websocket; gen orders sockets across reconnects
type socket struct {
	conn *websocket.Conn
	gen  uint64
	stop chan struct{}
}

// Connection owns exactly one logical connection attempt at a time to the
// gateway and re-establishes it after any closure that did not come from
// Close.
type Connection struct {
	url       string
	dialer    *websocket.Dialer
	backoff   Backoff
	keepAlive time.Duration
	logger    *log.Logger

	events chan Event
	done   chan struct{}

	mu         sync.Mutex
	current    *socket
	gen        uint64
	lostGen    uint64
	state      ConnectionState
	attempts   int
	destroyed  bool
	started    bool
	timer      *time.Timer
	dialCancel context.CancelFunc

	writeMu sync.Mutex
}

// NewConnection creates a manager for the given socket URL. Nothing is dialed
// until Start.
func NewConnection(url string, opts ConnectionOptions) *Connection {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: dialTimeout}
	}
	backoff := opts.Backoff
	if backoff.Initial <= 0 {
		backoff = DefaultBackoff()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Connection{
		url:       url,
		dialer:    dialer,
		backoff:   backoff,
		keepAlive: opts.KeepAlive,
		logger:    logger,
		events:    make(chan Event, eventBufferSize),
		done:      make(chan struct{}),
	}
}

// Events delivers state changes and decoded frames in socket order
func (c *Connection) Events() <-chan Event {
	return c.events
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the first connection attempt in the background
func (c *Connection) Start() {
	c.mu.Lock()
	if c.started || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.connect()
}

func (c *Connection) connect() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.gen++
	gen := c.gen
	c.state = Connecting
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	c.dialCancel = cancel
	c.mu.Unlock()
	c.emit(Event{State: Connecting})

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	cancel()
	if err != nil {
		c.logger.Printf("⚠️ Gateway dial failed (%s): %v", c.url, err)
		c.lost(gen, nil)
		return
	}

	sock := &socket{conn: conn, gen: gen, stop: make(chan struct{})}

	c.mu.Lock()
	if c.destroyed || gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.current = sock
	c.mu.Unlock()

	c.logger.Printf("🔌 Socket open to %s, waiting for handshake", c.url)

	if c.keepAlive > 0 {
		deadline := 2 * c.keepAlive
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(deadline))
		})
		go c.pingPump(sock)
	}
	go c.readPump(sock)
}

// readPump is the only reader of a socket. Transport errors and closes end
// here and share the lost path.
func (c *Connection) readPump(sock *socket) {
	for {
		messageType, data, err := sock.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Printf("❌ Gateway socket error: %v", err)
			}
			c.lost(sock.gen, sock)
			return
		}
		if c.keepAlive > 0 {
			_ = sock.conn.SetReadDeadline(time.Now().Add(2 * c.keepAlive))
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := messages.Decode(data)
		if err != nil {
			// Best-effort protocol: drop and keep reading
			continue
		}

		if _, ok := frame.(messages.ConnectedFrame); ok {
			c.handshake(sock.gen)
			continue
		}
		c.emit(Event{Frame: frame})
	}
}

func (c *Connection) pingPump(sock *socket) {
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-sock.stop:
			return
		case <-ticker.C:
			if err := sock.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.lost(sock.gen, sock)
				return
			}
		}
	}
}

// handshake raises the protocol-level connected signal
func (c *Connection) handshake(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.destroyed || c.state == Connected {
		c.mu.Unlock()
		return
	}
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Printf("✅ Gateway handshake complete")
	c.emit(Event{State: Connected})
}

// lost force-closes the socket of generation gen and schedules exactly one
// reconnect, unless Close was called. Repeated calls for the same generation
// (error followed by close) are ignored.
func (c *Connection) lost(gen uint64, sock *socket) {
	c.mu.Lock()
	if gen != c.gen || gen <= c.lostGen {
		c.mu.Unlock()
		return
	}
	c.lostGen = gen
	if sock != nil {
		close(sock.stop)
		sock.conn.Close()
	}
	c.current = nil
	c.state = Disconnected

	destroyed := c.destroyed
	var delay time.Duration
	if !destroyed {
		delay = c.backoff.Delay(c.attempts)
		c.attempts++
		c.timer = time.AfterFunc(delay, c.connect)
	}
	c.mu.Unlock()

	if destroyed {
		return
	}
	c.logger.Printf("🔄 Gateway disconnected, reconnecting in %s", delay)
	c.emit(Event{State: Disconnected})
}

// Send encodes v and writes it as one text frame. It fails with
// ErrNotConnected before the handshake; nothing is queued. Send never blocks
// on Events.
func (c *Connection) Send(v any) error {
	data, err := messages.Encode(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sock := c.current
	connected := c.state == Connected
	c.mu.Unlock()
	if sock == nil || !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = sock.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sock.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Callers may be the only consumer of Events, so the loss is
		// reported by readPump once it sees the closed socket.
		sock.conn.Close()
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close tears the manager down: the pending reconnect is cancelled, the
// socket is closed, and no further attempts are made.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.dialCancel != nil {
		c.dialCancel()
	}
	sock := c.current
	c.current = nil
	c.state = Disconnected
	// Invalidate the live generation so its reader cannot reschedule
	c.gen++
	c.mu.Unlock()

	close(c.done)

	if sock != nil {
		close(sock.stop)
		_ = sock.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout),
		)
		return sock.conn.Close()
	}
	return nil
}

func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
