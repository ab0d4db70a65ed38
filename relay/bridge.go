package relay

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxFrameSize    = 4 * 1024 * 1024
)

// Bridge relays text frames between one UI socket and its own gateway socket
type Bridge struct {
	ID          string
	ClientConn  *websocket.Conn
	GatewayConn *websocket.Conn
	RemoteAddr  string
	CreatedAt   time.Time

	keepAlive    time.Duration
	lastActivity time.Time

	// Frames for the UI go through writePump; gateway writes are serialized
	// by gatewayMu since only clientPump writes there.
	writeChan chan []byte
	gatewayMu sync.Mutex

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
}

// NewBridge pairs an accepted UI socket with a dialed gateway socket
func NewBridge(id string, clientConn, gatewayConn *websocket.Conn, keepAlive time.Duration) *Bridge {
	clientConn.SetReadLimit(maxFrameSize)
	gatewayConn.SetReadLimit(maxFrameSize)

	now := time.Now()
	return &Bridge{
		ID:           id,
		ClientConn:   clientConn,
		GatewayConn:  gatewayConn,
		RemoteAddr:   clientConn.RemoteAddr().String(),
		CreatedAt:    now,
		keepAlive:    keepAlive,
		lastActivity: now,
		writeChan:    make(chan []byte, writeBufferSize),
		CloseChan:    make(chan struct{}),
	}
}

// Start begins relaying in both directions
func (b *Bridge) Start() {
	go b.writePump()
	go b.gatewayPump()
	go b.clientPump()
}

// LastActivity returns when a frame last crossed the bridge
func (b *Bridge) LastActivity() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastActivity
}

func (b *Bridge) touch() {
	b.mu.Lock()
	b.lastActivity = time.Now()
	b.mu.Unlock()
}

// IsClosed reports whether Close has run
func (b *Bridge) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// writePump handles all writes to the UI socket in a single goroutine
func (b *Bridge) writePump() {
	var pings <-chan time.Time
	if b.keepAlive > 0 {
		ticker := time.NewTicker(b.keepAlive)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-b.CloseChan:
			return
		case <-pings:
			if err := b.ClientConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				b.Close()
				return
			}
		case data := <-b.writeChan:
			if !b.writeClient(data) {
				return
			}

			// Drain whatever queued up meanwhile
			n := len(b.writeChan)
			for i := 0; i < n; i++ {
				select {
				case data := <-b.writeChan:
					if !b.writeClient(data) {
						return
					}
				default:
				}
			}
		}
	}
}

func (b *Bridge) writeClient(data []byte) bool {
	_ = b.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := b.ClientConn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("⚠️ [%s] Write to client failed: %v", b.ID[:8], err)
		b.Close()
		return false
	}
	return true
}

// queueMessage adds a frame to the UI write queue (non-blocking)
func (b *Bridge) queueMessage(data []byte) {
	if b.IsClosed() {
		return
	}
	select {
	case b.writeChan <- data:
		b.touch()
	default:
		log.Printf("⚠️ [%s] Client write queue full, dropping frame", b.ID[:8])
	}
}

// gatewayPump forwards every gateway frame to the UI as text
func (b *Bridge) gatewayPump() {
	defer b.Close()

	for {
		_, data, err := b.GatewayConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !b.IsClosed() {
				log.Printf("❌ [%s] Gateway read error: %v", b.ID[:8], err)
			}
			return
		}
		b.queueMessage(data)
	}
}

// clientPump forwards UI text frames to the gateway untouched
func (b *Bridge) clientPump() {
	defer b.Close()

	if b.keepAlive > 0 {
		deadline := 2 * b.keepAlive
		_ = b.ClientConn.SetReadDeadline(time.Now().Add(deadline))
		b.ClientConn.SetPongHandler(func(string) error {
			return b.ClientConn.SetReadDeadline(time.Now().Add(deadline))
		})
	}

	for {
		messageType, data, err := b.ClientConn.ReadMessage()
		if err != nil {
			return
		}
		if b.keepAlive > 0 {
			_ = b.ClientConn.SetReadDeadline(time.Now().Add(2 * b.keepAlive))
		}
		if messageType != websocket.TextMessage {
			continue
		}
		b.touch()

		b.gatewayMu.Lock()
		_ = b.GatewayConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = b.GatewayConn.WriteMessage(websocket.TextMessage, data)
		b.gatewayMu.Unlock()
		if err != nil {
			log.Printf("❌ [%s] Write to gateway failed: %v", b.ID[:8], err)
			return
		}
	}
}

// Close terminates both sockets
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.CloseChan)

	deadline := time.Now().Add(time.Second)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = b.GatewayConn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	_ = b.ClientConn.WriteControl(websocket.CloseMessage, closeMsg, deadline)

	b.GatewayConn.Close()
	return b.ClientConn.Close()
}
