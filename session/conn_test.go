package session

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/room4-2/agentwire/messages"
)

func newTestConnection(t *testing.T, url string) *Connection {
	t.Helper()
	c := NewConnection(url, ConnectionOptions{
		Backoff: fastBackoff(),
		Logger:  discardLogger(),
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitState(t *testing.T, c *Connection, want ConnectionState) {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-c.Events():
			if ev.Frame == nil && ev.State == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s (now %s)", want, c.State())
		}
	}
}

func TestConnectionWaitsForHandshake(t *testing.T) {
	g := newFakeGateway(t, false)
	c := newTestConnection(t, g.url())
	c.Start()

	server := g.next(t)
	time.Sleep(50 * time.Millisecond)
	if c.State() == Connected {
		t.Fatalf("connected before handshake frame")
	}
	if err := c.Send(messages.NewAbortRequest()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send before handshake = %v, want ErrNotConnected", err)
	}

	if err := server.WriteJSON(map[string]string{"type": "connected"}); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	waitState(t, c, Connected)
}

func TestConnectionForwardsFramesAndDropsGarbage(t *testing.T) {
	g := newFakeGateway(t, true)
	c := newTestConnection(t, g.url())
	c.Start()

	server := g.next(t)
	waitState(t, c, Connected)

	_ = server.WriteMessage(websocket.TextMessage, []byte("{{{ not json"))
	_ = server.WriteJSON(map[string]string{"type": "session_changed"})

	select {
	case ev := <-c.Events():
		if _, ok := ev.Frame.(messages.SessionChangedFrame); !ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("no frame forwarded")
	}
	if c.State() != Connected {
		t.Fatalf("malformed frame disturbed the connection: %s", c.State())
	}
}

func TestConnectionReconnectsAfterUnexpectedClose(t *testing.T) {
	g := newFakeGateway(t, true)
	c := newTestConnection(t, g.url())
	c.Start()

	first := g.next(t)
	waitState(t, c, Connected)

	first.Close()
	waitState(t, c, Disconnected)

	second := g.next(t)
	waitState(t, c, Connected)

	// A healthy replacement must not trigger further attempts
	time.Sleep(200 * time.Millisecond)
	if got := g.accepted.Load(); got != 2 {
		t.Fatalf("accepted = %d connections, want 2", got)
	}

	if err := c.Close(); err != nil {
		t.Logf("Close: %v", err)
	}
	second.Close()

	time.Sleep(300 * time.Millisecond)
	if got := g.accepted.Load(); got != 2 {
		t.Fatalf("accepted = %d after teardown, want 2", got)
	}
	if c.State() != Disconnected {
		t.Fatalf("State after Close = %s", c.State())
	}
}

func TestConnectionRetriesFailedDialsUntilClosed(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestConnection(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	c.Start()

	deadline := time.Now().Add(waitTimeout)
	for attempts.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d dial attempts", attempts.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.Close()
	settled := attempts.Load()
	time.Sleep(300 * time.Millisecond)
	if got := attempts.Load(); got > settled+1 {
		t.Fatalf("attempts kept growing after Close: %d -> %d", settled, got)
	}
}

func TestConnectionWriteFailureDoesNotBlockSender(t *testing.T) {
	g := newFakeGateway(t, true)
	c := newTestConnection(t, g.url())
	// Nobody reads events while Send runs, like a session loop calling Send
	c.events = make(chan Event)
	c.Start()

	g.next(t)
	waitState(t, c, Connected)

	c.mu.Lock()
	sock := c.current
	c.mu.Unlock()
	tcp, ok := sock.conn.UnderlyingConn().(*net.TCPConn)
	if !ok {
		t.Fatalf("unexpected transport %T", sock.conn.UnderlyingConn())
	}
	// Writes fail while the read side stays open
	if err := tcp.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	result := make(chan error, 1)
	go func() { result <- c.Send(messages.NewAbortRequest()) }()

	select {
	case err := <-result:
		if err == nil {
			t.Fatalf("Send on a broken socket succeeded")
		}
	case <-time.After(waitTimeout):
		t.Fatalf("Send blocked on the event channel")
	}

	waitState(t, c, Disconnected)
	waitState(t, c, Connected)
}
