package session

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const waitTimeout = 3 * time.Second

// fakeGateway accepts sockets, optionally sends the handshake, and hands the
// server side of every connection to the test.
type fakeGateway struct {
	server   *httptest.Server
	conns    chan *websocket.Conn
	accepted atomic.Int32
}

func newFakeGateway(t *testing.T, handshake bool) *fakeGateway {
	t.Helper()
	g := &fakeGateway{conns: make(chan *websocket.Conn, 16)}
	upgrader := websocket.Upgrader{}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.accepted.Add(1)
		if handshake {
			_ = conn.WriteJSON(map[string]string{"type": "connected"})
		}
		g.conns <- conn
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http") + SocketPath
}

func (g *fakeGateway) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-g.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitTimeout):
		t.Fatalf("gateway: no connection within %s", waitTimeout)
		return nil
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fastBackoff() Backoff {
	return Backoff{Initial: 50 * time.Millisecond, Max: 50 * time.Millisecond}
}

func newTestSession(t *testing.T, url string, timeout time.Duration) *ChatSession {
	t.Helper()
	s, err := New(Options{
		URL:            url,
		Logger:         discardLogger(),
		RequestTimeout: timeout,
		Connection:     ConnectionOptions{Backoff: fastBackoff()},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()
	t.Cleanup(func() { s.Close() })
	return s
}

// waitView polls the session until cond holds
func waitView(t *testing.T, s *ChatSession, what string, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		view, err := s.Snapshot(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if cond(view) {
			return view
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last view %+v", what, view)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func isConnected(v View) bool { return v.Connection == Connected }
