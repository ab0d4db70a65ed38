package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/room4-2/agentwire/config"
	"github.com/room4-2/agentwire/messages"
	"github.com/room4-2/agentwire/relay"
	"github.com/room4-2/agentwire/stt"

	"github.com/gorilla/websocket"
)

const (
	sessionsTimeout   = 5 * time.Second
	frameWriteTimeout = 5 * time.Second
	gatewayDialNotice = "connecting to gateway"
)

// Server is the HTTP surface of the relay: the chat socket, the gateway
// session listing, and the voice endpoints.
type Server struct {
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	manager     *relay.Manager
	config      *config.Config
	transcriber stt.Transcriber
	synth       Synthesizer
	httpClient  *http.Client
}

// NewServer wires the routes; transcriber and synth may be nil to disable
// the matching endpoint.
func NewServer(cfg *config.Config, manager *relay.Manager, transcriber stt.Transcriber, synth Synthesizer) *Server {
	s := &Server{
		manager:     manager,
		config:      cfg,
		transcriber: transcriber,
		synth:       synth,
		httpClient:  &http.Client{Timeout: sessionsTimeout},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Check allowed origins
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/ws", s.handleChatSocket)
	mux.HandleFunc("GET /api/chat/sessions", s.handleSessions)
	mux.HandleFunc("POST /api/voice/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/voice/tts", s.handleTTS)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Transcription and TTS can take a while; sockets are hijacked
		WriteTimeout: 90 * time.Second,
	}

	return s
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for connections
func (s *Server) Start() error {
	log.Printf("🚀 Relay server starting on port %d", s.config.Port)
	log.Printf("📡 Chat endpoint: ws://localhost:%d/api/chat/ws -> %s", s.config.Port, s.config.GatewayWSURL)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")
	s.manager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The bridge's write pump does not exist yet, so this handler is the
	// only writer until Start
	writeFrame(conn, messages.NewStatusFrame(gatewayDialNotice))

	bridge, err := s.manager.CreateBridge(r.Context(), conn)
	if err != nil {
		log.Printf("❌ Failed to open bridge: %v", err)
		// Tell the UI why before hanging up; it reconnects on its own
		writeFrame(conn, messages.NewErrorFrame(err.Error()))
		conn.Close()
		return
	}

	log.Printf("✅ [%s] Bridge open for %s", bridge.ID[:8], bridge.RemoteAddr)
	bridge.Start()

	<-bridge.CloseChan

	_ = s.manager.RemoveBridge(context.Background(), bridge.ID)
	log.Printf("🔌 [%s] Bridge closed", bridge.ID[:8])
}

// handleSessions proxies the gateway's session list. The UI treats it as
// optional, so failures degrade to an empty list.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	fallback := map[string]any{"sessions": []any{}, "note": "gateway not reachable"}

	request, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.config.GatewayAPIURL+"/api/sessions", nil)
	if err != nil {
		writeJSON(w, http.StatusOK, fallback)
		return
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		log.Printf("⚠️ Gateway session list failed: %v", err)
		writeJSON(w, http.StatusOK, fallback)
		return
	}
	defer response.Body.Close()

	data, err := readLimited(response.Body, maxProxyBody)
	if err != nil || response.StatusCode != http.StatusOK || !sonic.ConfigStd.Valid(data) {
		log.Printf("⚠️ Gateway session list unusable (status %d)", response.StatusCode)
		writeJSON(w, http.StatusOK, fallback)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeFrame(conn *websocket.Conn, frame any) {
	data, err := messages.Encode(frame)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, data)
	_ = conn.SetWriteDeadline(time.Time{})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.manager.ActiveCount(),
	})
}
