package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/room4-2/agentwire/config"
	"github.com/room4-2/agentwire/messages"
	"github.com/room4-2/agentwire/relay"
	"github.com/room4-2/agentwire/session"
	"github.com/room4-2/agentwire/stt"
	"github.com/room4-2/agentwire/voice"
)

type fakeTranscriber struct {
	result   voice.Transcription
	err      error
	mimeType string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (voice.Transcription, error) {
	f.mimeType = mimeType
	return f.result, f.err
}

type fakeSynth struct {
	voice string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	f.voice = voice
	return io.NopCloser(strings.NewReader("mp3:" + text)), nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxSessions:    10,
		SessionTimeout: time.Minute,
		AllowedOrigins: []string{"*"},
		GatewayWSURL:   "ws://127.0.0.1:1",
		GatewayAPIURL:  "http://127.0.0.1:1",
		MaxBufferSize:  1024,
		TTSVoice:       "en-US-AvaNeural",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, tr stt.Transcriber, synth Synthesizer) *httptest.Server {
	t.Helper()
	manager, err := relay.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(manager.Shutdown)
	server := httptest.NewServer(NewServer(cfg, manager, tr, synth).Handler())
	t.Cleanup(server.Close)
	return server
}

func upload(t *testing.T, url string, field string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, _ := form.CreateFormFile(field, "clip.webm")
	_, _ = part.Write(data)
	_ = form.Close()

	resp, err := http.Post(url+voice.TranscribePath, form.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, testConfig(), nil, nil)
	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if got := readBody(t, resp); got != `{"sessions":0,"status":"ok"}` {
		t.Fatalf("health = %s", got)
	}
}

func TestSessionsProxiesGateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"sessions":[{"key":"main"}]}`))
	}))
	defer gateway.Close()

	cfg := testConfig()
	cfg.GatewayAPIURL = gateway.URL
	server := newTestServer(t, cfg, nil, nil)

	resp, err := http.Get(server.URL + "/api/chat/sessions")
	if err != nil {
		t.Fatalf("GET sessions: %v", err)
	}
	defer resp.Body.Close()
	if got := readBody(t, resp); got != `{"sessions":[{"key":"main"}]}` {
		t.Fatalf("sessions = %s", got)
	}
}

func TestSessionsFallsBackWhenGatewayDown(t *testing.T) {
	server := newTestServer(t, testConfig(), nil, nil)

	resp, err := http.Get(server.URL + "/api/chat/sessions")
	if err != nil {
		t.Fatalf("GET sessions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := readBody(t, resp); got != `{"note":"gateway not reachable","sessions":[]}` {
		t.Fatalf("sessions = %s", got)
	}
}

func TestTranscribe(t *testing.T) {
	tr := &fakeTranscriber{result: voice.Transcription{Text: "hello", Language: "en"}}
	server := newTestServer(t, testConfig(), tr, nil)

	resp := upload(t, server.URL, "file", []byte("audio"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	if got := readBody(t, resp); got != `{"text":"hello","language":"en"}` {
		t.Fatalf("body = %s", got)
	}
	if tr.mimeType != "application/octet-stream" {
		t.Fatalf("mime type = %q", tr.mimeType)
	}
}

func TestTranscribeErrors(t *testing.T) {
	cases := []struct {
		name   string
		tr     stt.Transcriber
		field  string
		size   int
		status int
	}{
		{"unavailable", &fakeTranscriber{err: stt.ErrUnavailable}, "file", 10, http.StatusServiceUnavailable},
		{"backend error", &fakeTranscriber{err: errors.New("boom")}, "file", 10, http.StatusInternalServerError},
		{"too large", &fakeTranscriber{}, "file", 2048, http.StatusRequestEntityTooLarge},
		{"missing field", &fakeTranscriber{}, "audio", 10, http.StatusBadRequest},
		{"not configured", nil, "file", 10, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := newTestServer(t, testConfig(), tc.tr, nil)
			resp := upload(t, server.URL, tc.field, bytes.Repeat([]byte{1}, tc.size))
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestTTS(t *testing.T) {
	synth := &fakeSynth{}
	server := newTestServer(t, testConfig(), nil, synth)

	resp, err := http.Post(server.URL+"/api/voice/tts?text=hi", "", nil)
	if err != nil {
		t.Fatalf("POST tts: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "audio/mpeg" || readBody(t, resp) != "mp3:hi" {
		t.Fatalf("unexpected tts response")
	}
	if synth.voice != "en-US-AvaNeural" {
		t.Fatalf("voice = %q", synth.voice)
	}

	empty, err := http.Post(server.URL+"/api/voice/tts", "", nil)
	if err != nil {
		t.Fatalf("POST tts: %v", err)
	}
	defer empty.Body.Close()
	if empty.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty text status = %d", empty.StatusCode)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) messages.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, err := messages.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return frame
}

func TestChatSocketReportsGatewayFailure(t *testing.T) {
	server := newTestServer(t, testConfig(), nil, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+session.SocketPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if status, ok := readFrame(t, conn).(messages.StatusFrame); !ok || status.Message != gatewayDialNotice {
		t.Fatalf("first frame should be the dial notice")
	}
	frame := readFrame(t, conn)
	ef, ok := frame.(messages.ErrorFrame)
	if !ok || !strings.Contains(ef.Message, "gateway connection failed") {
		t.Fatalf("frame = %#v", frame)
	}
}

func TestChatSessionThroughRelay(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connected"}`))
		var req messages.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"res","id":"`+req.ID+`","ok":true,"payload":{"runId":"r1"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"event","event":"chat","payload":{"state":"final","runId":"r1","message":"pong: `+req.Message+`"}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer gateway.Close()

	cfg := testConfig()
	cfg.GatewayWSURL = "ws" + strings.TrimPrefix(gateway.URL, "http")
	server := newTestServer(t, cfg, nil, nil)

	url, err := session.SocketURL(server.URL)
	if err != nil {
		t.Fatalf("SocketURL: %v", err)
	}
	s, err := session.New(session.Options{URL: url, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Close()

	waitFor(t, s, func(v session.View) bool { return v.Connection == session.Connected })
	if err := s.Send(context.Background(), "ping"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	view := waitFor(t, s, func(v session.View) bool { return len(v.Messages) == 2 })
	if view.Messages[1].Content != "pong: ping" {
		t.Fatalf("reply = %+v", view.Messages[1])
	}
}

func waitFor(t *testing.T, s *session.ChatSession, cond func(session.View) bool) session.View {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		view, err := s.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cond(view) {
			return view
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met; last view %+v", view)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
