package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/room4-2/agentwire/voice"
	"google.golang.org/genai"
)

func TestParseReply(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want voice.Transcription
	}{
		{"json", `{"text":" hola ","language":"es"}`, voice.Transcription{Text: "hola", Language: "es"}},
		{"fenced", "```json\n{\"text\":\"hi\"}\n```", voice.Transcription{Text: "hi", Language: "en"}},
		{"plain text", "just words", voice.Transcription{Text: "just words", Language: "en"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseReply(tc.raw); got != tc.want {
				t.Fatalf("parseReply = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestTranscriberCallsGenerateContent(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, DefaultModel+":generateContent") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"text\":\"lights on\",\"language\":\"en\"}"}]}}]}`))
	}))
	defer server.Close()

	tr, err := NewTranscriber(context.Background(), "test-key", "", &genai.HTTPOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewTranscriber failed: %v", err)
	}

	result, err := tr.Transcribe(context.Background(), voice.EncodeWAV([]byte{1, 2}, voice.DefaultFormat), "")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text != "lights on" {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(body, "audio/wav") {
		t.Fatalf("request did not carry inline audio: %s", body)
	}
}
