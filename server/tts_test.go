package server

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell")
	}
	path := filepath.Join(t.TempDir(), "edge-tts")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEdgeTTSWritesMedia(t *testing.T) {
	// Arguments: --voice V --text T --write-media PATH
	tts := EdgeTTS{Binary: writeScript(t, "printf 'mp3:%s:%s' \"$2\" \"$4\" > \"$6\"\n")}

	audio, err := tts.Synthesize(context.Background(), "hi", "en-US-AvaNeural")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	data, err := io.ReadAll(audio)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	name := audio.(*tempFile).Name()
	if err := audio.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if string(data) != "mp3:en-US-AvaNeural:hi" {
		t.Fatalf("audio = %q", data)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Fatalf("temp file %s not removed", name)
	}
}

func TestEdgeTTSFailureTrimsOutput(t *testing.T) {
	tts := EdgeTTS{Binary: writeScript(t, "printf '%0500d' 0 >&2\nexit 1\n")}

	_, err := tts.Synthesize(context.Background(), "hi", "v")
	if err == nil || !strings.Contains(err.Error(), "edge-tts failed") {
		t.Fatalf("Synthesize error = %v", err)
	}
	if got := strings.Count(err.Error(), "0"); got < maxToolOutput || got > maxToolOutput+5 {
		t.Fatalf("error carries %d zeros, want about %d: %v", got, maxToolOutput, err)
	}
}
