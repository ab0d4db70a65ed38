package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
)

const (
	ttsTimeout    = 30 * time.Second
	maxToolOutput = 200
)

// Synthesizer renders text as MP3 speech
type Synthesizer interface {
	Synthesize(ctx context.Context, speech, voice string) (io.ReadCloser, error)
}

// EdgeTTS shells out to the edge-tts command line tool
type EdgeTTS struct {
	// Binary defaults to "edge-tts"
	Binary string
}

// Synthesize writes the speech to a temp file and returns a reader that
// deletes it on Close.
func (e EdgeTTS) Synthesize(ctx context.Context, speech, voice string) (io.ReadCloser, error) {
	binary := e.Binary
	if binary == "" {
		binary = "edge-tts"
	}

	tmp, err := os.CreateTemp("", "tts-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()

	ctx, cancel := context.WithTimeout(ctx, ttsTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "--voice", voice, "--text", speech, "--write-media", path)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("edge-tts failed: %v: %s", err, text.Trim(string(output), maxToolOutput))
	}

	f, err := os.Open(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to open speech: %w", err)
	}
	return &tempFile{File: f}, nil
}

type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	os.Remove(t.Name())
	return err
}
