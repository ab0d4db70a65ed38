package stt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/room4-2/agentwire/voice"
)

const (
	whisperTimeout = 30 * time.Second
	ffmpegTimeout  = 15 * time.Second
	maxReplySize   = 1 << 20
	maxToolOutput  = 200
)

// Whisper talks to a local whisper server over a unix socket. The server
// takes a WAV file path terminated by a newline and answers with one JSON
// line: {"text", "language"} or {"error"}.
type Whisper struct {
	Socket string
	// FFmpeg converts non-WAV uploads; defaults to "ffmpeg"
	FFmpeg string
	// TempDir holds the files handed to the server; defaults to os.TempDir()
	TempDir string
}

// NewWhisper creates a backend for the given socket path
func NewWhisper(socket string) *Whisper {
	return &Whisper{Socket: socket}
}

// Available reports whether the socket exists
func (w *Whisper) Available() bool {
	info, err := os.Stat(w.Socket)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

// Transcribe writes the upload to disk, converting it to 16kHz mono WAV
// when needed, and asks the whisper server for its text.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, mimeType string) (voice.Transcription, error) {
	if !w.Available() {
		return voice.Transcription{}, fmt.Errorf("%w: whisper server not running at %s", ErrUnavailable, w.Socket)
	}

	wavPath, cleanup, err := w.prepare(ctx, audio, mimeType)
	if err != nil {
		return voice.Transcription{}, err
	}
	defer cleanup()

	return w.query(ctx, wavPath)
}

// prepare stores audio as a WAV file the server can read
func (w *Whisper) prepare(ctx context.Context, audio []byte, mimeType string) (string, func(), error) {
	if voice.IsWAV(audio) {
		path, err := w.writeTemp(audio, ".wav")
		if err != nil {
			return "", nil, err
		}
		return path, func() { os.Remove(path) }, nil
	}

	srcPath, err := w.writeTemp(audio, extensionFor(mimeType))
	if err != nil {
		return "", nil, err
	}
	defer os.Remove(srcPath)

	wavPath := strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ".wav"
	ffmpeg := w.FFmpeg
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	convCtx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	cmd := exec.CommandContext(convCtx, ffmpeg, "-y", "-i", srcPath, "-ar", "16000", "-ac", "1", "-f", "wav", wavPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(wavPath)
		return "", nil, fmt.Errorf("ffmpeg failed: %v: %s", err, text.Trim(string(output), maxToolOutput))
	}
	return wavPath, func() { os.Remove(wavPath) }, nil
}

func (w *Whisper) writeTemp(data []byte, ext string) (string, error) {
	f, err := os.CreateTemp(w.TempDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), nil
}

func (w *Whisper) query(ctx context.Context, wavPath string) (voice.Transcription, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", w.Socket)
	if err != nil {
		return voice.Transcription{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(whisperTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, wavPath+"\n"); err != nil {
		return voice.Transcription{}, fmt.Errorf("failed to send path to whisper: %w", err)
	}

	line, err := bufio.NewReader(io.LimitReader(conn, maxReplySize)).ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return voice.Transcription{}, fmt.Errorf("failed to read whisper reply: %w", err)
	}

	var reply struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Error    string `json:"error"`
	}
	if err := sonic.ConfigStd.Unmarshal(line, &reply); err != nil {
		return voice.Transcription{}, fmt.Errorf("invalid whisper reply: %w", err)
	}
	if reply.Error != "" {
		return voice.Transcription{}, fmt.Errorf("whisper: %s", reply.Error)
	}
	if reply.Language == "" {
		reply.Language = "en"
	}
	return voice.Transcription{Text: strings.TrimSpace(reply.Text), Language: reply.Language}, nil
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".bin"
	}
}
