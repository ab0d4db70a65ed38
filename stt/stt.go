// Package stt holds the server-side speech-to-text backends behind
// /api/voice/transcribe.
package stt

import (
	"context"
	"errors"

	"github.com/room4-2/agentwire/voice"
)

// ErrUnavailable is returned when the backend cannot be reached at all
var ErrUnavailable = errors.New("transcription backend unavailable")

// Transcriber recognizes speech in one uploaded audio file. mimeType is the
// upload's declared content type and may be empty.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (voice.Transcription, error)
}
