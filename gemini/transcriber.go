package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/room4-2/agentwire/voice"
	"google.golang.org/genai"
)

const (
	// DefaultModel handles audio input at low latency
	DefaultModel = "gemini-2.5-flash"

	transcribePrompt = `Transcribe the speech in this audio verbatim.
Reply with JSON only: {"text": "<transcript>", "language": "<ISO 639-1 code>"}.
If there is no speech, reply {"text": "", "language": "en"}.`
)

// Transcriber recognizes speech with a Gemini model
type Transcriber struct {
	client *genai.Client
	model  string
}

// NewTranscriber creates a Gemini API client. httpOptions may be nil.
func NewTranscriber(ctx context.Context, apiKey, model string, httpOptions *genai.HTTPOptions) (*Transcriber, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if httpOptions != nil {
		cfg.HTTPOptions = *httpOptions
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	if model == "" {
		model = DefaultModel
	}
	log.Printf("✅ Gemini transcription ready (%s)", model)
	return &Transcriber{client: client, model: model}, nil
}

// Transcribe sends the audio inline and parses the model's JSON answer
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (voice.Transcription, error) {
	if voice.IsWAV(audio) || mimeType == "" {
		mimeType = "audio/wav"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, config)
	if err != nil {
		return voice.Transcription{}, fmt.Errorf("gemini transcription failed: %w", err)
	}

	return parseReply(resp.Text()), nil
}

// parseReply accepts the requested JSON and falls back to plain text
func parseReply(raw string) voice.Transcription {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var result voice.Transcription
	if err := sonic.ConfigStd.UnmarshalFromString(strings.TrimSpace(raw), &result); err != nil {
		result = voice.Transcription{Text: raw}
	}
	result.Text = strings.TrimSpace(result.Text)
	if result.Language == "" {
		result.Language = "en"
	}
	return result
}
