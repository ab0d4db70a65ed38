package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// TranscribePath is where the relay accepts audio uploads
const TranscribePath = "/api/voice/transcribe"

const (
	uploadTimeout   = 60 * time.Second
	maxResponseBody = 1 << 20
)

// Transcription is the recognizer's answer for one upload
type Transcription struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Uploader turns a finished recording into text
type Uploader interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (Transcription, error)
}

// HTTPUploader posts audio as multipart field "file" to the relay
type HTTPUploader struct {
	baseURL string
	client  *http.Client
}

// NewHTTPUploader creates an uploader for the relay at baseURL. A nil client
// gets a default with a generous timeout.
func NewHTTPUploader(baseURL string, client *http.Client) *HTTPUploader {
	if client == nil {
		client = &http.Client{Timeout: uploadTimeout}
	}
	return &HTTPUploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Transcribe uploads audio and returns the recognized text
func (u *HTTPUploader) Transcribe(ctx context.Context, filename string, audio []byte) (Transcription, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcription{}, fmt.Errorf("failed to write audio: %w", err)
	}
	if err := form.Close(); err != nil {
		return Transcription{}, fmt.Errorf("failed to close form: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+TranscribePath, &body)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", form.FormDataContentType())

	response, err := u.client.Do(request)
	if err != nil {
		return Transcription{}, fmt.Errorf("transcription upload failed: %w", err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBody))
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to read transcription response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		if sonic.ConfigStd.Unmarshal(data, &failure) == nil && failure.Error != "" {
			return Transcription{}, fmt.Errorf("transcription failed (%d): %s", response.StatusCode, failure.Error)
		}
		return Transcription{}, fmt.Errorf("transcription failed (%d): %s", response.StatusCode, strings.TrimSpace(string(data)))
	}

	var result Transcription
	if err := sonic.ConfigStd.Unmarshal(data, &result); err != nil {
		return Transcription{}, fmt.Errorf("invalid transcription response: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)
	return result, nil
}
