package server

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/room4-2/agentwire/stt"
)

const (
	maxProxyBody      = 4 << 20
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription is not configured")
		return
	}

	limit := int64(s.config.MaxBufferSize)
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	audio, err := readLimited(file, limit)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio file too large")
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	log.Printf("🎤 Transcribing %s (%d bytes)", header.Filename, len(audio))
	result, err := s.transcriber.Transcribe(r.Context(), audio, header.Header.Get("Content-Type"))
	if err != nil {
		log.Printf("❌ Transcription failed: %v", err)
		if errors.Is(err, stt.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "transcription service unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.synth == nil {
		writeError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
		return
	}

	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	voiceName := r.URL.Query().Get("voice")
	if voiceName == "" {
		voiceName = s.config.TTSVoice
	}

	audio, err := s.synth.Synthesize(r.Context(), text, voiceName)
	if err != nil {
		log.Printf("❌ TTS failed: %v", err)
		writeError(w, http.StatusInternalServerError, "TTS generation failed")
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio); err != nil {
		log.Printf("⚠️ TTS stream interrupted: %v", err)
	}
}

// readLimited reads at most limit bytes and fails if there is more
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("body exceeds limit")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
