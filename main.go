package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/agentwire/config"
	"github.com/room4-2/agentwire/gemini"
	"github.com/room4-2/agentwire/relay"
	"github.com/room4-2/agentwire/server"
	"github.com/room4-2/agentwire/stt"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create relay manager
	manager, err := relay.NewManager(cfg)
	if err != nil {
		log.Fatalf("Failed to create relay manager: %v", err)
	}

	// Start cleanup routine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.StartCleanupRoutine(ctx)

	transcriber, err := newTranscriber(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create transcriber: %v", err)
	}

	srv := server.NewServer(cfg, manager, transcriber, server.EdgeTTS{})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}

func newTranscriber(ctx context.Context, cfg *config.Config) (stt.Transcriber, error) {
	switch cfg.TranscribeBackend {
	case config.BackendGemini:
		return gemini.NewTranscriber(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, nil)
	default:
		whisper := stt.NewWhisper(cfg.WhisperSocket)
		if !whisper.Available() {
			log.Printf("⚠️ Whisper socket %s not found, transcription requests will fail until it appears", cfg.WhisperSocket)
		}
		return whisper, nil
	}
}
