package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/room4-2/agentwire/voice"

	"github.com/spf13/cobra"
)

func newTranscribeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe an audio file through the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
}

func runTranscribe(ctx context.Context, opts *options, path string, out io.Writer) error {
	audio, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	uploader := voice.NewHTTPUploader(opts.baseURL, &http.Client{Timeout: uploadTimeout})
	result, err := uploader.Transcribe(ctx, filepath.Base(path), audio)
	if err != nil {
		return err
	}
	if result.Language != "" {
		opts.logger().Printf("🗣️ Detected language: %s", result.Language)
	}
	_, err = fmt.Fprintln(out, result.Text)
	return err
}
