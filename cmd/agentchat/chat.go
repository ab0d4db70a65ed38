package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/room4-2/agentwire/session"
	"github.com/room4-2/agentwire/voice"
)

const uploadTimeout = 2 * time.Minute

// chat wires stdin commands to a session and a voice pipeline
type chat struct {
	session  *session.ChatSession
	pipeline *voice.Pipeline
	render   *renderer
}

func runChat(ctx context.Context, opts *options, in io.Reader, out *os.File) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	socketURL, err := session.SocketURL(opts.baseURL)
	if err != nil {
		return err
	}

	logger := opts.logger()
	r := newRenderer(out, opts.useColor(out), isTerminal(out.Fd()), terminalWidth(out))

	s, err := session.New(session.Options{
		URL:            socketURL,
		RequestTimeout: opts.requestTimeout,
		Logger:         logger,
		Connection: session.ConnectionOptions{
			Backoff:   opts.backoff,
			KeepAlive: opts.keepAlive,
		},
		OnChange: r.update,
	})
	if err != nil {
		return err
	}

	p := voice.NewPipeline(voice.PipelineOptions{
		Device:   voice.SoxDevice{},
		Uploader: voice.NewHTTPUploader(opts.baseURL, &http.Client{Timeout: uploadTimeout}),
		Logger:   logger,
		OnTick: func(elapsed time.Duration) {
			r.notice("🎙️ recording %s", formatElapsed(elapsed))
		},
	})

	c := &chat{session: s, pipeline: p, render: r}
	s.Start()
	defer s.Close()
	defer p.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the user asked to leave
func (c *chat) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	cmd, _, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/abort":
		if err := c.session.Abort(ctx); err != nil {
			c.render.notice("abort: %v", err)
		}
	case "/record":
		if err := c.pipeline.Start(ctx); err != nil {
			c.render.notice("record: %v", err)
			return false
		}
		c.render.notice("🎙️ recording, /stop to transcribe or /cancel to discard")
	case "/stop":
		c.render.notice("⏳ transcribing…")
		if _, err := c.pipeline.Stop(ctx); err != nil {
			c.render.notice("transcribe: %v", err)
			return false
		}
		c.showDraft()
	case "/cancel":
		if err := c.pipeline.Cancel(); err != nil {
			c.render.notice("cancel: %v", err)
		}
	case "/draft":
		c.showDraft()
	case "/send":
		c.send(ctx, c.pipeline.Draft().Take())
	default:
		if strings.HasPrefix(cmd, "/") {
			c.render.notice("unknown command %s", cmd)
			return false
		}
		// Typed text joins whatever speech is already in the draft
		c.pipeline.Draft().Append(line)
		c.send(ctx, c.pipeline.Draft().Take())
	}
	return false
}

func (c *chat) send(ctx context.Context, text string) {
	err := c.session.Send(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrEmptyMessage):
		c.render.notice("draft is empty")
	case errors.Is(err, session.ErrTurnInFlight):
		c.render.notice("agent is still replying, /abort to stop it")
		c.pipeline.Draft().Set(text)
	case errors.Is(err, session.ErrNotConnected):
		c.render.notice("not connected, message kept in draft")
		c.pipeline.Draft().Set(text)
	default:
		c.render.notice("send: %v", err)
	}
}

func (c *chat) showDraft() {
	if draft := c.pipeline.Draft().String(); draft != "" {
		c.render.notice("draft: %s (enter to add more, /send to send)", draft)
		return
	}
	c.render.notice("draft is empty")
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
