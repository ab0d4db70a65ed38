package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/room4-2/agentwire/config"
	"github.com/room4-2/agentwire/session"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// options shared by every subcommand
type options struct {
	baseURL        string
	requestTimeout time.Duration
	noColor        bool
	verbose        bool
	backoff        session.Backoff
	keepAlive      time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentchat: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "agentchat",
		Short: "Chat with the agent gateway from the terminal",
		Long: `Interactive chat with the agent gateway through the relay.

Type a message and press enter to send it. Commands:
  /abort    stop the current reply
  /record   start voice capture (needs sox)
  /stop     stop capture and transcribe into the draft
  /cancel   discard the current capture
  /send     send the draft
  /draft    show the draft
  /quit     leave`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.applyDefaults(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, os.Stdin, os.Stdout)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "url", "", "relay base URL (default $AGENTWIRE_BASE_URL)")
	flags.DurationVar(&opts.requestTimeout, "request-timeout", 0, "give up on a message without a response after this long (0 uses $REQUEST_TIMEOUT)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log connection diagnostics to stderr")

	cmd.AddCommand(newSessionsCmd(opts))
	cmd.AddCommand(newTranscribeCmd(opts))
	return cmd
}

// applyDefaults fills unset flags from the environment
func (o *options) applyDefaults(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if o.baseURL == "" {
		o.baseURL = cfg.BaseURL
	}
	if !cmd.Flags().Changed("request-timeout") {
		o.requestTimeout = cfg.RequestTimeout
	}
	o.backoff = session.Backoff{
		Initial:    cfg.ReconnectDelay,
		Max:        cfg.ReconnectMaxDelay,
		Multiplier: 2,
	}
	o.keepAlive = cfg.KeepAlivePeriod
	return nil
}

func (o *options) logger() *log.Logger {
	if o.verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

func (o *options) useColor(out *os.File) bool {
	if o.noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(out.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func terminalWidth(out *os.File) int {
	if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
