package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/agentwire/messages"
)

const (
	actionBufferSize     = 64
	housekeepingInterval = time.Second

	// DefaultRequestTimeout bounds how long a send may wait for its res frame
	DefaultRequestTimeout = 2 * time.Minute

	timeoutNotice      = "No response from gateway (request timed out)"
	requestFailedError = "Request failed"
	gatewayErrorNotice = "Gateway error"
)

var (
	// ErrTurnInFlight is returned when sending while an agent turn is active
	ErrTurnInFlight = errors.New("agent turn already in flight")
	// ErrEmptyMessage is returned for blank input
	ErrEmptyMessage = errors.New("message is empty")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("session closed")
)

// View is what a renderer needs after every change
type View struct {
	Connection ConnectionState
	Stream     StreamState
	Partial    string
	Messages   []Message
}

// Options configures a ChatSession
type Options struct {
	// URL is the socket URL, see SocketURL.
	URL            string
	Connection     ConnectionOptions
	RequestTimeout time.Duration
	Logger         *log.Logger
	Now            func() time.Time

	// OnChange is called on the session goroutine after every state change.
	// It must not call Close.
	OnChange func(View)
	// OnEvent receives gateway events other than chat, untouched.
	OnEvent func(messages.EventFrame)
}

// ChatSession ties the connection, correlator, stream state machine and
// transcript together. All protocol state is mutated by a single goroutine
// consuming connection events and posted user actions in arrival order.
type ChatSession struct {
	conn     *Connection
	logger   *log.Logger
	now      func() time.Time
	timeout  time.Duration
	onChange func(View)
	onEvent  func(messages.EventFrame)

	// Loop-owned state
	connState      ConnectionState
	transcript     Transcript
	stream         Stream
	correlator     *Correlator
	lastAbortedRun string
	// dropChat is set by a local abort; chat frames of the aborted turn may
	// still be in flight and carry no run id, so all of them are dropped
	// until the next send.
	dropChat bool

	actions   chan func()
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a session; call Start to connect
func New(opts Options) (*ChatSession, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("socket URL is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Connection.Logger == nil {
		opts.Connection.Logger = logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.RequestTimeout
	if timeout < 0 {
		timeout = 0
	}

	return &ChatSession{
		conn:       NewConnection(opts.URL, opts.Connection),
		logger:     logger,
		now:        now,
		timeout:    timeout,
		onChange:   opts.OnChange,
		onEvent:    opts.OnEvent,
		correlator: NewCorrelator(),
		actions:    make(chan func(), actionBufferSize),
		done:       make(chan struct{}),
	}, nil
}

// Start dials the gateway and begins processing events
func (s *ChatSession) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop()
		s.conn.Start()
	})
}

// Close tears down the connection and stops the loop. No reconnect is
// attempted afterwards.
func (s *ChatSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		close(s.done)
		s.wg.Wait()
	})
	return err
}

// Send appends text to the transcript optimistically and sends it to the
// gateway. It fails without side effects when disconnected or while a turn
// is in flight; a failed write leaves the user entry and adds a system entry.
func (s *ChatSession) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return s.call(ctx, func() error { return s.send(text) })
}

// Abort cancels the current agent turn. Local state returns to idle at once;
// the gateway's aborted confirmation is handled idempotently.
func (s *ChatSession) Abort(ctx context.Context) error {
	return s.call(ctx, s.abort)
}

// Snapshot returns the current view
func (s *ChatSession) Snapshot(ctx context.Context) (View, error) {
	var view View
	err := s.call(ctx, func() error {
		view = s.view()
		return nil
	})
	return view, err
}

func (s *ChatSession) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.actions <- func() { result <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

func (s *ChatSession) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	events := s.conn.Events()
	for {
		select {
		case <-s.done:
			return
		case ev := <-events:
			s.handleEvent(ev)
		case fn := <-s.actions:
			fn()
		case <-ticker.C:
			s.expireRequests()
		}
	}
}

func (s *ChatSession) send(text string) error {
	if s.connState != Connected {
		return ErrNotConnected
	}
	if s.stream.Active() || s.correlator.Outstanding(messages.ActionSend) {
		return ErrTurnInFlight
	}

	now := s.now()
	s.dropChat = false
	s.transcript.Append(NewMessage(RoleUser, text, now))
	req := s.correlator.Track(messages.ActionSend, now)

	if err := s.conn.Send(messages.NewSendRequest(req.ID, text)); err != nil {
		s.correlator.Resolve(req.ID)
		s.appendSystem(fmt.Sprintf("Failed to send message: %v", err))
		s.changed()
		return err
	}

	s.changed()
	return nil
}

func (s *ChatSession) abort() error {
	dropped := s.correlator.Abandon(messages.ActionSend, s.now())
	if !s.stream.Active() && len(dropped) == 0 {
		return nil
	}

	if runID := s.stream.RunID(); runID != "" {
		s.lastAbortedRun = runID
	}
	s.dropChat = true

	var err error
	if s.connState == Connected {
		// Fire and forget; the local turn ends regardless
		if err = s.conn.Send(messages.NewAbortRequest()); err != nil {
			s.logger.Printf("⚠️ Failed to send abort: %v", err)
		}
	}

	s.commitAbort()
	s.changed()
	return err
}

func (s *ChatSession) handleEvent(ev Event) {
	if ev.Frame == nil {
		if s.connState != ev.State {
			s.connState = ev.State
			s.changed()
		}
		return
	}

	switch f := ev.Frame.(type) {
	case messages.StatusFrame:
		s.logger.Printf("📊 Gateway status: %s", f.Message)
	case messages.PongFrame:
	case messages.ErrorFrame:
		msg := f.Message
		if msg == "" {
			msg = gatewayErrorNotice
		}
		s.appendSystem(msg)
		s.changed()
	case messages.SessionChangedFrame:
		s.logger.Printf("🔁 Gateway session changed, clearing transcript")
		s.correlator.Abandon(messages.ActionSend, s.now())
		s.transcript.Clear()
		s.stream.Reset()
		s.lastAbortedRun = ""
		s.dropChat = false
		s.changed()
	case messages.ResponseFrame:
		s.handleResponse(f)
	case messages.ChatFrame:
		s.handleChat(f)
	case messages.EventFrame:
		if s.onEvent != nil {
			s.onEvent(f)
		}
	}
}

func (s *ChatSession) handleResponse(res messages.ResponseFrame) {
	if _, resolution := s.correlator.Resolve(res.ID); resolution == Abandoned {
		return
	}

	if !res.OK {
		msg := requestFailedError
		if res.Error != nil && res.Error.Message != "" {
			msg = res.Error.Message
		}
		s.appendSystem(msg)
		s.stream.Reset()
		s.changed()
		return
	}

	if res.HasHistory {
		s.transcript.Hydrate(res.History, s.now())
		s.logger.Printf("📜 Loaded %d history messages", s.transcript.Len())
	}
	if res.RunID != "" {
		s.stream.Acknowledge(res.RunID)
	}
	s.changed()
}

func (s *ChatSession) handleChat(chat messages.ChatFrame) {
	if s.dropChat || (chat.RunID != "" && chat.RunID == s.lastAbortedRun) {
		// Leftovers of a turn the user already aborted
		return
	}

	switch chat.State {
	case messages.ChatDelta:
		s.stream.Delta(chat.Text)
		s.stream.bind(chat.RunID)
	case messages.ChatFinal:
		s.correlator.Abandon(messages.ActionSend, s.now())
		if text, ok := s.stream.Final(chat.Text); ok {
			msg := NewMessage(RoleAssistant, text, s.now())
			msg.Thinking = chat.Thinking
			s.transcript.Append(msg)
		}
	case messages.ChatAborted:
		s.correlator.Abandon(messages.ActionSend, s.now())
		s.commitAbort()
	}
	s.changed()
}

func (s *ChatSession) commitAbort() {
	if text, ok := s.stream.Abort(); ok {
		s.transcript.Append(NewMessage(RoleAssistant, text, s.now()))
	}
}

func (s *ChatSession) expireRequests() {
	expired := s.correlator.Expire(s.now(), s.timeout)
	if len(expired) == 0 {
		return
	}

	for _, req := range expired {
		if req.Action != messages.ActionSend || s.stream.State() == StateStreaming {
			continue
		}
		s.logger.Printf("⏰ Request %s timed out after %s (%d still pending)", req.ID[:8], s.timeout, s.correlator.Len())
		s.appendSystem(timeoutNotice)
		s.stream.Reset()
	}
	s.changed()
}

func (s *ChatSession) appendSystem(content string) {
	s.transcript.Append(NewMessage(RoleSystem, content, s.now()))
}

func (s *ChatSession) view() View {
	return View{
		Connection: s.connState,
		Stream:     s.stream.State(),
		Partial:    s.stream.Partial(),
		Messages:   s.transcript.Messages(),
	}
}

func (s *ChatSession) changed() {
	if s.onChange != nil {
		s.onChange(s.view())
	}
}
