package messages

import (
	"encoding/json"
)

// Inbound frame types
const (
	TypeConnected      = "connected"
	TypeStatus         = "status"
	TypePong           = "pong"
	TypeError          = "error"
	TypeSessionChanged = "session_changed"
	TypeResponse       = "res"
	TypeEvent          = "event"
)

// EventChat is the only event name handled by the streaming core
const EventChat = "chat"

// ChatState is the state carried by a chat event
type ChatState string

const (
	ChatDelta   ChatState = "delta"
	ChatFinal   ChatState = "final"
	ChatAborted ChatState = "aborted"
)

// Frame is one decoded inbound frame. The set of implementations is closed:
// ConnectedFrame, StatusFrame, PongFrame, ErrorFrame, SessionChangedFrame,
// ResponseFrame, ChatFrame and EventFrame.
type Frame interface {
	FrameType() string
}

// ConnectedFrame is the gateway handshake
type ConnectedFrame struct{}

// StatusFrame is an informational notice (e.g. mid-reconnect)
type StatusFrame struct {
	Message string
	Raw     json.RawMessage
}

// PongFrame answers a keepalive
type PongFrame struct{}

// ErrorFrame is a transport-level failure reported by the gateway or relay
type ErrorFrame struct {
	Message string
	Raw     json.RawMessage
}

// SessionChangedFrame means the gateway attached a different logical session
type SessionChangedFrame struct{}

// ErrorPayload is the error object of a failed response
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HistoryMessage is one entry of a hydration payload, already reduced to text
type HistoryMessage struct {
	Role     string
	Text     string
	Thinking string
}

// ResponseFrame answers a previously sent request
type ResponseFrame struct {
	ID    string
	OK    bool
	RunID string
	// HasHistory is set when the payload carried a messages list, even an empty one.
	HasHistory bool
	History    []HistoryMessage
	Error      *ErrorPayload
	Payload    json.RawMessage
}

// ChatFrame is a streaming update for the current agent turn
type ChatFrame struct {
	State    ChatState
	Text     string
	Thinking string
	RunID    string
}

// EventFrame is any event other than chat; it is forwarded untouched
type EventFrame struct {
	Event   string
	Payload json.RawMessage
}

func (ConnectedFrame) FrameType() string      { return TypeConnected }
func (StatusFrame) FrameType() string         { return TypeStatus }
func (PongFrame) FrameType() string           { return TypePong }
func (ErrorFrame) FrameType() string          { return TypeError }
func (SessionChangedFrame) FrameType() string { return TypeSessionChanged }
func (ResponseFrame) FrameType() string       { return TypeResponse }
func (ChatFrame) FrameType() string           { return TypeEvent }
func (EventFrame) FrameType() string          { return TypeEvent }

// ServerFrame is the outgoing shape the relay uses when it has to speak for
// the gateway itself (handshake failures, status notices).
type ServerFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewErrorFrame creates an error frame understood by Decode
func NewErrorFrame(message string) *ServerFrame {
	return &ServerFrame{
		Type:  TypeError,
		Error: message,
	}
}

// NewStatusFrame creates a status notice
func NewStatusFrame(message string) *ServerFrame {
	return &ServerFrame{
		Type:    TypeStatus,
		Message: message,
	}
}
