package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	// ErrMalformedFrame is returned when a frame is not a JSON object
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownFrame is returned for well-formed frames of an unrecognized type
	ErrUnknownFrame = errors.New("unknown frame type")
)

var api = sonic.ConfigStd

// envelope covers every top-level field any inbound frame uses
type envelope struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload"`
	Error   json.RawMessage `json:"error"`
	Message json.RawMessage `json:"message"`
}

type responsePayload struct {
	RunID    string          `json:"runId"`
	Messages json.RawMessage `json:"messages"`
}

type chatPayload struct {
	State   ChatState       `json:"state"`
	RunID   string          `json:"runId"`
	Message json.RawMessage `json:"message"`
}

// Decode parses one text frame into its Frame variant
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := api.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch env.Type {
	case TypeConnected:
		return ConnectedFrame{}, nil
	case TypePong:
		return PongFrame{}, nil
	case TypeSessionChanged:
		return SessionChangedFrame{}, nil
	case TypeStatus:
		return StatusFrame{Message: freeFormMessage(env), Raw: json.RawMessage(data)}, nil
	case TypeError:
		return ErrorFrame{Message: freeFormMessage(env), Raw: json.RawMessage(data)}, nil
	case TypeResponse:
		return decodeResponse(env)
	case TypeEvent:
		return decodeEvent(env)
	case "":
		// The relay reports gateway failures as a bare {"error": "..."}
		if msg := rawString(env.Error); msg != "" {
			return ErrorFrame{Message: msg, Raw: json.RawMessage(data)}, nil
		}
		return nil, ErrMalformedFrame
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
}

func decodeResponse(env envelope) (Frame, error) {
	res := ResponseFrame{
		ID:      env.ID,
		OK:      env.OK,
		Payload: env.Payload,
	}

	if !isNull(env.Payload) {
		var payload responsePayload
		if err := api.Unmarshal(env.Payload, &payload); err == nil {
			res.RunID = payload.RunID
			if !isNull(payload.Messages) {
				history, err := decodeHistory(payload.Messages)
				if err != nil {
					return nil, err
				}
				res.HasHistory = true
				res.History = history
			}
		}
	}

	if !isNull(env.Error) {
		res.Error = decodeErrorPayload(env.Error)
	}
	return res, nil
}

func decodeHistory(raw json.RawMessage) ([]HistoryMessage, error) {
	var items []any
	if err := api.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: messages: %v", ErrMalformedFrame, err)
	}

	history := make([]HistoryMessage, 0, len(items))
	for _, item := range items {
		role := ""
		if obj, ok := item.(map[string]any); ok {
			role, _ = obj["role"].(string)
		}
		history = append(history, HistoryMessage{
			Role:     role,
			Text:     ExtractText(item),
			Thinking: ExtractThinking(item),
		})
	}
	return history, nil
}

func decodeErrorPayload(raw json.RawMessage) *ErrorPayload {
	var value any
	if err := api.Unmarshal(raw, &value); err != nil {
		return &ErrorPayload{}
	}
	switch v := value.(type) {
	case string:
		return &ErrorPayload{Message: v}
	case map[string]any:
		code, _ := v["code"].(string)
		msg, _ := v["message"].(string)
		return &ErrorPayload{Code: code, Message: msg}
	}
	return &ErrorPayload{}
}

func decodeEvent(env envelope) (Frame, error) {
	if env.Event != EventChat {
		return EventFrame{Event: env.Event, Payload: env.Payload}, nil
	}

	var payload chatPayload
	if err := api.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: chat payload: %v", ErrMalformedFrame, err)
	}

	switch payload.State {
	case ChatDelta, ChatFinal, ChatAborted:
	default:
		return nil, fmt.Errorf("%w: chat state %q", ErrUnknownFrame, payload.State)
	}

	frame := ChatFrame{State: payload.State, RunID: payload.RunID}
	if !isNull(payload.Message) {
		var message any
		if err := api.Unmarshal(payload.Message, &message); err != nil {
			return nil, fmt.Errorf("%w: chat message: %v", ErrMalformedFrame, err)
		}
		frame.Text = ExtractText(message)
		frame.Thinking = ExtractThinking(message)
	}
	return frame, nil
}

// freeFormMessage pulls a human readable line out of a status or error frame
func freeFormMessage(env envelope) string {
	if msg := rawString(env.Message); msg != "" {
		return msg
	}
	if !isNull(env.Error) {
		if p := decodeErrorPayload(env.Error); p.Message != "" {
			return p.Message
		}
	}
	if !isNull(env.Payload) {
		var value any
		if err := api.Unmarshal(env.Payload, &value); err == nil {
			if obj, ok := value.(map[string]any); ok {
				if msg, ok := obj["message"].(string); ok {
					return msg
				}
			}
			if s, ok := value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func rawString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := api.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Encode serializes an outbound value (a Request or a ServerFrame)
func Encode(v any) ([]byte, error) {
	data, err := api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}
