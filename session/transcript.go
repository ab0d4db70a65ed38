package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/room4-2/agentwire/messages"
)

// Role identifies the author of a transcript entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one transcript entry
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Thinking  string    `json:"thinking,omitempty"`
}

// NewMessage creates a locally authored entry with a fresh id
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
}

// Transcript is the ordered message list. It is owned by the session loop and
// is not safe for concurrent use.
type Transcript struct {
	messages []Message
}

// Append adds an entry at the end
func (t *Transcript) Append(msg Message) {
	t.messages = append(t.messages, msg)
}

// Hydrate replaces the whole list with server history, keeping only user and
// assistant entries in the order received.
func (t *Transcript) Hydrate(history []messages.HistoryMessage, now time.Time) {
	hydrated := make([]Message, 0, len(history))
	for _, h := range history {
		role := Role(h.Role)
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		msg := NewMessage(role, h.Text, now)
		msg.Thinking = h.Thinking
		hydrated = append(hydrated, msg)
	}
	t.messages = hydrated
}

// Clear empties the transcript
func (t *Transcript) Clear() {
	t.messages = nil
}

// Len returns the number of entries
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the entries
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
