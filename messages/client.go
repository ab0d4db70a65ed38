package messages

// Outbound actions
const (
	ActionSend  = "send"
	ActionAbort = "abort"
)

// Request is an outbound frame: {action, ...fields}
type Request struct {
	Action  string `json:"action"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewSendRequest creates a send request tagged with a correlation id
func NewSendRequest(id, text string) *Request {
	return &Request{
		Action:  ActionSend,
		ID:      id,
		Message: text,
	}
}

// NewAbortRequest creates an abort request. Abort carries no payload.
func NewAbortRequest() *Request {
	return &Request{Action: ActionAbort}
}
