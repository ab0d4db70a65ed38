package session

// StreamState is the state of the in-flight agent turn
type StreamState int

const (
	StateIdle StreamState = iota
	StateWaiting
	StateStreaming
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// AbortedSuffix is appended to a partial reply committed by an abort
const AbortedSuffix = "\n\n*[aborted]*"

// Stream tracks one agent turn and owns the StreamBuffer. Finalized and
// Aborted are transitions back to StateIdle rather than resting states.
type Stream struct {
	state  StreamState
	buffer string
	runID  string
}

// State returns the current state
func (s *Stream) State() StreamState {
	return s.state
}

// Partial returns the StreamBuffer text
func (s *Stream) Partial() string {
	return s.buffer
}

// RunID returns the run the gateway acknowledged, if any
func (s *Stream) RunID() string {
	return s.runID
}

// Active reports whether a turn is waiting or streaming
func (s *Stream) Active() bool {
	return s.state != StateIdle
}

// Acknowledge moves Idle to Waiting once the gateway accepted a send
func (s *Stream) Acknowledge(runID string) {
	if s.state != StateIdle {
		return
	}
	s.state = StateWaiting
	s.runID = runID
}

// Delta replaces the buffer with the latest snapshot of the reply
func (s *Stream) Delta(text string) {
	s.state = StateStreaming
	s.buffer = text
}

// bind records the run of a turn that started streaming without an ack
func (s *Stream) bind(runID string) {
	if s.runID == "" {
		s.runID = runID
	}
}

// Final ends the turn. It returns the text to commit; ok is false only when
// the final frame carried nothing and nothing was buffered.
func (s *Stream) Final(text string) (string, bool) {
	if text == "" {
		text = s.buffer
	}
	s.Reset()
	return text, text != ""
}

// Abort ends the turn. A non-empty buffer is returned with AbortedSuffix for
// committing; an empty buffer commits nothing. Aborting an idle stream is a
// no-op.
func (s *Stream) Abort() (string, bool) {
	partial := s.buffer
	s.Reset()
	if partial == "" {
		return "", false
	}
	return partial + AbortedSuffix, true
}

// Reset drops the buffer and returns to Idle
func (s *Stream) Reset() {
	s.state = StateIdle
	s.buffer = ""
	s.runID = ""
}
