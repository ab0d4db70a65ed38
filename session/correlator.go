package session

import (
	"time"

	"github.com/google/uuid"
)

// PendingRequest is a request still waiting for its res frame
type PendingRequest struct {
	ID       string
	Action   string
	IssuedAt time.Time
}

// Resolution describes how a response id relates to what was sent
type Resolution int

const (
	// Unsolicited responses carry an id this client never issued (or none).
	Unsolicited Resolution = iota
	// Matched responses close a pending request.
	Matched
	// Abandoned responses belong to a request given up on locally.
	Abandoned
)

// Correlator matches outbound requests to their res frames by id. It is
// owned by the session loop and is not safe for concurrent use.
type Correlator struct {
	pending   map[string]PendingRequest
	abandoned map[string]time.Time
}

// NewCorrelator creates an empty correlator
func NewCorrelator() *Correlator {
	return &Correlator{
		pending:   make(map[string]PendingRequest),
		abandoned: make(map[string]time.Time),
	}
}

// Track registers a new request and returns it with a fresh correlation id
func (c *Correlator) Track(action string, now time.Time) PendingRequest {
	req := PendingRequest{
		ID:       uuid.NewString(),
		Action:   action,
		IssuedAt: now,
	}
	c.pending[req.ID] = req
	return req
}

// Resolve consumes the pending request matching id
func (c *Correlator) Resolve(id string) (PendingRequest, Resolution) {
	if req, ok := c.pending[id]; ok {
		delete(c.pending, id)
		return req, Matched
	}
	if _, ok := c.abandoned[id]; ok {
		delete(c.abandoned, id)
		return PendingRequest{ID: id}, Abandoned
	}
	return PendingRequest{ID: id}, Unsolicited
}

// Abandon gives up on every pending request of the given action. Late
// responses for them resolve as Abandoned.
func (c *Correlator) Abandon(action string, now time.Time) []PendingRequest {
	var dropped []PendingRequest
	for id, req := range c.pending {
		if req.Action != action {
			continue
		}
		delete(c.pending, id)
		c.abandoned[id] = now
		dropped = append(dropped, req)
	}
	return dropped
}

// Outstanding reports whether a request of the given action is pending
func (c *Correlator) Outstanding(action string) bool {
	for _, req := range c.pending {
		if req.Action == action {
			return true
		}
	}
	return false
}

// Len returns the number of pending requests
func (c *Correlator) Len() int {
	return len(c.pending)
}

// Expire abandons requests older than timeout and returns them. Abandoned ids
// are forgotten after another timeout so the map stays bounded.
func (c *Correlator) Expire(now time.Time, timeout time.Duration) []PendingRequest {
	if timeout <= 0 {
		return nil
	}
	var expired []PendingRequest
	for id, req := range c.pending {
		if now.Sub(req.IssuedAt) < timeout {
			continue
		}
		delete(c.pending, id)
		c.abandoned[id] = now
		expired = append(expired, req)
	}
	for id, at := range c.abandoned {
		if now.Sub(at) >= timeout {
			delete(c.abandoned, id)
		}
	}
	return expired
}
