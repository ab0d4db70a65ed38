package session

import "time"

// Backoff computes reconnect delays. With Max equal to Initial (or a
// Multiplier of 1) it degrades to a fixed delay.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff starts at 3s and doubles up to 30s
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    3 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
	}
}

// Delay returns the wait before reconnect attempt n (0-based)
func (b Backoff) Delay(attempt int) time.Duration {
	delay := b.Initial
	if delay <= 0 {
		delay = 3 * time.Second
	}
	if b.Multiplier <= 1 {
		return delay
	}
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * b.Multiplier)
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}
