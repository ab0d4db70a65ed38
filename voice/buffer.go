package voice

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when a write would exceed the buffer cap
var ErrBufferFull = errors.New("audio buffer full")

// AudioBuffer accumulates captured PCM chunks until the recording ends.
// It implements io.Writer so a capture stream can be copied straight in.
type AudioBuffer struct {
	mu      sync.Mutex
	chunks  [][]byte
	size    int
	maxSize int
}

// NewAudioBuffer creates a buffer holding at most maxSize bytes
func NewAudioBuffer(maxSize int) *AudioBuffer {
	return &AudioBuffer{maxSize: maxSize}
}

// Write stores a copy of p. Nothing is stored when p would overflow the cap.
func (b *AudioBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size+len(p) > b.maxSize {
		return 0, ErrBufferFull
	}
	if len(p) == 0 {
		return 0, nil
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)
	b.chunks = append(b.chunks, chunk)
	b.size += len(p)
	return len(p), nil
}

// Flush returns all chunks joined in capture order and empties the buffer
func (b *AudioBuffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks) == 0 {
		return nil
	}

	out := make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	b.chunks = nil
	b.size = 0
	return out
}

// Reset drops everything buffered
func (b *AudioBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
}

// Len returns the number of buffered bytes
func (b *AudioBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Chunks returns the number of writes stored
func (b *AudioBuffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
