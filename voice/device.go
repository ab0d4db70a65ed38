package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// ErrDeviceUnavailable is returned when no capture device can be opened
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// Device grants access to an audio input
type Device interface {
	// Open starts capturing raw PCM in the given format. Reads on the
	// returned stream block until audio is available; Close stops capture.
	Open(ctx context.Context, f Format) (io.ReadCloser, error)
}

// SoxDevice records from the default input using the sox binary
type SoxDevice struct {
	// Binary defaults to "sox"
	Binary string
}

// Open spawns sox writing raw PCM to stdout
func (d SoxDevice) Open(ctx context.Context, f Format) (io.ReadCloser, error) {
	binary := d.Binary
	if binary == "" {
		binary = "sox"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, path,
		"-q",
		"-d",
		"-t", "raw",
		"-r", strconv.Itoa(f.SampleRate),
		"-b", strconv.Itoa(f.BitsPerSample),
		"-c", strconv.Itoa(f.Channels),
		"-e", "signed-integer",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sox stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &soxCapture{cmd: cmd, stdout: stdout}, nil
}

type soxCapture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	once   sync.Once
}

func (c *soxCapture) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *soxCapture) Close() error {
	c.once.Do(func() {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		// Exit status after a kill is expected
		_ = c.cmd.Wait()
	})
	return nil
}
