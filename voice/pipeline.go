package voice

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

const (
	recordingFilename = "recording.wav"

	// DefaultMaxBytes caps one recording, about 13 minutes of 16kHz mono
	DefaultMaxBytes = 25 * 1024 * 1024
)

var (
	// ErrRecording is returned by Start while a recording or its upload is in progress
	ErrRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned by Stop and Cancel when idle
	ErrNotRecording = errors.New("not recording")
)

// State of the pipeline
type State int

const (
	Idle State = iota
	Recording
	// Transcribing means capture has stopped and the upload is in flight
	Transcribing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	default:
		return "unknown"
	}
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	Device   Device
	Uploader Uploader
	// Draft receives transcribed text; a fresh one is used when nil.
	Draft    *Draft
	Format   Format
	MaxBytes int
	Logger   *log.Logger
	// OnTick is called once per second of recording with the elapsed time
	OnTick func(elapsed time.Duration)
}

// Pipeline records speech, uploads it for transcription and appends the
// result to the input draft.
type Pipeline struct {
	device   Device
	uploader Uploader
	draft    *Draft
	format   Format
	maxBytes int
	logger   *log.Logger
	onTick   func(time.Duration)
	tick     time.Duration

	mu    sync.Mutex
	state State
	rec   *recording
}

// recording is the open capture handle and its elapsed counter
type recording struct {
	capture io.ReadCloser
	buffer  *AudioBuffer
	started time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewPipeline creates an idle pipeline
func NewPipeline(opts PipelineOptions) *Pipeline {
	draft := opts.Draft
	if draft == nil {
		draft = &Draft{}
	}
	format := opts.Format
	if format.SampleRate == 0 {
		format = DefaultFormat
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Pipeline{
		device:   opts.Device,
		uploader: opts.Uploader,
		draft:    draft,
		format:   format,
		maxBytes: maxBytes,
		logger:   logger,
		onTick:   opts.OnTick,
		tick:     time.Second,
	}
}

// Draft returns the input draft transcriptions are appended to
func (p *Pipeline) Draft() *Draft {
	return p.draft
}

// State returns the current pipeline state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Elapsed returns the recording time in whole seconds, zero when idle
func (p *Pipeline) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec == nil {
		return 0
	}
	return time.Since(p.rec.started).Truncate(time.Second)
}

// Start opens the input device and begins buffering. A denied or missing
// device is logged and leaves the pipeline idle.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Idle {
		return ErrRecording
	}

	capture, err := p.device.Open(ctx, p.format)
	if err != nil {
		p.logger.Printf("🎙️ Microphone unavailable: %v", err)
		return err
	}

	rec := &recording{
		capture: capture,
		buffer:  NewAudioBuffer(p.maxBytes),
		started: time.Now(),
		stop:    make(chan struct{}),
	}
	rec.wg.Add(2)
	go p.read(rec)
	go p.count(rec)

	p.rec = rec
	p.state = Recording
	p.logger.Printf("🎙️ Recording started")
	return nil
}

// Stop ends the recording, uploads it and appends the recognized text to the
// draft. Upload failures are logged and leave the draft untouched.
func (p *Pipeline) Stop(ctx context.Context) (string, error) {
	rec, err := p.detach(Transcribing)
	if err != nil {
		return "", err
	}
	defer p.setState(Idle)

	p.end(rec)
	pcm := rec.buffer.Flush()
	if len(pcm) == 0 {
		p.logger.Printf("🎙️ Recording stopped with no audio")
		return "", nil
	}

	p.logger.Printf("📤 Uploading %d bytes of audio for transcription", len(pcm))
	result, err := p.uploader.Transcribe(ctx, recordingFilename, EncodeWAV(pcm, p.format))
	if err != nil {
		p.logger.Printf("❌ Transcription failed: %v", err)
		return "", err
	}
	if result.Text == "" {
		return "", nil
	}

	p.draft.Append(result.Text)
	return result.Text, nil
}

// Cancel ends the recording and discards the audio
func (p *Pipeline) Cancel() error {
	rec, err := p.detach(Idle)
	if err != nil {
		return err
	}
	p.end(rec)
	rec.buffer.Reset()
	p.logger.Printf("🗑️ Recording discarded")
	return nil
}

// Close cancels any recording in progress
func (p *Pipeline) Close() {
	if err := p.Cancel(); err != nil && !errors.Is(err, ErrNotRecording) {
		p.logger.Printf("⚠️ Failed to cancel recording: %v", err)
	}
}

func (p *Pipeline) detach(next State) (*recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Recording || p.rec == nil {
		return nil, ErrNotRecording
	}
	rec := p.rec
	p.rec = nil
	p.state = next
	return rec, nil
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// end stops capture and waits for both recording goroutines
func (p *Pipeline) end(rec *recording) {
	close(rec.stop)
	_ = rec.capture.Close()
	rec.wg.Wait()
}

func (p *Pipeline) read(rec *recording) {
	defer rec.wg.Done()

	_, err := io.Copy(rec.buffer, rec.capture)
	select {
	case <-rec.stop:
		return
	default:
	}

	switch {
	case errors.Is(err, ErrBufferFull):
		p.logger.Printf("⚠️ Recording reached %d bytes, further audio is dropped", rec.buffer.Len())
	case err != nil:
		p.logger.Printf("⚠️ Audio capture ended: %v", err)
	default:
		p.logger.Printf("⚠️ Audio device closed the stream")
	}
}

func (p *Pipeline) count(rec *recording) {
	defer rec.wg.Done()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	var seconds int
	for {
		select {
		case <-rec.stop:
			return
		case <-ticker.C:
			seconds++
			if p.onTick != nil {
				p.onTick(time.Duration(seconds) * time.Second)
			}
		}
	}
}
