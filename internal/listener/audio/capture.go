// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     audio
// Description: Microphone capture using PortAudio with suspend/resume
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/msto63/voicelistener/pkg/core/logging"
)

const (
	// DefaultSampleRate is the capture sample rate expected by the detectors
	DefaultSampleRate = 16000

	// DefaultFrameDuration is the length of one frame
	DefaultFrameDuration = 100 * time.Millisecond

	// DefaultQueueFrames is the queue capacity (10s at the default frame size)
	DefaultQueueFrames = 100

	// DefaultChannels is mono audio
	DefaultChannels = 1
)

// ErrClosed is returned by operations on a closed capture
var ErrClosed = errors.New("audio capture closed")

// Source produces frames into a bounded queue and can be paused while
// the system is talking.
type Source interface {
	Start(ctx context.Context) error
	// Suspend stops enqueuing frames. Once it returns, nothing is enqueued until Resume.
	Suspend() error
	Resume() error
	// Flush discards queued but unconsumed frames
	Flush() int
	Frames() *FrameQueue
	// Err delivers a fatal capture failure
	Err() <-chan error
	Close() error
}

// stream is the subset of *portaudio.Stream used by Capture
type stream interface {
	Start() error
	Stop() error
	Read() error
	Close() error
}

// streamOpener opens an input stream that fills buf on every Read
type streamOpener func(buf []float32) (stream, error)

// CaptureConfig holds configuration for audio capture
type CaptureConfig struct {
	SampleRate    int
	FrameDuration time.Duration
	QueueFrames   int
	DeviceName    string // empty or "default" selects the default input
}

// DefaultCaptureConfig returns default capture configuration
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:    DefaultSampleRate,
		FrameDuration: DefaultFrameDuration,
		QueueFrames:   DefaultQueueFrames,
	}
}

// FrameSize returns the number of samples per frame
func (c CaptureConfig) FrameSize() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// Capture reads the microphone in a goroutine and pushes one Frame per read
type Capture struct {
	mu        sync.Mutex
	cfg       CaptureConfig
	open      streamOpener
	stream    stream
	queue     *FrameQueue
	logger    *logging.Logger
	now       func() time.Time
	running   bool
	closed    bool
	suspended bool
	gen       uint64 // bumped by Suspend; reads started in an older generation are discarded
	seq       uint64
	resumeCh  chan struct{}
	errCh     chan error
	done      chan struct{}
	wg        sync.WaitGroup
	paInit    bool
}

// NewCapture initializes PortAudio and creates a capture for the configured device
func NewCapture(cfg CaptureConfig, logger *logging.Logger) (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c := newCapture(cfg, nil, logger)
	c.open = c.openPortAudio
	c.paInit = true
	return c, nil
}

func newCapture(cfg CaptureConfig, open streamOpener, logger *logging.Logger) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	if cfg.QueueFrames <= 0 {
		cfg.QueueFrames = DefaultQueueFrames
	}
	if logger == nil {
		logger = logging.New("audio")
	}
	return &Capture{
		cfg:      cfg,
		open:     open,
		queue:    NewFrameQueue(cfg.QueueFrames),
		logger:   logger,
		now:      time.Now,
		resumeCh: make(chan struct{}, 1),
		errCh:    make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// openPortAudio opens the configured input device, falling back to the default one
func (c *Capture) openPortAudio(buf []float32) (stream, error) {
	sampleRate := float64(c.cfg.SampleRate)

	if c.cfg.DeviceName != "" && c.cfg.DeviceName != "default" {
		device, err := findDeviceByName(c.cfg.DeviceName)
		if err == nil {
			params := portaudio.StreamParameters{
				Input: portaudio.StreamDeviceParameters{
					Device:   device,
					Channels: DefaultChannels,
					Latency:  device.DefaultLowInputLatency,
				},
				SampleRate:      sampleRate,
				FramesPerBuffer: len(buf),
			}
			return portaudio.OpenStream(params, buf)
		}
		c.logger.Warn("input device not found, using default", "device", c.cfg.DeviceName)
	}

	return portaudio.OpenDefaultStream(DefaultChannels, 0, sampleRate, len(buf), buf)
}

// findDeviceByName finds a PortAudio input device by name
func findDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("device not found: %s", name)
}

// Start opens the stream and begins the capture goroutine
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.running {
		return fmt.Errorf("capture already running")
	}

	buf := make([]float32, c.cfg.FrameSize())
	s, err := c.open(buf)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	c.stream = s
	c.running = true

	c.wg.Add(1)
	go c.captureLoop(ctx, s, buf)

	c.logger.Info("audio capture started",
		"sample_rate", c.cfg.SampleRate,
		"frame_samples", len(buf),
		"queue_frames", c.queue.Cap(),
	)
	return nil
}

// captureLoop reads one frame per iteration until ctx is done or the capture closes
func (c *Capture) captureLoop(ctx context.Context, s stream, buf []float32) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if c.suspended {
			c.mu.Unlock()
			select {
			case <-c.resumeCh:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		gen := c.gen
		c.mu.Unlock()

		err := s.Read()

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if c.suspended || c.gen != gen {
			// read overlapped a Suspend
			c.mu.Unlock()
			continue
		}
		if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			c.running = false
			c.mu.Unlock()
			c.fail(fmt.Errorf("audio read failed: %w", err))
			return
		}
		if err != nil {
			c.logger.Debug("input overflowed")
		}

		samples := make([]float32, len(buf))
		copy(samples, buf)
		frame := Frame{Seq: c.seq, Samples: samples, At: c.now()}
		c.seq++
		if !c.queue.Push(frame) {
			c.logger.Warn("frame queue full, frame dropped",
				"seq", frame.Seq,
				"dropped_total", c.queue.Dropped(),
			)
		}
		c.mu.Unlock()
	}
}

func (c *Capture) fail(err error) {
	c.logger.Error("audio capture failed", "error", err)
	select {
	case c.errCh <- err:
	default:
	}
}

// Suspend pauses the input device. No frame is enqueued after it returns.
func (c *Capture) Suspend() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.suspended {
		c.mu.Unlock()
		return nil
	}
	c.suspended = true
	c.gen++
	s := c.stream
	c.mu.Unlock()

	if s != nil {
		if err := s.Stop(); err != nil {
			// an in-flight read may already have stopped the stream
			c.logger.Debug("stream stop failed", "error", err)
		}
	}
	return nil
}

// Resume restarts the input device after Suspend
func (c *Capture) Resume() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.suspended {
		c.mu.Unlock()
		return nil
	}
	s := c.stream
	if s != nil {
		if err := s.Start(); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to restart audio stream: %w", err)
		}
	}
	c.suspended = false
	c.mu.Unlock()

	select {
	case c.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Flush discards every queued frame
func (c *Capture) Flush() int {
	return c.queue.Flush()
}

// Frames returns the frame queue
func (c *Capture) Frames() *FrameQueue {
	return c.queue
}

// Err returns the channel that receives a fatal capture error
func (c *Capture) Err() <-chan error {
	return c.errCh
}

// IsSuspended reports whether capture is paused
func (c *Capture) IsSuspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Close stops the stream and releases PortAudio
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.running = false
	close(c.done)
	s := c.stream
	c.stream = nil
	c.mu.Unlock()

	var errs []error
	if s != nil {
		if err := s.Stop(); err != nil {
			c.logger.Debug("stream stop failed", "error", err)
		}
	}
	c.wg.Wait()
	if s != nil {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audio stream: %w", err))
		}
	}
	if c.paInit {
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate PortAudio: %w", err))
		}
		c.paInit = false
	}
	return errors.Join(errs...)
}

// DeviceInfo holds information about an audio device
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListInputDevices returns a list of available input devices
func ListInputDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	defaultInput, _ := portaudio.DefaultInputDevice()
	var defaultInputName string
	if defaultInput != nil {
		defaultInputName = defaultInput.Name
	}

	var inputDevices []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, DeviceInfo{
				Name:              dev.Name,
				MaxInputChannels:  dev.MaxInputChannels,
				DefaultSampleRate: dev.DefaultSampleRate,
				IsDefault:         dev.Name == defaultInputName,
			})
		}
	}

	return inputDevices, nil
}
