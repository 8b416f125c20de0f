package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/msto63/voicelistener/internal/listener/audio"
	"github.com/msto63/voicelistener/internal/listener/dispatch"
)

const (
	wakeMarker   = 0.9
	speechMarker = 0.5
)

var errDetector = errors.New("classifier hiccup")

// manualClock only moves when told to
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// steppingClock advances by step on every reading
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// markerVAD reports speech for frames whose first sample is >= speechMarker
type markerVAD struct {
	mu     sync.Mutex
	speech bool
	err    error
	calls  int
}

func (v *markerVAD) AcceptFrame(samples []float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		v.speech = false
		return v.err
	}
	v.speech = len(samples) > 0 && samples[0] >= speechMarker
	return nil
}

func (v *markerVAD) IsSpeechActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speech
}

func (v *markerVAD) Reset()       {}
func (v *markerVAD) Close() error { return nil }

// markerSpotter reports result for frames whose first sample is wakeMarker.
// Results stay pending until taken or the stream is reset.
type markerSpotter struct {
	mu        sync.Mutex
	result    string
	pending   bool
	decoded   bool
	accepted  int
	resets    int
	acceptErr error
	decodeErr error
}

func (s *markerSpotter) AcceptFrame(sampleRate int, samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted++
	if s.acceptErr != nil {
		return s.acceptErr
	}
	if len(samples) > 0 && samples[0] == wakeMarker {
		s.pending = true
	}
	return nil
}

func (s *markerSpotter) HasPendingResult() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *markerSpotter) DecodeNext() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decodeErr != nil {
		return s.decodeErr
	}
	s.pending = false
	s.decoded = true
	return nil
}

func (s *markerSpotter) TakeResult() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.decoded {
		return "", false
	}
	s.decoded = false
	return s.result, true
}

func (s *markerSpotter) ResetStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.pending = false
	s.decoded = false
	return nil
}

func (s *markerSpotter) Close() error { return nil }

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (r *recordingSpeaker) Speak(text string) {
	r.mu.Lock()
	r.spoken = append(r.spoken, text)
	r.mu.Unlock()
}

func (r *recordingSpeaker) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.spoken...)
}

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []dispatch.Job
}

func (r *recordingSubmitter) Submit(job dispatch.Job) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// fakeSource is an audio.Source fed by the test
type fakeSource struct {
	mu        sync.Mutex
	queue     *audio.FrameQueue
	errCh     chan error
	suspended bool
	seq       uint64
	started   bool
	closed    bool
	suspends  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{queue: audio.NewFrameQueue(100), errCh: make(chan error, 1)}
}

func (s *fakeSource) Start(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Suspend() error {
	s.mu.Lock()
	s.suspended = true
	s.suspends++
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Resume() error {
	s.mu.Lock()
	s.suspended = false
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Flush() int                { return s.queue.Flush() }
func (s *fakeSource) Frames() *audio.FrameQueue { return s.queue }
func (s *fakeSource) Err() <-chan error         { return s.errCh }

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// push enqueues a frame filled with value unless capture is suspended
func (s *fakeSource) push(value float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suspended {
		return false
	}
	s.seq++
	return s.queue.Push(frame(s.seq, value))
}

func frame(seq uint64, value float32) audio.Frame {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = value
	}
	return audio.Frame{Seq: seq, Samples: samples}
}
