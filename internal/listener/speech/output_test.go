package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeInput struct {
	log       *eventLog
	queued    int
	resumeErr error
}

func (f *fakeInput) Suspend() error { f.log.add("suspend"); return nil }
func (f *fakeInput) Resume() error  { f.log.add("resume"); return f.resumeErr }
func (f *fakeInput) Flush() int {
	f.log.add("flush")
	n := f.queued
	f.queued = 0
	return n
}

type fakeRenderer struct {
	log     *eventLog
	err     error
	delay   time.Duration
	block   chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
	closed  bool
}

func (r *fakeRenderer) Speak(ctx context.Context, text string) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	r.log.add("render:" + text)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.err
}

func (r *fakeRenderer) Close() error { r.closed = true; return nil }

func TestSpeakAndWait_Order(t *testing.T) {
	log := &eventLog{}
	in := &fakeInput{log: log, queued: 3}
	out := New(in, &fakeRenderer{log: log})

	if err := out.SpeakAndWait(context.Background(), "Got it"); err != nil {
		t.Fatalf("SpeakAndWait() error = %v", err)
	}

	want := "suspend,flush,render:Got it,resume"
	if got := strings.Join(log.snapshot(), ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
	if in.queued != 0 {
		t.Errorf("queued frames after speaking = %d, want 0", in.queued)
	}
}

func TestSpeakAndWait_ResumesAfterRenderError(t *testing.T) {
	log := &eventLog{}
	renderErr := errors.New("no audio device")
	out := New(&fakeInput{log: log}, &fakeRenderer{log: log, err: renderErr})

	err := out.SpeakAndWait(context.Background(), "hello")
	if !errors.Is(err, renderErr) {
		t.Errorf("SpeakAndWait() error = %v, want %v", err, renderErr)
	}
	events := log.snapshot()
	if events[len(events)-1] != "resume" {
		t.Errorf("last event = %s, want resume", events[len(events)-1])
	}
}

func TestSpeakAndWait_ResumeErrorReported(t *testing.T) {
	log := &eventLog{}
	out := New(&fakeInput{log: log, resumeErr: errors.New("device gone")}, &fakeRenderer{log: log})

	if err := out.SpeakAndWait(context.Background(), "hello"); err == nil {
		t.Error("SpeakAndWait() error = nil, want resume failure")
	}
}

func TestSpeakAndWait_SkipsUnspeakable(t *testing.T) {
	log := &eventLog{}
	out := New(&fakeInput{log: log}, &fakeRenderer{log: log})

	if err := out.SpeakAndWait(context.Background(), "🎉 ✅"); err != nil {
		t.Fatalf("SpeakAndWait() error = %v", err)
	}
	if events := log.snapshot(); len(events) != 0 {
		t.Errorf("events = %v, want none", events)
	}
}

func TestSpeak_DoesNotBlock(t *testing.T) {
	log := &eventLog{}
	r := &fakeRenderer{log: log, block: make(chan struct{})}
	out := New(&fakeInput{log: log}, r)

	done := make(chan struct{})
	go func() {
		out.Speak("first")
		out.Speak("second")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Speak() blocked while rendering")
	}

	close(r.block)
	out.Wait()

	if got := len(log.snapshot()); got != 8 {
		t.Errorf("event count = %d, want 8", got)
	}
}

func TestSpeak_Serialized(t *testing.T) {
	log := &eventLog{}
	r := &fakeRenderer{log: log, delay: 5 * time.Millisecond}
	out := New(&fakeInput{log: log}, r)

	for i := 0; i < 10; i++ {
		out.Speak("utterance")
	}
	out.Wait()

	if got := r.maxSeen.Load(); got != 1 {
		t.Errorf("concurrent renders = %d, want 1", got)
	}

	// every render is bracketed by its own suspend/flush and resume
	events := log.snapshot()
	if len(events) != 40 {
		t.Fatalf("event count = %d, want 40", len(events))
	}
	for i := 0; i < len(events); i += 4 {
		got := strings.Join(events[i:i+4], ",")
		if got != "suspend,flush,render:utterance,resume" {
			t.Errorf("events[%d:%d] = %s", i, i+4, got)
		}
	}
}

func TestSpeak_RendersInCallOrder(t *testing.T) {
	log := &eventLog{}
	r := &fakeRenderer{log: log, block: make(chan struct{})}
	out := New(&fakeInput{log: log}, r)

	want := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		text := fmt.Sprintf("reply %d", i)
		want = append(want, "render:"+text)
		out.Speak(text)
	}
	close(r.block)
	out.Wait()

	var got []string
	for _, e := range log.snapshot() {
		if strings.HasPrefix(e, "render:") {
			got = append(got, e)
		}
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("render order = %v, want %v", got, want)
	}
}

func TestClose_DropsQueued(t *testing.T) {
	log := &eventLog{}
	r := &fakeRenderer{log: log, block: make(chan struct{})}
	out := New(&fakeInput{log: log}, r)

	out.Speak("one")
	out.Speak("two")
	out.Speak("three")
	out.Close()
	out.Speak("four")

	for _, e := range log.snapshot() {
		if e == "render:three" || e == "render:four" {
			t.Errorf("rendered %s after Close", e)
		}
	}
}

func TestSpeakAndWait_Rendering(t *testing.T) {
	log := &eventLog{}
	r := &fakeRenderer{log: log, block: make(chan struct{})}
	out := New(&fakeInput{log: log}, r)

	out.Speak("hello")
	deadline := time.Now().Add(time.Second)
	for !out.Rendering() {
		if time.Now().After(deadline) {
			t.Fatal("Rendering() never became true")
		}
		time.Sleep(time.Millisecond)
	}

	close(r.block)
	out.Wait()
	if out.Rendering() {
		t.Error("Rendering() = true after Wait")
	}
}

func TestClose_CancelsPending(t *testing.T) {
	log := &eventLog{}
	r := &fakeRenderer{log: log, block: make(chan struct{})}
	out := New(&fakeInput{log: log}, r)

	out.Speak("one")
	out.Speak("two")

	done := make(chan struct{})
	go func() {
		out.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}
	if !r.closed {
		t.Error("renderer not closed")
	}

	// capture is resumed even when rendering is cancelled
	events := log.snapshot()
	suspends, resumes := 0, 0
	for _, e := range events {
		switch e {
		case "suspend":
			suspends++
		case "resume":
			resumes++
		}
	}
	if suspends != resumes {
		t.Errorf("suspend/resume = %d/%d, want balanced", suspends, resumes)
	}
}
