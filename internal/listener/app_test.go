package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/msto63/voicelistener/internal/listener/dispatch"
	"github.com/msto63/voicelistener/pkg/core/health"
	"github.com/msto63/voicelistener/pkg/core/logging"
)

type scriptedTranscriber struct {
	text string
}

func (s *scriptedTranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	return s.text, nil
}

type scriptedAgent struct {
	mu    sync.Mutex
	reply string
	got   []string
}

func (a *scriptedAgent) Send(ctx context.Context, transcript string) (string, error) {
	a.mu.Lock()
	a.got = append(a.got, transcript)
	a.mu.Unlock()
	return a.reply, nil
}

type recordingRenderer struct {
	mu     sync.Mutex
	spoken []string
}

func (r *recordingRenderer) Speak(ctx context.Context, text string) error {
	r.mu.Lock()
	r.spoken = append(r.spoken, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingRenderer) Close() error { return nil }

func (r *recordingRenderer) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.spoken...)
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.ArtifactDir = t.TempDir()
	cfg.FrameDuration.Duration = 10 * time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, source *fakeSource, renderer *recordingRenderer, ag *scriptedAgent) *App {
	t.Helper()
	app, err := New(testConfig(t), Dependencies{
		Source:      source,
		VAD:         &markerVAD{},
		Spotter:     &markerSpotter{result: "hey_listener"},
		Transcriber: &scriptedTranscriber{text: "turn on the light"},
		Agent:       ag,
		Renderer:    renderer,
		Clock:       &steppingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: 100 * time.Millisecond},
		Logger:      logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return app
}

func TestApp_EndToEnd(t *testing.T) {
	source := newFakeSource()
	renderer := &recordingRenderer{}
	ag := &scriptedAgent{reply: "<think>ok</think>The light is on."}
	app := newTestApp(t, source, renderer, ag)

	records := make(chan dispatch.Record, 4)
	app.Pipeline().AddObserver(dispatch.ObserverFunc(func(r dispatch.Record) { records <- r }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	// the producer keeps talking like a microphone; frames pushed while
	// speech output runs are rejected or flushed
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for ctx.Err() == nil {
			<-ticker.C
			if app.Machine().Mode() == ModeStandby {
				source.push(wakeMarker)
			} else {
				source.push(0)
			}
		}
	}()

	var rec dispatch.Record
	select {
	case rec = <-records:
	case <-time.After(5 * time.Second):
		t.Fatal("no dispatch completed")
	}
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if rec.Outcome != dispatch.OutcomeOK || rec.Transcript != "turn on the light" {
		t.Errorf("record = %+v", rec)
	}

	spoken := renderer.all()
	phrases := dispatch.DefaultPhrases()
	for _, want := range []string{phrases.WakeAck, phrases.CaptureAck, "The light is on."} {
		found := false
		for _, s := range spoken {
			if s == want {
				found = true
			}
		}
		if !found {
			t.Errorf("spoken = %q, missing %q", spoken, want)
		}
	}
	source.mu.Lock()
	suspends := source.suspends
	source.mu.Unlock()
	if suspends < 3 {
		t.Errorf("capture suspended %d times, want at least 3", suspends)
	}
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !source.closed {
		t.Error("source not closed")
	}
}

func TestApp_CaptureFailureIsFatal(t *testing.T) {
	source := newFakeSource()
	app := newTestApp(t, source, &recordingRenderer{}, &scriptedAgent{})

	deviceErr := errors.New("device unplugged")
	source.errCh <- deviceErr

	err := app.Run(context.Background())
	if !errors.Is(err, deviceErr) {
		t.Errorf("Run() error = %v, want %v", err, deviceErr)
	}
}

func TestApp_RunTwice(t *testing.T) {
	source := newFakeSource()
	app := newTestApp(t, source, &recordingRenderer{}, &scriptedAgent{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		source.mu.Lock()
		started := source.started
		source.mu.Unlock()
		if started || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := app.Run(ctx); err == nil {
		t.Error("second Run() error = nil")
	}
	cancel()
	<-done
}

func TestNew_MissingDependency(t *testing.T) {
	if _, err := New(testConfig(t), Dependencies{Source: newFakeSource()}); err == nil {
		t.Error("New() error = nil with missing dependencies")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxInteraction.Duration = -time.Second
	_, err := New(cfg, Dependencies{})
	if err == nil {
		t.Error("New() error = nil for invalid config")
	}
}

func TestApp_CaptureCheck(t *testing.T) {
	source := newFakeSource()
	app := newTestApp(t, source, &recordingRenderer{}, &scriptedAgent{})
	check := app.CaptureCheck(50 * time.Millisecond)

	if res := check.Check(context.Background()); res.Status != health.StatusUnknown {
		t.Errorf("before Run: Status = %v, want %v", res.Status, health.StatusUnknown)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for app.lastFrame.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no frame consumed")
		}
		source.push(0)
		time.Sleep(5 * time.Millisecond)
	}
	if res := check.Check(context.Background()); res.Status != health.StatusHealthy {
		t.Errorf("after frame: Status = %v, want %v", res.Status, health.StatusHealthy)
	}

	time.Sleep(100 * time.Millisecond)
	res := check.Check(context.Background())
	if res.Status != health.StatusUnhealthy {
		t.Errorf("after stall: Status = %v, want %v", res.Status, health.StatusUnhealthy)
	}
	if res.Details["mode"] != "STANDBY" {
		t.Errorf("mode = %v, want STANDBY", res.Details["mode"])
	}
}
