package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/msto63/voicelistener/internal/listener/agent"
	"github.com/msto63/voicelistener/internal/listener/audio"
	"github.com/msto63/voicelistener/internal/listener/encoder"
)

type fakeTranscriber struct {
	text  string
	err   error
	panic bool

	calls    int
	sawRate  int
	lastPath string
}

func (f *fakeTranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	f.calls++
	f.lastPath = path
	if f.panic {
		panic("decoder exploded")
	}
	if d, err := encoder.ReadFile(path); err == nil {
		f.sawRate = d.SampleRate
	}
	return f.text, f.err
}

type fakeAgent struct {
	reply string
	err   error
	calls int
	got   string
}

func (f *fakeAgent) Send(ctx context.Context, transcript string) (string, error) {
	f.calls++
	f.got = transcript
	return f.reply, f.err
}

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSpeaker) Speak(text string) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
}

func (s *recordingSpeaker) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func testJob(n int) Job {
	frames := make([]audio.Frame, n)
	for i := range frames {
		samples := make([]float32, 1600)
		for j := range samples {
			samples[j] = 0.1
		}
		frames[i] = audio.Frame{Seq: uint64(i), Samples: samples}
	}
	return Job{SessionID: fmt.Sprintf("s%d", n), Frames: frames, SampleRate: 16000, Reason: "silence"}
}

func TestPipeline_Outcomes(t *testing.T) {
	phrases := DefaultPhrases()

	tests := []struct {
		name        string
		job         Job
		transcriber *fakeTranscriber
		agent       *fakeAgent
		wantOutcome Outcome
		wantSpoken  []string
		wantAgent   int
	}{
		{
			name:        "reply",
			job:         testJob(10),
			transcriber: &fakeTranscriber{text: " turn on the light "},
			agent:       &fakeAgent{reply: "<think>plan</think><final>Light is on.</final>"},
			wantOutcome: OutcomeOK,
			wantSpoken:  []string{"Light is on."},
			wantAgent:   1,
		},
		{
			name:        "empty transcript",
			job:         testJob(10),
			transcriber: &fakeTranscriber{text: "  "},
			agent:       &fakeAgent{reply: "unused"},
			wantOutcome: OutcomeNotUnderstood,
			wantSpoken:  []string{phrases.NotUnderstood},
			wantAgent:   0,
		},
		{
			name:        "transcription error",
			job:         testJob(10),
			transcriber: &fakeTranscriber{err: errors.New("whisper crashed")},
			agent:       &fakeAgent{},
			wantOutcome: OutcomeTranscriptionError,
			wantSpoken:  []string{phrases.Error},
			wantAgent:   0,
		},
		{
			name:        "transcription timed out",
			job:         testJob(10),
			transcriber: &fakeTranscriber{err: fmt.Errorf("whisper interrupted: %w", context.DeadlineExceeded)},
			agent:       &fakeAgent{},
			wantOutcome: OutcomeTranscriptionError,
			wantSpoken:  []string{phrases.Error},
			wantAgent:   0,
		},
		{
			name:        "transcriber panic",
			job:         testJob(10),
			transcriber: &fakeTranscriber{panic: true},
			agent:       &fakeAgent{},
			wantOutcome: OutcomeTranscriptionError,
			wantSpoken:  []string{phrases.Error},
			wantAgent:   0,
		},
		{
			name:        "agent timeout",
			job:         testJob(10),
			transcriber: &fakeTranscriber{text: "take a screenshot"},
			agent:       &fakeAgent{err: fmt.Errorf("%w after 300s", agent.ErrTimeout)},
			wantOutcome: OutcomeTimeout,
			wantSpoken:  []string{phrases.Timeout},
			wantAgent:   1,
		},
		{
			name:        "agent status",
			job:         testJob(10),
			transcriber: &fakeTranscriber{text: "take a screenshot"},
			agent:       &fakeAgent{err: &agent.StatusError{Code: 502}},
			wantOutcome: OutcomeAgentError,
			wantSpoken:  []string{phrases.Error},
			wantAgent:   1,
		},
		{
			name:        "reply empty after cleanup",
			job:         testJob(10),
			transcriber: &fakeTranscriber{text: "mute"},
			agent:       &fakeAgent{reply: "<think>nothing to say</think>"},
			wantOutcome: OutcomeEmptyReply,
			wantSpoken:  []string{phrases.Done},
			wantAgent:   1,
		},
		{
			name:        "encode error",
			job:         testJob(0),
			transcriber: &fakeTranscriber{text: "unused"},
			agent:       &fakeAgent{},
			wantOutcome: OutcomeEncodeError,
			wantSpoken:  nil,
			wantAgent:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speaker := &recordingSpeaker{}
			p := NewPipeline(PipelineConfig{ArtifactDir: t.TempDir(), Phrases: phrases},
				tt.transcriber, tt.agent, speaker, nil, nil)

			rec := p.Run(context.Background(), tt.job)

			if rec.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v (err %v)", rec.Outcome, tt.wantOutcome, rec.Err)
			}
			got := speaker.all()
			if len(got) != len(tt.wantSpoken) {
				t.Fatalf("spoken = %q, want %q", got, tt.wantSpoken)
			}
			for i := range got {
				if got[i] != tt.wantSpoken[i] {
					t.Errorf("spoken[%d] = %q, want %q", i, got[i], tt.wantSpoken[i])
				}
			}
			if tt.agent.calls != tt.wantAgent {
				t.Errorf("agent calls = %d, want %d", tt.agent.calls, tt.wantAgent)
			}
			if rec.Outcome.Failed() && rec.Outcome != OutcomeNotUnderstood && rec.Error == "" {
				t.Error("failed record has no error text")
			}
		})
	}
}

func TestPipeline_Artifact(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscriber{text: "hello"}
	p := NewPipeline(PipelineConfig{ArtifactDir: dir, Phrases: DefaultPhrases()},
		tr, &fakeAgent{reply: "hi"}, &recordingSpeaker{}, nil, nil)

	job := testJob(5)
	p.Run(context.Background(), job)

	if tr.lastPath != p.ArtifactPath(job.SessionID) {
		t.Errorf("transcribed %s, want %s", tr.lastPath, p.ArtifactPath(job.SessionID))
	}
	if tr.sawRate != 16000 {
		t.Errorf("artifact sample rate = %d, want 16000", tr.sawRate)
	}
	if _, err := os.Stat(tr.lastPath); !os.IsNotExist(err) {
		t.Error("artifact not removed after transcription")
	}
}

func TestPipeline_KeepArtifacts(t *testing.T) {
	tr := &fakeTranscriber{text: "hello"}
	p := NewPipeline(PipelineConfig{ArtifactDir: t.TempDir(), KeepArtifacts: true, Phrases: DefaultPhrases()},
		tr, &fakeAgent{reply: "hi"}, &recordingSpeaker{}, nil, nil)

	p.Run(context.Background(), testJob(3))

	if _, err := os.Stat(tr.lastPath); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestPipeline_CancelledStaysSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	speaker := &recordingSpeaker{}
	p := NewPipeline(PipelineConfig{ArtifactDir: t.TempDir(), Phrases: DefaultPhrases()},
		&fakeTranscriber{text: "hello"}, &fakeAgent{err: context.Canceled}, speaker, nil, nil)

	rec := p.Run(ctx, testJob(3))
	if rec.Outcome != OutcomeAgentError {
		t.Errorf("Outcome = %v, want %v", rec.Outcome, OutcomeAgentError)
	}
	if got := speaker.all(); len(got) != 0 {
		t.Errorf("spoken = %q, want nothing", got)
	}
}

func TestPipeline_Observers(t *testing.T) {
	var got []Record
	p := NewPipeline(PipelineConfig{ArtifactDir: t.TempDir(), Phrases: DefaultPhrases()},
		&fakeTranscriber{text: "hello"}, &fakeAgent{reply: "hi"}, &recordingSpeaker{}, nil, nil)
	p.AddObserver(ObserverFunc(func(r Record) { got = append(got, r) }))

	rec := p.Run(context.Background(), testJob(3))

	if len(got) != 1 {
		t.Fatalf("observed %d records, want 1", len(got))
	}
	if got[0].ID != rec.ID || got[0].Transcript != "hello" || got[0].Spoken != "hi" {
		t.Errorf("observed %+v", got[0])
	}
}

func TestPipeline_AgentTimeoutOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := agent.New(agent.Config{URL: srv.URL + "/v1", Model: "openclaw", Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	speaker := &recordingSpeaker{}
	phrases := DefaultPhrases()
	p := NewPipeline(PipelineConfig{ArtifactDir: t.TempDir(), Phrases: phrases},
		&fakeTranscriber{text: "take a screenshot"}, client, speaker, nil, nil)

	rec := p.Run(context.Background(), testJob(3))

	if rec.Outcome != OutcomeTimeout {
		t.Errorf("Outcome = %v, want %v (err %v)", rec.Outcome, OutcomeTimeout, rec.Err)
	}
	if got := speaker.all(); len(got) != 1 || got[0] != phrases.Timeout {
		t.Errorf("spoken = %q, want [%q]", got, phrases.Timeout)
	}
}

func TestPhrases_For(t *testing.T) {
	p := DefaultPhrases()
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeOK, ""},
		{OutcomeEncodeError, ""},
		{OutcomeEmptyReply, p.Done},
		{OutcomeNotUnderstood, p.NotUnderstood},
		{OutcomeTimeout, p.Timeout},
		{OutcomeAgentError, p.Error},
		{OutcomeTranscriptionError, p.Error},
	}
	for _, tt := range tests {
		if got := p.For(tt.outcome); got != tt.want {
			t.Errorf("For(%v) = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}
