package listener

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msto63/voicelistener/internal/listener/vad"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.FrameSize() != 1600 {
		t.Errorf("FrameSize() = %d, want 1600", cfg.FrameSize())
	}
	if cfg.SilenceThreshold.Duration != 1800*time.Millisecond {
		t.Errorf("SilenceThreshold = %v", cfg.SilenceThreshold)
	}
	if cfg.MaxInteraction.Duration != 12*time.Second {
		t.Errorf("MaxInteraction = %v", cfg.MaxInteraction)
	}
	if cfg.Agent.Timeout.Duration != 300*time.Second {
		t.Errorf("Agent.Timeout = %v", cfg.Agent.Timeout)
	}
	if cfg.Agent.SessionKey != "agent:main:voice" || cfg.Agent.AgentID != "main" {
		t.Errorf("agent identifiers = %q %q", cfg.Agent.AgentID, cfg.Agent.SessionKey)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 0
	cfg.SilenceThreshold.Duration = 0
	cfg.VAD.Engine = "magic"
	cfg.Agent.URL = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, field := range []string{"sample_rate", "silence_threshold", "vad.engine", "agent.url"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicelistener.toml")
	data := `
silence_threshold = "2.5s"
max_interaction = 20

[vad]
engine = "energy"
threshold = 0.02

[agent]
url = "http://agent.local:9527/v1"
timeout = "1m"

[phrases]
wake_ack = "在的"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SilenceThreshold.Duration != 2500*time.Millisecond {
		t.Errorf("SilenceThreshold = %v, want 2.5s", cfg.SilenceThreshold)
	}
	if cfg.MaxInteraction.Duration != 20*time.Second {
		t.Errorf("MaxInteraction = %v, want 20s", cfg.MaxInteraction)
	}
	if cfg.VAD.Engine != "energy" || cfg.VAD.Threshold != 0.02 {
		t.Errorf("VAD = %+v", cfg.VAD)
	}
	if cfg.Agent.URL != "http://agent.local:9527/v1" || cfg.Agent.Timeout.Duration != time.Minute {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Phrases.WakeAck != "在的" {
		t.Errorf("WakeAck = %q", cfg.Phrases.WakeAck)
	}
	// untouched keys keep their defaults
	if cfg.Phrases.CaptureAck != "Got it" || cfg.SampleRate != 16000 {
		t.Errorf("defaults lost: %q %d", cfg.Phrases.CaptureAck, cfg.SampleRate)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicelistener.yaml")
	data := "stt:\n  engine: openai\n  base_url: http://localhost:8000/v1\ntts:\n  voice: Tingting\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.STT.Engine != "openai" || cfg.STT.BaseURL != "http://localhost:8000/v1" {
		t.Errorf("STT = %+v", cfg.STT)
	}
	if cfg.TTS.Voice != "Tingting" {
		t.Errorf("TTS.Voice = %q", cfg.TTS.Voice)
	}
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicelistener.toml")
	if err := os.WriteFile(path, []byte("silense_threshold = \"2s\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() accepted a misspelled key")
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("VOICELISTENER_SILENCE_THRESHOLD", "1s")
	t.Setenv("VOICELISTENER_AGENT_API_KEY", "secret")
	t.Setenv("VOICELISTENER_DISPATCH_WORKERS", "2")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.SilenceThreshold.Duration != time.Second {
		t.Errorf("SilenceThreshold = %v, want 1s", cfg.SilenceThreshold)
	}
	if cfg.Agent.APIKey != "secret" {
		t.Errorf("Agent.APIKey = %q", cfg.Agent.APIKey)
	}
	if cfg.DispatchWorkers != 2 {
		t.Errorf("DispatchWorkers = %d, want 2", cfg.DispatchWorkers)
	}
}

func TestConfig_ApplyEnvInvalid(t *testing.T) {
	t.Setenv("VOICELISTENER_QUEUE_FRAMES", "many")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil {
		t.Error("ApplyEnv() error = nil for non-numeric value")
	}
}

func TestDefaultConfig_EnergyVADHearsSpeech(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VAD.Engine = vad.EngineEnergy

	d, err := vad.New(cfg.vadConfig())
	if err != nil {
		t.Fatalf("vad.New() error = %v", err)
	}
	defer d.Close()

	// 220 Hz at amplitude 0.2, rms about 0.14
	tone := make([]float32, cfg.FrameSize())
	for i := range tone {
		tone[i] = float32(0.2 * math.Sin(2*math.Pi*220*float64(i)/float64(cfg.SampleRate)))
	}
	if err := d.AcceptFrame(tone); err != nil {
		t.Fatal(err)
	}
	if !d.IsSpeechActive() {
		t.Error("energy VAD built from DefaultConfig() classified speech as silence")
	}

	if err := d.AcceptFrame(make([]float32, cfg.FrameSize())); err != nil {
		t.Fatal(err)
	}
	if d.IsSpeechActive() {
		t.Error("energy VAD classified silence as speech")
	}
}
