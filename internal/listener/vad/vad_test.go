package vad

import (
	"math"
	"testing"
)

func sine(n int, amp float64, freq, rate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func TestNew_UnknownEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = "psychic"
	if _, err := New(cfg); err == nil {
		t.Error("New() accepted unknown engine")
	}
}

func TestNew_SileroRequiresModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = EngineSilero
	if _, err := New(cfg); err == nil {
		t.Error("New() created silero without model path")
	}
}

func TestEnergy_Hysteresis(t *testing.T) {
	e := NewEnergy(Config{Threshold: 0.1})

	tests := []struct {
		name   string
		amp    float64
		active bool
	}{
		{"silence", 0, false},
		{"below start", 0.1, false}, // rms = amp/sqrt(2)
		{"loud", 0.5, true},
		{"between stop and start", 0.1, true},
		{"quiet", 0.02, false},
	}

	for _, tt := range tests {
		if err := e.AcceptFrame(sine(1600, tt.amp, 440, 16000)); err != nil {
			t.Fatalf("%s: AcceptFrame() error = %v", tt.name, err)
		}
		if got := e.IsSpeechActive(); got != tt.active {
			t.Errorf("%s: IsSpeechActive() = %v, want %v", tt.name, got, tt.active)
		}
	}

	e.AcceptFrame(sine(1600, 0.5, 440, 16000))
	e.Reset()
	if e.IsSpeechActive() {
		t.Error("IsSpeechActive() = true after Reset")
	}
}

func TestEnergy_DefaultThreshold(t *testing.T) {
	e := NewEnergy(Config{})
	if e.start != defaultEnergyThreshold {
		t.Errorf("start = %v, want %v", e.start, defaultEnergyThreshold)
	}
}

func TestDefaultConfig_EnergyDetectsSpeech(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine = EngineEnergy
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// normal speech level, rms about 0.14
	if err := d.AcceptFrame(sine(1600, 0.2, 220, 16000)); err != nil {
		t.Fatal(err)
	}
	if !d.IsSpeechActive() {
		t.Error("IsSpeechActive() = false for a 0.14 rms tone with the default threshold")
	}
}

func TestNewWebRTC_InvalidRate(t *testing.T) {
	if _, err := NewWebRTC(Config{SampleRate: 22050}); err == nil {
		t.Error("NewWebRTC() accepted 22050 Hz")
	}
}

func TestWebRTC_SilenceAndPartialFrames(t *testing.T) {
	w, err := NewWebRTC(Config{SampleRate: 16000, Mode: 3})
	if err != nil {
		t.Fatalf("NewWebRTC() error = %v", err)
	}
	defer w.Close()

	// 250 samples = one 10ms sub-frame plus 90 pending samples
	if err := w.AcceptFrame(make([]float32, 250)); err != nil {
		t.Fatalf("AcceptFrame() error = %v", err)
	}
	if w.IsSpeechActive() {
		t.Error("digital silence classified as speech")
	}
	if len(w.pending) != 90 {
		t.Errorf("pending = %d, want 90", len(w.pending))
	}

	w.Reset()
	if len(w.pending) != 0 || w.IsSpeechActive() {
		t.Error("Reset() did not clear state")
	}
}

func TestClampMode(t *testing.T) {
	for in, want := range map[int]int{-1: 0, 0: 0, 2: 2, 3: 3, 9: 3} {
		if got := clampMode(in); got != want {
			t.Errorf("clampMode(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestFloatsToInt16_Clamps(t *testing.T) {
	got := floatsToInt16([]float32{0, 1, -1, 3, -3})
	want := []int16{0, 32767, -32767, 32767, -32767}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("floatsToInt16[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
