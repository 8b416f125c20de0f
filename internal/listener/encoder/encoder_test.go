package encoder

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/msto63/voicelistener/internal/listener/audio"
)

func makeFrames(n, size int, value float32) []audio.Frame {
	frames := make([]audio.Frame, n)
	for i := range frames {
		samples := make([]float32, size)
		for j := range samples {
			samples[j] = value
		}
		frames[i] = audio.Frame{Seq: uint64(i), Samples: samples}
	}
	return frames
}

func TestWriteFile_RoundTripDuration(t *testing.T) {
	const (
		sampleRate = 16000
		frameSize  = 1600 // 100ms
	)
	frameDur := 100 * time.Millisecond

	tests := []int{1, 7, 38, 120}
	for _, n := range tests {
		path := filepath.Join(t.TempDir(), "utt.wav")
		if err := WriteFile(path, sampleRate, makeFrames(n, frameSize, 0.25)); err != nil {
			t.Fatalf("WriteFile(%d frames) error = %v", n, err)
		}

		dec, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if dec.SampleRate != sampleRate {
			t.Errorf("SampleRate = %d, want %d", dec.SampleRate, sampleRate)
		}
		if dec.Channels != 1 {
			t.Errorf("Channels = %d, want 1", dec.Channels)
		}

		want := float64(n) * frameDur.Seconds()
		if diff := math.Abs(dec.Duration() - want); diff > frameDur.Seconds() {
			t.Errorf("n=%d: duration = %v, want %v +- one frame", n, dec.Duration(), want)
		}
	}
}

func TestWriteFile_SampleValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vals.wav")
	frames := []audio.Frame{{Samples: []float32{0, 0.5, -0.5, 2, -2}}}

	if err := WriteFile(path, 8000, frames); err != nil {
		t.Fatal(err)
	}
	dec, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1}
	if len(dec.Samples) != len(want) {
		t.Fatalf("samples = %d, want %d", len(dec.Samples), len(want))
	}
	for i := range want {
		if dec.Samples[i] != want[i] {
			t.Errorf("sample[%d] = %v, want %v", i, dec.Samples[i], want[i])
		}
	}
}

func TestWriteFile_EmptyLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")

	err := WriteFile(path, 16000, nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("WriteFile() error = %v, want ErrEmpty", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("partial artifact left on disk")
	}
}

func TestWriteFile_InvalidRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := WriteFile(path, 0, makeFrames(1, 10, 0)); err == nil {
		t.Error("WriteFile() with sample rate 0 returned nil")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("partial artifact left on disk")
	}
}

func TestReadFile_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.wav")
	if err := os.WriteFile(path, []byte("definitely not riff"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("ReadFile() of garbage returned nil error")
	}
}
