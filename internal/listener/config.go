package listener

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/msto63/voicelistener/internal/listener/agent"
	"github.com/msto63/voicelistener/internal/listener/audio"
	"github.com/msto63/voicelistener/internal/listener/dispatch"
	"github.com/msto63/voicelistener/internal/listener/stt"
	"github.com/msto63/voicelistener/internal/listener/tts"
	"github.com/msto63/voicelistener/internal/listener/vad"
	"github.com/msto63/voicelistener/internal/listener/wakeword"
	"github.com/msto63/voicelistener/pkg/core/config"
	"github.com/msto63/voicelistener/pkg/core/logging"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "VOICELISTENER_"

// Config holds the listener configuration
type Config struct {
	// Audio
	SampleRate    int             `toml:"sample_rate" yaml:"sample_rate"`
	FrameDuration config.Duration `toml:"frame_duration" yaml:"frame_duration"`
	QueueFrames   int             `toml:"queue_frames" yaml:"queue_frames"`
	InputDevice   string          `toml:"input_device" yaml:"input_device"`

	// Endpointing
	SilenceThreshold config.Duration `toml:"silence_threshold" yaml:"silence_threshold"`
	MaxInteraction   config.Duration `toml:"max_interaction" yaml:"max_interaction"`

	// Dispatch
	ArtifactDir     string `toml:"artifact_dir" yaml:"artifact_dir"`
	KeepArtifacts   bool   `toml:"keep_artifacts" yaml:"keep_artifacts"`
	DispatchWorkers int    `toml:"dispatch_workers" yaml:"dispatch_workers"`

	VAD      VADConfig        `toml:"vad" yaml:"vad"`
	WakeWord WakeWordConfig   `toml:"wakeword" yaml:"wakeword"`
	STT      STTConfig        `toml:"stt" yaml:"stt"`
	Agent    AgentConfig      `toml:"agent" yaml:"agent"`
	TTS      TTSConfig        `toml:"tts" yaml:"tts"`
	Phrases  dispatch.Phrases `toml:"phrases" yaml:"phrases"`
	Monitor  MonitorConfig    `toml:"monitor" yaml:"monitor"`
	Journal  JournalConfig    `toml:"journal" yaml:"journal"`
	Log      LogConfig        `toml:"log" yaml:"log"`
}

// VADConfig selects and tunes the voice activity detector
type VADConfig struct {
	Engine     string          `toml:"engine" yaml:"engine"` // "webrtc", "silero", "energy"
	Mode       int             `toml:"mode" yaml:"mode"`
	Model      string          `toml:"model" yaml:"model"`
	Threshold  float32         `toml:"threshold" yaml:"threshold"` // 0 = engine default
	MinSilence config.Duration `toml:"min_silence" yaml:"min_silence"`
	MinSpeech  config.Duration `toml:"min_speech" yaml:"min_speech"`
	NumThreads int             `toml:"num_threads" yaml:"num_threads"`
	Provider   string          `toml:"provider" yaml:"provider"`
}

// WakeWordConfig configures keyword spotting
type WakeWordConfig struct {
	ModelDir          string  `toml:"model_dir" yaml:"model_dir"`
	KeywordsFile      string  `toml:"keywords_file" yaml:"keywords_file"`
	LexiconFile       string  `toml:"lexicon_file" yaml:"lexicon_file"`
	Threshold         float32 `toml:"threshold" yaml:"threshold"`
	Score             float32 `toml:"score" yaml:"score"`
	NumTrailingBlanks int     `toml:"num_trailing_blanks" yaml:"num_trailing_blanks"`
	NumThreads        int     `toml:"num_threads" yaml:"num_threads"`
	Provider          string  `toml:"provider" yaml:"provider"`
}

// STTConfig configures transcription
type STTConfig struct {
	Engine     string          `toml:"engine" yaml:"engine"` // "whisper-cli", "whisper-native", "openai"
	ModelPath  string          `toml:"model_path" yaml:"model_path"`
	Language   string          `toml:"language" yaml:"language"`
	BinaryPath string          `toml:"binary_path" yaml:"binary_path"`
	BaseURL    string          `toml:"base_url" yaml:"base_url"`
	APIKey     string          `toml:"api_key" yaml:"api_key"`
	Model      string          `toml:"model" yaml:"model"`
	Timeout    config.Duration `toml:"timeout" yaml:"timeout"`
}

// AgentConfig addresses the command-execution agent
type AgentConfig struct {
	URL          string          `toml:"url" yaml:"url"`
	APIKey       string          `toml:"api_key" yaml:"api_key"`
	AgentID      string          `toml:"agent_id" yaml:"agent_id"`
	SessionKey   string          `toml:"session_key" yaml:"session_key"`
	Model        string          `toml:"model" yaml:"model"`
	SystemPrompt string          `toml:"system_prompt" yaml:"system_prompt"`
	Timeout      config.Duration `toml:"timeout" yaml:"timeout"`
}

// TTSConfig configures speech rendering
type TTSConfig struct {
	Engine        string          `toml:"engine" yaml:"engine"` // "say", "piper"
	Voice         string          `toml:"voice" yaml:"voice"`
	Rate          int             `toml:"rate" yaml:"rate"`
	Binary        string          `toml:"binary" yaml:"binary"`
	PiperModel    string          `toml:"piper_model" yaml:"piper_model"`
	RenderTimeout config.Duration `toml:"render_timeout" yaml:"render_timeout"`
}

// MonitorConfig configures the HTTP monitor. An empty Addr disables it.
type MonitorConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// JournalConfig configures the dispatch journal. An empty Path disables it.
type JournalConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	vc := vad.DefaultConfig()
	wc := wakeword.DefaultConfig()
	sc := stt.DefaultConfig()
	ac := agent.DefaultConfig()
	tc := tts.DefaultConfig()

	return Config{
		// Audio
		SampleRate:    audio.DefaultSampleRate,
		FrameDuration: config.D(audio.DefaultFrameDuration),
		QueueFrames:   audio.DefaultQueueFrames,
		InputDevice:   "default",

		// Endpointing
		SilenceThreshold: config.D(1800 * time.Millisecond),
		MaxInteraction:   config.D(12 * time.Second),

		// Dispatch
		ArtifactDir:     os.TempDir(),
		DispatchWorkers: dispatch.DefaultWorkers,

		VAD: VADConfig{
			Engine:     vc.Engine,
			Mode:       vc.Mode,
			Threshold:  vc.Threshold,
			MinSilence: config.D(vc.MinSilenceDuration),
			MinSpeech:  config.D(vc.MinSpeechDuration),
			NumThreads: vc.NumThreads,
			Provider:   vc.Provider,
		},
		WakeWord: WakeWordConfig{
			Threshold:         wc.KeywordsThreshold,
			Score:             wc.KeywordsScore,
			NumTrailingBlanks: wc.NumTrailingBlanks,
			NumThreads:        wc.NumThreads,
			Provider:          wc.Provider,
		},
		STT: STTConfig{
			Engine:   sc.Engine,
			Language: sc.Language,
			Model:    sc.Model,
			Timeout:  config.D(sc.Timeout),
		},
		Agent: AgentConfig{
			URL:          ac.URL,
			AgentID:      ac.AgentID,
			SessionKey:   ac.SessionKey,
			Model:        ac.Model,
			SystemPrompt: ac.SystemPrompt,
			Timeout:      config.D(ac.Timeout),
		},
		TTS: TTSConfig{
			Engine:        tc.Engine,
			Voice:         tc.Voice,
			Rate:          tc.Rate,
			Binary:        tc.BinaryPath,
			RenderTimeout: config.D(5 * time.Minute),
		},
		Phrases: dispatch.DefaultPhrases(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads path over the defaults and applies environment overrides.
// An empty path searches the default locations and falls back to defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = config.Find(config.DefaultSearchPaths("voicelistener")...)
	}
	if path != "" {
		if err := config.Load(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from VOICELISTENER_* environment variables
func (c *Config) ApplyEnv() error {
	env := func(name string) string { return EnvPrefix + name }

	config.EnvString(env("INPUT_DEVICE"), &c.InputDevice)
	config.EnvString(env("ARTIFACT_DIR"), &c.ArtifactDir)
	config.EnvString(env("VAD_ENGINE"), &c.VAD.Engine)
	config.EnvString(env("VAD_MODEL"), &c.VAD.Model)
	config.EnvString(env("WAKEWORD_MODEL_DIR"), &c.WakeWord.ModelDir)
	config.EnvString(env("WAKEWORD_KEYWORDS_FILE"), &c.WakeWord.KeywordsFile)
	config.EnvString(env("WAKEWORD_LEXICON_FILE"), &c.WakeWord.LexiconFile)
	config.EnvString(env("STT_ENGINE"), &c.STT.Engine)
	config.EnvString(env("STT_MODEL_PATH"), &c.STT.ModelPath)
	config.EnvString(env("STT_LANGUAGE"), &c.STT.Language)
	config.EnvString(env("STT_BASE_URL"), &c.STT.BaseURL)
	config.EnvString(env("STT_API_KEY"), &c.STT.APIKey)
	config.EnvString(env("AGENT_URL"), &c.Agent.URL)
	config.EnvString(env("AGENT_API_KEY"), &c.Agent.APIKey)
	config.EnvString(env("AGENT_ID"), &c.Agent.AgentID)
	config.EnvString(env("AGENT_SESSION_KEY"), &c.Agent.SessionKey)
	config.EnvString(env("AGENT_MODEL"), &c.Agent.Model)
	config.EnvString(env("TTS_ENGINE"), &c.TTS.Engine)
	config.EnvString(env("TTS_VOICE"), &c.TTS.Voice)
	config.EnvString(env("MONITOR_ADDR"), &c.Monitor.Addr)
	config.EnvString(env("JOURNAL_PATH"), &c.Journal.Path)
	config.EnvString(env("LOG_LEVEL"), &c.Log.Level)
	config.EnvString(env("LOG_FORMAT"), &c.Log.Format)

	return errors.Join(
		config.EnvInt(env("SAMPLE_RATE"), &c.SampleRate),
		config.EnvInt(env("QUEUE_FRAMES"), &c.QueueFrames),
		config.EnvInt(env("DISPATCH_WORKERS"), &c.DispatchWorkers),
		config.EnvInt(env("TTS_RATE"), &c.TTS.Rate),
		config.EnvFloat(env("WAKEWORD_THRESHOLD"), &c.WakeWord.Threshold),
		config.EnvFloat(env("VAD_THRESHOLD"), &c.VAD.Threshold),
		config.EnvDuration(env("FRAME_DURATION"), &c.FrameDuration),
		config.EnvDuration(env("SILENCE_THRESHOLD"), &c.SilenceThreshold),
		config.EnvDuration(env("MAX_INTERACTION"), &c.MaxInteraction),
		config.EnvDuration(env("AGENT_TIMEOUT"), &c.Agent.Timeout),
	)
}

// Validate reports every invalid field
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameDuration.Duration <= 0 {
		errs = append(errs, fmt.Errorf("frame_duration must be positive, got %s", c.FrameDuration))
	}
	if c.FrameSize() <= 0 {
		errs = append(errs, errors.New("frame_duration is shorter than one sample"))
	}
	if c.QueueFrames <= 0 {
		errs = append(errs, fmt.Errorf("queue_frames must be positive, got %d", c.QueueFrames))
	}
	if c.SilenceThreshold.Duration <= 0 {
		errs = append(errs, fmt.Errorf("silence_threshold must be positive, got %s", c.SilenceThreshold))
	}
	if c.MaxInteraction.Duration <= 0 {
		errs = append(errs, fmt.Errorf("max_interaction must be positive, got %s", c.MaxInteraction))
	}
	if c.DispatchWorkers <= 0 {
		errs = append(errs, fmt.Errorf("dispatch_workers must be positive, got %d", c.DispatchWorkers))
	}
	if c.Agent.URL == "" {
		errs = append(errs, errors.New("agent.url is required"))
	}
	if c.Agent.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("agent.timeout must be positive, got %s", c.Agent.Timeout))
	}
	switch c.VAD.Engine {
	case vad.EngineWebRTC, vad.EngineSilero, vad.EngineEnergy:
	default:
		errs = append(errs, fmt.Errorf("vad.engine %q is not one of webrtc, silero, energy", c.VAD.Engine))
	}
	switch c.STT.Engine {
	case stt.EngineWhisperCLI, stt.EngineWhisperNative, stt.EngineOpenAI:
	default:
		errs = append(errs, fmt.Errorf("stt.engine %q is not one of whisper-cli, whisper-native, openai", c.STT.Engine))
	}
	switch c.TTS.Engine {
	case tts.EngineSay, tts.EnginePiper:
	default:
		errs = append(errs, fmt.Errorf("tts.engine %q is not one of say, piper", c.TTS.Engine))
	}
	return errors.Join(errs...)
}

// FrameSize returns samples per frame
func (c Config) FrameSize() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration.Duration) / int64(time.Second))
}

// Timing returns the endpointing configuration
func (c Config) Timing() Timing {
	return Timing{
		SampleRate:       c.SampleRate,
		SilenceThreshold: c.SilenceThreshold.Duration,
		MaxInteraction:   c.MaxInteraction.Duration,
	}
}

func (c Config) captureConfig() audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate:    c.SampleRate,
		FrameDuration: c.FrameDuration.Duration,
		QueueFrames:   c.QueueFrames,
		DeviceName:    c.InputDevice,
	}
}

func (c Config) vadConfig() vad.Config {
	return vad.Config{
		Engine:             c.VAD.Engine,
		SampleRate:         c.SampleRate,
		Mode:               c.VAD.Mode,
		Model:              c.VAD.Model,
		Threshold:          c.VAD.Threshold,
		MinSilenceDuration: c.VAD.MinSilence.Duration,
		MinSpeechDuration:  c.VAD.MinSpeech.Duration,
		NumThreads:         c.VAD.NumThreads,
		Provider:           c.VAD.Provider,
	}
}

func (c Config) wakewordConfig() wakeword.Config {
	wc := wakeword.DefaultConfig()
	wc.ModelDir = c.WakeWord.ModelDir
	wc.KeywordsFile = c.WakeWord.KeywordsFile
	wc.SampleRate = c.SampleRate
	wc.KeywordsScore = c.WakeWord.Score
	wc.KeywordsThreshold = c.WakeWord.Threshold
	wc.NumTrailingBlanks = c.WakeWord.NumTrailingBlanks
	wc.NumThreads = c.WakeWord.NumThreads
	wc.Provider = c.WakeWord.Provider
	return wc
}

func (c Config) sttConfig() stt.Config {
	return stt.Config{
		Engine:     c.STT.Engine,
		ModelPath:  c.STT.ModelPath,
		Language:   c.STT.Language,
		BinaryPath: c.STT.BinaryPath,
		BaseURL:    c.STT.BaseURL,
		APIKey:     c.STT.APIKey,
		Model:      c.STT.Model,
		Timeout:    c.STT.Timeout.Duration,
	}
}

func (c Config) agentConfig() agent.Config {
	return agent.Config{
		URL:          c.Agent.URL,
		APIKey:       c.Agent.APIKey,
		AgentID:      c.Agent.AgentID,
		SessionKey:   c.Agent.SessionKey,
		Model:        c.Agent.Model,
		SystemPrompt: c.Agent.SystemPrompt,
		Timeout:      c.Agent.Timeout.Duration,
	}
}

func (c Config) ttsConfig() tts.Config {
	return tts.Config{
		Engine:     c.TTS.Engine,
		Voice:      c.TTS.Voice,
		Rate:       c.TTS.Rate,
		BinaryPath: c.TTS.Binary,
		ModelPath:  c.TTS.PiperModel,
		TempDir:    c.ArtifactDir,
	}
}

func (c Config) logConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
