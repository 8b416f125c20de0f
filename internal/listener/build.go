package listener

import (
	"errors"
	"fmt"
	"io"

	"github.com/msto63/voicelistener/internal/listener/agent"
	"github.com/msto63/voicelistener/internal/listener/audio"
	"github.com/msto63/voicelistener/internal/listener/stt"
	"github.com/msto63/voicelistener/internal/listener/tts"
	"github.com/msto63/voicelistener/internal/listener/vad"
	"github.com/msto63/voicelistener/internal/listener/wakeword"
	"github.com/msto63/voicelistener/pkg/core/logging"
	"github.com/msto63/voicelistener/pkg/core/metrics"
)

// BuildDependencies creates the microphone, detectors, transcriber, agent
// client and renderer described by cfg. Components created before a
// failure are closed.
func BuildDependencies(cfg Config, m *metrics.Metrics, logger *logging.Logger) (deps Dependencies, err error) {
	var created []io.Closer
	defer func() {
		if err != nil {
			for i := len(created) - 1; i >= 0; i-- {
				created[i].Close()
			}
		}
	}()

	deps.Metrics = m
	deps.Logger = logger

	if cfg.WakeWord.LexiconFile != "" {
		deps.Lexicon, err = wakeword.LoadLexicon(cfg.WakeWord.LexiconFile)
		if err != nil {
			return deps, err
		}
		logger.Info("Wake lexicon loaded", "phrases", deps.Lexicon.Phrases())
	} else {
		logger.Warn("No wake lexicon configured, accepting every spotter result")
	}

	deps.VAD, err = vad.New(cfg.vadConfig())
	if err != nil {
		return deps, fmt.Errorf("failed to create VAD: %w", err)
	}
	created = append(created, deps.VAD)

	deps.Spotter, err = wakeword.NewSherpaSpotter(cfg.wakewordConfig())
	if err != nil {
		return deps, fmt.Errorf("failed to create keyword spotter: %w", err)
	}
	created = append(created, deps.Spotter)

	transcriber, err := stt.New(cfg.sttConfig())
	if err != nil {
		return deps, fmt.Errorf("failed to create transcriber: %w", err)
	}
	deps.Transcriber = transcriber
	created = append(created, transcriber)

	deps.Agent, err = agent.New(cfg.agentConfig())
	if err != nil {
		return deps, fmt.Errorf("failed to create agent client: %w", err)
	}

	deps.Renderer, err = tts.New(cfg.ttsConfig(), audio.NewPlayback())
	if err != nil {
		return deps, fmt.Errorf("failed to create speech renderer: %w", err)
	}
	created = append(created, deps.Renderer)
	if say, ok := deps.Renderer.(*tts.Say); ok && !say.IsAvailable() {
		return deps, errors.New("say command not found, configure tts.binary or use the piper engine")
	}

	capture, err := audio.NewCapture(cfg.captureConfig(), logger.Named("audio"))
	if err != nil {
		return deps, err
	}
	deps.Source = capture

	return deps, nil
}
