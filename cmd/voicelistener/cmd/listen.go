// ============================================================================
// meinDENKWERK (mDW) - Voice Listener
// ============================================================================
//
// Package:     cmd
// Description: CLI command that runs the wake-word voice listener
// Author:      Mike Stoffels with Claude
// Created:     2026-10-18
// License:     MIT
// ============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msto63/voicelistener/internal/listener"
	"github.com/msto63/voicelistener/internal/listener/journal"
	"github.com/msto63/voicelistener/internal/listener/monitor"
	"github.com/msto63/voicelistener/pkg/core/health"
	"github.com/msto63/voicelistener/pkg/core/logging"
	"github.com/msto63/voicelistener/pkg/core/metrics"
	"github.com/msto63/voicelistener/pkg/core/version"
	"github.com/spf13/cobra"
)

// captureStall is the longest gap between frames the health check tolerates
const captureStall = 2 * time.Second

var (
	lsSilence     time.Duration
	lsMaxDuration time.Duration
	lsLexicon     string
	lsAgentURL    string
	lsMonitor     string
	lsJournal     string
	lsDevice      string
	lsKeep        bool
)

var listenCmd = &cobra.Command{
	Use:     "listen",
	Aliases: []string{"run", "start"},
	Short:   "Startet den Voice Listener",
	Long: `Startet den Voice Listener im Vordergrund.

Ablauf:
  - Bereitschaft: Das Mikrofon wird dauerhaft auf das Aktivierungswort geprüft
  - Aufnahme: Nach dem Aktivierungswort wird der Befehl aufgenommen, bis
    Stille (--silence) oder die Maximaldauer (--max-duration) erreicht ist
  - Verarbeitung: Die Aufnahme wird transkribiert und an den Agenten gesendet,
    die Antwort wird vorgelesen
  - Während der Sprachausgabe ist das Mikrofon pausiert

Voraussetzungen:
  - PortAudio installiert (brew install portaudio)
  - Sherpa-ONNX KWS-Modell und keywords-Datei
  - Whisper (CLI oder Modell) für die Transkription
  - Agent unter /v1/chat/completions erreichbar

Beispiele:
  voicelistener listen                              # Mit Config-Datei/Defaults
  voicelistener listen --silence 2.5s               # Längere Sprechpausen
  voicelistener listen --monitor 127.0.0.1:9600     # Mit Monitor (/ws, /metrics)
  voicelistener listen --journal ./data/voice.db    # Dispatches protokollieren`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().DurationVar(&lsSilence, "silence", 1800*time.Millisecond,
		"Stille bis die Aufnahme endet")
	listenCmd.Flags().DurationVar(&lsMaxDuration, "max-duration", 12*time.Second,
		"Maximale Dauer einer Aufnahme")
	listenCmd.Flags().StringVar(&lsLexicon, "lexicon", "",
		"Datei mit erlaubten Aktivierungswörtern")
	listenCmd.Flags().StringVar(&lsAgentURL, "agent-url", "http://127.0.0.1:9527/v1",
		"Basis-URL des Agenten")
	listenCmd.Flags().StringVar(&lsMonitor, "monitor", "",
		"Adresse des Monitor-Servers (leer = deaktiviert)")
	listenCmd.Flags().StringVar(&lsJournal, "journal", "",
		"SQLite-Datei für das Dispatch-Journal (leer = deaktiviert)")
	listenCmd.Flags().StringVar(&lsDevice, "device", "",
		"Name des Eingabegeräts (siehe 'voicelistener devices')")
	listenCmd.Flags().BoolVar(&lsKeep, "keep-artifacts", false,
		"WAV-Aufnahmen nach der Verarbeitung behalten")
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := listener.LoadConfig(cfgFile)
	if err != nil {
		printError("Konfiguration ungültig", err)
		return err
	}

	// CLI flags override config file and environment
	flags := cmd.Flags()
	if flags.Changed("silence") {
		cfg.SilenceThreshold.Duration = lsSilence
	}
	if flags.Changed("max-duration") {
		cfg.MaxInteraction.Duration = lsMaxDuration
	}
	if flags.Changed("lexicon") {
		cfg.WakeWord.LexiconFile = lsLexicon
	}
	if flags.Changed("agent-url") {
		cfg.Agent.URL = lsAgentURL
	}
	if flags.Changed("monitor") {
		cfg.Monitor.Addr = lsMonitor
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = lsJournal
	}
	if flags.Changed("device") {
		cfg.InputDevice = lsDevice
	}
	if flags.Changed("keep-artifacts") {
		cfg.KeepArtifacts = lsKeep
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		printError("Konfiguration ungültig", err)
		return err
	}

	logging.Configure(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger := logging.New("voicelistener")
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mp, shutdownMetrics, err := metrics.InitProvider(ctx, metrics.ProviderConfig{
		ServiceName:    "voicelistener",
		ServiceVersion: version.Listener,
	})
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			logger.Warn("Metrics shutdown failed", "error", err)
		}
	}()

	m, err := metrics.New(mp)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	deps, err := listener.BuildDependencies(cfg, m, logger)
	if err != nil {
		printError("Komponenten konnten nicht geladen werden", err)
		return err
	}

	app, err := listener.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create voice listener: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Shutdown incomplete", "error", err)
		}
	}()

	checks := health.NewRegistry("voicelistener", version.Listener)
	checks.Register(app.CaptureCheck(captureStall))
	checks.Register(health.HTTPCheck("agent", cfg.Agent.URL, nil))

	if cfg.Journal.Path != "" {
		store, err := journal.Open(journal.Config{Path: cfg.Journal.Path})
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()
		app.Pipeline().AddObserver(store)
		checks.Register(health.PingCheck("journal", store))
	}

	if cfg.Monitor.Addr != "" {
		srv, err := startMonitor(cfg.Monitor.Addr, app, checks, logger)
		if err != nil {
			return fmt.Errorf("failed to start monitor: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx) //nolint:errcheck
		}()
	}

	printStartup(cfg)

	if err := app.Run(ctx); err != nil {
		printError("Listener beendet", err)
		return err
	}

	fmt.Println("\nVoice Listener beendet.")
	return nil
}

type monitorStatus struct {
	Mode      string                `json:"mode"`
	Session   *listener.SessionInfo `json:"session,omitempty"`
	Rendering bool                  `json:"rendering"`
}

func startMonitor(addr string, app *listener.App, checks *health.Registry, logger *logging.Logger) (*monitor.Server, error) {
	hub := monitor.NewHub(logger)

	app.Pipeline().AddObserver(hub)
	app.Machine().OnEvent(func(e listener.Event) {
		hub.Publish(e.Kind, e)
	})
	app.Machine().State().AddListener(func(oldMode, newMode listener.Mode, at time.Time) {
		hub.Publish("mode", map[string]interface{}{
			"from": oldMode.String(),
			"to":   newMode.String(),
			"at":   at,
		})
	})

	status := func() interface{} {
		st := monitorStatus{
			Mode:      app.Machine().Mode().String(),
			Rendering: app.Speech().Rendering(),
		}
		if info, ok := app.Machine().Session(); ok {
			st.Session = &info
		}
		return st
	}

	srv := monitor.NewServer(addr, hub, status, checks, logger)
	if err := srv.Start(); err != nil {
		hub.Close()
		return nil, err
	}
	return srv, nil
}

func printStartup(cfg listener.Config) {
	fmt.Println("Voice Listener")
	fmt.Println("==============")
	fmt.Printf("Version:     %s\n", version.Listener)
	device := cfg.InputDevice
	if device == "" {
		device = "Standardgerät"
	}
	fmt.Printf("Eingabe:     %s (%d Hz)\n", device, cfg.SampleRate)
	fmt.Printf("VAD:         %s\n", cfg.VAD.Engine)
	fmt.Printf("STT:         %s\n", cfg.STT.Engine)
	fmt.Printf("TTS:         %s\n", cfg.TTS.Engine)
	fmt.Printf("Agent:       %s\n", cfg.Agent.URL)
	fmt.Printf("Stille:      %v\n", cfg.SilenceThreshold.Duration)
	fmt.Printf("Max. Dauer:  %v\n", cfg.MaxInteraction.Duration)
	if cfg.Monitor.Addr != "" {
		fmt.Printf("Monitor:     http://%s (/ws, /metrics, /healthz)\n", cfg.Monitor.Addr)
	}
	if cfg.Journal.Path != "" {
		fmt.Printf("Journal:     %s\n", cfg.Journal.Path)
	}
	fmt.Println()
	fmt.Println("Bereit. Sprechen Sie das Aktivierungswort. Beenden mit Ctrl+C.")
	fmt.Println()
}
