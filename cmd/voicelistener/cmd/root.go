package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "voicelistener",
	Short: "voicelistener - Sprachsteuerung per Aktivierungswort",
	Long: `voicelistener hört dauerhaft auf ein Aktivierungswort, nimmt den
folgenden Sprachbefehl auf, transkribiert ihn und sendet ihn an einen
lokalen Agenten. Die Antwort wird per Sprachausgabe vorgelesen.

Befehle:
  listen   - Startet den Listener
  devices  - Listet verfügbare Eingabegeräte
  version  - Zeigt die Version an`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config-Datei (default: ./configs/voicelistener.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Env-Datei mit VOICELISTENER_* Variablen (default: ./.env, falls vorhanden)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose Output")
}

// loadEnvFile loads variables from --env-file or ./.env. Variables already
// set in the environment win.
func loadEnvFile() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Fehler: %s: %v\n", msg, err)
}
