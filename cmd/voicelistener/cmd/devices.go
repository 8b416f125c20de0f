package cmd

import (
	"fmt"

	"github.com/msto63/voicelistener/internal/listener/audio"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Listet verfügbare Audio-Eingabegeräte",
	Long: `Listet alle Eingabegeräte, die PortAudio meldet. Der Name kann als
input_device in der Config-Datei oder über --device gesetzt werden.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audio.ListInputDevices()
		if err != nil {
			printError("Geräte konnten nicht abgefragt werden", err)
			return err
		}
		if len(devices) == 0 {
			fmt.Println("Keine Eingabegeräte gefunden.")
			return nil
		}

		fmt.Println("Eingabegeräte")
		fmt.Println("=============")
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %-40s  Kanäle: %d  Rate: %.0f Hz\n", marker, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
		}
		fmt.Println()
		fmt.Println("* = Standardgerät")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
