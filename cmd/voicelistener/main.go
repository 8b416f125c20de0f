package main

import (
	"os"

	"github.com/msto63/voicelistener/cmd/voicelistener/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
