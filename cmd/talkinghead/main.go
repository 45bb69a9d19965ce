// Package main provides the CLI entry point for the talking head.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	version = "dev"

	configPath string
	logLevel   string
)

func main() {
	// A missing .env is fine; values may come from the real environment.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "talkinghead",
		Short: "Speak text through a lip-synced animated face",
		Long: `talkinghead turns text into speech with Piper and drives a face from the
phonemes as they play: mouth shapes follow the audio clock, brows follow the
detected emotion, and every frame is streamed to WebSocket clients.

Use 'talkinghead [command] --help' for more information.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.talkinghead/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newSpeakCmd(),
		newServeCmd(),
		newChatCmd(),
		newPhonemesCmd(),
		newClassifyCmd(),
		newVoicesCmd(),
		newPersonalitiesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
