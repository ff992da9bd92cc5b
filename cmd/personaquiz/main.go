// Package main is the personaquiz command line: an interactive personality
// quiz whose questions are personalized by a language model.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "personaquiz",
	Short:         "Personalized personality-type quiz",
	Long:          "personaquiz asks a short profile, rewrites every quiz question for it through an OpenAI-compatible model, and derives a four-letter personality type with an AI analysis and follow-up chat.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagStore      string
	flagStateDir   string
	flagLogLevel   string
	flagTranscript bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "Session backend: file, sqlite or redis (overrides PERSONAQUIZ_STORE)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "Directory for session state and transcripts (overrides PERSONAQUIZ_STATE_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides PERSONAQUIZ_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&flagTranscript, "transcript", false, "Write a transcript of every model call")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
