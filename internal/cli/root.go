package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "whisperctl",
	Short: "Operator tool for the Whisper transcription service",
	Long: `whisperctl runs the transcription pipeline locally and issues API tokens.

It reads the same environment (and .env file) as the API server, so a file
transcribed here goes through the same provider selection and chunking.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		appConfig = cfg
		return nil
	},
}

var (
	verbose   bool
	appConfig *config.Config
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
