// Package cli implements the deeperseek command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/PaulBappoo/Deeperseek/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "deeperseek",
	Short: "Answer questions with a primary model, reviewers and a synthesis",
	Long: `deeperseek answers a question with a primary model, has several models
review the answer concurrently and merges the reviews into a final answer.
Every step is streamed to the client as it happens.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DEEPERSEEK_CONFIG"), "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
