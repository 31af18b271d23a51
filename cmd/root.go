// Package cmd implements the command-line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hlinh96it/agentic-rag/internal/log"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "agentic-rag",
	Short: "Agentic retrieval-augmented question answering over PostgreSQL",
	Long: `agentic-rag answers questions by iterating over a small state machine:
it decides whether a question needs document retrieval, searches the
configured vector stores, grades what came back, rewrites the question
when nothing relevant was found, and grounds the final answer in the
passages that survived grading.

Run "agentic-rag serve" to expose the workflow over HTTP, "agentic-rag ask"
for a one-shot question, or "agentic-rag index" to load documents.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
}

// newLogger builds the process logger from the persistent flags.
func newLogger() log.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return log.New(log.Config{Level: level, JSON: logJSON})
}
