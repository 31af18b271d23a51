package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hlinh96it/agentic-rag/internal/app"
	"github.com/hlinh96it/agentic-rag/internal/config"
	"github.com/hlinh96it/agentic-rag/internal/workflow"
)

var (
	askShowTrace bool
	askAsJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question",
	Long: `Runs the full question-answering workflow once and prints the answer.

The workflow decides whether the question needs document retrieval,
searches the configured stores, grades the results, and grounds the
answer in the passages found relevant.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowTrace, "trace", false, "print the processing steps after the answer")
	askCmd.Flags().BoolVar(&askAsJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	logger := newLogger()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	question := strings.Join(args, " ")
	result, err := a.Engine.Run(ctx, workflow.Request{Question: question})
	if err != nil {
		return fmt.Errorf("running workflow: %w", err)
	}

	if askAsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.Answer)

	if len(result.RetrievedDocuments) > 0 {
		fmt.Println()
		fmt.Printf("Sources (%d):\n", len(result.RetrievedDocuments))
		for _, doc := range result.RetrievedDocuments {
			fmt.Printf("  - %s (%s)\n", doc.SourceID, doc.Store)
		}
	}

	if askShowTrace {
		fmt.Println()
		fmt.Printf("Trace (%d searches, %d rewrites):\n", result.SearchCount, result.RewriteCount)
		for _, step := range result.ProcessingSteps {
			sec := int64(step.Timestamp)
			nsec := int64((step.Timestamp - float64(sec)) * 1e9)
			ts := time.Unix(sec, nsec).Format("15:04:05.000")
			fmt.Printf("  %s  %-18s %-12s %s\n", ts, step.Name, step.Status, step.Detail)
		}
	}

	return nil
}
