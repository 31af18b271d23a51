package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hlinh96it/agentic-rag/internal/app"
	"github.com/hlinh96it/agentic-rag/internal/config"
	"github.com/hlinh96it/agentic-rag/internal/knowledge"
)

var (
	indexStore  string
	indexDelete string
)

var indexCmd = &cobra.Command{
	Use:   "index [files...]",
	Short: "Load documents into a vector store",
	Long: `Indexes text files into the named vector store. Each file becomes one
document: its content is embedded and stored alongside a full-text
index, so it is findable by both semantic and keyword search.

Re-indexing a file with the same path replaces the stored document.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexStore, "store", "documents", "target store name")
	indexCmd.Flags().StringVar(&indexDelete, "delete", "", "delete the document with this ID instead of indexing")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexDelete == "" && len(args) == 0 {
		return fmt.Errorf("nothing to do: pass files to index or --delete")
	}

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

	store, err := findStore(a, indexStore)
	if err != nil {
		return err
	}

	if indexDelete != "" {
		if err := store.Delete(ctx, indexDelete); err != nil {
			return fmt.Errorf("deleting %q: %w", indexDelete, err)
		}
		fmt.Printf("deleted %s from %s\n", indexDelete, store.Name())
		return nil
	}

	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		doc := knowledge.Document{
			// A path-derived UUID keeps re-indexing idempotent.
			ID:      uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String(),
			Content: string(content),
			Metadata: map[string]string{
				"source":   path,
				"filename": filepath.Base(path),
			},
		}
		if err := store.Add(ctx, doc); err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		fmt.Printf("indexed %s (%d bytes) into %s\n", path, len(content), store.Name())
	}

	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}
	fmt.Printf("%s now holds %d documents\n", store.Name(), count)
	return nil
}

func findStore(a *app.App, name string) (*knowledge.Store, error) {
	for _, s := range a.Stores {
		if s.Name() == name {
			return s, nil
		}
	}

	names := make([]string, 0, len(a.Stores))
	for _, s := range a.Stores {
		names = append(names, s.Name())
	}
	return nil, fmt.Errorf("unknown store %q (configured: %v)", name, names)
}
