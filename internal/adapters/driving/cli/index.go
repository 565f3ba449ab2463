package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var indexWatch bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the corpus",
	Long: `Chunks every eligible file of the configured corpus, embeds the
chunks and writes them to the chunk store and vector index.

With --watch, stays running and re-indexes paths as they change.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "re-index paths as they change")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexerService == nil {
		return errors.New("indexer service not configured")
	}

	ctx := cmd.Context()

	stats, err := indexerService.IndexCorpus(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	cmd.Printf("Indexed %d files into %d chunks (%d skipped).\n",
		stats.Files, stats.Chunks, stats.Skipped)

	if !indexWatch {
		return nil
	}

	cmd.Println("Watching for changes. Ctrl-C to stop.")
	return indexerService.Watch(ctx)
}
