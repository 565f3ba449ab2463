package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

var (
	searchLimit int
	searchClass string
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the indexed corpus",
	Long: `Ranks indexed chunks against the query using hybrid scoring:
semantic vector similarity combined with lexical keyword overlap.
Identical corpus state and query always produce identical output.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchClass, "class", "c", "", "restrict to one class (code, doc, config, test)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	opts := driving.SearchOptions{
		Limit: searchLimit,
		Class: domain.ContentClass(searchClass),
	}

	results, err := retrievalService.Search(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []driving.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []driving.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		chunk := results[i].Chunk
		cmd.Printf("  [%d] %s:%d-%d (%.2f)\n",
			i+1, chunk.Path, chunk.StartOffset, chunk.EndOffset, results[i].Score)

		snippet := chunk.Content
		if len(snippet) > 120 {
			snippet = snippet[:120] + "..."
		}
		cmd.Printf("      %s\n", snippet)
		cmd.Println()
	}

	return nil
}
