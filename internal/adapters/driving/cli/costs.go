package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show the session's exact spend",
	Long: `Shows the per-provider call counts and exact accumulated cost for the
current session. The total always equals the sum of the per-provider
entries.`,
	RunE: runCosts,
}

var costsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero the session counters",
	RunE:  runCostsReset,
}

var costsEstimateCmd = &cobra.Command{
	Use:   "estimate [input-tokens] [output-tokens]",
	Short: "Project the cost of a run without dispatching",
	Args:  cobra.ExactArgs(2),
	RunE:  runCostsEstimate,
}

func init() {
	costsCmd.AddCommand(costsResetCmd)
	costsCmd.AddCommand(costsEstimateCmd)
	rootCmd.AddCommand(costsCmd)
}

func runCosts(cmd *cobra.Command, _ []string) error {
	if ledgerReader == nil {
		return errors.New("cost ledger not configured")
	}

	snapshot := ledgerReader.Snapshot()

	cmd.Printf("Session %s\n", snapshot.SessionID)
	cmd.Println()
	if len(snapshot.Entries) == 0 {
		cmd.Println("No calls recorded.")
		return nil
	}

	for _, entry := range snapshot.Entries {
		cmd.Printf("  %-12s %4d calls  $%.4f\n",
			entry.Provider, entry.CallCount, entry.TotalCostUSD)
	}
	cmd.Println()
	cmd.Printf("Total: $%.4f\n", snapshot.SessionTotalUSD)
	return nil
}

func runCostsReset(cmd *cobra.Command, _ []string) error {
	if ledgerReader == nil {
		return errors.New("cost ledger not configured")
	}

	if err := ledgerReader.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	cmd.Println("Session counters reset.")
	return nil
}

func runCostsEstimate(cmd *cobra.Command, args []string) error {
	if orchestratorService == nil {
		return errors.New("orchestrator service not configured")
	}

	inputTokens, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid input token count: %w", err)
	}
	outputTokens, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid output token count: %w", err)
	}

	estimate := orchestratorService.EstimateCost(inputTokens, outputTokens)

	providers := make([]string, 0, len(estimate.PerProvider))
	for provider := range estimate.PerProvider {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	for _, provider := range providers {
		cmd.Printf("  %-12s $%.4f\n", provider, estimate.PerProvider[provider])
	}
	cmd.Println()
	cmd.Printf("Projected total: $%.4f\n", estimate.TotalUSD)
	return nil
}
