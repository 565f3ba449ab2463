package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

var (
	orchestrateConsensus bool
	orchestrateBudget    int
	orchestrateMaxOut    int
	orchestrateAllow     []string
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate [task]",
	Short: "Dispatch a task to the AI backends",
	Long: `Assembles a token-budgeted context bundle for the task and dispatches
it to the configured AI backends.

By default the implementer, reviewer and optimizer roles run in
sequence, each seeing the prior role's output. With --consensus every
backend answers the identical task concurrently and the responses are
synthesised.

Pass --allow to supply the actions the current principal holds; the
generated code is then scanned for cloud-resource action references
and diffed against that policy.`,
	Args: cobra.ExactArgs(1),
	RunE: runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().BoolVar(&orchestrateConsensus, "consensus", false, "dispatch to all backends concurrently")
	orchestrateCmd.Flags().IntVar(&orchestrateBudget, "budget", 0, "context bundle token budget (0 = default)")
	orchestrateCmd.Flags().IntVar(&orchestrateMaxOut, "max-output-tokens", 0, "per-backend output cap (0 = default)")
	orchestrateCmd.Flags().StringArrayVar(&orchestrateAllow, "allow", nil, "policy action held by the principal (repeatable)")
	rootCmd.AddCommand(orchestrateCmd)
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	if orchestratorService == nil {
		return errors.New("orchestrator service not configured")
	}

	req := driving.OrchestrateRequest{
		Task:            args[0],
		TokenBudget:     orchestrateBudget,
		MaxOutputTokens: orchestrateMaxOut,
	}
	if len(orchestrateAllow) > 0 {
		req.Policy = &domain.PolicyDocument{
			Version:        "2012-10-17",
			AllowedActions: orchestrateAllow,
		}
	}

	var (
		result *domain.OrchestrationResult
		err    error
	)
	if orchestrateConsensus {
		result, err = orchestratorService.Consensus(cmd.Context(), req)
	} else {
		result, err = orchestratorService.Orchestrate(cmd.Context(), req)
	}
	if err != nil {
		return fmt.Errorf("orchestration failed: %w", err)
	}

	outputOrchestration(cmd, result)
	return nil
}

func outputOrchestration(cmd *cobra.Command, result *domain.OrchestrationResult) {
	cmd.Printf("Orchestration %s (%s)\n", result.ID, result.Mode)
	cmd.Println()

	for _, call := range result.Calls {
		cmd.Printf("  %-10s %-12s %-8s in=%d out=%d $%.4f\n",
			call.Provider, call.Role, call.Status,
			call.InputTokens, call.OutputTokens, call.CostUSD)
	}
	cmd.Println()

	if result.Synthesis != "" {
		cmd.Println(result.Synthesis)
		cmd.Println()
	}

	if result.Permissions != nil {
		outputPermissions(cmd, result.Permissions)
	}

	cmd.Printf("Recommended action: %s\n", result.RecommendedAction)
	cmd.Printf("Total cost: $%.4f\n", result.TotalCostUSD)
}

func outputPermissions(cmd *cobra.Command, analysis *domain.PermissionAnalysis) {
	cmd.Println("Permission analysis:")
	for _, action := range analysis.RequiredActions {
		marker := "granted"
		for _, missing := range analysis.MissingActions {
			if missing == action {
				marker = "MISSING"
				break
			}
		}
		cmd.Printf("  %-40s %s\n", action, marker)
	}
	if analysis.SuggestedPatch != "" {
		cmd.Println()
		cmd.Println("Suggested policy patch:")
		cmd.Println(analysis.SuggestedPatch)
	}
	cmd.Println()
}
