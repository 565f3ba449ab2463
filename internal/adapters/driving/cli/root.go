// Package cli provides the cobra command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// version is stamped at build time.
var version = "0.1.0"

// Driving ports injected by the composition root before Execute runs.
var (
	retrievalService    driving.RetrievalService
	contextService      driving.ContextService
	orchestratorService driving.OrchestratorService
	workflowService     driving.WorkflowService
	indexerService      driving.IndexerService
	ledgerReader        driving.LedgerReader
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "AI-assisted code change pipeline",
	Long: `Forge indexes a code and documentation corpus, retrieves task-relevant
context, dispatches it to multiple AI backends, and drives accepted
changes through a branch, commit, pull request and rollback workflow.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Services aggregates the driving ports the CLI needs.
type Services struct {
	Retrieval    driving.RetrievalService
	Context      driving.ContextService
	Orchestrator driving.OrchestratorService
	Workflow     driving.WorkflowService
	Indexer      driving.IndexerService
	Ledger       driving.LedgerReader
}

// SetServices injects the driving ports. Must be called before Execute.
func SetServices(s Services) {
	retrievalService = s.Retrieval
	contextService = s.Context
	orchestratorService = s.Orchestrator
	workflowService = s.Workflow
	indexerService = s.Indexer
	ledgerReader = s.Ledger
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
