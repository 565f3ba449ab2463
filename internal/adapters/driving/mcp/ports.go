package mcp

import (
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces the MCP server exposes.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval ranks corpus chunks against a query.
	Retrieval driving.RetrievalService

	// Context assembles token-budgeted bundles.
	Context driving.ContextService

	// Orchestrator dispatches tasks to the AI backends.
	Orchestrator driving.OrchestratorService

	// Workflow drives change proposals through the state machine.
	Workflow driving.WorkflowService

	// Indexer ingests the corpus.
	Indexer driving.IndexerService

	// Ledger exposes session cost state.
	Ledger driving.LedgerReader
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	if p.Context == nil {
		return ErrMissingContextService
	}
	if p.Orchestrator == nil {
		return ErrMissingOrchestratorService
	}
	if p.Workflow == nil {
		return ErrMissingWorkflowService
	}
	if p.Indexer == nil {
		return ErrMissingIndexerService
	}
	if p.Ledger == nil {
		return ErrMissingLedgerReader
	}
	return nil
}
