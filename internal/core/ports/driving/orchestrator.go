package driving

import (
	"context"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// OrchestrateRequest describes one orchestration run.
type OrchestrateRequest struct {
	// Task is the task description.
	Task string

	// TokenBudget caps the context bundle; 0 uses the default.
	TokenBudget int

	// MaxOutputTokens caps each backend's output; 0 uses the default.
	MaxOutputTokens int

	// Policy, when non-nil, enables the permission analysis over the
	// generated code.
	Policy *domain.PolicyDocument
}

// CostEstimate is a pre-run cost projection. Producing one never
// mutates ledger state.
type CostEstimate struct {
	// PerProvider maps provider ID to the projected cost.
	PerProvider map[string]float64

	// TotalUSD is the summed projection.
	TotalUSD float64
}

// OrchestratorService dispatches context bundles to the configured AI
// backends.
type OrchestratorService interface {
	// Orchestrate runs the implementer → reviewer → optimizer pipeline.
	Orchestrate(ctx context.Context, req OrchestrateRequest) (*domain.OrchestrationResult, error)

	// Consensus fans the identical task out to every backend
	// concurrently and synthesises the successful responses.
	Consensus(ctx context.Context, req OrchestrateRequest) (*domain.OrchestrationResult, error)

	// EstimateCost projects the cost of a run against hypothetical
	// token counts without dispatching anything.
	EstimateCost(inputTokens, outputTokens int) CostEstimate
}

// LedgerReader exposes session cost state to external actors.
type LedgerReader interface {
	// Snapshot returns a consistent view of the session's spend.
	Snapshot() domain.LedgerSnapshot

	// Reset zeroes session counters. History records are untouched.
	Reset(ctx context.Context) error
}
