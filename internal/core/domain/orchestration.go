package domain

import "time"

// DispatchMode selects how the orchestrator runs the configured backends.
type DispatchMode string

// Available dispatch modes.
const (
	// ModePipeline runs the implementer, reviewer and optimizer roles in
	// sequence, each seeing the prior role's output.
	ModePipeline DispatchMode = "pipeline"

	// ModeConsensus dispatches all backends concurrently against the
	// identical task with no inter-dependency.
	ModeConsensus DispatchMode = "consensus"
)

// IsValid returns true if the dispatch mode is recognised.
func (m DispatchMode) IsValid() bool {
	return m == ModePipeline || m == ModeConsensus
}

// Pipeline role names, in execution order.
const (
	RoleImplementer = "implementer"
	RoleReviewer    = "reviewer"
	RoleOptimizer   = "optimizer"

	// RoleConsensus tags calls dispatched in consensus mode.
	RoleConsensus = "consensus"
)

// PipelineRoles is the fixed pipeline stage order.
var PipelineRoles = []string{RoleImplementer, RoleReviewer, RoleOptimizer}

// OrchestrationResult is the outcome of one orchestration invocation.
// It is produced once and read-only thereafter.
type OrchestrationResult struct {
	// ID is the unique orchestration identifier.
	ID string

	// Task is the task description that drove the run.
	Task string

	// Mode is the dispatch mode used.
	Mode DispatchMode

	// Calls lists every dispatch attempt in execution order, including
	// failed and timed-out ones.
	Calls []ProviderCall

	// Synthesis is the combined recommendation text.
	Synthesis string

	// Permissions holds the static permission analysis, when a policy
	// document was supplied. Nil otherwise.
	Permissions *PermissionAnalysis

	// RecommendedAction is a short verdict for the caller ("apply",
	// "review", "retry").
	RecommendedAction string

	// TotalCostUSD is the summed cost of completed calls only.
	TotalCostUSD float64

	// StartedAt is when the orchestration began.
	StartedAt time.Time

	// Duration is the wall-clock duration of the run.
	Duration time.Duration
}

// SucceededCalls returns the calls that completed with usable output,
// preserving execution order.
func (r OrchestrationResult) SucceededCalls() []ProviderCall {
	out := make([]ProviderCall, 0, len(r.Calls))
	for _, c := range r.Calls {
		if c.Succeeded() {
			out = append(out, c)
		}
	}
	return out
}
