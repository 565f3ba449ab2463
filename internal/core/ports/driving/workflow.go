package driving

import (
	"context"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// ProposeRequest creates a new workflow record from an accepted
// orchestration output.
type ProposeRequest struct {
	// OrchestrationID links the proposal to its orchestration.
	OrchestrationID string

	// Title and Body describe the change.
	Title string
	Body  string

	// Files maps repo paths to proposed contents.
	Files map[string]string
}

// WorkflowService drives change proposals through the branch → commit →
// PR → merge/rollback state machine.
type WorkflowService interface {
	// Propose creates a record in the Proposed state.
	Propose(ctx context.Context, req ProposeRequest) (*domain.WorkflowRecord, error)

	// CreateBranch advances Proposed → BranchCreated.
	CreateBranch(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// CommitFiles advances BranchCreated → FilesCommitted. A failure
	// leaves the record at BranchCreated so the commit can be retried.
	CommitFiles(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// OpenPullRequest advances FilesCommitted → PROpened.
	OpenPullRequest(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// Merge advances PROpened → Merged.
	Merge(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// Close advances PROpened → Closed without merging.
	Close(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// Rollback opens an inverse-diff PR referencing the original and
	// advances Merged → RolledBack. Any other state is rejected with
	// the specific reason.
	Rollback(ctx context.Context, id, reason string) (*domain.WorkflowRecord, error)

	// Get returns a record by ID.
	Get(ctx context.Context, id string) (*domain.WorkflowRecord, error)

	// List returns all records.
	List(ctx context.Context) ([]domain.WorkflowRecord, error)
}
