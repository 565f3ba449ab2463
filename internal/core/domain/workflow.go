package domain

import "time"

// WorkflowState is the lifecycle state of a change proposal.
type WorkflowState string

// Workflow states.
const (
	StateProposed       WorkflowState = "proposed"
	StateBranchCreated  WorkflowState = "branch_created"
	StateFilesCommitted WorkflowState = "files_committed"
	StatePROpened       WorkflowState = "pr_opened"
	StateMerged         WorkflowState = "merged"
	StateClosed         WorkflowState = "closed"
	StateRolledBack     WorkflowState = "rolled_back"
)

// IsValid returns true if the state is recognised.
func (s WorkflowState) IsValid() bool {
	switch s {
	case StateProposed, StateBranchCreated, StateFilesCommitted,
		StatePROpened, StateMerged, StateClosed, StateRolledBack:
		return true
	default:
		return false
	}
}

// IsTerminal returns true when no further transition is allowed.
func (s WorkflowState) IsTerminal() bool {
	return s == StateClosed || s == StateRolledBack
}

// allowedTransitions is the closed edge set of the workflow state
// machine. Anything absent here is an invalid transition.
var allowedTransitions = map[WorkflowState][]WorkflowState{
	StateProposed:       {StateBranchCreated},
	StateBranchCreated:  {StateFilesCommitted},
	StateFilesCommitted: {StatePROpened},
	StatePROpened:       {StateMerged, StateClosed},
	StateMerged:         {StateRolledBack},
}

// CanTransition reports whether the edge from → to is declared.
func CanTransition(from, to WorkflowState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionRecord is one applied state change, kept for history.
type TransitionRecord struct {
	From WorkflowState
	To   WorkflowState
	At   time.Time
	Note string
}

// WorkflowRecord tracks one proposed code change from proposal through
// merge or rollback. The workflow engine is the only writer of State.
type WorkflowRecord struct {
	// ID is the unique workflow identifier.
	ID string

	// State is the current lifecycle state.
	State WorkflowState

	// BranchName is the branch carrying the change, once created.
	BranchName string

	// PRNumber is the pull request number, once opened.
	PRNumber int

	// RollbackPRNumber is the inverse-diff PR opened by a rollback.
	RollbackPRNumber int

	// OrchestrationID links back to the orchestration that produced
	// the change.
	OrchestrationID string

	// Title and Body describe the proposed change.
	Title string
	Body  string

	// Files maps repo paths to the proposed file contents.
	Files map[string]string

	// History records every applied transition in order.
	History []TransitionRecord

	// CreatedAt is when the record was proposed.
	CreatedAt time.Time

	// UpdatedAt is when the record last transitioned.
	UpdatedAt time.Time
}

// Transition applies the edge to the record after validating it against
// the declared edge set. Invalid edges leave the record untouched and
// return a *WorkflowError naming the violated edge.
func (w *WorkflowRecord) Transition(to WorkflowState, note string, now time.Time) error {
	if !CanTransition(w.State, to) {
		return &WorkflowError{
			RecordID: w.ID,
			From:     w.State,
			To:       to,
			Reason:   "transition not allowed",
		}
	}

	w.History = append(w.History, TransitionRecord{
		From: w.State,
		To:   to,
		At:   now,
		Note: note,
	})
	w.State = to
	w.UpdatedAt = now
	return nil
}
