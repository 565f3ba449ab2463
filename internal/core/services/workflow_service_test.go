package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

func proposeFixture(t *testing.T, svc *WorkflowService) *domain.WorkflowRecord {
	t.Helper()

	rec, err := svc.Propose(context.Background(), driving.ProposeRequest{
		OrchestrationID: "orch-1",
		Title:           "Add request retry",
		Body:            "Adds bounded retry to the HTTP client.",
		Files: map[string]string{
			"client/retry.go": "package client\n",
		},
	})
	require.NoError(t, err)
	return rec
}

func newTestWorkflow(t *testing.T) (*WorkflowService, *mockRepo, *mockWorkflowStore) {
	t.Helper()

	repo := newMockRepo()
	store := newMockWorkflowStore()
	svc := NewWorkflowService(repo, store, &mockHistory{}, "session-1", "")
	return svc, repo, store
}

func TestWorkflowHappyPath(t *testing.T) {
	svc, repo, _ := newTestWorkflow(t)
	ctx := context.Background()

	rec := proposeFixture(t, svc)
	assert.Equal(t, domain.StateProposed, rec.State)

	rec, err := svc.CreateBranch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateBranchCreated, rec.State)
	assert.Equal(t, "forge/"+rec.ID[:8], rec.BranchName)
	require.Len(t, repo.branches, 1)

	rec, err = svc.CommitFiles(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFilesCommitted, rec.State)
	assert.Equal(t, "package client\n", repo.commits[rec.BranchName]["client/retry.go"])

	rec, err = svc.OpenPullRequest(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePROpened, rec.State)
	assert.Equal(t, 6, rec.PRNumber)

	rec, err = svc.Merge(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateMerged, rec.State)

	// Every transition is on the record's history trail.
	require.Len(t, rec.History, 4)
	assert.Equal(t, domain.StateProposed, rec.History[0].From)
	assert.Equal(t, domain.StateMerged, rec.History[3].To)
}

func TestWorkflowRejectsSkippedStates(t *testing.T) {
	svc, repo, _ := newTestWorkflow(t)
	ctx := context.Background()

	rec := proposeFixture(t, svc)

	// Proposed cannot jump straight to a PR.
	_, err := svc.OpenPullRequest(ctx, rec.ID)
	var wfErr *domain.WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, domain.StateProposed, wfErr.From)
	assert.Equal(t, domain.StatePROpened, wfErr.To)

	// The rejected transition caused no repository side effects and no
	// state change.
	assert.Empty(t, repo.prs)
	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProposed, got.State)
}

func TestWorkflowCommitFailureKeepsBranchCreated(t *testing.T) {
	svc, repo, _ := newTestWorkflow(t)
	ctx := context.Background()

	rec := proposeFixture(t, svc)
	_, err := svc.CreateBranch(ctx, rec.ID)
	require.NoError(t, err)

	repo.commitErr = errors.New("remote rejected push")
	_, err = svc.CommitFiles(ctx, rec.ID)
	require.Error(t, err)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateBranchCreated, got.State)

	// The commit is retryable without re-creating the branch.
	repo.commitErr = nil
	got, err = svc.CommitFiles(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFilesCommitted, got.State)
	assert.Len(t, repo.branches, 1)
}

func TestWorkflowCloseWithoutMerge(t *testing.T) {
	svc, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	rec := proposeFixture(t, svc)
	mustAdvance(t, svc, rec.ID, (*WorkflowService).CreateBranch, (*WorkflowService).CommitFiles, (*WorkflowService).OpenPullRequest)

	rec, err := svc.Close(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, rec.State)

	// A closed proposal is terminal apart from nothing: no merge, no
	// rollback.
	_, err = svc.Merge(ctx, rec.ID)
	assert.Error(t, err)
	_, err = svc.Rollback(ctx, rec.ID, "never merged")
	var wfErr *domain.WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "closed without merge", wfErr.Reason)
}

func TestWorkflowRollback(t *testing.T) {
	svc, repo, _ := newTestWorkflow(t)
	ctx := context.Background()

	rec := proposeFixture(t, svc)
	mustAdvance(t, svc, rec.ID,
		(*WorkflowService).CreateBranch,
		(*WorkflowService).CommitFiles,
		(*WorkflowService).OpenPullRequest,
	)
	_, err := svc.Merge(ctx, rec.ID)
	require.NoError(t, err)

	repo.prior = map[string]string{"client/retry.go": "package client // original\n"}

	rec, err = svc.Rollback(ctx, rec.ID, "latency regression")
	require.NoError(t, err)

	assert.Equal(t, domain.StateRolledBack, rec.State)
	assert.Equal(t, 7, rec.RollbackPRNumber, "rollback of PR #6 opens PR #7")

	rollback := repo.prs[7]
	require.NotNil(t, rollback)
	assert.Equal(t, "Revert PR #6: Add request retry", rollback.Title)
	assert.Contains(t, rollback.Body, "Rolls back PR #6")
	assert.Contains(t, rollback.Body, "latency regression")
	assert.Equal(t, "forge/rollback-"+rec.ID[:8], rollback.Branch)

	// The rollback branch carries the inverse contents.
	assert.Equal(t, "package client // original\n", repo.commits[rollback.Branch]["client/retry.go"])
}

func TestWorkflowRollbackOnlyFromMerged(t *testing.T) {
	svc, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	rec := proposeFixture(t, svc)

	_, err := svc.Rollback(ctx, rec.ID, "reason")
	var wfErr *domain.WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "not yet merged", wfErr.Reason)

	mustAdvance(t, svc, rec.ID,
		(*WorkflowService).CreateBranch,
		(*WorkflowService).CommitFiles,
		(*WorkflowService).OpenPullRequest,
	)
	_, err = svc.Merge(ctx, rec.ID)
	require.NoError(t, err)

	_, err = svc.Rollback(ctx, rec.ID, "first")
	require.NoError(t, err)

	// A second rollback of the same record is rejected.
	_, err = svc.Rollback(ctx, rec.ID, "second")
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "already rolled back", wfErr.Reason)
}

func TestProposeRequiresFiles(t *testing.T) {
	svc, _, _ := newTestWorkflow(t)

	_, err := svc.Propose(context.Background(), driving.ProposeRequest{Title: "empty"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWorkflowUnknownRecord(t *testing.T) {
	svc, _, _ := newTestWorkflow(t)

	_, err := svc.CreateBranch(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorkflowList(t *testing.T) {
	svc, _, _ := newTestWorkflow(t)

	first := proposeFixture(t, svc)
	second := proposeFixture(t, svc)

	records, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	ids := map[string]bool{records[0].ID: true, records[1].ID: true}
	assert.True(t, ids[first.ID])
	assert.True(t, ids[second.ID])
}

// mustAdvance runs the given transitions in order, failing the test on
// any error.
func mustAdvance(
	t *testing.T, svc *WorkflowService, id string,
	steps ...func(*WorkflowService, context.Context, string) (*domain.WorkflowRecord, error),
) {
	t.Helper()
	for i, step := range steps {
		if _, err := step(svc, context.Background(), id); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}
