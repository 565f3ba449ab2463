package driven

import "context"

// PullRequest is the repository collaborator's view of a PR.
type PullRequest struct {
	// Number is the PR number.
	Number int

	// Title and Body describe the PR.
	Title string
	Body  string

	// State is the host-side state ("open", "closed", "merged").
	State string

	// Branch is the head branch.
	Branch string
}

// PullRequestFilter narrows ListPullRequests.
type PullRequestFilter struct {
	// State filters by host-side state; empty means all.
	State string
}

// RepositoryService is the repository-operations collaborator the
// workflow engine drives. Retries and rate limiting are the
// implementation's concern; the engine treats this purely as an
// interface and only advances workflow state after a call confirms.
type RepositoryService interface {
	// CreateBranch creates a branch off the given base and returns the
	// new branch name.
	CreateBranch(ctx context.Context, base, name string) error

	// CommitFile writes one file to the branch.
	CommitFile(ctx context.Context, branch, path, content, message string) error

	// OpenPullRequest opens a PR from branch into the default base and
	// returns it.
	OpenPullRequest(ctx context.Context, branch, title, body string) (*PullRequest, error)

	// GetPullRequestStatus returns the current state of a PR.
	GetPullRequestStatus(ctx context.Context, number int) (*PullRequest, error)

	// ListPullRequests returns PRs matching the filter.
	ListPullRequests(ctx context.Context, filter PullRequestFilter) ([]PullRequest, error)

	// MergePullRequest merges a PR.
	MergePullRequest(ctx context.Context, number int) error

	// InverseDiff returns, for each file of the given PR, the content
	// the file had before the PR. Used to build rollback commits.
	InverseDiff(ctx context.Context, number int) (map[string]string, error)
}
