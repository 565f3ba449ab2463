package github

import (
	"context"
	"errors"
	"fmt"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure Service implements the interface.
var _ driven.RepositoryService = (*Service)(nil)

// Config holds the target repository coordinates.
type Config struct {
	// Owner is the repository owner (user or org).
	Owner string

	// Repo is the repository name.
	Repo string

	// BaseBranch is the branch pull requests merge into.
	BaseBranch string
}

// Service implements driven.RepositoryService against one GitHub
// repository.
type Service struct {
	client *Client
	cfg    Config
}

// NewService creates a repository service for the configured repo.
func NewService(client *Client, cfg Config) (*Service, error) {
	if client == nil {
		return nil, errors.New("github: client is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("github: owner and repo are required")
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}

	return &Service{client: client, cfg: cfg}, nil
}

// CreateBranch creates a branch off the given base.
func (s *Service) CreateBranch(ctx context.Context, base, name string) error {
	if base == "" {
		base = s.cfg.BaseBranch
	}

	if err := s.client.wait(ctx); err != nil {
		return err
	}

	baseRef, resp, err := s.client.gh.Git.GetRef(ctx, s.cfg.Owner, s.cfg.Repo, "heads/"+base)
	if err != nil {
		wrapped := s.client.wrapError(err, "get base ref")
		if IsNotFound(wrapped) {
			return fmt.Errorf("%w: %s", ErrBranchNotFound, base)
		}
		return wrapped
	}
	s.client.update(resp)

	if err := s.client.wait(ctx); err != nil {
		return err
	}

	newRef := gh.CreateRef{
		Ref: "refs/heads/" + name,
		SHA: baseRef.Object.GetSHA(),
	}
	_, resp, err = s.client.gh.Git.CreateRef(ctx, s.cfg.Owner, s.cfg.Repo, newRef)
	if err != nil {
		return s.client.wrapError(err, "create branch")
	}
	s.client.update(resp)

	return nil
}

// CommitFile writes one file to the branch, creating or updating it.
func (s *Service) CommitFile(ctx context.Context, branch, path, content, message string) error {
	sha, err := s.fileSHA(ctx, branch, path)
	if err != nil {
		return err
	}

	if err := s.client.wait(ctx); err != nil {
		return err
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: []byte(content),
		Branch:  gh.Ptr(branch),
	}

	var resp *gh.Response
	if sha == "" {
		_, resp, err = s.client.gh.Repositories.CreateFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts)
	} else {
		opts.SHA = gh.Ptr(sha)
		_, resp, err = s.client.gh.Repositories.UpdateFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts)
	}
	if err != nil {
		return s.client.wrapError(err, "commit file")
	}
	s.client.update(resp)

	return nil
}

// fileSHA returns the blob SHA of path on branch, or "" when the file
// does not exist yet.
func (s *Service) fileSHA(ctx context.Context, branch, path string) (string, error) {
	if err := s.client.wait(ctx); err != nil {
		return "", err
	}

	opts := &gh.RepositoryContentGetOptions{Ref: branch}
	fileContent, _, resp, err := s.client.gh.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, path, opts)
	if err != nil {
		wrapped := s.client.wrapError(err, "get contents")
		if IsNotFound(wrapped) {
			return "", nil
		}
		return "", wrapped
	}
	s.client.update(resp)

	if fileContent == nil {
		return "", fmt.Errorf("github: %s is a directory", path)
	}
	return fileContent.GetSHA(), nil
}

// OpenPullRequest opens a PR from branch into the configured base.
func (s *Service) OpenPullRequest(ctx context.Context, branch, title, body string) (*driven.PullRequest, error) {
	if err := s.client.wait(ctx); err != nil {
		return nil, err
	}

	pull := &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Head:  gh.Ptr(branch),
		Base:  gh.Ptr(s.cfg.BaseBranch),
		Body:  gh.Ptr(body),
	}
	pr, resp, err := s.client.gh.PullRequests.Create(ctx, s.cfg.Owner, s.cfg.Repo, pull)
	if err != nil {
		return nil, s.client.wrapError(err, "open pull request")
	}
	s.client.update(resp)

	return convertPullRequest(pr), nil
}

// GetPullRequestStatus returns the current state of a PR.
func (s *Service) GetPullRequestStatus(ctx context.Context, number int) (*driven.PullRequest, error) {
	pr, err := s.getPullRequest(ctx, number)
	if err != nil {
		return nil, err
	}
	return convertPullRequest(pr), nil
}

func (s *Service) getPullRequest(ctx context.Context, number int) (*gh.PullRequest, error) {
	if err := s.client.wait(ctx); err != nil {
		return nil, err
	}

	pr, resp, err := s.client.gh.PullRequests.Get(ctx, s.cfg.Owner, s.cfg.Repo, number)
	if err != nil {
		wrapped := s.client.wrapError(err, "get pull request")
		if IsNotFound(wrapped) {
			return nil, fmt.Errorf("%w: #%d", ErrPullRequestNotFound, number)
		}
		return nil, wrapped
	}
	s.client.update(resp)

	return pr, nil
}

// ListPullRequests returns PRs matching the filter.
func (s *Service) ListPullRequests(ctx context.Context, filter driven.PullRequestFilter) ([]driven.PullRequest, error) {
	// GitHub only knows open and closed; merged PRs are closed PRs
	// with a merge timestamp.
	state := filter.State
	mergedOnly := false
	switch state {
	case "":
		state = "all"
	case "merged":
		state = "closed"
		mergedOnly = true
	}

	opts := &gh.PullRequestListOptions{
		State:       state,
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var out []driven.PullRequest
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		if err := s.client.wait(ctx); err != nil {
			return nil, err
		}

		prs, resp, err := s.client.gh.PullRequests.List(ctx, s.cfg.Owner, s.cfg.Repo, opts)
		if err != nil {
			return nil, s.client.wrapError(err, "list pull requests")
		}
		s.client.update(resp)

		for _, pr := range prs {
			if mergedOnly && pr.MergedAt == nil {
				continue
			}
			out = append(out, *convertPullRequest(pr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return out, nil
}

// MergePullRequest merges a PR.
func (s *Service) MergePullRequest(ctx context.Context, number int) error {
	if err := s.client.wait(ctx); err != nil {
		return err
	}

	result, resp, err := s.client.gh.PullRequests.Merge(ctx, s.cfg.Owner, s.cfg.Repo, number, "", nil)
	if err != nil {
		return s.client.wrapError(err, "merge pull request")
	}
	s.client.update(resp)

	if !result.GetMerged() {
		return fmt.Errorf("github: merge of #%d not completed: %s", number, result.GetMessage())
	}
	return nil
}

// InverseDiff returns, for each file touched by the PR, the content
// the file had at the PR's base. Files the PR added map to "".
func (s *Service) InverseDiff(ctx context.Context, number int) (map[string]string, error) {
	pr, err := s.getPullRequest(ctx, number)
	if err != nil {
		return nil, err
	}
	baseSHA := pr.GetBase().GetSHA()

	files, err := s.listPullRequestFiles(ctx, number)
	if err != nil {
		return nil, err
	}

	inverse := make(map[string]string, len(files))
	for _, f := range files {
		name := f.GetFilename()
		if f.GetStatus() == "added" {
			inverse[name] = ""
			continue
		}

		// Renames keep their pre-PR content under the old path.
		priorPath := name
		if prev := f.GetPreviousFilename(); prev != "" {
			priorPath = prev
		}

		content, err := s.contentAt(ctx, priorPath, baseSHA)
		if err != nil {
			return nil, err
		}
		inverse[name] = content
	}

	return inverse, nil
}

func (s *Service) listPullRequestFiles(ctx context.Context, number int) ([]*gh.CommitFile, error) {
	opts := &gh.ListOptions{PerPage: 100}

	var all []*gh.CommitFile
	for {
		if err := s.client.wait(ctx); err != nil {
			return nil, err
		}

		files, resp, err := s.client.gh.PullRequests.ListFiles(ctx, s.cfg.Owner, s.cfg.Repo, number, opts)
		if err != nil {
			return nil, s.client.wrapError(err, "list pull request files")
		}
		s.client.update(resp)
		all = append(all, files...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// contentAt fetches a file's decoded content at a specific ref.
func (s *Service) contentAt(ctx context.Context, path, ref string) (string, error) {
	if err := s.client.wait(ctx); err != nil {
		return "", err
	}

	opts := &gh.RepositoryContentGetOptions{Ref: ref}
	fileContent, _, resp, err := s.client.gh.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, path, opts)
	if err != nil {
		return "", s.client.wrapError(err, "get contents")
	}
	s.client.update(resp)

	if fileContent == nil {
		return "", fmt.Errorf("github: %s is a directory", path)
	}

	decoded, err := fileContent.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return decoded, nil
}

// convertPullRequest maps the API shape to the collaborator's view.
func convertPullRequest(pr *gh.PullRequest) *driven.PullRequest {
	if pr == nil {
		return nil
	}

	state := pr.GetState()
	if pr.GetMerged() || pr.MergedAt != nil {
		state = "merged"
	}

	return &driven.PullRequest{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		Body:   pr.GetBody(),
		State:  state,
		Branch: pr.GetHead().GetRef(),
	}
}
