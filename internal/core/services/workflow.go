package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// Ensure WorkflowService implements the interface.
var _ driving.WorkflowService = (*WorkflowService)(nil)

// DefaultBaseBranch is the branch proposals fork from.
const DefaultBaseBranch = "main"

// WorkflowService drives change proposals through the branch → commit →
// PR → merge/rollback state machine. It is the only writer of workflow
// state, and serialises transitions per record so concurrent attempts
// on the same record cannot interleave.
type WorkflowService struct {
	repo       driven.RepositoryService
	store      driven.WorkflowStore
	history    driven.HistoryStore
	sessionID  string
	baseBranch string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWorkflowService creates a new workflow engine. The history store
// is optional (can be nil).
func NewWorkflowService(
	repo driven.RepositoryService,
	store driven.WorkflowStore,
	history driven.HistoryStore,
	sessionID string,
	baseBranch string,
) *WorkflowService {
	if baseBranch == "" {
		baseBranch = DefaultBaseBranch
	}
	return &WorkflowService{
		repo:       repo,
		store:      store,
		history:    history,
		sessionID:  sessionID,
		baseBranch: baseBranch,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Propose creates a record in the Proposed state.
func (s *WorkflowService) Propose(ctx context.Context, req driving.ProposeRequest) (*domain.WorkflowRecord, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: proposal has no files", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	rec := &domain.WorkflowRecord{
		ID:              uuid.New().String(),
		State:           domain.StateProposed,
		OrchestrationID: req.OrchestrationID,
		Title:           req.Title,
		Body:            req.Body,
		Files:           req.Files,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	logger.Info("Proposed workflow %s (%d files)", rec.ID, len(rec.Files))
	s.emitWorkflowEvent(ctx, rec, "proposed")
	return rec, nil
}

// CreateBranch advances Proposed → BranchCreated. State only moves
// after the repository collaborator confirms the branch exists.
func (s *WorkflowService) CreateBranch(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	return s.step(ctx, id, domain.StateBranchCreated, func(rec *domain.WorkflowRecord) (string, error) {
		branch := fmt.Sprintf("forge/%s", rec.ID[:8])
		if err := s.repo.CreateBranch(ctx, s.baseBranch, branch); err != nil {
			return "", fmt.Errorf("create branch %s: %w", branch, err)
		}
		rec.BranchName = branch
		return "branch " + branch, nil
	})
}

// CommitFiles advances BranchCreated → FilesCommitted. A repository
// failure leaves the record at BranchCreated so the commit can be
// retried without re-creating the branch.
func (s *WorkflowService) CommitFiles(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	return s.step(ctx, id, domain.StateFilesCommitted, func(rec *domain.WorkflowRecord) (string, error) {
		for path, content := range rec.Files {
			message := fmt.Sprintf("%s: %s", rec.Title, path)
			if err := s.repo.CommitFile(ctx, rec.BranchName, path, content, message); err != nil {
				return "", fmt.Errorf("commit %s: %w", path, err)
			}
		}
		return fmt.Sprintf("%d files committed", len(rec.Files)), nil
	})
}

// OpenPullRequest advances FilesCommitted → PROpened.
func (s *WorkflowService) OpenPullRequest(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	return s.step(ctx, id, domain.StatePROpened, func(rec *domain.WorkflowRecord) (string, error) {
		pr, err := s.repo.OpenPullRequest(ctx, rec.BranchName, rec.Title, rec.Body)
		if err != nil {
			return "", fmt.Errorf("open pull request: %w", err)
		}
		rec.PRNumber = pr.Number
		return fmt.Sprintf("PR #%d opened", pr.Number), nil
	})
}

// Merge advances PROpened → Merged.
func (s *WorkflowService) Merge(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	return s.step(ctx, id, domain.StateMerged, func(rec *domain.WorkflowRecord) (string, error) {
		if err := s.repo.MergePullRequest(ctx, rec.PRNumber); err != nil {
			return "", fmt.Errorf("merge PR #%d: %w", rec.PRNumber, err)
		}
		return fmt.Sprintf("PR #%d merged", rec.PRNumber), nil
	})
}

// Close advances PROpened → Closed without merging.
func (s *WorkflowService) Close(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	return s.step(ctx, id, domain.StateClosed, func(rec *domain.WorkflowRecord) (string, error) {
		return fmt.Sprintf("PR #%d closed without merge", rec.PRNumber), nil
	})
}

// Rollback opens an inverse-diff PR referencing the original and
// advances Merged → RolledBack. Any other state is rejected with the
// specific reason and no mutation is performed.
func (s *WorkflowService) Rollback(ctx context.Context, id, reason string) (*domain.WorkflowRecord, error) {
	lock := s.recordLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}

	if rec.State != domain.StateMerged {
		return nil, &domain.WorkflowError{
			RecordID: rec.ID,
			From:     rec.State,
			To:       domain.StateRolledBack,
			Reason:   rollbackRejection(rec.State),
		}
	}

	inverse, err := s.repo.InverseDiff(ctx, rec.PRNumber)
	if err != nil {
		return nil, fmt.Errorf("build inverse diff for PR #%d: %w", rec.PRNumber, err)
	}

	branch := fmt.Sprintf("forge/rollback-%s", rec.ID[:8])
	if err := s.repo.CreateBranch(ctx, s.baseBranch, branch); err != nil {
		return nil, fmt.Errorf("create rollback branch: %w", err)
	}

	for path, content := range inverse {
		message := fmt.Sprintf("Revert %s (PR #%d)", path, rec.PRNumber)
		if err := s.repo.CommitFile(ctx, branch, path, content, message); err != nil {
			return nil, fmt.Errorf("commit rollback of %s: %w", path, err)
		}
	}

	title := fmt.Sprintf("Revert PR #%d: %s", rec.PRNumber, rec.Title)
	body := fmt.Sprintf("Rolls back PR #%d.\n\nReason: %s", rec.PRNumber, reason)
	pr, err := s.repo.OpenPullRequest(ctx, branch, title, body)
	if err != nil {
		return nil, fmt.Errorf("open rollback PR: %w", err)
	}

	note := fmt.Sprintf("rollback PR #%d (%s)", pr.Number, reason)
	if err := rec.Transition(domain.StateRolledBack, note, time.Now().UTC()); err != nil {
		return nil, err
	}
	rec.RollbackPRNumber = pr.Number

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save workflow %s: %w", id, err)
	}

	logger.Info("Workflow %s rolled back via PR #%d", rec.ID, pr.Number)
	s.emitWorkflowEvent(ctx, rec, note)
	return rec, nil
}

// Get returns a record by ID.
func (s *WorkflowService) Get(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	return s.store.Get(ctx, id)
}

// List returns all records.
func (s *WorkflowService) List(ctx context.Context) ([]domain.WorkflowRecord, error) {
	return s.store.List(ctx)
}

// step serialises one transition: load the record, run the repository
// action, and advance only after the action confirms. A failed action
// leaves the record exactly where it was.
func (s *WorkflowService) step(
	ctx context.Context, id string, to domain.WorkflowState,
	action func(*domain.WorkflowRecord) (string, error),
) (*domain.WorkflowRecord, error) {
	lock := s.recordLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}

	// Validate the edge before touching the repository, so a disallowed
	// transition never causes side effects.
	if !domain.CanTransition(rec.State, to) {
		return nil, &domain.WorkflowError{
			RecordID: rec.ID,
			From:     rec.State,
			To:       to,
			Reason:   "transition not allowed",
		}
	}

	note, err := action(rec)
	if err != nil {
		return nil, err
	}

	if err := rec.Transition(to, note, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save workflow %s: %w", id, err)
	}

	logger.Info("Workflow %s: %s", rec.ID, note)
	s.emitWorkflowEvent(ctx, rec, note)
	return rec, nil
}

// recordLock returns the per-record mutex, creating it on first use.
func (s *WorkflowService) recordLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// rollbackRejection names the reason rollback is not allowed from a
// state.
func rollbackRejection(state domain.WorkflowState) string {
	switch state {
	case domain.StateRolledBack:
		return "already rolled back"
	case domain.StateClosed:
		return "closed without merge"
	default:
		return "not yet merged"
	}
}

// emitWorkflowEvent appends a workflow audit event. Best effort.
func (s *WorkflowService) emitWorkflowEvent(ctx context.Context, rec *domain.WorkflowRecord, note string) {
	if s.history == nil {
		return
	}
	event := domain.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      domain.EventWorkflow,
		Timestamp: time.Now().UTC(),
		SessionID: s.sessionID,
		Ref:       rec.ID,
		Payload: map[string]any{
			"state":  string(rec.State),
			"branch": rec.BranchName,
			"pr":     rec.PRNumber,
			"note":   note,
		},
	}
	if err := s.history.Append(ctx, event); err != nil {
		logger.Warn("Append workflow event: %v", err)
	}
}
