package cli

import (
	"context"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

// mockRetrieval is a mock implementation of driving.RetrievalService.
type mockRetrieval struct {
	results  []driving.SearchResult
	lastOpts driving.SearchOptions
	err      error
}

func (m *mockRetrieval) Search(
	_ context.Context, _ string, opts driving.SearchOptions,
) ([]driving.SearchResult, error) {
	m.lastOpts = opts
	return m.results, m.err
}

// mockContext is a mock implementation of driving.ContextService.
type mockContext struct {
	bundle *domain.ContextBundle
	err    error
}

func (m *mockContext) Assemble(_ context.Context, task string, tokenBudget int) (*domain.ContextBundle, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.bundle != nil {
		return m.bundle, nil
	}
	return &domain.ContextBundle{Task: task, TokenBudget: tokenBudget}, nil
}

// mockOrchestrator is a mock implementation of driving.OrchestratorService.
type mockOrchestrator struct {
	result   *domain.OrchestrationResult
	estimate driving.CostEstimate
	lastReq  driving.OrchestrateRequest
	lastMode domain.DispatchMode
	err      error
}

func (m *mockOrchestrator) Orchestrate(_ context.Context, req driving.OrchestrateRequest) (*domain.OrchestrationResult, error) {
	m.lastReq = req
	m.lastMode = domain.ModePipeline
	return m.result, m.err
}

func (m *mockOrchestrator) Consensus(_ context.Context, req driving.OrchestrateRequest) (*domain.OrchestrationResult, error) {
	m.lastReq = req
	m.lastMode = domain.ModeConsensus
	return m.result, m.err
}

func (m *mockOrchestrator) EstimateCost(_, _ int) driving.CostEstimate {
	return m.estimate
}

// mockWorkflow is a mock implementation of driving.WorkflowService.
type mockWorkflow struct {
	record     *domain.WorkflowRecord
	records    []domain.WorkflowRecord
	lastAction string
	err        error
}

func (m *mockWorkflow) step(action string) (*domain.WorkflowRecord, error) {
	m.lastAction = action
	return m.record, m.err
}

func (m *mockWorkflow) Propose(_ context.Context, _ driving.ProposeRequest) (*domain.WorkflowRecord, error) {
	return m.step("propose")
}

func (m *mockWorkflow) CreateBranch(_ context.Context, _ string) (*domain.WorkflowRecord, error) {
	return m.step("branch")
}

func (m *mockWorkflow) CommitFiles(_ context.Context, _ string) (*domain.WorkflowRecord, error) {
	return m.step("commit")
}

func (m *mockWorkflow) OpenPullRequest(_ context.Context, _ string) (*domain.WorkflowRecord, error) {
	return m.step("open_pr")
}

func (m *mockWorkflow) Merge(_ context.Context, _ string) (*domain.WorkflowRecord, error) {
	return m.step("merge")
}

func (m *mockWorkflow) Close(_ context.Context, _ string) (*domain.WorkflowRecord, error) {
	return m.step("close")
}

func (m *mockWorkflow) Rollback(_ context.Context, _, _ string) (*domain.WorkflowRecord, error) {
	return m.step("rollback")
}

func (m *mockWorkflow) Get(_ context.Context, _ string) (*domain.WorkflowRecord, error) {
	return m.record, m.err
}

func (m *mockWorkflow) List(_ context.Context) ([]domain.WorkflowRecord, error) {
	return m.records, m.err
}

// mockIndexer is a mock implementation of driving.IndexerService.
type mockIndexer struct {
	stats *driving.IndexStats
	err   error
}

func (m *mockIndexer) IndexCorpus(_ context.Context) (*driving.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockIndexer) IndexPath(_ context.Context, _ string) (*driving.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockIndexer) Watch(_ context.Context) error {
	return m.err
}

// mockLedger is a mock implementation of driving.LedgerReader.
type mockLedger struct {
	snapshot domain.LedgerSnapshot
	reset    bool
	err      error
}

func (m *mockLedger) Snapshot() domain.LedgerSnapshot {
	return m.snapshot
}

func (m *mockLedger) Reset(_ context.Context) error {
	m.reset = true
	return m.err
}

// setupTestServices installs fresh mocks and returns a cleanup that
// restores the previous wiring.
func setupTestServices() func() {
	prev := Services{
		Retrieval:    retrievalService,
		Context:      contextService,
		Orchestrator: orchestratorService,
		Workflow:     workflowService,
		Indexer:      indexerService,
		Ledger:       ledgerReader,
	}

	SetServices(Services{
		Retrieval:    &mockRetrieval{},
		Context:      &mockContext{},
		Orchestrator: &mockOrchestrator{result: &domain.OrchestrationResult{ID: "orch-1", Mode: domain.ModePipeline, RecommendedAction: "apply"}},
		Workflow:     &mockWorkflow{record: &domain.WorkflowRecord{ID: "wf-1", State: domain.StateProposed, Title: "Add retry"}},
		Indexer:      &mockIndexer{stats: &driving.IndexStats{Files: 3, Chunks: 9}},
		Ledger:       &mockLedger{snapshot: domain.LedgerSnapshot{SessionID: "session-1"}},
	})

	return func() { SetServices(prev) }
}
