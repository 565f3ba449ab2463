package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

// SearchInput is the input schema for the search tools.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the query to rank corpus chunks against"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 20)"`
}

// SearchOutput is the output schema for the search tools.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single retrieval hit.
type SearchResultOutput struct {
	ChunkID     string  `json:"chunk_id"`
	Path        string  `json:"path"`
	Class       string  `json:"class"`
	StartOffset int     `json:"start_offset"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
}

// AssembleInput is the input schema for the assemble_context tool.
type AssembleInput struct {
	Task        string `json:"task" jsonschema:"the task description to assemble context for"`
	TokenBudget int    `json:"token_budget,omitempty" jsonschema:"token budget for the bundle (default from config)"`
}

// AssembleOutput is the output schema for the assemble_context tool.
type AssembleOutput struct {
	Code        []SelectionOutput `json:"code"`
	Docs        []SelectionOutput `json:"docs"`
	TokensUsed  int               `json:"tokens_used"`
	TokenBudget int               `json:"token_budget"`
}

// SelectionOutput is one file included in a bundle.
type SelectionOutput struct {
	Path   string  `json:"path"`
	Score  float64 `json:"score"`
	Tokens int     `json:"tokens"`
}

// OrchestrateInput is the input schema for the orchestrate tools.
type OrchestrateInput struct {
	Task            string   `json:"task" jsonschema:"the task to dispatch to the AI backends"`
	TokenBudget     int      `json:"token_budget,omitempty" jsonschema:"context bundle token budget (default from config)"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty" jsonschema:"per-backend output token cap"`
	AllowedActions  []string `json:"allowed_actions,omitempty" jsonschema:"policy actions held by the principal; enables permission analysis"`
}

// OrchestrateOutput is the output schema for the orchestrate tools.
type OrchestrateOutput struct {
	ID                string             `json:"id"`
	Mode              string             `json:"mode"`
	Synthesis         string             `json:"synthesis"`
	RecommendedAction string             `json:"recommended_action"`
	TotalCostUSD      float64            `json:"total_cost_usd"`
	Calls             []CallOutput       `json:"calls"`
	Permissions       *PermissionsOutput `json:"permissions,omitempty"`
}

// CallOutput summarises one backend dispatch.
type CallOutput struct {
	Provider     string  `json:"provider"`
	Role         string  `json:"role"`
	Status       string  `json:"status"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// PermissionsOutput is the permission analysis section.
type PermissionsOutput struct {
	RequiredActions []string `json:"required_actions"`
	MissingActions  []string `json:"missing_actions"`
	SuggestedPatch  string   `json:"suggested_patch,omitempty"`
}

// EstimateInput is the input schema for the estimate_cost tool.
type EstimateInput struct {
	InputTokens  int `json:"input_tokens" jsonschema:"hypothetical input token count per backend"`
	OutputTokens int `json:"output_tokens" jsonschema:"hypothetical output token count per backend"`
}

// EstimateOutput is the output schema for the estimate_cost tool.
type EstimateOutput struct {
	PerProvider map[string]float64 `json:"per_provider"`
	TotalUSD    float64            `json:"total_usd"`
}

// IndexOutput is the output schema for the index_corpus tool.
type IndexOutput struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Skipped int `json:"skipped"`
}

// ProposeInput is the input schema for the workflow_propose tool.
type ProposeInput struct {
	OrchestrationID string            `json:"orchestration_id" jsonschema:"the orchestration run the change came from"`
	Title           string            `json:"title" jsonschema:"change title, used for the pull request"`
	Body            string            `json:"body,omitempty" jsonschema:"change description"`
	Files           map[string]string `json:"files" jsonschema:"repo paths mapped to proposed file contents"`
}

// AdvanceInput is the input schema for the workflow_advance tool.
type AdvanceInput struct {
	ID     string `json:"id" jsonschema:"the workflow record ID"`
	Action string `json:"action" jsonschema:"one of branch, commit, open_pr, merge, close"`
}

// RollbackInput is the input schema for the workflow_rollback tool.
type RollbackInput struct {
	ID     string `json:"id" jsonschema:"the workflow record ID"`
	Reason string `json:"reason,omitempty" jsonschema:"why the change is being rolled back"`
}

// WorkflowIDInput addresses one workflow record.
type WorkflowIDInput struct {
	ID string `json:"id" jsonschema:"the workflow record ID"`
}

// WorkflowOutput is the external view of one workflow record.
type WorkflowOutput struct {
	ID               string `json:"id"`
	State            string `json:"state"`
	BranchName       string `json:"branch_name,omitempty"`
	PRNumber         int    `json:"pr_number,omitempty"`
	RollbackPRNumber int    `json:"rollback_pr_number,omitempty"`
	Title            string `json:"title"`
	Files            int    `json:"files"`
}

// WorkflowListOutput is the output schema for the workflow_list tool.
type WorkflowListOutput struct {
	Records []WorkflowOutput `json:"records"`
	Count   int              `json:"count"`
}

// CostsOutput is the output schema for the session_costs tool.
type CostsOutput struct {
	SessionID       string          `json:"session_id"`
	Providers       []ProviderCosts `json:"providers"`
	SessionTotalUSD float64         `json:"session_total_usd"`
}

// ProviderCosts is one provider's share of the session spend.
type ProviderCosts struct {
	Provider     string  `json:"provider"`
	CallCount    int     `json:"call_count"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_code",
		Description: "Rank indexed code chunks against a query",
	}, s.handleSearchCode)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Rank indexed documentation chunks against a query",
	}, s.handleSearchDocs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "assemble_context",
		Description: "Assemble a token-budgeted context bundle for a task",
	}, s.handleAssemble)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "orchestrate",
		Description: "Run the implementer, reviewer, optimizer pipeline for a task",
	}, s.handleOrchestrate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "orchestrate_consensus",
		Description: "Dispatch the task to all backends concurrently and synthesise the responses",
	}, s.handleConsensus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "estimate_cost",
		Description: "Project per-backend cost for hypothetical token counts without dispatching",
	}, s.handleEstimate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_corpus",
		Description: "Index every file of the configured corpus",
	}, s.handleIndex)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "workflow_propose",
		Description: "Create a change proposal from an orchestration output",
	}, s.handlePropose)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "workflow_advance",
		Description: "Advance a workflow record one state (branch, commit, open_pr, merge, close)",
	}, s.handleAdvance)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "workflow_rollback",
		Description: "Open an inverse-diff pull request reverting a merged change",
	}, s.handleRollback)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "workflow_status",
		Description: "Return the current state of a workflow record",
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "workflow_list",
		Description: "List all workflow records",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "session_costs",
		Description: "Return the session's exact per-provider spend",
	}, s.handleCosts)
}

func (s *Server) search(ctx context.Context, input SearchInput, class domain.ContentClass) (SearchOutput, error) {
	opts := driving.SearchOptions{Limit: input.Limit, Class: class}
	results, err := s.ports.Retrieval.Search(ctx, input.Query, opts)
	if err != nil {
		return SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			ChunkID:     results[i].Chunk.ID,
			Path:        results[i].Chunk.Path,
			Class:       string(results[i].Chunk.Class),
			StartOffset: results[i].Chunk.StartOffset,
			Score:       results[i].Score,
			Content:     results[i].Chunk.Content,
		}
	}
	return output, nil
}

func (s *Server) handleSearchCode(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	output, err := s.search(ctx, input, domain.ClassCode)
	return nil, output, err
}

func (s *Server) handleSearchDocs(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	output, err := s.search(ctx, input, domain.ClassDoc)
	return nil, output, err
}

func (s *Server) handleAssemble(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AssembleInput,
) (*mcp.CallToolResult, AssembleOutput, error) {
	bundle, err := s.ports.Context.Assemble(ctx, input.Task, input.TokenBudget)
	if err != nil {
		return nil, AssembleOutput{}, err
	}

	output := AssembleOutput{
		Code:        make([]SelectionOutput, len(bundle.Code)),
		Docs:        make([]SelectionOutput, len(bundle.Docs)),
		TokensUsed:  bundle.TokensUsed,
		TokenBudget: bundle.TokenBudget,
	}
	for i, sel := range bundle.Code {
		output.Code[i] = SelectionOutput{Path: sel.Path, Score: sel.Score, Tokens: sel.Tokens}
	}
	for i, sel := range bundle.Docs {
		output.Docs[i] = SelectionOutput{Path: sel.Path, Score: sel.Score, Tokens: sel.Tokens}
	}
	return nil, output, nil
}

func orchestrateRequest(input OrchestrateInput) driving.OrchestrateRequest {
	req := driving.OrchestrateRequest{
		Task:            input.Task,
		TokenBudget:     input.TokenBudget,
		MaxOutputTokens: input.MaxOutputTokens,
	}
	if len(input.AllowedActions) > 0 {
		req.Policy = &domain.PolicyDocument{
			Version:        "2012-10-17",
			AllowedActions: input.AllowedActions,
		}
	}
	return req
}

func orchestrateOutput(result *domain.OrchestrationResult) OrchestrateOutput {
	output := OrchestrateOutput{
		ID:                result.ID,
		Mode:              string(result.Mode),
		Synthesis:         result.Synthesis,
		RecommendedAction: result.RecommendedAction,
		TotalCostUSD:      result.TotalCostUSD,
		Calls:             make([]CallOutput, len(result.Calls)),
	}
	for i, call := range result.Calls {
		output.Calls[i] = CallOutput{
			Provider:     call.Provider,
			Role:         call.Role,
			Status:       string(call.Status),
			InputTokens:  call.InputTokens,
			OutputTokens: call.OutputTokens,
			CostUSD:      call.CostUSD,
		}
	}
	if result.Permissions != nil {
		output.Permissions = &PermissionsOutput{
			RequiredActions: result.Permissions.RequiredActions,
			MissingActions:  result.Permissions.MissingActions,
			SuggestedPatch:  result.Permissions.SuggestedPatch,
		}
	}
	return output
}

func (s *Server) handleOrchestrate(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input OrchestrateInput,
) (*mcp.CallToolResult, OrchestrateOutput, error) {
	result, err := s.ports.Orchestrator.Orchestrate(ctx, orchestrateRequest(input))
	if err != nil {
		return nil, OrchestrateOutput{}, err
	}
	return nil, orchestrateOutput(result), nil
}

func (s *Server) handleConsensus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input OrchestrateInput,
) (*mcp.CallToolResult, OrchestrateOutput, error) {
	result, err := s.ports.Orchestrator.Consensus(ctx, orchestrateRequest(input))
	if err != nil {
		return nil, OrchestrateOutput{}, err
	}
	return nil, orchestrateOutput(result), nil
}

func (s *Server) handleEstimate(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input EstimateInput,
) (*mcp.CallToolResult, EstimateOutput, error) {
	estimate := s.ports.Orchestrator.EstimateCost(input.InputTokens, input.OutputTokens)
	return nil, EstimateOutput{
		PerProvider: estimate.PerProvider,
		TotalUSD:    estimate.TotalUSD,
	}, nil
}

func (s *Server) handleIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, IndexOutput, error) {
	stats, err := s.ports.Indexer.IndexCorpus(ctx)
	if err != nil {
		return nil, IndexOutput{}, err
	}
	return nil, IndexOutput{
		Files:   stats.Files,
		Chunks:  stats.Chunks,
		Skipped: stats.Skipped,
	}, nil
}

func workflowOutput(record *domain.WorkflowRecord) WorkflowOutput {
	return WorkflowOutput{
		ID:               record.ID,
		State:            string(record.State),
		BranchName:       record.BranchName,
		PRNumber:         record.PRNumber,
		RollbackPRNumber: record.RollbackPRNumber,
		Title:            record.Title,
		Files:            len(record.Files),
	}
}

func (s *Server) handlePropose(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ProposeInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	record, err := s.ports.Workflow.Propose(ctx, driving.ProposeRequest{
		OrchestrationID: input.OrchestrationID,
		Title:           input.Title,
		Body:            input.Body,
		Files:           input.Files,
	})
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	return nil, workflowOutput(record), nil
}

func (s *Server) handleAdvance(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AdvanceInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	var (
		record *domain.WorkflowRecord
		err    error
	)

	switch input.Action {
	case "branch":
		record, err = s.ports.Workflow.CreateBranch(ctx, input.ID)
	case "commit":
		record, err = s.ports.Workflow.CommitFiles(ctx, input.ID)
	case "open_pr":
		record, err = s.ports.Workflow.OpenPullRequest(ctx, input.ID)
	case "merge":
		record, err = s.ports.Workflow.Merge(ctx, input.ID)
	case "close":
		record, err = s.ports.Workflow.Close(ctx, input.ID)
	default:
		return nil, WorkflowOutput{}, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, input.Action)
	}
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	return nil, workflowOutput(record), nil
}

func (s *Server) handleRollback(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RollbackInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	record, err := s.ports.Workflow.Rollback(ctx, input.ID, input.Reason)
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	return nil, workflowOutput(record), nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WorkflowIDInput,
) (*mcp.CallToolResult, WorkflowOutput, error) {
	record, err := s.ports.Workflow.Get(ctx, input.ID)
	if err != nil {
		return nil, WorkflowOutput{}, err
	}
	return nil, workflowOutput(record), nil
}

func (s *Server) handleList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, WorkflowListOutput, error) {
	records, err := s.ports.Workflow.List(ctx)
	if err != nil {
		return nil, WorkflowListOutput{}, err
	}

	output := WorkflowListOutput{
		Records: make([]WorkflowOutput, len(records)),
		Count:   len(records),
	}
	for i := range records {
		output.Records[i] = workflowOutput(&records[i])
	}
	return nil, output, nil
}

func (s *Server) handleCosts(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, CostsOutput, error) {
	snapshot := s.ports.Ledger.Snapshot()

	output := CostsOutput{
		SessionID:       snapshot.SessionID,
		Providers:       make([]ProviderCosts, len(snapshot.Entries)),
		SessionTotalUSD: snapshot.SessionTotalUSD,
	}
	for i, entry := range snapshot.Entries {
		output.Providers[i] = ProviderCosts{
			Provider:     entry.Provider,
			CallCount:    entry.CallCount,
			TotalCostUSD: entry.TotalCostUSD,
		}
	}
	return nil, output, nil
}
