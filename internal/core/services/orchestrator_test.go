package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
)

// stubAssembler returns a fixed bundle.
type stubAssembler struct {
	bundle *domain.ContextBundle
	err    error
}

func (s *stubAssembler) Assemble(_ context.Context, task string, tokenBudget int) (*domain.ContextBundle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.bundle != nil {
		return s.bundle, nil
	}
	return &domain.ContextBundle{Task: task, TokenBudget: tokenBudget}, nil
}

func fastConfig() OrchestratorConfig {
	return OrchestratorConfig{
		CallTimeout:    100 * time.Millisecond,
		OverallTimeout: time.Second,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, providers ...*mockProvider) (*OrchestratorService, *CostLedger, *mockHistory) {
	t.Helper()

	pricing := domain.PricingTable{
		"anthropic": {InputPerMTok: 3.0, OutputPerMTok: 15.0},
		"openai":    {InputPerMTok: 2.5, OutputPerMTok: 10.0},
		"bedrock":   {InputPerMTok: 1.0, OutputPerMTok: 5.0},
	}
	ledger := NewCostLedger("session-1", pricing, nil)
	history := &mockHistory{}

	svc := NewOrchestratorService(providerSlice(providers), &stubAssembler{}, ledger, nil, history, "session-1", fastConfig())
	return svc, ledger, history
}

func providerSlice(mocks []*mockProvider) []driven.AIProvider {
	out := make([]driven.AIProvider, len(mocks))
	for i, m := range mocks {
		out[i] = m
	}
	return out
}

func TestPipelineRunsAllStages(t *testing.T) {
	impl := &mockProvider{id: "anthropic", response: "implementation", inTok: 100, outTok: 50}
	rev := &mockProvider{id: "openai", response: "review notes", inTok: 100, outTok: 50}
	opt := &mockProvider{id: "bedrock", response: "final change", inTok: 100, outTok: 50}

	svc, ledger, _ := newTestOrchestrator(t, impl, rev, opt)

	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "add retry logic"})
	require.NoError(t, err)

	require.Len(t, result.Calls, 3)
	assert.Equal(t, domain.RoleImplementer, result.Calls[0].Role)
	assert.Equal(t, domain.RoleReviewer, result.Calls[1].Role)
	assert.Equal(t, domain.RoleOptimizer, result.Calls[2].Role)
	for _, call := range result.Calls {
		assert.Equal(t, domain.CallOK, call.Status)
	}

	assert.Equal(t, "final change", result.Synthesis)
	assert.Equal(t, "apply", result.RecommendedAction)
	assert.Equal(t, domain.ModePipeline, result.Mode)

	// Each downstream stage sees the prior outputs in its prompt.
	assert.NotContains(t, impl.request(0).Prompt, "Prior stage outputs")
	assert.Contains(t, rev.request(0).Prompt, "implementation")
	assert.Contains(t, opt.request(0).Prompt, "implementation")
	assert.Contains(t, opt.request(0).Prompt, "review notes")

	snap := ledger.Snapshot()
	assert.InDelta(t, result.TotalCostUSD, snap.SessionTotalUSD, 1e-12)
	assert.Positive(t, result.TotalCostUSD)
}

func TestPipelineContinuesPastFailedStage(t *testing.T) {
	impl := &mockProvider{id: "anthropic", response: "implementation", inTok: 10, outTok: 10}
	rev := &mockProvider{id: "openai", err: &domain.ProviderError{
		Provider: "openai", Kind: domain.ProviderAuthFailure, Message: "bad key",
	}}
	opt := &mockProvider{id: "bedrock", response: "final change", inTok: 10, outTok: 10}

	svc, _, _ := newTestOrchestrator(t, impl, rev, opt)

	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	require.Len(t, result.Calls, 3)
	assert.Equal(t, domain.CallError, result.Calls[1].Status)
	assert.Equal(t, domain.CallOK, result.Calls[2].Status)

	// The optimizer still ran, prompted with the implementer output.
	assert.Contains(t, opt.request(0).Prompt, "implementation")
	assert.NotContains(t, opt.request(0).Prompt, "review")

	assert.Equal(t, "final change", result.Synthesis)
	assert.Equal(t, "review", result.RecommendedAction)
}

func TestPipelineRecordsStageTimeout(t *testing.T) {
	impl := &mockProvider{id: "anthropic", response: "implementation", inTok: 10, outTok: 10}
	rev := &mockProvider{id: "openai", delay: 5 * time.Second}
	opt := &mockProvider{id: "bedrock", response: "final change", inTok: 10, outTok: 10}

	svc, _, _ := newTestOrchestrator(t, impl, rev, opt)

	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	require.Len(t, result.Calls, 3)
	assert.Equal(t, domain.CallTimeout, result.Calls[1].Status)
	assert.Equal(t, domain.CallOK, result.Calls[2].Status)
	assert.Equal(t, "final change", result.Synthesis)
}

func TestPipelineWrapsProvidersWhenFewerThanStages(t *testing.T) {
	only := &mockProvider{id: "anthropic", response: "output", inTok: 10, outTok: 10}

	svc, _, _ := newTestOrchestrator(t, only)

	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	require.Len(t, result.Calls, 3)
	assert.Equal(t, 3, only.callCount())
	for _, call := range result.Calls {
		assert.Equal(t, "anthropic", call.Provider)
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	flaky := &mockProvider{
		id:        "anthropic",
		response:  "recovered",
		inTok:     10,
		outTok:    10,
		err:       &domain.ProviderError{Provider: "anthropic", Kind: domain.ProviderTransport, Message: "connection reset"},
		failFirst: 2,
	}

	svc, _, _ := newTestOrchestrator(t, flaky, flaky, flaky)

	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	// The first stage burned two retries before succeeding.
	assert.Equal(t, domain.CallOK, result.Calls[0].Status)
	assert.Equal(t, 5, flaky.callCount())
}

func TestDispatchDoesNotRetryAuthFailures(t *testing.T) {
	broken := &mockProvider{id: "anthropic", err: &domain.ProviderError{
		Provider: "anthropic", Kind: domain.ProviderAuthFailure, Message: "bad key",
	}}

	svc, _, _ := newTestOrchestrator(t, broken, broken, broken)

	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	assert.Equal(t, 3, broken.callCount(), "one attempt per stage, no retries")
	assert.Equal(t, "retry", result.RecommendedAction)
	assert.Empty(t, result.Synthesis)
}

func TestConsensusFansOutConcurrently(t *testing.T) {
	a := &mockProvider{id: "anthropic", response: "approach A", inTok: 10, outTok: 10, delay: 50 * time.Millisecond}
	b := &mockProvider{id: "openai", response: "approach B", inTok: 10, outTok: 10, delay: 50 * time.Millisecond}
	c := &mockProvider{id: "bedrock", response: "approach C", inTok: 10, outTok: 10, delay: 50 * time.Millisecond}

	svc, _, _ := newTestOrchestrator(t, a, b, c)

	start := time.Now()
	result, err := svc.Consensus(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	// Sequential dispatch would take at least 150ms.
	assert.Less(t, time.Since(start), 140*time.Millisecond)

	require.Len(t, result.Calls, 3)
	assert.Equal(t, domain.ModeConsensus, result.Mode)
	for _, call := range result.Calls {
		assert.Equal(t, domain.RoleConsensus, call.Role)
		assert.Equal(t, domain.CallOK, call.Status)
	}

	assert.Contains(t, result.Synthesis, "3 of 3 backends responded")
	assert.Contains(t, result.Synthesis, "approach A")
	assert.Contains(t, result.Synthesis, "approach C")
	assert.Equal(t, "apply", result.RecommendedAction)
}

func TestConsensusReturnsPartialResults(t *testing.T) {
	a := &mockProvider{id: "anthropic", response: "approach A", inTok: 10, outTok: 10}
	b := &mockProvider{id: "openai", delay: 5 * time.Second}
	c := &mockProvider{id: "bedrock", response: "approach C", inTok: 10, outTok: 10}

	svc, _, _ := newTestOrchestrator(t, a, b, c)

	result, err := svc.Consensus(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	require.Len(t, result.Calls, 3)
	assert.Equal(t, domain.CallTimeout, result.Calls[1].Status)

	assert.Contains(t, result.Synthesis, "2 of 3 backends responded")
	assert.NotContains(t, result.Synthesis, "openai")
	assert.Equal(t, "review", result.RecommendedAction)
}

func TestOrchestrateValidation(t *testing.T) {
	svc, _, _ := newTestOrchestrator(t, &mockProvider{id: "anthropic", response: "x"})

	_, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	empty := NewOrchestratorService(nil, &stubAssembler{}, NewCostLedger("s", testPricing(), nil), nil, nil, "s", fastConfig())
	_, err = empty.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	assert.ErrorIs(t, err, domain.ErrNoProviders)
}

func TestLedgerFailureIsFatalToRun(t *testing.T) {
	// "mistral" has no pricing entry, so recording its call fails.
	p := &mockProvider{id: "mistral", response: "x", inTok: 10, outTok: 10}
	ledger := NewCostLedger("session-1", testPricing(), nil)

	svc := NewOrchestratorService(providerSlice([]*mockProvider{p, p, p}), &stubAssembler{}, ledger, nil, nil, "session-1", fastConfig())

	_, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)

	_, err = svc.Consensus(context.Background(), driving.OrchestrateRequest{Task: "task"})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestOrchestratePermissionAnalysis(t *testing.T) {
	code := "resp = client.put_object(Bucket=bucket, Key=key, Body=data)\nclient.send_message(QueueUrl=url, MessageBody=msg)\n"
	p := &mockProvider{id: "anthropic", response: code, inTok: 10, outTok: 10}

	svc, _, _ := newTestOrchestrator(t, p, p, p)

	policy := &domain.PolicyDocument{
		Version:        "2012-10-17",
		AllowedActions: []string{"s3:*"},
	}
	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task", Policy: policy})
	require.NoError(t, err)

	require.NotNil(t, result.Permissions)
	assert.Contains(t, result.Permissions.RequiredActions, "s3:PutObject")
	assert.Contains(t, result.Permissions.RequiredActions, "sqs:SendMessage")
	assert.Equal(t, []string{"sqs:SendMessage"}, result.Permissions.MissingActions)
	assert.Contains(t, result.Permissions.SuggestedPatch, `"sqs:SendMessage"`)
}

func TestOrchestrateEmitsAuditEvents(t *testing.T) {
	p := &mockProvider{id: "anthropic", response: "output", inTok: 10, outTok: 10}

	svc, _, history := newTestOrchestrator(t, p, p, p)

	result, err := svc.Orchestrate(context.Background(), driving.OrchestrateRequest{Task: "task"})
	require.NoError(t, err)

	kinds := history.kinds()
	require.Len(t, kinds, 4, "one orchestration event plus one cost event per call")
	assert.Equal(t, domain.EventOrchestration, kinds[0])
	for _, k := range kinds[1:] {
		assert.Equal(t, domain.EventCost, k)
	}

	events, err := history.List(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, result.ID, events[0].Ref)
}

func TestEstimateCost(t *testing.T) {
	svc, _, _ := newTestOrchestrator(t, &mockProvider{id: "anthropic"})

	est := svc.EstimateCost(10_000, 2_000)
	require.Len(t, est.PerProvider, 3)
	assert.InDelta(t, 0.06, est.PerProvider["anthropic"], 1e-12)
	assert.InDelta(t, est.PerProvider["anthropic"]+est.PerProvider["openai"]+est.PerProvider["bedrock"], est.TotalUSD, 1e-12)
}
