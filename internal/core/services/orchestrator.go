package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// Ensure OrchestratorService implements the interface.
var _ driving.OrchestratorService = (*OrchestratorService)(nil)

// Default orchestration configuration.
const (
	// DefaultCallTimeout bounds each individual backend call.
	DefaultCallTimeout = 60 * time.Second

	// DefaultOverallTimeout bounds a whole orchestration run.
	DefaultOverallTimeout = 5 * time.Minute

	// DefaultMaxAttempts caps retries for transient provider failures.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the initial backoff delay; it doubles per
	// attempt.
	DefaultRetryDelay = time.Second

	// DefaultMaxOutputTokens caps backend output when the caller
	// passes 0.
	DefaultMaxOutputTokens = 2048
)

// System prompts per pipeline role.
var roleSystemPrompts = map[string]string{
	domain.RoleImplementer: "You are the implementer. Produce a complete, working code change for the task using the provided context.",
	domain.RoleReviewer:    "You are the reviewer. Critique the implementer's change for correctness, safety and style, and list concrete fixes.",
	domain.RoleOptimizer:   "You are the optimizer. Produce the final change, applying the review feedback and simplifying where possible.",
	domain.RoleConsensus:   "You are an independent expert. Produce a complete, working code change for the task using the provided context.",
}

// OrchestratorConfig holds dispatch parameters.
type OrchestratorConfig struct {
	// CallTimeout bounds each backend call.
	CallTimeout time.Duration

	// OverallTimeout bounds a whole run; outstanding consensus calls
	// are cancelled and recorded as timeouts when it expires.
	OverallTimeout time.Duration

	// MaxAttempts caps retries for transient failures.
	MaxAttempts int

	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration

	// MaxOutputTokens is the default per-call output cap.
	MaxOutputTokens int
}

// withDefaults fills zero values with the package defaults.
func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = DefaultOverallTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return c
}

// OrchestratorService dispatches context bundles to the configured AI
// backends in pipeline or consensus mode, records every attempt, and
// feeds completed calls into the cost ledger.
type OrchestratorService struct {
	providers []driven.AIProvider
	assembler driving.ContextService
	ledger    *CostLedger
	analyzer  *PermissionAnalyzer
	history   driven.HistoryStore
	sessionID string
	cfg       OrchestratorConfig
}

// NewOrchestratorService creates a new orchestrator. The history store
// is optional (can be nil).
func NewOrchestratorService(
	providers []driven.AIProvider,
	assembler driving.ContextService,
	ledger *CostLedger,
	analyzer *PermissionAnalyzer,
	history driven.HistoryStore,
	sessionID string,
	cfg OrchestratorConfig,
) *OrchestratorService {
	if analyzer == nil {
		analyzer = NewPermissionAnalyzer(nil)
	}
	return &OrchestratorService{
		providers: providers,
		assembler: assembler,
		ledger:    ledger,
		analyzer:  analyzer,
		history:   history,
		sessionID: sessionID,
		cfg:       cfg.withDefaults(),
	}
}

// Orchestrate runs the implementer → reviewer → optimizer pipeline.
// Stages are strictly sequential; a failed stage is recorded and
// downstream stages run against the last successful output.
func (s *OrchestratorService) Orchestrate(
	ctx context.Context, req driving.OrchestrateRequest,
) (*domain.OrchestrationResult, error) {
	logger.Section("Pipeline Orchestration")

	bundle, result, err := s.begin(ctx, req, domain.ModePipeline)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout)
	defer cancel()

	bundleText := renderBundle(bundle)
	var priorOutputs []string

	for i, role := range domain.PipelineRoles {
		provider := s.providers[i%len(s.providers)]

		prompt := buildPrompt(req.Task, priorOutputs)
		call, err := s.dispatch(ctx, provider, role, prompt, bundleText, s.maxOutput(req))
		if err != nil {
			return nil, err
		}
		result.Calls = append(result.Calls, call)

		if call.Succeeded() {
			priorOutputs = append(priorOutputs, fmt.Sprintf("[%s] %s", role, call.Response))
		} else {
			logger.Warn("Stage %s failed (%s); downstream stages continue", role, call.Status)
		}
	}

	s.finish(ctx, req, result, pipelineSynthesis(result.Calls))
	return result, nil
}

// Consensus dispatches every backend concurrently against the
// identical task and bundle, then synthesises the successes. Partial
// results are returned rather than failing the whole request.
func (s *OrchestratorService) Consensus(
	ctx context.Context, req driving.OrchestrateRequest,
) (*domain.OrchestrationResult, error) {
	logger.Section("Consensus Orchestration")

	bundle, result, err := s.begin(ctx, req, domain.ModeConsensus)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout)
	defer cancel()

	bundleText := renderBundle(bundle)
	prompt := buildPrompt(req.Task, nil)

	calls := make([]domain.ProviderCall, len(s.providers))
	errs := make([]error, len(s.providers))
	var wg sync.WaitGroup
	for i, provider := range s.providers {
		wg.Add(1)
		go func(i int, p driven.AIProvider) {
			defer wg.Done()
			calls[i], errs[i] = s.dispatch(ctx, p, domain.RoleConsensus, prompt, bundleText, s.maxOutput(req))
		}(i, provider)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	result.Calls = calls
	s.finish(ctx, req, result, consensusSynthesis(calls))
	return result, nil
}

// EstimateCost projects the cost of hypothetical token counts without
// dispatching anything or mutating the ledger.
func (s *OrchestratorService) EstimateCost(inputTokens, outputTokens int) driving.CostEstimate {
	perProvider := s.ledger.Estimate(inputTokens, outputTokens)
	total := 0.0
	for _, cost := range perProvider {
		total += cost
	}
	return driving.CostEstimate{PerProvider: perProvider, TotalUSD: total}
}

// begin validates the request, assembles the bundle and opens a result.
func (s *OrchestratorService) begin(
	ctx context.Context, req driving.OrchestrateRequest, mode domain.DispatchMode,
) (*domain.ContextBundle, *domain.OrchestrationResult, error) {
	if len(s.providers) == 0 {
		return nil, nil, domain.ErrNoProviders
	}
	if strings.TrimSpace(req.Task) == "" {
		return nil, nil, fmt.Errorf("%w: empty task", domain.ErrInvalidInput)
	}

	bundle, err := s.assembler.Assemble(ctx, req.Task, req.TokenBudget)
	if err != nil {
		return nil, nil, fmt.Errorf("assemble context: %w", err)
	}

	result := &domain.OrchestrationResult{
		ID:        uuid.New().String(),
		Task:      req.Task,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
	return bundle, result, nil
}

// maxOutput resolves the per-call output cap.
func (s *OrchestratorService) maxOutput(req driving.OrchestrateRequest) int {
	if req.MaxOutputTokens > 0 {
		return req.MaxOutputTokens
	}
	return s.cfg.MaxOutputTokens
}

// dispatch runs one backend call under the per-call timeout, retrying
// transient failures with bounded exponential backoff, and returns the
// immutable call record. Completed calls are fed to the cost ledger; a
// ledger failure is returned as an error and ends the session.
func (s *OrchestratorService) dispatch(
	ctx context.Context, provider driven.AIProvider, role, prompt, bundleText string, maxOutput int,
) (domain.ProviderCall, error) {
	call := domain.ProviderCall{
		Provider:  provider.ID(),
		Model:     provider.ModelName(),
		Role:      role,
		StartedAt: time.Now().UTC(),
	}

	genReq := driven.GenerateRequest{
		SystemRole:      roleSystemPrompts[role],
		Prompt:          prompt,
		Context:         bundleText,
		MaxOutputTokens: maxOutput,
	}

	var (
		res *driven.GenerateResult
		err error
	)

	delay := s.cfg.RetryDelay
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		res, err = provider.Generate(callCtx, genReq)
		cancel()

		if err == nil {
			break
		}

		var provErr *domain.ProviderError
		transient := errors.As(err, &provErr) && provErr.Transient()
		if !transient || attempt == s.cfg.MaxAttempts {
			break
		}

		logger.Warn("%s attempt %d failed (%v), retrying in %s", provider.ID(), attempt, err, delay)
		select {
		case <-ctx.Done():
			err = classifyContextError(provider.ID(), ctx.Err())
			attempt = s.cfg.MaxAttempts
		case <-time.After(delay):
			delay *= 2
		}
	}

	call.Duration = time.Since(call.StartedAt)

	if err != nil {
		call.Status = domain.CallError
		var provErr *domain.ProviderError
		if errors.As(err, &provErr) && provErr.Kind == domain.ProviderTimeout {
			call.Status = domain.CallTimeout
		} else if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			call.Status = domain.CallTimeout
		}
		call.Err = err.Error()
		return call, nil
	}

	call.Status = domain.CallOK
	call.Response = res.Text
	call.InputTokens = res.InputTokens
	call.OutputTokens = res.OutputTokens

	cost, costErr := s.ledger.Record(ctx, call.Provider, call.InputTokens, call.OutputTokens)
	if costErr != nil {
		// Ledger consistency cannot be guessed; the run ends here.
		return call, fmt.Errorf("record cost for %s: %w", call.Provider, costErr)
	}
	call.CostUSD = cost
	return call, nil
}

// finish computes totals, runs the permission analysis and emits audit
// events.
func (s *OrchestratorService) finish(
	ctx context.Context, req driving.OrchestrateRequest, result *domain.OrchestrationResult, synthesis string,
) {
	result.Duration = time.Since(result.StartedAt)
	result.Synthesis = synthesis

	for _, call := range result.Calls {
		result.TotalCostUSD += call.CostUSD
	}

	succeeded := len(result.SucceededCalls())
	switch {
	case succeeded == len(result.Calls):
		result.RecommendedAction = "apply"
	case succeeded > 0:
		result.RecommendedAction = "review"
	default:
		result.RecommendedAction = "retry"
	}

	if req.Policy != nil {
		analysis := s.analyzer.Analyze(generatedCode(result), *req.Policy)
		result.Permissions = &analysis
		if !analysis.Clean() {
			logger.Info("Permission diff: %d missing actions", len(analysis.MissingActions))
		}
	}

	s.emitOrchestrationEvents(ctx, result)
	logger.Info("Orchestration %s: %d/%d calls succeeded, $%.6f",
		result.ID, succeeded, len(result.Calls), result.TotalCostUSD)
}

// generatedCode concatenates the successful responses for the
// permission scan.
func generatedCode(result *domain.OrchestrationResult) string {
	var b strings.Builder
	for _, call := range result.SucceededCalls() {
		b.WriteString(call.Response)
		b.WriteString("\n")
	}
	return b.String()
}

// pipelineSynthesis picks the last successful stage output as the
// final recommendation.
func pipelineSynthesis(calls []domain.ProviderCall) string {
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Succeeded() {
			return calls[i].Response
		}
	}
	return ""
}

// consensusSynthesis combines the successful responses into an
// agreement summary plus the union of suggestions.
func consensusSynthesis(calls []domain.ProviderCall) string {
	succeeded := make([]domain.ProviderCall, 0, len(calls))
	for _, c := range calls {
		if c.Succeeded() {
			succeeded = append(succeeded, c)
		}
	}
	if len(succeeded) == 0 {
		return ""
	}

	sort.Slice(succeeded, func(i, j int) bool {
		return succeeded[i].Provider < succeeded[j].Provider
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d backends responded.\n\n", len(succeeded), len(calls))
	for _, c := range succeeded {
		fmt.Fprintf(&b, "--- %s (%s) ---\n%s\n\n", c.Provider, c.Model, c.Response)
	}
	return strings.TrimSpace(b.String())
}

// buildPrompt renders the task plus prior stage outputs.
func buildPrompt(task string, priorOutputs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task)
	if len(priorOutputs) > 0 {
		b.WriteString("\nPrior stage outputs:\n")
		for _, out := range priorOutputs {
			b.WriteString(out)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderBundle flattens a bundle into prompt context text.
func renderBundle(bundle *domain.ContextBundle) string {
	var b strings.Builder
	for _, sel := range bundle.Code {
		fmt.Fprintf(&b, "// file: %s\n%s\n\n", sel.Path, sel.Content)
	}
	for _, sel := range bundle.Docs {
		fmt.Fprintf(&b, "// doc: %s\n%s\n\n", sel.Path, sel.Content)
	}
	return b.String()
}

// classifyContextError maps a cancelled dispatch context to a provider
// error.
func classifyContextError(provider string, err error) error {
	return &domain.ProviderError{
		Provider: provider,
		Kind:     domain.ProviderTimeout,
		Message:  "orchestration timeout",
		Err:      err,
	}
}

// emitOrchestrationEvents appends orchestration and cost audit events.
// Best effort; history never gates the result.
func (s *OrchestratorService) emitOrchestrationEvents(ctx context.Context, result *domain.OrchestrationResult) {
	if s.history == nil {
		return
	}

	events := []domain.AuditEvent{{
		ID:        uuid.New().String(),
		Kind:      domain.EventOrchestration,
		Timestamp: time.Now().UTC(),
		SessionID: s.sessionID,
		Ref:       result.ID,
		Payload: map[string]any{
			"mode":     string(result.Mode),
			"task":     result.Task,
			"calls":    len(result.Calls),
			"action":   result.RecommendedAction,
			"cost_usd": result.TotalCostUSD,
		},
	}}

	for _, call := range result.Calls {
		if !call.Succeeded() {
			continue
		}
		events = append(events, domain.AuditEvent{
			ID:        uuid.New().String(),
			Kind:      domain.EventCost,
			Timestamp: time.Now().UTC(),
			SessionID: s.sessionID,
			Ref:       call.Provider,
			Payload: map[string]any{
				"orchestration": result.ID,
				"role":          call.Role,
				"input_tokens":  call.InputTokens,
				"output_tokens": call.OutputTokens,
				"cost_usd":      call.CostUSD,
			},
		})
	}

	for _, event := range events {
		if err := s.history.Append(ctx, event); err != nil {
			logger.Warn("Append audit event: %v", err)
		}
	}
}
