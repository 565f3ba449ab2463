package driven

import "context"

// GenerateRequest carries one generation request to an AI backend.
type GenerateRequest struct {
	// SystemRole is the system prompt framing the backend's role.
	SystemRole string

	// Prompt is the user-facing task prompt.
	Prompt string

	// Context is the rendered context bundle text, appended to the
	// prompt input.
	Context string

	// MaxOutputTokens caps the generated output length.
	MaxOutputTokens int
}

// GenerateResult is the successful outcome of one generation call.
// Token counts must be the true usage reported by the backend, because
// the cost ledger depends on them.
type GenerateResult struct {
	// Text is the generated output.
	Text string

	// InputTokens is the backend-reported input token count.
	InputTokens int

	// OutputTokens is the backend-reported output token count.
	OutputTokens int
}

// AIProvider is the uniform capability contract over one AI backend.
// All implementations (and the deterministic mock) satisfy identical
// timing and usage-reporting semantics, so the orchestrator stays
// backend-agnostic. Failures are returned as *domain.ProviderError.
type AIProvider interface {
	// Generate produces text for the request, honouring ctx deadlines.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// ID returns the stable provider identifier used by the pricing
	// table and the cost ledger (e.g. "anthropic", "openai").
	ID() string

	// ModelName returns the model identifier the backend uses.
	ModelName() string

	// Ping validates the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
