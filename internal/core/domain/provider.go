package domain

import "time"

// CallStatus is the terminal status of a single provider dispatch.
type CallStatus string

// Provider call statuses.
const (
	// CallOK indicates the call completed and returned text.
	CallOK CallStatus = "ok"

	// CallTimeout indicates the call exceeded its deadline or was
	// cancelled by the overall orchestration timeout.
	CallTimeout CallStatus = "timeout"

	// CallError indicates the call failed for a non-timeout reason.
	CallError CallStatus = "error"
)

// IsValid returns true if the status is recognised.
func (s CallStatus) IsValid() bool {
	switch s {
	case CallOK, CallTimeout, CallError:
		return true
	default:
		return false
	}
}

// ProviderCall records one dispatch attempt against an AI backend.
// It is created per attempt and immutable after completion.
type ProviderCall struct {
	// Provider is the backend identifier (e.g. "anthropic", "mock").
	Provider string

	// Model is the model identifier the backend used.
	Model string

	// Role is the pipeline role the call served ("implementer",
	// "reviewer", "optimizer") or "consensus" for fan-out calls.
	Role string

	// InputTokens is the true input token count reported by the backend.
	InputTokens int

	// OutputTokens is the true output token count reported by the backend.
	OutputTokens int

	// CostUSD is the exact cost of the call.
	CostUSD float64

	// StartedAt is when the dispatch began.
	StartedAt time.Time

	// Duration is how long the call took.
	Duration time.Duration

	// Status is the terminal call status.
	Status CallStatus

	// Response is the generated text; empty unless Status is CallOK.
	Response string

	// Err is the failure description; empty when Status is CallOK.
	Err string
}

// Succeeded returns true when the call completed with usable output.
func (c ProviderCall) Succeeded() bool {
	return c.Status == CallOK
}
