package domain

// ProviderPricing is the per-million-token rate card for one backend.
// Pricing is configuration data, never derived.
type ProviderPricing struct {
	// InputPerMTok is the USD cost per million input tokens.
	InputPerMTok float64

	// OutputPerMTok is the USD cost per million output tokens.
	OutputPerMTok float64
}

// Cost computes the exact cost of a call at this rate. The computation
// stays in full float precision; rounding happens only at display time.
func (p ProviderPricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*p.InputPerMTok +
		float64(outputTokens)/1_000_000*p.OutputPerMTok
}

// PricingTable maps provider identifiers to their rate cards.
type PricingTable map[string]ProviderPricing

// CostLedgerEntry is the accumulated spend for one provider within a
// session. Mutated only through the ledger's atomic increment.
type CostLedgerEntry struct {
	// SessionID scopes the entry.
	SessionID string

	// Provider is the backend identifier.
	Provider string

	// CallCount is the number of completed calls recorded.
	CallCount int

	// TotalCostUSD is the summed exact cost.
	TotalCostUSD float64
}

// LedgerSnapshot is a consistent view of a session's spend. The sum of
// Entries' TotalCostUSD always equals SessionTotalUSD.
type LedgerSnapshot struct {
	SessionID       string
	Entries         []CostLedgerEntry
	SessionTotalUSD float64
}
