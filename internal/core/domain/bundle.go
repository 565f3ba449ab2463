package domain

// Selection is one file picked into a context bundle, with the score
// that earned it the slot and its estimated token cost.
type Selection struct {
	// Path is the corpus-relative file path.
	Path string

	// Class is the content class of the file.
	Class ContentClass

	// Score is the retrieval relevance score.
	Score float64

	// Content is the file text included in the bundle.
	Content string

	// Tokens is the estimated token count of Content.
	Tokens int
}

// ContextBundle is the token-budgeted set of code and documentation
// excerpts assembled for one task. Invariants: TokensUsed never exceeds
// TokenBudget, and the code share stays within the configured fraction
// of the budget plus at most one file of overflow.
type ContextBundle struct {
	// Task is the task description the bundle was assembled for.
	Task string

	// Code holds selected code files in descending score order.
	Code []Selection

	// Docs holds selected documentation files in descending score order.
	Docs []Selection

	// TokensUsed is the total estimated tokens across all selections.
	TokensUsed int

	// TokenBudget is the budget the bundle was assembled against.
	TokenBudget int
}

// IsEmpty returns true when no file was selected.
func (b ContextBundle) IsEmpty() bool {
	return len(b.Code) == 0 && len(b.Docs) == 0
}

// CodeTokens returns the token total of the code share.
func (b ContextBundle) CodeTokens() int {
	total := 0
	for _, s := range b.Code {
		total += s.Tokens
	}
	return total
}

// DocTokens returns the token total of the documentation share.
func (b ContextBundle) DocTokens() int {
	total := 0
	for _, s := range b.Docs {
		total += s.Tokens
	}
	return total
}
