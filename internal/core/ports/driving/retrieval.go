package driving

import (
	"context"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// SearchOptions configures a retrieval query.
type SearchOptions struct {
	// Limit is the maximum number of results (default 20).
	Limit int

	// Class restricts results to one content class; domain.ClassAny
	// disables the filter.
	Class domain.ContentClass
}

// SearchResult is a single ranked retrieval hit.
type SearchResult struct {
	// Chunk is the matched chunk.
	Chunk domain.Chunk

	// Score is the combined semantic + lexical relevance score.
	Score float64
}

// RetrievalService ranks corpus chunks against a task description.
// Identical corpus state and query always yield identical output.
type RetrievalService interface {
	// Search returns ranked chunks for the query.
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// ContextService assembles retrieval output into token-budgeted bundles.
type ContextService interface {
	// Assemble builds a bundle for the task within the token budget.
	// A budget of 0 uses the configured default.
	Assemble(ctx context.Context, task string, tokenBudget int) (*domain.ContextBundle, error)
}
