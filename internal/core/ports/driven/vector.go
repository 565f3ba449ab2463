package driven

import (
	"context"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// VectorIndex provides semantic similarity search over chunk embeddings.
type VectorIndex interface {
	// Add inserts a vector for the given chunk ID and content class.
	Add(ctx context.Context, chunkID string, class domain.ContentClass, embedding []float32) error

	// Delete removes a vector from the index.
	Delete(ctx context.Context, chunkID string) error

	// Replace removes the listed chunk IDs and inserts the entries in
	// one step. Searches see either all-old or all-new vectors.
	Replace(ctx context.Context, deleteIDs []string, entries []VectorEntry) error

	// Search finds the k nearest neighbours to the query vector.
	// A non-empty class restricts results to that content class.
	Search(ctx context.Context, query []float32, k int, class domain.ContentClass) ([]VectorHit, error)

	// Close releases resources.
	Close() error
}

// VectorEntry is one vector to insert.
type VectorEntry struct {
	// ChunkID identifies the chunk the vector belongs to.
	ChunkID string

	// Class is the chunk's content class.
	Class domain.ContentClass

	// Embedding is the chunk's vector.
	Embedding []float32
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}
