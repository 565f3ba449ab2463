package driven

import (
	"context"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// ChunkStore persists corpus chunks. The indexer exclusively owns the
// chunk lifecycle: chunks are created on index and replaced wholesale
// on re-index.
type ChunkStore interface {
	// ReplacePath atomically swaps all chunks for a path. Readers see
	// either the fully old or fully new chunk set, never a mix.
	ReplacePath(ctx context.Context, path string, chunks []domain.Chunk) error

	// GetChunk retrieves a chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// ListByPath returns the chunks for one path in offset order.
	ListByPath(ctx context.Context, path string) ([]domain.Chunk, error)

	// All returns every stored chunk. Used by the lexical scorer.
	All(ctx context.Context) ([]domain.Chunk, error)

	// DeletePath removes a path and its chunks.
	DeletePath(ctx context.Context, path string) error
}
