// Package memory provides in-memory store adapters. They are the
// default stores for ephemeral sessions and the reference
// implementations the sqlite stores are tested against.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore keeps chunks in memory, keyed by path. Chunks are copied
// on the way in and out so callers cannot mutate stored state.
type ChunkStore struct {
	mu     sync.RWMutex
	byPath map[string][]domain.Chunk
	byID   map[string]domain.Chunk
}

// NewChunkStore creates an empty chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		byPath: make(map[string][]domain.Chunk),
		byID:   make(map[string]domain.Chunk),
	}
}

// ReplacePath atomically swaps the chunk set for a path. Readers never
// observe a partially replaced path.
func (s *ChunkStore) ReplacePath(_ context.Context, path string, chunks []domain.Chunk) error {
	copied := make([]domain.Chunk, len(chunks))
	copy(copied, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, old := range s.byPath[path] {
		delete(s.byID, old.ID)
	}
	s.byPath[path] = copied
	for _, c := range copied {
		s.byID[c.ID] = c
	}
	return nil
}

// GetChunk returns a chunk by ID.
func (s *ChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

// ListByPath returns the chunks for a path in offset order.
func (s *ChunkStore) ListByPath(_ context.Context, path string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.byPath[path]
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	sort.Slice(out, func(i, j int) bool { return out[i].StartOffset < out[j].StartOffset })
	return out, nil
}

// All returns every chunk, ordered by path then offset.
func (s *ChunkStore) All(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []domain.Chunk
	for _, p := range paths {
		chunks := make([]domain.Chunk, len(s.byPath[p]))
		copy(chunks, s.byPath[p])
		sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartOffset < chunks[j].StartOffset })
		out = append(out, chunks...)
	}
	return out, nil
}

// DeletePath removes all chunks for a path.
func (s *ChunkStore) DeletePath(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.byPath[path] {
		delete(s.byID, c.ID)
	}
	delete(s.byPath, path)
	return nil
}
