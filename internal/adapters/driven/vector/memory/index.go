// Package memory provides a brute-force in-memory vector index. It is
// exact rather than approximate, which keeps retrieval deterministic.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// entry is one stored vector with its class tag.
type entry struct {
	class     domain.ContentClass
	embedding []float32
	norm      float64
}

// VectorIndex stores embeddings in memory and searches them by cosine
// similarity with an optional class filter.
type VectorIndex struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewVectorIndex creates an empty index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{entries: make(map[string]entry)}
}

// Add stores or replaces the vector for a chunk.
func (x *VectorIndex) Add(_ context.Context, chunkID string, class domain.ContentClass, embedding []float32) error {
	if len(embedding) == 0 {
		return domain.ErrInvalidInput
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries[chunkID] = entry{class: class, embedding: vec, norm: norm(vec)}
	return nil
}

// Delete removes a chunk's vector. Deleting an absent chunk is a no-op.
func (x *VectorIndex) Delete(_ context.Context, chunkID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, chunkID)
	return nil
}

// Replace removes the listed chunks and inserts the entries under one
// lock, so concurrent searches see either all-old or all-new vectors.
func (x *VectorIndex) Replace(_ context.Context, deleteIDs []string, entries []driven.VectorEntry) error {
	vecs := make([]entry, len(entries))
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return domain.ErrInvalidInput
		}
		vec := make([]float32, len(e.Embedding))
		copy(vec, e.Embedding)
		vecs[i] = entry{class: e.Class, embedding: vec, norm: norm(vec)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range deleteIDs {
		delete(x.entries, id)
	}
	for i, e := range entries {
		x.entries[e.ChunkID] = vecs[i]
	}
	return nil
}

// Search returns the k nearest chunks by cosine similarity. Ties are
// broken by chunk ID so equal corpora rank identically.
func (x *VectorIndex) Search(_ context.Context, query []float32, k int, class domain.ContentClass) ([]driven.VectorHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}
	queryNorm := norm(query)
	if queryNorm == 0 {
		return nil, nil
	}

	x.mu.RLock()
	hits := make([]driven.VectorHit, 0, len(x.entries))
	for id, e := range x.entries {
		if class != domain.ClassAny && e.class != class {
			continue
		}
		if e.norm == 0 {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    id,
			Similarity: dot(query, e.embedding) / (queryNorm * e.norm),
		})
	}
	x.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored vectors.
func (x *VectorIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Close releases resources.
func (x *VectorIndex) Close() error {
	return nil
}

// dot computes the inner product over the shared prefix.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// norm computes the Euclidean length.
func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
