package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

func newTestIndexer(corpus *mockCorpus, store *mockChunkStore, vectors *mockVectorIndex, emb *mockEmbedding) *IndexerService {
	return NewIndexerService(corpus, store, vectors, emb, &mockHistory{}, "session-1", IndexerConfig{})
}

func TestChunkFileWindows(t *testing.T) {
	idx := newTestIndexer(&mockCorpus{}, newMockChunkStore(), newMockVectorIndex(), newMockEmbedding())

	content := strings.Repeat("a", 2500)
	chunks := idx.ChunkFile("pkg/handler.go", content)

	require.Len(t, chunks, 3)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 1000, chunks[0].EndOffset)
	assert.Equal(t, 800, chunks[1].StartOffset)
	assert.Equal(t, 1800, chunks[1].EndOffset)
	assert.Equal(t, 1600, chunks[2].StartOffset)
	assert.Equal(t, 2500, chunks[2].EndOffset)

	for _, c := range chunks {
		assert.Equal(t, domain.ClassCode, c.Class)
		assert.Equal(t, c.EndOffset-c.StartOffset, len(c.Content))
		assert.NotEmpty(t, c.ID)
	}
}

func TestChunkFileExactWindow(t *testing.T) {
	idx := newTestIndexer(&mockCorpus{}, newMockChunkStore(), newMockVectorIndex(), newMockEmbedding())

	chunks := idx.ChunkFile("a.go", strings.Repeat("x", 1000))
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 1000, chunks[0].EndOffset)
}

func TestChunkFileShortInputs(t *testing.T) {
	idx := newTestIndexer(&mockCorpus{}, newMockChunkStore(), newMockVectorIndex(), newMockEmbedding())

	assert.Empty(t, idx.ChunkFile("a.go", ""))
	assert.Empty(t, idx.ChunkFile("a.go", strings.Repeat("x", 49)))

	chunks := idx.ChunkFile("a.go", strings.Repeat("x", 50))
	require.Len(t, chunks, 1)
	assert.Equal(t, 50, chunks[0].EndOffset)
}

func TestIndexCorpus(t *testing.T) {
	corpus := &mockCorpus{files: map[string]string{
		"main.go":   strings.Repeat("package main\n", 100),
		"README.md": strings.Repeat("docs ", 50),
	}}
	store := newMockChunkStore()
	vectors := newMockVectorIndex()
	idx := newTestIndexer(corpus, store, vectors, newMockEmbedding())

	stats, err := idx.IndexCorpus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 0, stats.Skipped)

	all, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, len(all))
	assert.Equal(t, stats.Chunks, len(vectors.vectors))

	for _, c := range all {
		assert.NotEmpty(t, c.Embedding)
	}
}

func TestIndexFileSkipsFailedEmbeddings(t *testing.T) {
	content := strings.Repeat("b", 2500)
	corpus := &mockCorpus{files: map[string]string{"big.go": content}}
	store := newMockChunkStore()
	vectors := newMockVectorIndex()

	emb := newMockEmbedding()
	// Poison the middle window's content so its embedding fails.
	emb.failOn[content[800:1800]] = true

	idx := newTestIndexer(corpus, store, vectors, emb)

	stats, err := idx.IndexPath(context.Background(), "big.go")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, stats.Skipped)

	kept, err := store.ListByPath(context.Background(), "big.go")
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].StartOffset)
	assert.Equal(t, 1600, kept[1].StartOffset)
}

func TestIndexPathReplacesPriorChunks(t *testing.T) {
	corpus := &mockCorpus{files: map[string]string{"a.go": strings.Repeat("v1 ", 100)}}
	store := newMockChunkStore()
	vectors := newMockVectorIndex()
	idx := newTestIndexer(corpus, store, vectors, newMockEmbedding())

	_, err := idx.IndexPath(context.Background(), "a.go")
	require.NoError(t, err)

	first, err := store.ListByPath(context.Background(), "a.go")
	require.NoError(t, err)
	require.NotEmpty(t, first)
	staleID := first[0].ID

	corpus.files["a.go"] = strings.Repeat("v2 content ", 60)
	_, err = idx.IndexPath(context.Background(), "a.go")
	require.NoError(t, err)

	second, err := store.ListByPath(context.Background(), "a.go")
	require.NoError(t, err)
	for _, c := range second {
		assert.NotEqual(t, staleID, c.ID)
	}

	_, ok := vectors.vectors[staleID]
	assert.False(t, ok, "stale vector should be removed")

	// The vector index is updated by one swap per pass, never by
	// interleaved per-chunk deletes and adds.
	assert.Equal(t, 2, vectors.swapCount())
}

func TestIndexPathUnknownFile(t *testing.T) {
	idx := newTestIndexer(&mockCorpus{files: map[string]string{}}, newMockChunkStore(), newMockVectorIndex(), newMockEmbedding())

	_, err := idx.IndexPath(context.Background(), "missing.go")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexEmitsAuditEvent(t *testing.T) {
	corpus := &mockCorpus{files: map[string]string{"a.go": strings.Repeat("x", 200)}}
	history := &mockHistory{}
	idx := NewIndexerService(corpus, newMockChunkStore(), newMockVectorIndex(), newMockEmbedding(), history, "session-1", IndexerConfig{})

	_, err := idx.IndexCorpus(context.Background())
	require.NoError(t, err)

	events, err := history.List(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventIndex, events[0].Kind)
	assert.Equal(t, "corpus", events[0].Ref)
}
