package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// Ensure IndexerService implements the interface.
var _ driving.IndexerService = (*IndexerService)(nil)

// Default chunking configuration.
const (
	// DefaultChunkSize is the window length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the overlap between consecutive windows.
	DefaultChunkOverlap = 200

	// DefaultMinChunkLen is the minimum length of a trailing window.
	// Shorter tails are dropped, never emitted as chunks.
	DefaultMinChunkLen = 50

	// DefaultEmbedBatchSize is how many chunks are embedded per call.
	DefaultEmbedBatchSize = 32
)

// IndexerConfig holds chunking and embedding parameters.
type IndexerConfig struct {
	// ChunkSize is the window length in characters.
	ChunkSize int

	// ChunkOverlap is the overlap between consecutive windows.
	ChunkOverlap int

	// MinChunkLen is the minimum trailing window length.
	MinChunkLen int

	// EmbedBatchSize is the embedding batch size.
	EmbedBatchSize int
}

// withDefaults fills zero values with the package defaults.
func (c IndexerConfig) withDefaults() IndexerConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
	if c.MinChunkLen <= 0 {
		c.MinChunkLen = DefaultMinChunkLen
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return c
}

// IndexerService splits corpus files into overlapping chunks, embeds
// them and writes them to the chunk store and vector index. It
// exclusively owns the chunk lifecycle.
type IndexerService struct {
	corpus     driven.CorpusSource
	chunkStore driven.ChunkStore
	vectors    driven.VectorIndex
	embedding  driven.EmbeddingService
	history    driven.HistoryStore
	sessionID  string
	cfg        IndexerConfig
}

// NewIndexerService creates a new indexer. The history store is
// optional (can be nil).
func NewIndexerService(
	corpus driven.CorpusSource,
	chunkStore driven.ChunkStore,
	vectors driven.VectorIndex,
	embedding driven.EmbeddingService,
	history driven.HistoryStore,
	sessionID string,
	cfg IndexerConfig,
) *IndexerService {
	return &IndexerService{
		corpus:     corpus,
		chunkStore: chunkStore,
		vectors:    vectors,
		embedding:  embedding,
		history:    history,
		sessionID:  sessionID,
		cfg:        cfg.withDefaults(),
	}
}

// ChunkFile splits content into fixed-size overlapping windows. Window
// k starts at k*(chunkSize-overlap); a trailing window shorter than the
// minimum length is dropped.
func (s *IndexerService) ChunkFile(path, content string) []domain.Chunk {
	if content == "" {
		return nil
	}

	stride := s.cfg.ChunkSize - s.cfg.ChunkOverlap
	class := domain.ClassifyPath(path)
	contentLen := len(content)

	chunks := make([]domain.Chunk, 0, contentLen/stride+1)
	for start := 0; start < contentLen; start += stride {
		end := start + s.cfg.ChunkSize
		if end > contentLen {
			end = contentLen
		}

		if end-start < s.cfg.MinChunkLen {
			break
		}

		chunks = append(chunks, domain.Chunk{
			ID:          uuid.New().String(),
			Path:        path,
			StartOffset: start,
			EndOffset:   end,
			Content:     content[start:end],
			Class:       class,
		})

		if end == contentLen {
			break
		}
	}

	return chunks
}

// IndexCorpus indexes every file the corpus source enumerates.
func (s *IndexerService) IndexCorpus(ctx context.Context) (*driving.IndexStats, error) {
	logger.Section("Corpus Indexing")

	files, errs := s.corpus.Files(ctx)

	stats := &driving.IndexStats{}
	for file := range files {
		fileStats, err := s.indexFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", file.Path, err)
		}
		stats.Files++
		stats.Chunks += fileStats.Chunks
		stats.Skipped += fileStats.Skipped
	}

	if err := <-errs; err != nil {
		return nil, fmt.Errorf("enumerate corpus: %w", err)
	}

	logger.Info("Indexed %d files: %d chunks, %d skipped", stats.Files, stats.Chunks, stats.Skipped)
	s.emitIndexEvent(ctx, "corpus", stats)
	return stats, nil
}

// IndexPath re-indexes a single path, atomically replacing its prior
// chunks.
func (s *IndexerService) IndexPath(ctx context.Context, path string) (*driving.IndexStats, error) {
	file, err := s.corpus.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	stats, err := s.indexFile(ctx, *file)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	stats.Files = 1

	s.emitIndexEvent(ctx, path, stats)
	return stats, nil
}

// Watch re-indexes paths as the corpus source reports changes.
func (s *IndexerService) Watch(ctx context.Context) error {
	changes, err := s.corpus.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch corpus: %w", err)
	}

	logger.Info("Watching corpus for changes")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-changes:
			if !ok {
				return nil
			}
			if _, err := s.IndexPath(ctx, path); err != nil {
				// A single bad file must not stop the watcher.
				logger.Warn("Re-index %s failed: %v", path, err)
			}
		}
	}
}

// indexFile chunks, embeds and stores one file. An embedding failure
// for a chunk is logged and the chunk skipped, never fatal to the run.
func (s *IndexerService) indexFile(ctx context.Context, file driven.CorpusFile) (*driving.IndexStats, error) {
	chunks := s.ChunkFile(file.Path, file.Content)
	logger.Debug("Chunked %s into %d windows", file.Path, len(chunks))

	kept := make([]domain.Chunk, 0, len(chunks))
	skipped := 0

	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := s.embedding.EmbedBatch(ctx, texts)
		if err != nil {
			// Fall back to per-chunk embedding so one poisoned input
			// doesn't discard the whole batch.
			logger.Warn("Batch embed failed for %s: %v", file.Path, err)
			for _, c := range batch {
				vec, embErr := s.embedding.Embed(ctx, c.Content)
				if embErr != nil {
					logger.Warn("Skipping chunk %s: %v", c.Identity(), embErr)
					skipped++
					continue
				}
				c.Embedding = vec
				kept = append(kept, c)
			}
			continue
		}

		for i, c := range batch {
			c.Embedding = vectors[i]
			kept = append(kept, c)
		}
	}

	// Replace the path's chunk set atomically, then mirror the swap in
	// the vector index as a single operation.
	old, err := s.chunkStore.ListByPath(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("list prior chunks: %w", err)
	}

	if err := s.chunkStore.ReplacePath(ctx, file.Path, kept); err != nil {
		return nil, fmt.Errorf("replace chunks: %w", err)
	}

	staleIDs := make([]string, len(old))
	for i, c := range old {
		staleIDs[i] = c.ID
	}
	entries := make([]driven.VectorEntry, len(kept))
	for i, c := range kept {
		entries[i] = driven.VectorEntry{ChunkID: c.ID, Class: c.Class, Embedding: c.Embedding}
	}
	if err := s.vectors.Replace(ctx, staleIDs, entries); err != nil {
		logger.Warn("Replace vectors for %s: %v", file.Path, err)
	}

	return &driving.IndexStats{Chunks: len(kept), Skipped: skipped}, nil
}

// emitIndexEvent appends an index audit event. Best effort; the history
// store never gates indexing.
func (s *IndexerService) emitIndexEvent(ctx context.Context, ref string, stats *driving.IndexStats) {
	if s.history == nil {
		return
	}
	event := domain.AuditEvent{
		ID:        uuid.New().String(),
		Kind:      domain.EventIndex,
		Timestamp: time.Now().UTC(),
		SessionID: s.sessionID,
		Ref:       ref,
		Payload: map[string]any{
			"files":   stats.Files,
			"chunks":  stats.Chunks,
			"skipped": stats.Skipped,
		},
	}
	if err := s.history.Append(ctx, event); err != nil {
		logger.Warn("Append index event: %v", err)
	}
}
