package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// Default score weights. Both are configuration values, not derived.
const (
	DefaultSemanticWeight = 0.7
	DefaultLexicalWeight  = 0.3
)

// RetrievalConfig holds the score combination weights.
type RetrievalConfig struct {
	// SemanticWeight scales the cosine-similarity component.
	SemanticWeight float64

	// LexicalWeight scales the keyword-overlap component.
	LexicalWeight float64
}

// withDefaults fills zero values with the package defaults.
func (c RetrievalConfig) withDefaults() RetrievalConfig {
	if c.SemanticWeight == 0 && c.LexicalWeight == 0 {
		c.SemanticWeight = DefaultSemanticWeight
		c.LexicalWeight = DefaultLexicalWeight
	}
	return c
}

// RetrievalService ranks chunks by a weighted combination of semantic
// similarity and lexical keyword overlap. Identical corpus state and
// query always produce identical ranked output.
type RetrievalService struct {
	chunkStore driven.ChunkStore
	vectors    driven.VectorIndex
	embedding  driven.EmbeddingService
	cfg        RetrievalConfig
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(
	chunkStore driven.ChunkStore,
	vectors driven.VectorIndex,
	embedding driven.EmbeddingService,
	cfg RetrievalConfig,
) *RetrievalService {
	return &RetrievalService{
		chunkStore: chunkStore,
		vectors:    vectors,
		embedding:  embedding,
		cfg:        cfg.withDefaults(),
	}
}

// Search returns ranked chunks for the query.
func (s *RetrievalService) Search(
	ctx context.Context, query string, opts driving.SearchOptions,
) ([]driving.SearchResult, error) {
	logger.Section("Retrieval")
	logger.Debug("Query: %q, class=%s", query, opts.Class)

	query = strings.TrimSpace(query)
	if query == "" {
		return []driving.SearchResult{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	if s.chunkStore == nil {
		return nil, domain.ErrRetrievalUnavailable
	}

	// Run semantic and lexical scoring in parallel; both read the same
	// immutable corpus snapshot.
	var (
		wg          sync.WaitGroup
		semantic    map[string]float64
		semanticErr error
		lexical     map[string]float64
		candidates  []domain.Chunk
		lexicalErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, semanticErr = s.semanticScores(ctx, query, limit*3, opts.Class)
	}()
	go func() {
		defer wg.Done()
		candidates, lexical, lexicalErr = s.lexicalScores(ctx, query, opts.Class)
	}()
	wg.Wait()

	if lexicalErr != nil {
		return nil, fmt.Errorf("lexical scoring: %w", lexicalErr)
	}
	if semanticErr != nil {
		// Degrade to lexical-only scoring when embedding or vector
		// search is unavailable.
		logger.Warn("Semantic scoring unavailable: %v", semanticErr)
		semantic = map[string]float64{}
	}

	results := make([]driving.SearchResult, 0, len(candidates))
	for _, chunk := range candidates {
		score := s.cfg.SemanticWeight*semantic[chunk.ID] + s.cfg.LexicalWeight*lexical[chunk.ID]
		if score <= 0 {
			continue
		}
		results = append(results, driving.SearchResult{Chunk: chunk, Score: score})
	}

	// Descending score; ties broken by ascending path, then offset,
	// for deterministic output.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Path != results[j].Chunk.Path {
			return results[i].Chunk.Path < results[j].Chunk.Path
		}
		return results[i].Chunk.StartOffset < results[j].Chunk.StartOffset
	})

	if len(results) > limit {
		results = results[:limit]
	}

	logger.Info("Retrieval: %d results", len(results))
	return results, nil
}

// semanticScores maps chunk IDs to cosine similarity with the query.
func (s *RetrievalService) semanticScores(
	ctx context.Context, query string, k int, class domain.ContentClass,
) (map[string]float64, error) {
	if s.vectors == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	if s.embedding == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	queryVec, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectors.Search(ctx, queryVec, k, class)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		scores[hit.ChunkID] = hit.Similarity
	}
	return scores, nil
}

// lexicalScores computes normalised token overlap between the query and
// each chunk's content plus path, returning the candidate set alongside.
func (s *RetrievalService) lexicalScores(
	ctx context.Context, query string, class domain.ContentClass,
) ([]domain.Chunk, map[string]float64, error) {
	chunks, err := s.chunkStore.All(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
	}

	queryTerms := tokenise(query)

	candidates := make([]domain.Chunk, 0, len(chunks))
	scores := make(map[string]float64, len(chunks))
	for _, chunk := range chunks {
		if class != domain.ClassAny && chunk.Class != class {
			continue
		}
		candidates = append(candidates, chunk)
		scores[chunk.ID] = overlapScore(queryTerms, chunk.Content+" "+chunk.Path)
	}

	return candidates, scores, nil
}

// tokenise lowercases and splits text into alphanumeric terms.
func tokenise(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// overlapScore is the fraction of distinct query terms present in text.
func overlapScore(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	present := make(map[string]bool)
	for _, term := range tokenise(text) {
		present[term] = true
	}

	distinct := make(map[string]bool)
	matched := 0
	for _, term := range queryTerms {
		if distinct[term] {
			continue
		}
		distinct[term] = true
		if present[term] {
			matched++
		}
	}

	return float64(matched) / float64(len(distinct))
}
