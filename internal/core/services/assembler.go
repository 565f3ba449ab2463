package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driving"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// Ensure ContextService implements the interface.
var _ driving.ContextService = (*ContextService)(nil)

// Default assembly configuration.
const (
	// DefaultTokenBudget is the bundle budget when the caller passes 0.
	DefaultTokenBudget = 8000

	// DefaultCodeShare is the fraction of the budget reserved for code.
	DefaultCodeShare = 0.7

	// candidateLimit is how many chunks retrieval is asked for before
	// grouping into files.
	candidateLimit = 100
)

// AssemblerConfig holds bundle assembly parameters.
type AssemblerConfig struct {
	// TokenBudget is the default budget.
	TokenBudget int

	// CodeShare is the fraction of the budget reserved for code.
	CodeShare float64
}

// withDefaults fills zero values with the package defaults.
func (c AssemblerConfig) withDefaults() AssemblerConfig {
	if c.TokenBudget <= 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.CodeShare <= 0 || c.CodeShare > 1 {
		c.CodeShare = DefaultCodeShare
	}
	return c
}

// EstimateTokens approximates the token count of text the way the
// target providers tokenise, at roughly four characters per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ContextService converts retrieval output into token-budgeted bundles
// split between code and documentation shares.
type ContextService struct {
	retrieval driving.RetrievalService
	corpus    driven.CorpusSource
	cfg       AssemblerConfig
}

// NewContextService creates a new context assembler.
func NewContextService(
	retrieval driving.RetrievalService,
	corpus driven.CorpusSource,
	cfg AssemblerConfig,
) *ContextService {
	return &ContextService{
		retrieval: retrieval,
		corpus:    corpus,
		cfg:       cfg.withDefaults(),
	}
}

// fileCandidate is one file competing for bundle space.
type fileCandidate struct {
	path  string
	class domain.ContentClass
	score float64
}

// Assemble builds a bundle for the task within the token budget.
func (s *ContextService) Assemble(
	ctx context.Context, task string, tokenBudget int,
) (*domain.ContextBundle, error) {
	logger.Section("Context Assembly")

	if tokenBudget <= 0 {
		tokenBudget = s.cfg.TokenBudget
	}

	hits, err := s.retrieval.Search(ctx, task, driving.SearchOptions{Limit: candidateLimit})
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	code, docs := s.groupByFile(hits)
	logger.Debug("Candidates: %d code files, %d doc files", len(code), len(docs))

	bundle := &domain.ContextBundle{
		Task:        task,
		TokenBudget: tokenBudget,
	}

	codeAllot := int(float64(tokenBudget) * s.cfg.CodeShare)
	docAllot := tokenBudget - codeAllot

	// Fill the code share first, then documentation. Unused code
	// budget rolls over to documentation; once doc candidates are
	// exhausted, the remainder rolls back to code, up to the overall
	// budget.
	codeUsed, codeRest := s.fill(ctx, code, codeAllot, &bundle.Code)
	docUsed, docRest := s.fill(ctx, docs, docAllot+codeAllot-codeUsed, &bundle.Docs)
	if len(docRest) == 0 && len(codeRest) > 0 {
		extra, _ := s.fill(ctx, codeRest, tokenBudget-codeUsed-docUsed, &bundle.Code)
		codeUsed += extra
	}

	bundle.TokensUsed = codeUsed + docUsed
	logger.Info("Bundle: %d/%d tokens (%d code, %d doc files)",
		bundle.TokensUsed, bundle.TokenBudget, len(bundle.Code), len(bundle.Docs))

	return bundle, nil
}

// groupByFile collapses chunk hits into per-file candidates carrying
// the best chunk score, split into code and documentation lists, each
// in descending score order with ties broken by path.
func (s *ContextService) groupByFile(hits []driving.SearchResult) (code, docs []fileCandidate) {
	best := make(map[string]fileCandidate)
	for _, hit := range hits {
		cand, seen := best[hit.Chunk.Path]
		if !seen || hit.Score > cand.score {
			best[hit.Chunk.Path] = fileCandidate{
				path:  hit.Chunk.Path,
				class: hit.Chunk.Class,
				score: hit.Score,
			}
		}
	}

	for _, cand := range best {
		if cand.class == domain.ClassDoc {
			docs = append(docs, cand)
		} else {
			code = append(code, cand)
		}
	}

	byScore := func(list []fileCandidate) {
		sort.Slice(list, func(i, j int) bool {
			if list[i].score != list[j].score {
				return list[i].score > list[j].score
			}
			return list[i].path < list[j].path
		})
	}
	byScore(code)
	byScore(docs)
	return code, docs
}

// fill greedily selects candidates into out until the allotment is
// spent. A candidate whose full token count would overflow the
// allotment is skipped; there is no partial-file truncation. Returns
// the tokens used and the candidates that did not fit.
func (s *ContextService) fill(
	ctx context.Context, candidates []fileCandidate, allotment int, out *[]domain.Selection,
) (used int, rest []fileCandidate) {
	for _, cand := range candidates {
		file, err := s.corpus.Read(ctx, cand.path)
		if err != nil {
			logger.Warn("Skipping unreadable candidate %s: %v", cand.path, err)
			continue
		}

		tokens := EstimateTokens(file.Content)
		if used+tokens > allotment {
			rest = append(rest, cand)
			continue
		}

		*out = append(*out, domain.Selection{
			Path:    cand.path,
			Class:   cand.class,
			Score:   cand.score,
			Content: file.Content,
			Tokens:  tokens,
		})
		used += tokens
	}
	return used, rest
}
