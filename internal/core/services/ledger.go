package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
	"github.com/custodia-labs/forge-cli/internal/logger"
)

// CostLedger accumulates per-call cost by provider within one session.
// It is the one piece of shared mutable state across concurrent
// orchestrator invocations: every mutation happens under a single lock
// so the sum of per-provider entries equals the session total at all
// times, under any interleaving.
//
// A ledger is created per session and injected explicitly; there is no
// ambient global counter.
type CostLedger struct {
	mu        sync.Mutex
	sessionID string
	pricing   domain.PricingTable
	entries   map[string]*domain.CostLedgerEntry
	total     float64
	store     driven.LedgerStore
}

// NewCostLedger creates a ledger for a session. The store is optional;
// when present, every increment is persisted.
func NewCostLedger(sessionID string, pricing domain.PricingTable, store driven.LedgerStore) *CostLedger {
	return &CostLedger{
		sessionID: sessionID,
		pricing:   pricing,
		entries:   make(map[string]*domain.CostLedgerEntry),
		store:     store,
	}
}

// SessionID returns the session this ledger accounts for.
func (l *CostLedger) SessionID() string {
	return l.sessionID
}

// CostOf computes the exact cost of a call without recording it.
// Unknown providers are fatal: ledger consistency cannot be guessed.
func (l *CostLedger) CostOf(provider string, inputTokens, outputTokens int) (float64, error) {
	pricing, ok := l.pricing[provider]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider)
	}
	return pricing.Cost(inputTokens, outputTokens), nil
}

// Record atomically adds a completed call to the provider's entry and
// the session total, returning the call cost.
func (l *CostLedger) Record(ctx context.Context, provider string, inputTokens, outputTokens int) (float64, error) {
	cost, err := l.CostOf(provider, inputTokens, outputTokens)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[provider]
	if !ok {
		entry = &domain.CostLedgerEntry{SessionID: l.sessionID, Provider: provider}
		l.entries[provider] = entry
	}
	entry.CallCount++
	entry.TotalCostUSD += cost
	l.total += cost

	l.persist(ctx, l.snapshotLocked())
	return cost, nil
}

// Estimate projects the cost of hypothetical token counts for every
// priced provider. It never mutates ledger state.
func (l *CostLedger) Estimate(inputTokens, outputTokens int) map[string]float64 {
	out := make(map[string]float64, len(l.pricing))
	for provider, pricing := range l.pricing {
		out[provider] = pricing.Cost(inputTokens, outputTokens)
	}
	return out
}

// Snapshot returns a consistent view of the session's spend, with
// entries sorted by provider for stable display.
func (l *CostLedger) Snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// snapshotLocked builds a snapshot. Caller holds the lock.
func (l *CostLedger) snapshotLocked() domain.LedgerSnapshot {
	entries := make([]domain.CostLedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Provider < entries[j].Provider
	})
	return domain.LedgerSnapshot{
		SessionID:       l.sessionID,
		Entries:         entries,
		SessionTotalUSD: l.total,
	}
}

// Reset zeroes session counters. History records are untouched.
func (l *CostLedger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*domain.CostLedgerEntry)
	l.total = 0

	l.persist(ctx, l.snapshotLocked())
	return nil
}

// persist writes the snapshot through the ledger store. Callers hold
// the ledger lock, so snapshots reach the store in recording order.
func (l *CostLedger) persist(ctx context.Context, snapshot domain.LedgerSnapshot) {
	if l.store == nil {
		return
	}
	if err := l.store.Save(ctx, snapshot); err != nil {
		logger.Warn("Persist ledger: %v", err)
	}
}
