package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure LedgerStore implements the interface.
var _ driven.LedgerStore = (*LedgerStore)(nil)

// LedgerStore keeps the latest ledger snapshot per session in memory.
type LedgerStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.LedgerSnapshot
}

// NewLedgerStore creates an empty ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{snapshots: make(map[string]domain.LedgerSnapshot)}
}

// Save replaces the stored snapshot for the snapshot's session.
func (s *LedgerStore) Save(_ context.Context, snapshot domain.LedgerSnapshot) error {
	if snapshot.SessionID == "" {
		return domain.ErrInvalidInput
	}

	entries := make([]domain.CostLedgerEntry, len(snapshot.Entries))
	copy(entries, snapshot.Entries)
	snapshot.Entries = entries

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.SessionID] = snapshot
	return nil
}

// Load returns the stored snapshot for a session.
func (s *LedgerStore) Load(_ context.Context, sessionID string) (*domain.LedgerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	entries := make([]domain.CostLedgerEntry, len(snapshot.Entries))
	copy(entries, snapshot.Entries)
	snapshot.Entries = entries
	return &snapshot, nil
}
