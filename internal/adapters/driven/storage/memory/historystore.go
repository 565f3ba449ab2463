package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure HistoryStore implements the interface.
var _ driven.HistoryStore = (*HistoryStore)(nil)

// HistoryStore keeps audit events in memory, append-only in arrival
// order.
type HistoryStore struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// Append adds an event. Events are never mutated or removed.
func (s *HistoryStore) Append(_ context.Context, event domain.AuditEvent) error {
	if event.ID == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns the events for a session in append order. An empty
// session ID returns everything.
func (s *HistoryStore) List(_ context.Context, sessionID string) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditEvent, 0, len(s.events))
	for _, e := range s.events {
		if sessionID == "" || e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}
