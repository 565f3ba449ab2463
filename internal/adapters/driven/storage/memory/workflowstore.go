package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure WorkflowStore implements the interface.
var _ driven.WorkflowStore = (*WorkflowStore)(nil)

// WorkflowStore keeps workflow records in memory. Records are deep
// copied on the way in and out; the service layer owns the only
// mutable instances.
type WorkflowStore struct {
	mu      sync.RWMutex
	records map[string]domain.WorkflowRecord
}

// NewWorkflowStore creates an empty workflow store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{records: make(map[string]domain.WorkflowRecord)}
}

// Save stores or replaces a record.
func (s *WorkflowStore) Save(_ context.Context, rec *domain.WorkflowRecord) error {
	if rec == nil || rec.ID == "" {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = copyRecord(*rec)
	return nil
}

// Get returns a record by ID.
func (s *WorkflowStore) Get(_ context.Context, id string) (*domain.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyRecord(rec)
	return &out, nil
}

// List returns all records, newest first.
func (s *WorkflowStore) List(_ context.Context) ([]domain.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WorkflowRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// copyRecord deep copies the maps and slices a record carries.
func copyRecord(rec domain.WorkflowRecord) domain.WorkflowRecord {
	files := make(map[string]string, len(rec.Files))
	for k, v := range rec.Files {
		files[k] = v
	}
	rec.Files = files

	history := make([]domain.TransitionRecord, len(rec.History))
	copy(history, rec.History)
	rec.History = history
	return rec
}
