package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/printforge/cartsync/errs"
)

// MemoryStore is an in-memory journal for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore constructs an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends one entry.
func (s *MemoryStore) Record(_ context.Context, entry Entry) error {
	if entry.ProjectID == "" {
		return errs.New("journal/record", errs.CodeInvalid, errs.WithMessage("project id required"))
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// List returns entries newest-first.
func (s *MemoryStore) List(_ context.Context, query Query) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if query.ProjectID != "" && entry.ProjectID != query.ProjectID {
			continue
		}
		out = append(out, entry)
		if query.Limit > 0 && len(out) >= query.Limit {
			break
		}
	}
	return out, nil
}
