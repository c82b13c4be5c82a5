package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps run records in process memory. It backs tests and
// one-shot CLI runs where persistence across restarts is not needed.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*Record)}
}

// SaveRun stores a copy of rec, replacing any previous record with the
// same id.
func (s *MemoryStore) SaveRun(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = cloneRecord(rec)
	return nil
}

// UpdateTransfer mutates one transfer of a stored run in place.
func (s *MemoryStore) UpdateTransfer(_ context.Context, runID uuid.UUID, index int, fn func(*TransferRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if index < 0 || index >= len(rec.Transfers) {
		return fmt.Errorf("transfer index %d out of range for run %s", index, runID)
	}
	fn(&rec.Transfers[index])
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// GetRun returns a copy of the record for id, or ErrRunNotFound.
func (s *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneRecord(rec), nil
}

// ListRunsByStatus returns copies of all records currently in status.
func (s *MemoryStore) ListRunsByStatus(_ context.Context, status string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.runs {
		if rec.Status == status {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
