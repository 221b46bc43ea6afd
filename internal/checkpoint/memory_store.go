package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps checkpoints in process memory. Suited to tests and
// single-shot runs where durability is not needed.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

func (s *MemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RunID] = append(s.records[record.RunID], record)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[runID]
	if len(records) == 0 {
		return nil, nil
	}
	latest := records[len(records)-1]
	return &latest, nil
}

func (s *MemoryStore) List(_ context.Context, runID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[runID]
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}
