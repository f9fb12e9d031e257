package correlation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

var _ Store = &MemoryStore{}

// MemoryStore keeps correlation records in memory. It does not survive a
// restart; it exists for tests and single-run usage.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[uuid.UUID]Record{},
	}
}

func (s *MemoryStore) Put(ctx context.Context, eventID uuid.UUID, update Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[eventID] = s.records[eventID].Merge(update)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, eventID uuid.UUID) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[eventID]
	return record, ok, nil
}

func (s *MemoryStore) Clear(ctx context.Context, eventID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, eventID)
	return nil
}
