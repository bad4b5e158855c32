package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Get(_ context.Context, source, day string, limit int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(source, day, limit), nil
}

func (s *MemoryStore) Add(_ context.Context, source, day string, limit, n int) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getLocked(source, day, limit)
	if rec.Used+n > rec.Limit {
		return rec, false, nil
	}
	rec.Used += n
	s.records[source+"|"+day] = rec
	return rec, true, nil
}

func (s *MemoryStore) getLocked(source, day string, limit int) Record {
	key := source + "|" + day
	rec, ok := s.records[key]
	if !ok {
		rec = Record{Source: source, Day: day, Limit: limit}
		s.records[key] = rec
	}
	return rec
}
