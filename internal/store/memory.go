package store

import (
	"context"
	"sort"
	"sync"

	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

// MemoryStore keeps reports in process. Used for tests and single-node demos.
type MemoryStore struct {
	mu      sync.RWMutex
	reports []models.Report
	ids     map[string]struct{}
	dedup   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:   make(map[string]struct{}),
		dedup: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Append(_ context.Context, r models.Report) error {
	if err := validateForAppend(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[r.ID]; ok {
		return ErrDuplicateID
	}
	if r.DedupKey != "" {
		if _, ok := s.dedup[r.DedupKey]; ok {
			return ErrDuplicateRepair
		}
		s.dedup[r.DedupKey] = struct{}{}
	}
	s.ids[r.ID] = struct{}{}

	// keep the slice ordered by timestamp; insertion order breaks ties
	i := sort.Search(len(s.reports), func(i int) bool { return s.reports[i].Timestamp.After(r.Timestamp) })
	s.reports = append(s.reports, models.Report{})
	copy(s.reports[i+1:], s.reports[i:])
	s.reports[i] = r
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Report
	for _, r := range s.reports {
		if !f.matches(r) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored reports.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
