package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/cascade/internal/infra/storage"
)

// MemoryStorage is an in-process candidate queue.
type MemoryStorage struct {
	order  []string
	status map[string]storage.CandidateStatus
	mu     sync.RWMutex
}

func NewMemoryStorage(keys ...string) *MemoryStorage {
	s := &MemoryStorage{status: make(map[string]storage.CandidateStatus)}
	_, _ = s.Add(context.Background(), keys)
	return s
}

func (s *MemoryStorage) List(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for _, k := range s.order {
		if s.status[k] != storage.StatusPending {
			continue
		}
		keys = append(keys, k)
		if limit > 0 && len(keys) == limit {
			break
		}
	}
	return keys, nil
}

func (s *MemoryStorage) Add(ctx context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, k := range keys {
		if _, ok := s.status[k]; ok || k == "" {
			continue
		}
		s.status[k] = storage.StatusPending
		s.order = append(s.order, k)
		added++
	}
	return added, nil
}

func (s *MemoryStorage) MarkProcessed(ctx context.Context, keys []string, status storage.CandidateStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", storage.ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, ok := s.status[k]; ok {
			s.status[k] = status
		}
	}
	return nil
}

func (s *MemoryStorage) CountByStatus(ctx context.Context) (map[storage.CandidateStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[storage.CandidateStatus]int)
	for _, st := range s.status {
		counts[st]++
	}
	return counts, nil
}
