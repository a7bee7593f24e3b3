package infra

import (
	"context"
	"slices"
	"sync"
	"time"

	"jaguar-racing/middleware/ratelimit/domain"
)

// MemoryWindowStore é a janela deslizante em memória, com a mesma semântica do Redis.
// Útil para testes e desenvolvimento local; não é compartilhada entre instâncias.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[domain.Key][]time.Time
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{entries: make(map[domain.Key][]time.Time)}
}

func (s *MemoryWindowStore) Hit(_ context.Context, key domain.Key, limit int, window time.Duration, now time.Time) (domain.WindowCount, error) {
	cutoff := now.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.entries[key]
	kept := events[:0]
	for _, at := range events {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	s.entries[key] = kept

	wc := domain.WindowCount{Count: int64(len(kept))}
	if limit > 0 && len(kept) > limit {
		sorted := slices.Clone(kept)
		slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
		wc.RetryAt = sorted[len(sorted)-limit].Add(window)
	}
	return wc, nil
}

// Cleanup remove chaves sem eventos mais novos que maxWindow.
func (s *MemoryWindowStore) Cleanup(now time.Time, maxWindow time.Duration) {
	cutoff := now.Add(-maxWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, events := range s.entries {
		alive := false
		for _, at := range events {
			if at.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(s.entries, k)
		}
	}
}

func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
