package infra

import (
	"context"
	"sync"

	"jaguar-racing/middleware/ratelimit/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    domain.Counters
	byPolicy map[string]domain.Counters
	byKey    map[string]domain.Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byPolicy: make(map[string]domain.Counters),
		byKey:    make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	field := policyField(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	bump := func(c domain.Counters) domain.Counters {
		if ev.Allowed {
			c.Allowed++
		} else {
			c.Denied++
		}
		return c
	}

	s.total = bump(s.total)
	s.byPolicy[field] = bump(s.byPolicy[field])
	if s.trackKeys && ev.Key != "" {
		s.byKey[string(ev.Key)] = bump(s.byKey[string(ev.Key)])
	}
	return nil
}

func (s *MemoryStatsStore) Total() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByPolicy devolve contadores por "policy:scope".
func (s *MemoryStatsStore) ByPolicy() map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Counters, len(s.byPolicy))
	for k, v := range s.byPolicy {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}

func policyField(ev domain.StatsEvent) string {
	scope := string(ev.Scope)
	if scope == "" {
		scope = "all"
	}
	return ev.Policy + ":" + scope
}
