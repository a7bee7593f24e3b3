package leaderboard

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore é a versão em memória do ranking, com a mesma semântica do RedisStore.
// Empates são ordenados pela identidade, como no sorted set.
type MemoryStore struct {
	mu        sync.Mutex
	scores    map[string]float64
	meta      map[string]map[string]string
	cooldowns map[string]time.Time
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores:    make(map[string]float64),
		meta:      make(map[string]map[string]string),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// WithClock troca o relógio usado nos cooldowns.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) AcquireCooldown(_ context.Context, ip string, ttl time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if until, ok := s.cooldowns[ip]; ok && now.Before(until) {
		return false, nil
	}
	s.cooldowns[ip] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Submit(_ context.Context, op SubmitOp) (Upsert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Upsert{}
	if cur, ok := s.scores[op.Member]; !ok || op.Score < cur {
		s.scores[op.Member] = op.Score
		out.Improved = true
	}

	s.meta[MetaKey(op.Member)] = map[string]string{
		"last_ip":      op.IP,
		"last_seen":    strconv.FormatInt(op.At.UnixMilli(), 10),
		"latest_score": formatScore(op.Latest),
	}

	out.Best = s.scores[op.Member]
	out.Rank = s.rankLocked(op.Member)
	return out, nil
}

func (s *MemoryStore) Top(_ context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sortedLocked()
	if n < 0 {
		n = 0
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (s *MemoryStore) Rename(_ context.Context, oldName, newName string) (RenameOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[oldName]
	if !ok {
		return RenameNoop, nil
	}
	if _, taken := s.scores[newName]; taken {
		return RenameConflict, nil
	}
	if _, taken := s.meta[MetaKey(newName)]; taken {
		return RenameConflict, nil
	}

	s.scores[newName] = score
	delete(s.scores, oldName)
	if m, ok := s.meta[MetaKey(oldName)]; ok {
		s.meta[MetaKey(newName)] = m
		delete(s.meta, MetaKey(oldName))
	}
	return RenameMigrated, nil
}

func (s *MemoryStore) Player(_ context.Context, name string) (Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[name]
	if !ok {
		return Player{}, ErrPlayerNotFound
	}
	p := Player{Member: name, Score: score, Rank: s.rankLocked(name)}
	if m, ok := s.meta[MetaKey(name)]; ok {
		p.LastIP = m["last_ip"]
		if ms, err := strconv.ParseInt(m["last_seen"], 10, 64); err == nil {
			p.LastSeen = time.UnixMilli(ms)
		}
		p.LatestScore, _ = strconv.ParseFloat(m["latest_score"], 64)
	}
	return p, nil
}

// SetMeta grava metadados sem pontuação (identidade reservada sem jogar).
func (s *MemoryStore) SetMeta(name string, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[MetaKey(name)] = fields
}

func (s *MemoryStore) rankLocked(member string) int64 {
	for i, e := range s.sortedLocked() {
		if e.Member == member {
			return int64(i)
		}
	}
	return -1
}

func (s *MemoryStore) sortedLocked() []Entry {
	out := make([]Entry, 0, len(s.scores))
	for m, sc := range s.scores {
		out = append(out, Entry{Member: m, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}
