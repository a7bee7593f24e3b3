package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultCachePrefix = "chat:cache:"

// Cache guarda respostas já sanitizadas. Erros são tratados como miss pelo chamador.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Params são os parâmetros do modelo que mudam a resposta e entram na chave.
type Params struct {
	Deployment  string  `json:"deployment"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// CacheKey é o SHA-256 da serialização exata do que vai ao modelo.
func CacheKey(msgs []Message, p Params) string {
	payload, _ := json.Marshal(struct {
		Params   Params    `json:"params"`
		Messages []Message `json:"messages"`
	}{p, msgs})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisCache(rdb redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, value, ttl).Err()
}

// MemoryCache é o cache local com expiração preguiçosa (na leitura).
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// Cleanup remove entradas vencidas que nunca mais foram lidas.
func (c *MemoryCache) Cleanup() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// StartJanitor roda Cleanup a cada every até o ctx encerrar.
func (c *MemoryCache) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Cleanup()
			}
		}
	}()
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
