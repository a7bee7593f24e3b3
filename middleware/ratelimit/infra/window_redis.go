package infra

import (
	"context"
	"errors"
	"strconv"
	"time"

	"jaguar-racing/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript executa a janela deslizante de forma atômica num sorted set:
// remove eventos expirados, registra o atual, conta e renova o TTL. Acima do limite
// devolve também quando o evento de índice count-limit sai da janela (Retry-After).
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[4])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
redis.call("ZADD", key, now, ARGV[3])
local count = redis.call("ZCARD", key)
redis.call("PEXPIRE", key, window)

local retryAt = 0
if count > limit then
  local idx = count - limit
  local ev = redis.call("ZRANGE", key, idx, idx, "WITHSCORES")
  if ev[2] then
    retryAt = tonumber(ev[2]) + window
  else
    retryAt = now + window
  end
end
return {count, retryAt}
`)

// RedisWindowStore implementa domain.WindowStore com um sorted set por chave.
type RedisWindowStore struct {
	rdb    redis.Scripter
	prefix string
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = prefix }
}

func NewRedisWindowStore(rdb redis.Scripter, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{rdb: rdb}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Hit(ctx context.Context, key domain.Key, limit int, window time.Duration, now time.Time) (domain.WindowCount, error) {
	if s == nil || s.rdb == nil {
		return domain.WindowCount{}, errors.New("redis window store: nil client")
	}
	nowMs := now.UnixMilli()
	// membro único: dois eventos no mesmo milissegundo contam separados
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, s.rdb, []string{s.buildKey(key)},
		nowMs,
		window.Milliseconds(),
		member,
		limit,
	).Int64Slice()
	if err != nil {
		return domain.WindowCount{}, err
	}
	if len(res) != 2 {
		return domain.WindowCount{}, errors.New("redis window store: unexpected script reply")
	}
	wc := domain.WindowCount{Count: res[0]}
	if res[1] > 0 {
		wc.RetryAt = time.UnixMilli(res[1])
	}
	return wc, nil
}

func (s *RedisWindowStore) buildKey(key domain.Key) string {
	if s.prefix == "" {
		return string(key)
	}
	return s.prefix + ":" + string(key)
}
