package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jaguar-racing/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record grava a decisão num único pipeline. Falha parcial vira erro; o chamador ignora.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	pipe.HIncrBy(ctx, s.prefix+":policy", policyField(ev)+":"+field, 1)

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals lê os contadores cumulativos e os por policy numa ida ao servidor.
func (s *RedisStatsStore) Totals(ctx context.Context) (domain.Counters, map[string]domain.Counters, error) {
	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.totalKey())
	policyCmd := pipe.HGetAll(ctx, s.prefix+":policy")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.Counters{}, nil, err
	}

	total := countersFrom(totalCmd.Val(), "")
	byPolicy := make(map[string]domain.Counters)
	for field, raw := range policyCmd.Val() {
		idx := strings.LastIndex(field, ":")
		if idx <= 0 {
			continue
		}
		name, kind := field[:idx], field[idx+1:]
		n, _ := strconv.ParseInt(raw, 10, 64)
		c := byPolicy[name]
		switch kind {
		case "allowed":
			c.Allowed += n
		case "denied":
			c.Denied += n
		}
		byPolicy[name] = c
	}
	return total, byPolicy, nil
}

func (s *RedisStatsStore) totalKey() string { return s.prefix + ":total" }

func countersFrom(h map[string]string, prefix string) domain.Counters {
	allowed, _ := strconv.ParseInt(h[prefix+"allowed"], 10, 64)
	denied, _ := strconv.ParseInt(h[prefix+"denied"], 10, 64)
	return domain.Counters{Allowed: allowed, Denied: denied}
}
