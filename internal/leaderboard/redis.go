package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// submitScript: improve-or-insert + metadados + rank numa única execução.
// Devolve {rank|-1, best, improved}. Scores voltam como string para não perder casas.
var submitScript = redis.NewScript(`
local board  = KEYS[1]
local meta   = KEYS[2]
local member = ARGV[1]
local score  = tonumber(ARGV[2])

local improved = 0
local current = redis.call("ZSCORE", board, member)
if (not current) or score < tonumber(current) then
  redis.call("ZADD", board, ARGV[2], member)
  improved = 1
end

redis.call("HSET", meta, "last_ip", ARGV[3], "last_seen", ARGV[4], "latest_score", ARGV[5])

local rank = redis.call("ZRANK", board, member)
if not rank then
  rank = -1
end
local best = redis.call("ZSCORE", board, member)
return {rank, best or "", improved}
`)

// renameScript: 0 = nada a migrar, -1 = destino ocupado, 1 = migrado.
var renameScript = redis.NewScript(`
local board   = KEYS[1]
local oldMeta = KEYS[2]
local newMeta = KEYS[3]

local score = redis.call("ZSCORE", board, ARGV[1])
if not score then
  return 0
end
if redis.call("ZSCORE", board, ARGV[2]) or redis.call("EXISTS", newMeta) == 1 then
  return -1
end

redis.call("ZADD", board, score, ARGV[2])
redis.call("ZREM", board, ARGV[1])
if redis.call("EXISTS", oldMeta) == 1 then
  redis.call("RENAME", oldMeta, newMeta)
end
return 1
`)

// RedisStore implementa Store sobre um sorted set e hashes user:<identidade>.
type RedisStore struct {
	rdb            redis.Cmdable
	key            string
	cooldownPrefix string
}

type RedisOption func(*RedisStore)

func WithCooldownPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.cooldownPrefix = prefix }
}

func NewRedisStore(rdb redis.Cmdable, key string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:            rdb,
		key:            key,
		cooldownPrefix: "game:cooldown:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) AcquireCooldown(ctx context.Context, ip string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, s.cooldownPrefix+ip, "1", ttl).Result()
}

func (s *RedisStore) Submit(ctx context.Context, op SubmitOp) (Upsert, error) {
	res, err := submitScript.Run(ctx, s.rdb,
		[]string{s.key, MetaKey(op.Member)},
		op.Member,
		formatScore(op.Score),
		op.IP,
		op.At.UnixMilli(),
		formatScore(op.Latest),
	).Slice()
	if err != nil {
		return Upsert{}, fmt.Errorf("submit script: %w", err)
	}
	if len(res) != 3 {
		return Upsert{}, fmt.Errorf("submit script: unexpected reply length %d", len(res))
	}

	rank, _ := res[0].(int64)
	improved, _ := res[2].(int64)
	out := Upsert{Rank: rank, Improved: improved == 1}
	if raw, ok := res[1].(string); ok && raw != "" {
		out.Best, _ = strconv.ParseFloat(raw, 64)
	}
	return out, nil
}

func (s *RedisStore) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	zs, err := s.rdb.ZRangeWithScores(ctx, s.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	return lo.Map(zs, func(z redis.Z, _ int) Entry {
		return Entry{Member: fmt.Sprint(z.Member), Score: z.Score}
	}), nil
}

func (s *RedisStore) Rename(ctx context.Context, oldName, newName string) (RenameOutcome, error) {
	code, err := renameScript.Run(ctx, s.rdb,
		[]string{s.key, MetaKey(oldName), MetaKey(newName)},
		oldName, newName,
	).Int64()
	if err != nil {
		return RenameNoop, fmt.Errorf("rename script: %w", err)
	}
	switch code {
	case 0:
		return RenameNoop, nil
	case 1:
		return RenameMigrated, nil
	case -1:
		return RenameConflict, nil
	}
	return RenameNoop, fmt.Errorf("rename script: unexpected reply %d", code)
}

// Player lê pontuação, posição e metadados num único pipeline.
func (s *RedisStore) Player(ctx context.Context, name string) (Player, error) {
	pipe := s.rdb.Pipeline()
	scoreCmd := pipe.ZScore(ctx, s.key, name)
	rankCmd := pipe.ZRank(ctx, s.key, name)
	metaCmd := pipe.HGetAll(ctx, MetaKey(name))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Player{}, err
	}

	score, err := scoreCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Player{}, ErrPlayerNotFound
	}
	if err != nil {
		return Player{}, err
	}
	rank, err := rankCmd.Result()
	if err != nil {
		// o membro sumiu entre os comandos do pipeline
		if errors.Is(err, redis.Nil) {
			return Player{}, ErrPlayerNotFound
		}
		return Player{}, err
	}

	meta := metaCmd.Val()
	p := Player{
		Member: name,
		Score:  score,
		Rank:   rank,
		LastIP: meta["last_ip"],
	}
	if ms, err := strconv.ParseInt(meta["last_seen"], 10, 64); err == nil {
		p.LastSeen = time.UnixMilli(ms)
	}
	if v, err := strconv.ParseFloat(meta["latest_score"], 64); err == nil {
		p.LatestScore = v
	}
	return p, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
