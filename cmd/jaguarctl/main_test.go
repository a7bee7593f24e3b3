package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"jaguar-racing/internal/config"
	"jaguar-racing/internal/leaderboard"
	"jaguar-racing/middleware/ratelimit/domain"
	"jaguar-racing/middleware/ratelimit/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setup(t *testing.T) (config.Config, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Default()
	store := leaderboard.NewRedisStore(rdb, cfg.Store.LeaderboardKey)
	ctx := context.Background()
	for _, op := range []leaderboard.SubmitOp{
		{Member: "Ada#1234", Score: 0.25},
		{Member: "Bob#0001", Score: 0.31},
	} {
		if _, err := store.Submit(ctx, op); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return cfg, rdb
}

func TestRun_TopAndPlayer(t *testing.T) {
	cfg, rdb := setup(t)
	var out bytes.Buffer

	if err := run(context.Background(), &out, cfg, rdb, "top", []string{"-n", "1"}); err != nil {
		t.Fatalf("top: %v", err)
	}
	if !strings.Contains(out.String(), "Ada#1234") || strings.Contains(out.String(), "Bob#0001") {
		t.Fatalf("unexpected top output:\n%s", out.String())
	}

	out.Reset()
	if err := run(context.Background(), &out, cfg, rdb, "player", []string{"Bob#0001"}); err != nil {
		t.Fatalf("player: %v", err)
	}
	if !strings.Contains(out.String(), "rank:   2") {
		t.Fatalf("unexpected player output:\n%s", out.String())
	}
}

func TestRun_RenameAndUnknown(t *testing.T) {
	cfg, rdb := setup(t)
	var out bytes.Buffer

	if err := run(context.Background(), &out, cfg, rdb, "rename", []string{"Ada#1234", "Bob#0001"}); err == nil {
		t.Fatalf("expected conflict error")
	}
	if err := run(context.Background(), &out, cfg, rdb, "rename", []string{"Ada#1234", "Lovelace"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !strings.Contains(out.String(), "migrado") {
		t.Fatalf("unexpected rename output: %q", out.String())
	}
	if err := run(context.Background(), &out, cfg, rdb, "voar", nil); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestRun_Stats(t *testing.T) {
	cfg, rdb := setup(t)
	stats := infra.NewRedisStatsStore(rdb, infra.WithStatsPrefix(cfg.Stats.Prefix))
	ctx := context.Background()
	_ = stats.Record(ctx, domain.StatsEvent{Key: "k", Policy: "chat", Scope: domain.ScopeUser, Allowed: true})
	_ = stats.Record(ctx, domain.StatsEvent{Key: "k", Policy: "chat", Scope: domain.ScopeUser, Allowed: false})

	var out bytes.Buffer
	if err := run(ctx, &out, cfg, rdb, "stats", nil); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out.String(), "allowed=1 denied=1") || !strings.Contains(out.String(), "chat:user") {
		t.Fatalf("unexpected stats output:\n%s", out.String())
	}
}
