// Comando jaguarctl: operações administrativas sobre o ranking e as estatísticas do rate limit,
// direto no KV configurado (mesmas variáveis de ambiente do servidor).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/internal/config"
	"jaguar-racing/internal/kv"
	"jaguar-racing/internal/leaderboard"
	"jaguar-racing/middleware/ratelimit/infra"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const usage = `uso: jaguarctl <comando> [args]

comandos:
  top [-n N]             mostra o ranking
  player <nome>          mostra um jogador
  rename <antigo> <novo> migra uma identidade
  stats                  totais do rate limit
`

func main() {
	_ = godotenv.Load()
	log.SetOutput(os.Stderr)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(config.ResolveConfigPath(os.Getenv(config.EnvConfigPath)))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := kv.Connect(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("kv: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	if err := run(ctx, os.Stdout, cfg, rdb, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal(apperr.Message(err, err.Error()))
	}
}

func run(ctx context.Context, out io.Writer, cfg config.Config, rdb redis.UniversalClient, cmd string, args []string) error {
	svc := leaderboard.NewService(leaderboard.NewRedisStore(rdb, cfg.Store.LeaderboardKey), leaderboard.Policy{
		MinTime:          cfg.Game.MinTime,
		LocalRecordFloor: cfg.Game.LocalRecordFloor,
		TopLimit:         1000,
	})

	switch cmd {
	case "top":
		fs := flag.NewFlagSet("top", flag.ContinueOnError)
		n := fs.Int("n", cfg.Game.TopLimit, "quantidade de posições")
		if err := fs.Parse(args); err != nil {
			return err
		}
		entries, err := svc.Top(ctx, *n)
		if err != nil {
			return err
		}
		for i, e := range entries {
			fmt.Fprintf(out, "%3d  %-25s  %.3f\n", i+1, e.Member, e.Score)
		}
		return nil

	case "player":
		if len(args) != 1 {
			return errors.New("player: informe o nome")
		}
		p, err := svc.Player(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "member: %s\nalias:  %s\nscore:  %.3f\nrank:   %d\n", p.Member, leaderboard.Alias(p.Member), p.Score, p.Rank)
		if !p.LastSeen.IsZero() {
			fmt.Fprintf(out, "visto:  %s (%s)\n", p.LastSeen.UTC().Format(time.RFC3339), p.LastIP)
		}
		return nil

	case "rename":
		if len(args) != 2 {
			return errors.New("rename: informe o nome antigo e o novo")
		}
		res, err := svc.Rename(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if res.Migrated {
			fmt.Fprintf(out, "%s -> %s migrado\n", args[0], args[1])
		} else {
			fmt.Fprintf(out, "%s não está no ranking, nada a migrar\n", args[0])
		}
		return nil

	case "stats":
		stats := infra.NewRedisStatsStore(rdb, infra.WithStatsPrefix(cfg.Stats.Prefix))
		total, byPolicy, err := stats.Totals(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "total          allowed=%d denied=%d\n", total.Allowed, total.Denied)
		names := make([]string, 0, len(byPolicy))
		for name := range byPolicy {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c := byPolicy[name]
			fmt.Fprintf(out, "%-14s allowed=%d denied=%d\n", name, c.Allowed, c.Denied)
		}
		return nil
	}
	return fmt.Errorf("comando desconhecido %q\n\n%s", cmd, usage)
}
