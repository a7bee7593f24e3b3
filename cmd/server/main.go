package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jaguar-racing/internal/chat"
	"jaguar-racing/internal/config"
	"jaguar-racing/internal/httpapi"
	"jaguar-racing/internal/kv"
	"jaguar-racing/internal/leaderboard"
	"jaguar-racing/internal/logging"
	"jaguar-racing/middleware/ratelimit"
	"jaguar-racing/middleware/ratelimit/application"
	"jaguar-racing/middleware/ratelimit/infra"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not load .env")
	}

	cfg, err := config.Load(config.ResolveConfigPath(os.Getenv(config.EnvConfigPath)))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if cfg.Server.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.Store.Driver == config.StoreDriverRedis {
		rdb, err = kv.Connect(ctx, cfg.Store)
		if err != nil {
			// leaderboard fica indisponível (503); o chat segue com cache e janelas em memória
			log.WithError(err).Error("kv store unavailable, leaderboard disabled")
		} else {
			defer func() { _ = rdb.Close() }()
		}
	}

	limiter := buildLimiter(ctx, cfg, rdb)

	gamePolicy, err := ratelimit.PolicyFromConfig("game", cfg.Limits.Game)
	if err != nil {
		log.Fatalf("game policy: %v", err)
	}
	chatPolicy, err := ratelimit.PolicyFromConfig("chat", cfg.Limits.Chat)
	if err != nil {
		log.Fatalf("chat policy: %v", err)
	}

	deps := httpapi.Deps{
		Leaderboard:     buildLeaderboard(cfg, rdb),
		Chat:            buildChat(ctx, cfg, rdb),
		Limiter:         limiter,
		GamePolicy:      gamePolicy,
		ChatPolicy:      chatPolicy,
		TrustXFF:        cfg.Server.TrustXFF,
		ChatConcurrency: ratelimit.ConcurrencyOptions{Max: cfg.Chat.MaxConcurrent, AcquireTimeout: cfg.Chat.AcquireTimeout},
		RankingMaxAge:   cfg.Game.RankingMaxAge,
		RankingStale:    cfg.Game.RankingStale,
	}
	if rdb != nil {
		deps.StoreHealthy = func(ctx context.Context) bool { return kv.Healthy(ctx, rdb) }
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown incomplete")
		}
	}()

	log.WithFields(log.Fields{
		"addr":       cfg.Server.ListenAddr,
		"store":      cfg.Store.Driver,
		"kv":         rdb != nil,
		"chat":       deps.Chat != nil,
		"trustXFF":   cfg.Server.TrustXFF,
		"stats":      cfg.Stats.Enabled,
		"production": cfg.Server.Production,
	}).Info("jaguar racing server listening")
	log.WithFields(log.Fields{
		"rps":           cfg.Chat.UpstreamRPS,
		"burst":         cfg.Chat.UpstreamBurst,
		"maxConcurrent": cfg.Chat.MaxConcurrent,
	}).Info("chat upstream budget")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Info("server stopped")
}

// buildLimiter usa as janelas no KV quando disponível; senão, em memória com faxina periódica.
func buildLimiter(ctx context.Context, cfg config.Config, rdb *redis.Client) application.Service {
	svc := application.Service{}

	if rdb != nil {
		svc.Store = infra.NewRedisWindowStore(rdb, infra.WithWindowPrefix(cfg.Limits.Prefix))
	} else {
		mem := infra.NewMemoryWindowStore()
		svc.Store = mem
		go sweepWindows(ctx, mem, maxWindow(cfg.Limits))
	}

	if cfg.Stats.Enabled {
		if rdb != nil {
			svc.Stats = infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.Stats.Prefix),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
			)
		} else {
			svc.Stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
		}
	}
	return svc
}

func sweepWindows(ctx context.Context, mem *infra.MemoryWindowStore, window time.Duration) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			mem.Cleanup(now, window)
		}
	}
}

func maxWindow(l config.LimitsConfig) time.Duration {
	longest := time.Minute
	for _, r := range append(append([]config.RuleConfig{}, l.Chat...), l.Game...) {
		if r.Window > longest {
			longest = r.Window
		}
	}
	return longest
}

func buildLeaderboard(cfg config.Config, rdb *redis.Client) *leaderboard.Service {
	policy := leaderboard.Policy{
		MinTime:          cfg.Game.MinTime,
		LocalRecordFloor: cfg.Game.LocalRecordFloor,
		Cooldown:         cfg.Game.Cooldown,
		TopLimit:         cfg.Game.TopLimit,
	}
	switch {
	case rdb != nil:
		return leaderboard.NewService(leaderboard.NewRedisStore(rdb, cfg.Store.LeaderboardKey), policy)
	case cfg.Store.Driver == config.StoreDriverMemory:
		log.Warn("leaderboard running in memory, scores are lost on restart")
		return leaderboard.NewService(leaderboard.NewMemoryStore(), policy)
	}
	return nil
}

func buildChat(ctx context.Context, cfg config.Config, rdb *redis.Client) *chat.Service {
	if !cfg.Chat.Configured() {
		log.Warn("azure openai not configured, chat disabled")
		return nil
	}

	azure := chat.AzureConfig{
		Endpoint:    cfg.Chat.Endpoint,
		APIKey:      cfg.Chat.APIKey,
		Deployment:  cfg.Chat.Deployment,
		APIVersion:  cfg.Chat.APIVersion,
		MaxTokens:   cfg.Chat.MaxTokens,
		Temperature: cfg.Chat.Temperature,
	}

	var cache chat.Cache
	if rdb != nil {
		cache = chat.NewRedisCache(rdb, "")
	} else {
		mem := chat.NewMemoryCache()
		mem.StartJanitor(ctx, 5*time.Minute)
		cache = mem
	}

	budget := infra.NewStore(cfg.Chat.UpstreamRPS, cfg.Chat.UpstreamBurst)
	budget.StartJanitor(ctx)

	opts := chat.DefaultOptions()
	opts.HistoryLimit = cfg.Chat.HistoryLimit
	opts.MaxMessageChars = cfg.Chat.MaxMessageChars
	opts.Timeout = cfg.Chat.Timeout
	opts.Retry.Retries = cfg.Chat.Retries
	opts.Retry.Base = cfg.Chat.BackoffBase
	opts.CacheEnabled = cfg.Chat.CacheEnabled
	opts.CacheTTL = cfg.Chat.CacheTTL
	opts.Params = azure.Params()

	return chat.NewService(chat.NewAzureClient(azure, &http.Client{}), cache, budget, opts)
}
