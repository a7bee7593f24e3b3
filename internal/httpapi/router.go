// Package httpapi monta o router gin com as rotas do jogo, do chat e o healthcheck.
package httpapi

import (
	"context"
	"time"

	"jaguar-racing/internal/chat"
	"jaguar-racing/internal/leaderboard"
	"jaguar-racing/internal/logging"
	"jaguar-racing/middleware/ratelimit"
	"jaguar-racing/middleware/ratelimit/application"
	"jaguar-racing/middleware/ratelimit/domain"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
)

// Deps são as dependências já construídas em main. Leaderboard ou Chat nil
// significam "não configurado": as rotas respondem 503 em vez de derrubar o processo.
type Deps struct {
	Leaderboard *leaderboard.Service
	Chat        *chat.Service

	Limiter    application.Service
	GamePolicy domain.Policy
	ChatPolicy domain.Policy
	TrustXFF   bool

	ChatConcurrency ratelimit.ConcurrencyOptions

	RankingMaxAge time.Duration
	RankingStale  time.Duration

	// StoreHealthy é opcional; nil reporta o store como desabilitado.
	StoreHealthy func(ctx context.Context) bool
}

type api struct {
	deps Deps
	ip   ratelimit.KeyFunc
}

func NewRouter(d Deps) *gin.Engine {
	if d.RankingMaxAge <= 0 {
		d.RankingMaxAge = 5 * time.Second
	}
	if d.RankingStale <= 0 {
		d.RankingStale = 10 * time.Second
	}
	a := &api{deps: d, ip: ratelimit.ClientIPFunc(d.TrustXFF)}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestID(), logging.AccessLog(), gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", noStore(), a.health)

	game := r.Group("/api/game", a.requireLeaderboard)
	game.GET("/ranking", a.ranking)
	game.GET("/player", noStore(), a.player)
	game.POST("/submit", noStore(), a.submit)
	game.POST("/rename", noStore(), a.rename)

	r.POST("/api/chat",
		noStore(),
		a.requireChat,
		ratelimit.Middleware(ratelimit.Options{
			Service:             d.Limiter,
			Policy:              d.ChatPolicy,
			IPFn:                a.ip,
			AddRateLimitHeaders: true,
		}),
		ratelimit.ConcurrencyMiddleware(d.ChatConcurrency),
		a.chat,
	)

	return r
}

func noStore() gin.HandlerFunc {
	return cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})
}
