package ratelimit

import (
	"time"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/internal/logging"
	"jaguar-racing/middleware/ratelimit/application"
	"jaguar-racing/middleware/ratelimit/infra"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware limita requisições simultâneas no handler (chamadas pagas ao modelo).
// Sem vaga dentro do AcquireTimeout responde 503 {content}.
func ConcurrencyMiddleware(opts ConcurrencyOptions) gin.HandlerFunc {
	if opts.Max <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(c *gin.Context) {
		release, err := svc.Acquire(c.Request.Context())
		if err != nil {
			inUse, capacity := svc.Pool.Occupancy()
			logging.FromContext(c.Request.Context()).WithError(err).WithFields(log.Fields{
				"in_use":   inUse,
				"capacity": capacity,
			}).Warn("concurrency limit reached")
			c.AbortWithStatusJSON(apperr.StatusOf(err), gin.H{
				"content": apperr.Message(err, "Servicio no disponible."),
			})
			return
		}
		defer release()

		c.Next()
	}
}
