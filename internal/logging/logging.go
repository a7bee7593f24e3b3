// Package logging configura o logrus e fornece middlewares gin de request id e log de acesso.
package logging

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-Id"

type contextKey string

const requestIDKey contextKey = "request_id"

// Setup aplica nível e formato ao logger global.
// format: "json" ou "text" (padrão).
func Setup(level, format string) {
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// RequestID reaproveita o X-Request-Id do cliente ou gera um novo.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), requestIDKey, reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(requestIDKey), reqID)
		c.Header(RequestIDHeader, reqID)
		c.Next()
	}
}

func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext devolve uma entry com o request id já anexado.
func FromContext(ctx context.Context) *log.Entry {
	entry := log.NewEntry(log.StandardLogger())
	if id := RequestIDFrom(ctx); id != "" {
		entry = entry.WithField("request_id", id)
	}
	return entry
}

// AccessLog registra uma linha por request. 5xx em Error, 4xx em Warn.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := FromContext(c.Request.Context()).WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"bytes":      c.Writer.Size(),
		})

		switch {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}
