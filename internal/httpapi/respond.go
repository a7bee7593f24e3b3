package httpapi

import (
	"net/http"
	"strconv"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/internal/logging"
	"jaguar-racing/middleware/ratelimit"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// fallbackMessage é o texto genérico por status quando o erro não traz mensagem segura.
func fallbackMessage(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "Servicio no disponible"
	case http.StatusGatewayTimeout:
		return "La respuesta tardó demasiado"
	case http.StatusTooManyRequests:
		return "Demasiadas solicitudes"
	case http.StatusBadRequest:
		return "Solicitud inválida"
	default:
		return "Error interno"
	}
}

// writeError traduz um erro para JSON. field é "error" nas rotas do jogo e "content" no chat.
func writeError(c *gin.Context, err error, field string) {
	status := apperr.StatusOf(err)
	body := gin.H{field: apperr.Message(err, fallbackMessage(status))}

	if ra := apperr.RetryAfter(err); ra > 0 {
		secs := ratelimit.RetryAfterSeconds(ra)
		c.Header("Retry-After", strconv.Itoa(secs))
		body["retryAfter"] = secs
	}

	entry := logging.FromContext(c.Request.Context()).WithError(err).WithFields(log.Fields{
		"path":   c.FullPath(),
		"status": status,
		"kind":   apperr.KindOf(err).String(),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	c.AbortWithStatusJSON(status, body)
}
