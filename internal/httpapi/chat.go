package httpapi

import (
	"net/http"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/internal/chat"

	"github.com/gin-gonic/gin"
)

func (a *api) requireChat(c *gin.Context) {
	if a.deps.Chat == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"content": "Servicio no disponible."})
		return
	}
	c.Next()
}

type chatBody struct {
	Messages []chat.Message `json:"messages"`
	Mensaje  string         `json:"mensaje"`
}

func (a *api) chat(c *gin.Context) {
	var body chatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Wrap(apperr.KindInvalidInput, "Escribe un mensaje.", err), "content")
		return
	}

	reply, err := a.deps.Chat.Reply(c.Request.Context(), chat.Request{
		Messages: body.Messages,
		Mensaje:  body.Mensaje,
	})
	if err != nil {
		writeError(c, err, "content")
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": reply.Content, "cached": reply.Cached})
}
