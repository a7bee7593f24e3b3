package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *api) health(c *gin.Context) {
	store := "disabled"
	if a.deps.StoreHealthy != nil {
		store = "down"
		if a.deps.StoreHealthy(c.Request.Context()) {
			store = "up"
		}
	}
	chatState := "disabled"
	if a.deps.Chat != nil {
		chatState = "configured"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": store, "chat": chatState})
}
