// upstream-falso imita o endpoint de chat completions do Azure OpenAI para testes locais
// de carga e de resiliência (latência, falhas e 429 configuráveis por ambiente).
package main

import (
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	addr := getenvDefault("LISTEN_ADDR", ":8081")
	apiKey := os.Getenv("FAKE_API_KEY")
	latency := getenvDuration("FAKE_LATENCY", 300*time.Millisecond)
	failRate := getenvFloat("FAKE_FAIL_RATE", 0)
	failStatus := getenvInt("FAKE_FAIL_STATUS", http.StatusServiceUnavailable)

	var calls atomic.Int64

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/openai/deployments/:deployment/chat/completions", func(c *gin.Context) {
		n := calls.Add(1)
		if apiKey != "" && c.GetHeader("api-key") != apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "401", "message": "invalid api key"}})
			return
		}

		select {
		case <-time.After(latency):
		case <-c.Request.Context().Done():
			return
		}

		if failRate > 0 && rand.Float64() < failRate {
			log.WithFields(log.Fields{"call": n, "status": failStatus}).Info("injected failure")
			c.JSON(failStatus, gin.H{"error": gin.H{"message": "injected failure"}})
			return
		}

		log.WithFields(log.Fields{"call": n, "deployment": c.Param("deployment")}).Info("completion served")
		c.JSON(http.StatusOK, gin.H{
			"id": "fake-" + strconv.FormatInt(n, 10),
			"choices": []gin.H{{
				"index":         0,
				"finish_reason": "stop",
				"message": gin.H{
					"role":    "assistant",
					"content": "Respuesta de prueba número " + strconv.FormatInt(n, 10) + ".",
				},
			}},
		})
	})

	log.WithFields(log.Fields{
		"addr":       addr,
		"latency":    latency,
		"failRate":   failRate,
		"failStatus": failStatus,
	}).Info("fake upstream listening")
	if err := r.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}

func getenvFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return f
}

func getenvInt(k string, def int) int {
	i, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return i
}
