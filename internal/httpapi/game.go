package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/internal/leaderboard"
	"jaguar-racing/internal/logging"
	"jaguar-racing/middleware/ratelimit"
	"jaguar-racing/middleware/ratelimit/domain"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
)

func (a *api) requireLeaderboard(c *gin.Context) {
	if a.deps.Leaderboard == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Servicio no disponible"})
		return
	}
	c.Next()
}

type submitBody struct {
	Nombre      string `json:"nombre"`
	Tiempo      any    `json:"tiempo"`
	RecordLocal any    `json:"recordLocal"`
}

type submitResponse struct {
	Status   string  `json:"status"`
	NewRank  *int64  `json:"new_rank"`
	Best     float64 `json:"best"`
	Improved bool    `json:"improved"`
}

func (a *api) submit(c *gin.Context) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Wrap(apperr.KindInvalidInput, "Cuerpo inválido", err), "error")
		return
	}
	name := strings.TrimSpace(body.Nombre)
	if !a.allow(c, name) {
		return
	}
	ip := a.ip(c.Request)

	tiempo, ok := parseNumber(body.Tiempo)
	if !ok {
		writeError(c, apperr.Wrap(apperr.KindInvalidInput, "Tiempo sospechoso", leaderboard.ErrImplausibleTime), "error")
		return
	}

	// recordLocal ilegível é ignorado, não invalida o envio
	var localRecord *float64
	if v, ok := parseNumber(body.RecordLocal); ok {
		localRecord = &v
	}

	res, err := a.deps.Leaderboard.Submit(c.Request.Context(), leaderboard.SubmitRequest{
		Name:        name,
		Time:        tiempo,
		LocalRecord: localRecord,
		IP:          ip,
	})
	if err != nil {
		writeError(c, err, "error")
		return
	}

	out := submitResponse{Status: "success", Best: res.Best, Improved: res.Improved}
	if res.Rank > 0 {
		out.NewRank = &res.Rank
	}
	c.JSON(http.StatusOK, out)
}

// allow aplica a policy do jogo por IP e, quando name é uma identidade válida, por jogador.
func (a *api) allow(c *gin.Context, name string) bool {
	subjects := domain.Subjects{IP: a.ip(c.Request)}
	if leaderboard.ValidIdentity(name) {
		subjects.User = name
	}
	dec := a.deps.Limiter.Evaluate(c.Request.Context(), a.deps.GamePolicy, subjects)
	ratelimit.SetHeaders(c, a.deps.GamePolicy.Name, dec)
	if !dec.Allowed {
		writeError(c, apperr.RateLimited(ratelimit.Message(dec.Scope), dec.RetryAfter), "error")
		return false
	}
	return true
}

// rankingRow publica só o alias: o sufixo #NNNN é o que identifica o jogador
// no submit e no rename, então não sai numa resposta pública e cacheada.
type rankingRow struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// ranking nunca falha para o navegador: erro no store vira lista vazia sem cache.
func (a *api) ranking(c *gin.Context) {
	n, _ := strconv.Atoi(c.Query("n"))

	entries, err := a.deps.Leaderboard.Top(c.Request.Context(), n)
	if err != nil {
		logging.FromContext(c.Request.Context()).WithError(err).Error("ranking read failed")
		noStore()(c)
		c.JSON(http.StatusOK, []rankingRow{})
		return
	}

	cachecontrol.New(cachecontrol.Config{
		Public:               true,
		SMaxAge:              cachecontrol.Duration(a.deps.RankingMaxAge),
		StaleWhileRevalidate: cachecontrol.Duration(a.deps.RankingStale),
	})(c)
	c.JSON(http.StatusOK, lo.Map(entries, func(e leaderboard.Entry, _ int) rankingRow {
		return rankingRow{Member: leaderboard.Alias(e.Member), Score: e.Score}
	}))
}

type renameBody struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

func (a *api) rename(c *gin.Context) {
	var body renameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.Wrap(apperr.KindInvalidInput, "Faltan datos", err), "error")
		return
	}

	if !a.allow(c, strings.TrimSpace(body.OldName)) {
		return
	}

	res, err := a.deps.Leaderboard.Rename(c.Request.Context(), body.OldName, body.NewName)
	if err != nil {
		writeError(c, err, "error")
		return
	}
	if res.Migrated {
		c.JSON(http.StatusOK, gin.H{"status": "success", "msg": "Identidad transferida"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "msg": "Nombre local actualizado"})
}

func (a *api) player(c *gin.Context) {
	p, err := a.deps.Leaderboard.Player(c.Request.Context(), c.Query("nombre"))
	if err != nil {
		writeError(c, err, "error")
		return
	}
	body := gin.H{
		"member": p.Member,
		"alias":  leaderboard.Alias(p.Member),
		"score":  p.Score,
		"rank":   p.Rank,
	}
	if !p.LastSeen.IsZero() {
		body["lastSeen"] = p.LastSeen.UTC()
	}
	c.JSON(http.StatusOK, body)
}

// parseNumber aceita número JSON ou string numérica, como o cliente antigo enviava.
func parseNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
