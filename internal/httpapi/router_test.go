package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"jaguar-racing/internal/chat"
	"jaguar-racing/internal/leaderboard"
	"jaguar-racing/middleware/ratelimit"
	"jaguar-racing/middleware/ratelimit/application"
	"jaguar-racing/middleware/ratelimit/domain"
	"jaguar-racing/middleware/ratelimit/infra"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

type stubCompleter struct {
	calls atomic.Int32
	reply string
}

func (s *stubCompleter) Complete(context.Context, []chat.Message) (string, error) {
	s.calls.Add(1)
	return s.reply, nil
}

type fixture struct {
	router    *gin.Engine
	store     *leaderboard.MemoryStore
	completer *stubCompleter
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	store := leaderboard.NewMemoryStore()
	policy := leaderboard.DefaultPolicy()
	policy.Cooldown = 0

	completer := &stubCompleter{reply: "**Hola** desde Jaguar Racing"}
	chatOpts := chat.DefaultOptions()
	chatOpts.Retry.Jitter = nil

	deps := Deps{
		Leaderboard: leaderboard.NewService(store, policy),
		Chat:        chat.NewService(completer, chat.NewMemoryCache(), nil, chatOpts),
		Limiter:     application.Service{Store: infra.NewMemoryWindowStore()},
		GamePolicy: domain.Policy{Name: "game", Rules: []domain.Rule{
			{Scope: domain.ScopeIP, Limit: 600, Window: time.Hour},
		}},
		ChatPolicy: domain.Policy{Name: "chat", Rules: []domain.Rule{
			{Scope: domain.ScopeUser, Limit: 2, Window: time.Hour},
		}},
		ChatConcurrency: ratelimit.ConcurrencyOptions{Max: 4, AcquireTimeout: time.Second},
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &fixture{router: NewRouter(deps), store: store, completer: completer}
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.RemoteAddr = "10.1.1.1:4000"
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestSubmit_ReturnsRankAndKeepsBest(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Ada#1234","tiempo":0.254}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	first := decode[map[string]any](t, w)
	if first["status"] != "success" || first["new_rank"] != float64(1) {
		t.Fatalf("unexpected body: %v", first)
	}

	w = f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Ada#1234","tiempo":"0.300"}`, nil)
	second := decode[map[string]any](t, w)
	if second["best"] != 0.254 || second["improved"] != false {
		t.Fatalf("expected best to stay 0.254, got %v", second)
	}
	if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("expected no-store on submit, got %q", got)
	}
}

func TestSubmit_ValidationErrors(t *testing.T) {
	f := newFixture(t, nil)

	cases := []struct {
		body string
		want string
	}{
		{`{"nombre":"x","tiempo":0.3}`, "Nombre inválido"},
		{`{"nombre":"Ada#1234","tiempo":0.005}`, "Tiempo sospechoso"},
		{`{"nombre":"Ada#1234","tiempo":"rapido"}`, "Tiempo sospechoso"},
		{`not json`, "Cuerpo inválido"},
	}
	for _, tc := range cases {
		w := f.do(http.MethodPost, "/api/game/submit", tc.body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", tc.body, w.Code)
		}
		if got := decode[map[string]any](t, w)["error"]; got != tc.want {
			t.Fatalf("body %s: expected %q, got %v", tc.body, tc.want, got)
		}
	}
}

func TestSubmit_RateLimitedPerUser(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.GamePolicy = domain.Policy{Name: "game", Rules: []domain.Rule{
			{Scope: domain.ScopeUser, Limit: 1, Window: time.Hour},
		}}
	})

	_ = f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Ada#1234","tiempo":0.3}`, nil)
	w := f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Ada#1234","tiempo":0.2}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["error"] == "" || body["retryAfter"] == nil {
		t.Fatalf("expected error and retryAfter, got %v", body)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	// outro jogador no mesmo IP passa
	if w := f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Bob#0001","tiempo":0.3}`, nil); w.Code != http.StatusOK {
		t.Fatalf("expected other user to pass, got %d", w.Code)
	}
}

func TestRanking_SortedAliasesAndEdgeCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.store.Submit(ctx, leaderboard.SubmitOp{Member: "Zed#0002", Score: 0.4})
	_, _ = f.store.Submit(ctx, leaderboard.SubmitOp{Member: "Ada#1234", Score: 0.2})

	w := f.do(http.MethodGet, "/api/game/ranking", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rows := decode[[]rankingRow](t, w)
	if len(rows) != 2 || rows[0].Member != "Ada" || rows[1].Member != "Zed" || rows[1].Score != 0.4 {
		t.Fatalf("unexpected ranking: %+v", rows)
	}
	if strings.Contains(w.Body.String(), "#") {
		t.Fatalf("ranking must not expose identity suffixes: %s", w.Body.String())
	}
	cc := w.Header().Get("Cache-Control")
	if !strings.Contains(cc, "public") || !strings.Contains(cc, "s-maxage=5") {
		t.Fatalf("unexpected Cache-Control %q", cc)
	}
}

func TestRename_Flows(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, _ = f.store.Submit(ctx, leaderboard.SubmitOp{Member: "Ada#1234", Score: 0.25})
	_, _ = f.store.Submit(ctx, leaderboard.SubmitOp{Member: "Bob#0001", Score: 0.35})

	w := f.do(http.MethodPost, "/api/game/rename", `{"oldName":"Nadie","newName":"Nadie#2"}`, nil)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["status"] != "ok" {
		t.Fatalf("expected local-only rename success, got %d %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodPost, "/api/game/rename", `{"oldName":"Ada#1234","newName":"Bob#0001"}`, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	w = f.do(http.MethodPost, "/api/game/rename", `{"oldName":"Ada#1234"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = f.do(http.MethodPost, "/api/game/rename", `{"oldName":"Ada#1234","newName":"Lovelace"}`, nil)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["msg"] != "Identidad transferida" {
		t.Fatalf("expected migration, got %d %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodGet, "/api/game/player?nombre=Lovelace", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected player 200, got %d", w.Code)
	}
	if p := decode[map[string]any](t, w); p["score"] != 0.25 || p["rank"] != float64(1) {
		t.Fatalf("unexpected player %v", p)
	}

	if w := f.do(http.MethodGet, "/api/game/player?nombre=Ada%231234", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for old identity, got %d", w.Code)
	}
}

func TestSubmit_RecordLocalAsString(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Ada#1234","tiempo":"0.400","recordLocal":"0.210"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if best := decode[map[string]any](t, w)["best"]; best != 0.21 {
		t.Fatalf("expected string recordLocal to be used, best=%v", best)
	}

	w = f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Bob#0001","tiempo":0.3,"recordLocal":"n/a"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected unreadable recordLocal to be ignored, got %d", w.Code)
	}
	if best := decode[map[string]any](t, w)["best"]; best != 0.3 {
		t.Fatalf("expected submitted time, best=%v", best)
	}
}

func TestRename_IsRateLimited(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.GamePolicy = domain.Policy{Name: "game", Rules: []domain.Rule{
			{Scope: domain.ScopeIP, Limit: 2, Window: time.Hour},
		}}
	})

	for i := 0; i < 2; i++ {
		if w := f.do(http.MethodPost, "/api/game/rename", `{"oldName":"Nadie","newName":"Otro"}`, nil); w.Code != http.StatusOK {
			t.Fatalf("rename %d: expected 200, got %d", i+1, w.Code)
		}
	}
	w := f.do(http.MethodPost, "/api/game/rename", `{"oldName":"Ada#1234","newName":"Mio"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestLeaderboardUnconfigured_Returns503(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Leaderboard = nil })

	for _, path := range []string{"/api/game/ranking", "/api/game/player?nombre=abc"} {
		if w := f.do(http.MethodGet, path, "", nil); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, w.Code)
		}
	}
	if w := f.do(http.MethodPost, "/api/game/submit", `{"nombre":"Ada#1234","tiempo":0.3}`, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("submit: expected 503, got %d", w.Code)
	}
}

func TestChat_RepliesCachesAndRateLimits(t *testing.T) {
	f := newFixture(t, nil)
	headers := map[string]string{"x-user-id": "user_1"}

	w := f.do(http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"¿Cómo me uno?"}]}`, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode[map[string]any](t, w)
	if body["content"] != "Hola desde Jaguar Racing" || body["cached"] != false {
		t.Fatalf("unexpected body %v", body)
	}

	w = f.do(http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"¿Cómo me uno?"}]}`, headers)
	if decode[map[string]any](t, w)["cached"] != true {
		t.Fatalf("expected cached reply")
	}
	if f.completer.calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", f.completer.calls.Load())
	}

	w = f.do(http.MethodPost, "/api/chat", `{"mensaje":"hola"}`, headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third message, got %d", w.Code)
	}
	if decode[map[string]any](t, w)["content"] != ratelimit.Message(domain.ScopeUser) {
		t.Fatalf("expected user-limit message")
	}
}

func TestChat_EmptyMessageIs400(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/chat", `{"messages":[]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if decode[map[string]any](t, w)["content"] == "" {
		t.Fatalf("expected content message")
	}
}

func TestChat_Unconfigured503(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Chat = nil })
	w := f.do(http.MethodPost, "/api/chat", `{"mensaje":"hola"}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.StoreHealthy = func(context.Context) bool { return true }
	})
	w := f.do(http.MethodGet, "/healthz", "", nil)
	body := decode[map[string]any](t, w)
	if w.Code != http.StatusOK || body["store"] != "up" || body["chat"] != "configured" {
		t.Fatalf("unexpected health %d %v", w.Code, body)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}
