package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jaguar-racing/internal/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeUpstream responde com os status da fila e depois 200.
type fakeUpstream struct {
	calls    atomic.Int32
	statuses []int
	delay    time.Duration
	content  string
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(f.calls.Add(1))
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if n <= len(f.statuses) {
		w.WriteHeader(f.statuses[n-1])
		_, _ = w.Write([]byte(`{"error":{"message":"fake failure"}}`))
		return
	}
	content := f.content
	if content == "" {
		content = "**Hola**, somos Jaguar Racing."
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + content + `"}}]}`))
}

func newTestChat(t *testing.T, up *fakeUpstream, cache Cache, budget Budget, mutate func(*Options)) *Service {
	t.Helper()
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	opts := DefaultOptions()
	opts.Retry.Base = time.Millisecond
	opts.Retry.Jitter = nil
	opts.Timeout = 2 * time.Second
	if mutate != nil {
		mutate(&opts)
	}

	client := NewAzureClient(AzureConfig{
		Endpoint:   srv.URL,
		APIKey:     "k",
		Deployment: "jr",
		APIVersion: "2024-07-01-preview",
		MaxTokens:  150,
	}, srv.Client())
	return NewService(client, cache, budget, opts)
}

func ask(text string) Request {
	return Request{Messages: []Message{{Role: RoleUser, Content: text}}}
}

func TestService_IdenticalConversationHitsUpstreamOnce(t *testing.T) {
	up := &fakeUpstream{}
	svc := newTestChat(t, up, NewMemoryCache(), nil, nil)
	ctx := context.Background()

	first, err := svc.Reply(ctx, ask("¿Cuáles son los requisitos?"))
	if err != nil {
		t.Fatalf("first reply: %v", err)
	}
	if first.Cached || first.Content != "Hola, somos Jaguar Racing." {
		t.Fatalf("unexpected first reply: %+v", first)
	}

	second, err := svc.Reply(ctx, ask("¿Cuáles son los requisitos?"))
	if err != nil {
		t.Fatalf("second reply: %v", err)
	}
	if !second.Cached || second.Content != first.Content {
		t.Fatalf("expected cached reply, got %+v", second)
	}
	if got := up.calls.Load(); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
}

func TestService_ConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	up := &fakeUpstream{delay: 100 * time.Millisecond}
	svc := newTestChat(t, up, NewMemoryCache(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reply(context.Background(), ask("hola")); err != nil {
				t.Errorf("reply: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := up.calls.Load(); got != 1 {
		t.Fatalf("expected 1 upstream call, got %d", got)
	}
}

func TestService_RetriesTransientFailures(t *testing.T) {
	up := &fakeUpstream{statuses: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
	svc := newTestChat(t, up, nil, nil, nil)

	got, err := svc.Reply(context.Background(), ask("hola"))
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got.Content == "" {
		t.Fatalf("expected content")
	}
	if calls := up.calls.Load(); calls != 3 {
		t.Fatalf("expected 3 upstream calls (1 + 2 retries), got %d", calls)
	}
}

func TestService_DoesNotRetryAuthErrors(t *testing.T) {
	up := &fakeUpstream{statuses: []int{http.StatusUnauthorized}}
	cache := NewMemoryCache()
	svc := newTestChat(t, up, cache, nil, nil)

	_, err := svc.Reply(context.Background(), ask("hola"))
	if apperr.KindOf(err) != apperr.KindUpstreamAuth {
		t.Fatalf("expected upstream auth error, got %v", err)
	}
	if apperr.StatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 mapping, got %d", apperr.StatusOf(err))
	}
	if calls := up.calls.Load(); calls != 1 {
		t.Fatalf("expected no retries, got %d calls", calls)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed completion must not be cached")
	}
}

func TestService_GivesUpAfterRetries(t *testing.T) {
	up := &fakeUpstream{statuses: []int{500, 502, 503, 503}}
	svc := newTestChat(t, up, nil, nil, nil)

	_, err := svc.Reply(context.Background(), ask("hola"))
	if apperr.KindOf(err) != apperr.KindUpstreamTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls := up.calls.Load(); calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestService_TimeoutIsDistinctAndBounded(t *testing.T) {
	up := &fakeUpstream{delay: 2 * time.Second}
	svc := newTestChat(t, up, nil, nil, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := svc.Reply(context.Background(), ask("hola"))
	if apperr.KindOf(err) != apperr.KindUpstreamTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if apperr.StatusOf(err) != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 mapping, got %d", apperr.StatusOf(err))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

// stallOnceCompleter trava na primeira tentativa até o ctx da tentativa expirar.
type stallOnceCompleter struct {
	calls atomic.Int32
}

func (c *stallOnceCompleter) Complete(ctx context.Context, _ []Message) (string, error) {
	if c.calls.Add(1) == 1 {
		<-ctx.Done()
		return "", classifyTransportError(ctx, ctx.Err())
	}
	return "Hola de nuevo", nil
}

func TestService_StalledAttemptIsRetried(t *testing.T) {
	completer := &stallOnceCompleter{}
	opts := DefaultOptions()
	opts.Timeout = 300 * time.Millisecond
	opts.Retry.Retries = 1
	opts.Retry.Base = time.Millisecond
	opts.Retry.Jitter = nil
	svc := NewService(completer, nil, nil, opts)

	reply, err := svc.Reply(context.Background(), ask("hola"))
	if err != nil {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
	if reply.Content != "Hola de nuevo" {
		t.Fatalf("unexpected reply %q", reply.Content)
	}
	if got := completer.calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestService_EveryAttemptStalledIsTimeout(t *testing.T) {
	up := &fakeUpstream{delay: 2 * time.Second}
	svc := newTestChat(t, up, nil, nil, func(o *Options) {
		o.Timeout = time.Second
		o.AttemptTimeout = 50 * time.Millisecond
		o.Retry.Retries = 2
	})

	_, err := svc.Reply(context.Background(), ask("hola"))
	if apperr.KindOf(err) != apperr.KindUpstreamTimeout {
		t.Fatalf("expected timeout after stalled attempts, got %v", err)
	}
	if got := up.calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

type emptyBudget struct{}

func (emptyBudget) Take(string) (bool, time.Duration) { return false, 1500 * time.Millisecond }

func TestService_BudgetExhaustedIsRateLimited(t *testing.T) {
	up := &fakeUpstream{}
	svc := newTestChat(t, up, nil, emptyBudget{}, nil)

	_, err := svc.Reply(context.Background(), ask("hola"))
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if apperr.RetryAfter(err) != 1500*time.Millisecond {
		t.Fatalf("unexpected retry-after %s", apperr.RetryAfter(err))
	}
	if up.calls.Load() != 0 {
		t.Fatalf("upstream must not be called without budget")
	}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("cache down")
}

func TestService_CacheFailureDegradesToMiss(t *testing.T) {
	up := &fakeUpstream{}
	svc := newTestChat(t, up, brokenCache{}, nil, nil)

	if _, err := svc.Reply(context.Background(), ask("hola")); err != nil {
		t.Fatalf("expected reply despite cache failure, got %v", err)
	}
	if up.calls.Load() != 1 {
		t.Fatalf("expected live call")
	}
}

func TestService_RejectsEmptyConversation(t *testing.T) {
	svc := newTestChat(t, &fakeUpstream{}, nil, nil, nil)

	_, err := svc.Reply(context.Background(), Request{Messages: []Message{{Role: "system", Content: "x"}, {Role: "user", Content: "   "}}})
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestService_AcceptsSingleMensaje(t *testing.T) {
	up := &fakeUpstream{}
	svc := newTestChat(t, up, nil, nil, nil)

	got, err := svc.Reply(context.Background(), Request{Mensaje: "hola"})
	if err != nil || got.Content == "" {
		t.Fatalf("expected reply, got %+v %v", got, err)
	}
}

func TestRedisCache_SetGetWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewRedisCache(rdb, "")
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "abc"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "abc", "respuesta", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := c.Get(ctx, "abc")
	if err != nil || !ok || v != "respuesta" {
		t.Fatalf("expected hit, got %q ok=%v err=%v", v, ok, err)
	}
	if ttl := mr.TTL("chat:cache:abc"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	mr.FastForward(time.Hour)
	if _, ok, _ := c.Get(ctx, "abc"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestMemoryCache_CleanupDropsExpired(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "old", "v", time.Minute)
	_ = c.Set(ctx, "new", "v", time.Hour)
	now = now.Add(2 * time.Minute)

	c.Cleanup()
	if c.Len() != 1 {
		t.Fatalf("expected only the live entry to remain, got %d", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "new"); !ok {
		t.Fatalf("expected live entry to survive cleanup")
	}
}

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "k", "v", time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatalf("expected hit")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
}
