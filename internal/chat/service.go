package chat

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/internal/logging"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrAttemptTimeout marca uma tentativa que passou do AttemptTimeout.
var ErrAttemptTimeout = errors.New("chat completion attempt timed out")

// BudgetKey identifica o orçamento compartilhado de chamadas ao modelo.
const BudgetKey = "azure-openai"

// Budget é o orçamento local de chamadas pagas (token bucket por chave).
type Budget interface {
	Take(key string) (bool, time.Duration)
}

type Options struct {
	HistoryLimit    int
	MaxMessageChars int
	// Timeout vale para todas as tentativas somadas.
	Timeout time.Duration
	// AttemptTimeout limita cada tentativa; 0 usa Timeout/(Retries+1).
	AttemptTimeout time.Duration
	Retry          RetryPolicy
	CacheEnabled bool
	CacheTTL     time.Duration
	Params       Params
}

func DefaultOptions() Options {
	return Options{
		HistoryLimit:    6,
		MaxMessageChars: 500,
		Timeout:         12 * time.Second,
		Retry: RetryPolicy{
			Retries: 2,
			Base:    400 * time.Millisecond,
			Jitter: func(d time.Duration) time.Duration {
				if d <= 0 {
					return 0
				}
				return rand.N(d)
			},
		},
		CacheEnabled: true,
		CacheTTL:     time.Hour,
		Params:       Params{MaxTokens: 150, Temperature: 0.5},
	}
}

type Service struct {
	completer Completer
	cache     Cache
	budget    Budget
	opts      Options
	group     singleflight.Group
}

// NewService: cache e budget podem ser nil.
func NewService(completer Completer, cache Cache, budget Budget, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = opts.Timeout / time.Duration(max(opts.Retry.Retries, 0)+1)
	}
	return &Service{completer: completer, cache: cache, budget: budget, opts: opts}
}

// Request aceita o histórico completo ou uma mensagem solta.
type Request struct {
	Messages []Message
	Mensaje  string
}

type Reply struct {
	Content string
	Cached  bool
}

func (s *Service) Reply(ctx context.Context, req Request) (Reply, error) {
	raw := req.Messages
	if len(raw) == 0 && req.Mensaje != "" {
		raw = []Message{{Role: RoleUser, Content: req.Mensaje}}
	}
	history := PrepareHistory(raw, s.opts.HistoryLimit, s.opts.MaxMessageChars)
	if len(history) == 0 {
		return Reply{}, apperr.New(apperr.KindInvalidInput, "Escribe un mensaje.")
	}

	msgs := WithSystemPrompt(history)
	key := CacheKey(msgs, s.opts.Params)
	entry := logging.FromContext(ctx).WithField("cache_key", key[:12])

	if content, ok := s.cached(ctx, entry, key); ok {
		return Reply{Content: content, Cached: true}, nil
	}

	// a chamada compartilhada não herda o cancelamento de quem chegou primeiro
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.fetch(shared, entry, key, msgs)
	})

	waitCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	select {
	case res := <-ch:
		if res.Err != nil {
			return Reply{}, userFacing(res.Err)
		}
		if res.Shared {
			entry.Debug("completion shared with concurrent request")
		}
		return Reply{Content: res.Val.(string)}, nil
	case <-waitCtx.Done():
		err := waitCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			entry.Warn("chat completion timed out")
			return Reply{}, userFacing(apperr.Wrap(apperr.KindUpstreamTimeout, "", err))
		}
		return Reply{}, apperr.Wrap(apperr.KindInternal, "", err)
	}
}

func (s *Service) cached(ctx context.Context, entry *log.Entry, key string) (string, bool) {
	if !s.opts.CacheEnabled || s.cache == nil {
		return "", false
	}
	content, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		entry.WithError(err).Warn("chat cache read failed, treating as miss")
		return "", false
	}
	if ok {
		entry.Debug("chat cache hit")
	}
	return content, ok
}

func (s *Service) fetch(base context.Context, entry *log.Entry, key string, msgs []Message) (string, error) {
	ctx, cancel := context.WithTimeout(base, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	var content string
	lastTimedOut := false
	err := s.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		lastTimedOut = false
		if s.budget != nil {
			if ok, wait := s.budget.Take(BudgetKey); !ok {
				return apperr.RateLimited("El asistente está ocupado, intenta en unos segundos.", wait)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
		raw, err := s.completer.Complete(attemptCtx, msgs)
		attemptErr := attemptCtx.Err()
		cancel()
		if err != nil {
			// estourou só o prazo da tentativa: transitório, vale outra tentativa
			if ctx.Err() == nil && errors.Is(attemptErr, context.DeadlineExceeded) {
				lastTimedOut = true
				err = apperr.Wrap(apperr.KindUpstreamTransient, "", errors.Join(ErrAttemptTimeout, err))
			}
			entry.WithError(err).WithField("attempt", attempt+1).Warn("chat completion attempt failed")
			return err
		}
		content = CleanOutput(raw)
		if content == "" {
			return apperr.New(apperr.KindUpstreamTransient, "empty completion")
		}
		return nil
	})
	if err != nil {
		if lastTimedOut {
			err = apperr.Wrap(apperr.KindUpstreamTimeout, "", err)
		}
		entry.WithError(err).WithField("elapsed_ms", time.Since(start).Milliseconds()).Error("chat completion failed")
		return "", err
	}

	if s.opts.CacheEnabled && s.cache != nil {
		if err := s.cache.Set(base, key, content, s.opts.CacheTTL); err != nil {
			entry.WithError(err).Warn("chat cache write failed")
		}
	}
	entry.WithField("elapsed_ms", time.Since(start).Milliseconds()).Info("chat completion ok")
	return content, nil
}

// userFacing troca a mensagem interna por uma que pode ir ao navegador, mantendo o Kind.
func userFacing(err error) error {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindRateLimited, apperr.KindInvalidInput:
		return err
	case apperr.KindUpstreamTimeout:
		return apperr.Wrap(kind, "La respuesta tardó demasiado. Intenta de nuevo.", err)
	case apperr.KindUpstreamAuth, apperr.KindUnavailable:
		return apperr.Wrap(kind, "Servicio no disponible.", err)
	case apperr.KindUpstreamTransient:
		return apperr.Wrap(kind, "El sistema está descansando.", err)
	}
	return apperr.Wrap(apperr.KindInternal, "El sistema está descansando.", err)
}
