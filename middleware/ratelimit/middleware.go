package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"jaguar-racing/internal/config"
	"jaguar-racing/middleware/ratelimit/application"
	"jaguar-racing/middleware/ratelimit/domain"

	"github.com/gin-gonic/gin"
)

const (
	DefaultUserHeader = "x-user-id"
	DefaultUser       = "anonimo"
)

type KeyFunc func(r *http.Request) string

// RejectFunc escreve a resposta de bloqueio. Deve abortar o contexto.
type RejectFunc func(c *gin.Context, dec domain.Decision)

type Options struct {
	Service             application.Service
	Policy              domain.Policy
	TrustXForwardedFor  bool
	UserHeader          string
	DefaultUser         string
	IPFn                KeyFunc
	Reject              RejectFunc
	AddRateLimitHeaders bool
}

// ClientIPFunc extrai o IP do cliente: primeiro hop do X-Forwarded-For quando confiável,
// senão o host de RemoteAddr.
func ClientIPFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// UserFunc lê o identificador do usuário de um header, com valor padrão.
func UserFunc(header, def string) KeyFunc {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			if len(v) > 128 {
				v = v[:128]
			}
			return v
		}
		return def
	}
}

// Middleware aplica a policy antes do handler. Usado no chat, onde os sujeitos vêm
// só de headers; no jogo o usuário está no corpo e o handler chama o Service direto.
func Middleware(opts Options) gin.HandlerFunc {
	if opts.UserHeader == "" {
		opts.UserHeader = DefaultUserHeader
	}
	if opts.DefaultUser == "" {
		opts.DefaultUser = DefaultUser
	}
	if opts.IPFn == nil {
		opts.IPFn = ClientIPFunc(opts.TrustXForwardedFor)
	}
	if opts.Reject == nil {
		opts.Reject = RejectContent
	}
	userFn := UserFunc(opts.UserHeader, "")

	return func(c *gin.Context) {
		subjects := domain.Subjects{
			IP:   opts.IPFn(c.Request),
			User: userFn(c.Request),
		}
		if subjects.User == "" {
			subjects.User = opts.DefaultUser
			subjects.Anonymous = true
		}

		dec := opts.Service.Evaluate(c.Request.Context(), opts.Policy, subjects)
		if opts.AddRateLimitHeaders {
			SetHeaders(c, opts.Policy.Name, dec)
		}
		if !dec.Allowed {
			opts.Reject(c, dec)
			return
		}
		c.Next()
	}
}

// SetHeaders expõe a policy e quanto resta da regra mais apertada.
func SetHeaders(c *gin.Context, policy string, dec domain.Decision) {
	c.Header("X-RateLimit-Policy", policy)
	c.Header("X-RateLimit-Remaining", formatInt(dec.Remaining))
	if dec.Degraded {
		c.Header("X-RateLimit-Degraded", "1")
	}
}

// Message devolve o texto exibido ao usuário para o escopo que bloqueou.
func Message(scope domain.Scope) string {
	switch scope {
	case domain.ScopeIP:
		return "⚠️ Límite de red excedido."
	case domain.ScopeBurst:
		return "Vas muy rápido, espera unos segundos."
	case domain.ScopeUser:
		return "🛑 Límite diario alcanzado."
	default:
		return "Demasiadas solicitudes."
	}
}

// RejectContent responde no formato do chat: {content, retryAfter}.
func RejectContent(c *gin.Context, dec domain.Decision) {
	secs := RetryAfterSeconds(dec.RetryAfter)
	if secs > 0 {
		c.Header("Retry-After", formatInt(secs))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"content":    Message(dec.Scope),
		"retryAfter": secs,
	})
}

// PolicyFromConfig converte as regras da configuração, preservando a ordem.
func PolicyFromConfig(name string, rules []config.RuleConfig) (domain.Policy, error) {
	p := domain.Policy{Name: name, Rules: make([]domain.Rule, 0, len(rules))}
	for _, r := range rules {
		scope, err := domain.ParseScope(r.Scope)
		if err != nil {
			return domain.Policy{}, err
		}
		p.Rules = append(p.Rules, domain.Rule{Scope: scope, Limit: r.Limit, Window: r.Window})
	}
	return p, nil
}
