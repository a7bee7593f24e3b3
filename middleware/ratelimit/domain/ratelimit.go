package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de HTTP.

import (
	"context"
	"fmt"
	"time"
)

type Key string

// Scope identifica a dimensão da regra. A ordem de avaliação vem da Policy, não do Scope.
type Scope string

const (
	ScopeIP    Scope = "ip"
	ScopeBurst Scope = "burst"
	ScopeUser  Scope = "user"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeIP, ScopeBurst, ScopeUser:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown rate limit scope %q", s)
}

// Rule: no máximo Limit eventos dentro da janela deslizante Window.
type Rule struct {
	Scope  Scope
	Limit  int
	Window time.Duration
}

// Policy é uma lista ordenada de regras aplicada a um endpoint (ex: "chat", "game").
// A primeira regra violada decide a rejeição.
type Policy struct {
	Name  string
	Rules []Rule
}

// Subjects carrega os sujeitos conhecidos da requisição.
//
// Anonymous marca User como o valor padrão compartilhado (cliente sem identificação):
// ele ainda conta na cota diária de user, mas não no burst.
type Subjects struct {
	IP        string
	User      string
	Anonymous bool
}

// For devolve o sujeito usado por um escopo. Burst usa o usuário identificado
// quando houver; senão, o IP.
func (s Subjects) For(scope Scope) string {
	switch scope {
	case ScopeIP:
		return s.IP
	case ScopeUser:
		return s.User
	case ScopeBurst:
		if s.User != "" && !s.Anonymous {
			return s.User
		}
		return s.IP
	}
	return ""
}

// WindowStore registra um evento e devolve quantos eventos restam dentro da janela,
// já contando o atual.
//
// Implementações devem ser atômicas por chave: duas chamadas simultâneas
// precisam ser contadas ambas.
type WindowStore interface {
	Hit(ctx context.Context, key Key, limit int, window time.Duration, now time.Time) (WindowCount, error)
}

// WindowCount: quando Count > limit, RetryAt é o primeiro instante em que um novo
// evento volta a caber no limite (evento de índice Count-limit + window).
// Eventos rejeitados também contam, então o valor já inclui o atual.
type WindowCount struct {
	Count   int64
	RetryAt time.Time
}

type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// Scope é o escopo que bloqueou (vazio quando permitido).
	Scope Scope
	// Degraded indica que o store falhou e a decisão foi fail-open.
	Degraded bool
}
