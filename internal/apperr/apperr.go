// Package apperr define a taxonomia de erros da API e o mapeamento para status HTTP.
//
// Os pacotes de domínio retornam *Error com uma mensagem segura para o cliente;
// a causa original fica em Err e só aparece nos logs.
package apperr

import (
	"errors"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindRateLimited
	KindNotFound
	KindConflict
	KindUpstreamTimeout
	KindUpstreamAuth
	KindUpstreamTransient
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamAuth:
		return "upstream_auth"
	case KindUpstreamTransient:
		return "upstream_transient"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error carrega o tipo, a mensagem exibível e, opcionalmente, uma dica de retry.
type Error struct {
	Kind       Kind
	Msg        string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func RateLimited(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Msg: msg, RetryAfter: retryAfter}
}

// KindOf devolve KindInternal para erros que não são *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message devolve a mensagem segura para o cliente, ou fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" && e.Kind != KindInternal {
		return e.Msg
	}
	return fallback
}

func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func Status(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamAuth, KindUpstreamTransient, KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func StatusOf(err error) int { return Status(KindOf(err)) }
