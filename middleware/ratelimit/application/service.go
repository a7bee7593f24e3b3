package application

import (
	"context"
	"time"

	"jaguar-racing/internal/logging"
	"jaguar-racing/middleware/ratelimit/domain"

	log "github.com/sirupsen/logrus"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Falhas do store nunca bloqueiam: a decisão sai permitida e marcada como Degraded.
type Service struct {
	Store domain.WindowStore
	Stats domain.StatsStore
	Now   func() time.Time
}

// Key monta a chave da janela: policy:scope:subject.
func Key(policy string, scope domain.Scope, subject string) domain.Key {
	return domain.Key(policy + ":" + string(scope) + ":" + subject)
}

// Check registra um evento na janela da regra e compara com o limite.
func (s Service) Check(ctx context.Context, policy string, rule domain.Rule, subject string) domain.Decision {
	if s.Store == nil || rule.Limit <= 0 || rule.Window <= 0 || subject == "" {
		return domain.Decision{Allowed: true, Remaining: rule.Limit}
	}

	now := s.now()
	key := Key(policy, rule.Scope, subject)

	wc, err := s.Store.Hit(ctx, key, rule.Limit, rule.Window, now)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithFields(log.Fields{
			"policy": policy,
			"scope":  rule.Scope,
		}).Warn("rate limit store unavailable, failing open")
		return domain.Decision{Allowed: true, Remaining: rule.Limit, Degraded: true}
	}

	remaining := rule.Limit - int(wc.Count)
	if remaining < 0 {
		remaining = 0
	}
	if wc.Count <= int64(rule.Limit) {
		return domain.Decision{Allowed: true, Remaining: remaining}
	}

	retryAfter := wc.RetryAt.Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return domain.Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: retryAfter,
		Scope:      rule.Scope,
	}
}

// Evaluate aplica as regras da policy em ordem. A primeira regra violada decide;
// as seguintes não são consultadas (nem contadas).
func (s Service) Evaluate(ctx context.Context, p domain.Policy, subjects domain.Subjects) domain.Decision {
	out := domain.Decision{Allowed: true, Remaining: -1}

	for _, rule := range p.Rules {
		subject := subjects.For(rule.Scope)
		if subject == "" {
			continue
		}

		dec := s.Check(ctx, p.Name, rule, subject)
		s.record(ctx, p.Name, rule.Scope, subject, dec)

		if dec.Degraded {
			out.Degraded = true
		}
		if !dec.Allowed {
			dec.Degraded = out.Degraded
			return dec
		}
		if out.Remaining < 0 || dec.Remaining < out.Remaining {
			out.Remaining = dec.Remaining
		}
	}

	if out.Remaining < 0 {
		out.Remaining = 0
	}
	return out
}

func (s Service) record(ctx context.Context, policy string, scope domain.Scope, subject string, dec domain.Decision) {
	if s.Stats == nil || dec.Degraded {
		return
	}
	err := s.Stats.Record(ctx, domain.StatsEvent{
		Key:     Key(policy, scope, subject),
		Policy:  policy,
		Scope:   scope,
		Allowed: dec.Allowed,
		At:      s.now(),
	})
	if err != nil {
		logging.FromContext(ctx).WithError(err).Debug("rate limit stats not recorded")
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
