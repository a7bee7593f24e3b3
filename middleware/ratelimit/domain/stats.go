package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Policy/Scope são strings de baixa cardinalidade; Key (sujeito) só é
// persistida quando o store está configurado para isso.
type StatsEvent struct {
	Key     Key
	Policy  string
	Scope   Scope
	Allowed bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis ou memória.
// O chamador trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Counters são os totais agregados de decisões.
type Counters struct {
	Allowed int64
	Denied  int64
}
