package infra

import (
	"context"
)

// ChanPool é um semáforo baseado em channel. Limita chamadas simultâneas ao modelo.
type ChanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com capacidade `max`.
func NewChanPool(max int) *ChanPool {
	if max <= 0 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// vaga livre tem prioridade mesmo com ctx já encerrado
	select {
	case p.sem <- struct{}{}:
		return p.releaseFunc(), true
	default:
	}

	select {
	case p.sem <- struct{}{}:
		return p.releaseFunc(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) releaseFunc() func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-p.sem
	}
}

// Occupancy devolve vagas ocupadas e capacidade total.
func (p *ChanPool) Occupancy() (int, int) { return len(p.sem), cap(p.sem) }
