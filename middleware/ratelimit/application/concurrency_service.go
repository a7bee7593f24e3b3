package application

import (
	"context"
	"errors"
	"time"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga foi liberada dentro do AcquireTimeout.
var ErrNoSlot = errors.New("no concurrency slot available")

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - Pool nil: sem limite, release é no-op.
//   - AcquireTimeout <= 0: espera até o ctx encerrar.
//   - AcquireTimeout > 0: espera no máximo o timeout.
//
// Sem vaga, devolve um erro apperr Unavailable que embrulha ErrNoSlot
// (ou o erro do ctx do chamador, quando foi ele que encerrou).
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}

	cause := ErrNoSlot
	if err := ctx.Err(); err != nil {
		cause = err
	}
	return nil, apperr.Wrap(apperr.KindUnavailable, "Servicio saturado, intenta de nuevo en unos segundos", cause)
}
