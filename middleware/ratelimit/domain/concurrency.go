package domain

import "context"

// SlotPool limita quantas chamadas ao modelo rodam ao mesmo tempo.
//
// Acquire bloqueia até existir vaga ou o ctx encerrar; o release devolvido
// é idempotente. Occupancy serve só para log e diagnóstico.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	Occupancy() (inUse, capacity int)
}
