package leaderboard

import (
	"context"
	"time"
)

// Entry é uma linha do ranking.
type Entry struct {
	Member string
	Score  float64
}

// SubmitOp é o que o store grava numa submissão já validada.
type SubmitOp struct {
	Member string
	// Score é o tempo resolvido (pode ter vindo do recorde local).
	Score float64
	// Latest é o tempo enviado nesta tentativa, só informativo.
	Latest float64
	IP     string
	At     time.Time
}

// Upsert é o resultado de um improve-or-insert.
type Upsert struct {
	// Rank base 0; -1 quando o membro não aparece depois da escrita.
	Rank     int64
	Best     float64
	Improved bool
}

type RenameOutcome int

const (
	// RenameNoop: a identidade antiga não tem pontuação; nada a migrar.
	RenameNoop RenameOutcome = iota
	RenameMigrated
	RenameConflict
)

// Player junta pontuação, posição e metadados de uma identidade.
type Player struct {
	Member      string
	Score       float64
	Rank        int64
	LastIP      string
	LastSeen    time.Time
	LatestScore float64
}

// Store é o contrato de persistência do ranking.
//
// Submit e Rename devem ser atômicos: nenhum leitor observa metadados sem a
// pontuação correspondente, e uma pontuação pior nunca sobrescreve uma melhor.
type Store interface {
	// AcquireCooldown devolve false quando o IP ainda está em cooldown.
	AcquireCooldown(ctx context.Context, ip string, ttl time.Duration) (bool, error)
	Submit(ctx context.Context, op SubmitOp) (Upsert, error)
	Top(ctx context.Context, n int) ([]Entry, error)
	Rename(ctx context.Context, oldName, newName string) (RenameOutcome, error)
	// Player devolve ErrPlayerNotFound quando a identidade não está no ranking.
	Player(ctx context.Context, name string) (Player, error)
}
