package leaderboard

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"jaguar-racing/internal/apperr"
	"jaguar-racing/internal/logging"

	log "github.com/sirupsen/logrus"
)

// Policy reúne os limites anti-trapaça e de leitura do ranking.
type Policy struct {
	// MinTime é o piso fisiológico: tempos abaixo disso são rejeitados.
	MinTime float64
	// LocalRecordFloor é o piso para aceitar o recorde local enviado pelo cliente.
	LocalRecordFloor float64
	Cooldown         time.Duration
	TopLimit         int
}

func DefaultPolicy() Policy {
	return Policy{
		MinTime:          0.010,
		LocalRecordFloor: 0.050,
		Cooldown:         2 * time.Second,
		TopLimit:         10,
	}
}

type Service struct {
	store  Store
	policy Policy
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, policy Policy, opts ...Option) *Service {
	if policy.TopLimit <= 0 {
		policy.TopLimit = 10
	}
	s := &Service{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() Policy { return s.policy }

type SubmitRequest struct {
	Name string
	Time float64
	// LocalRecord é o melhor tempo guardado pelo cliente, se houver.
	LocalRecord *float64
	IP          string
}

type SubmitResult struct {
	// Rank base 1; 0 quando desconhecido.
	Rank     int64
	Best     float64
	Improved bool
}

// Submit valida, aplica o cooldown por IP e grava com improve-or-insert.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if !ValidIdentity(req.Name) {
		return SubmitResult{}, apperr.Wrap(apperr.KindInvalidInput, "Nombre inválido", ErrInvalidIdentity)
	}
	if !s.plausible(req.Time, s.policy.MinTime) {
		return SubmitResult{}, apperr.Wrap(apperr.KindInvalidInput, "Tiempo sospechoso", ErrImplausibleTime)
	}

	score := req.Time
	if req.LocalRecord != nil {
		local := *req.LocalRecord
		if s.plausible(local, s.policy.LocalRecordFloor) && local > s.policy.LocalRecordFloor && local < score {
			score = local
		}
	}

	entry := logging.FromContext(ctx).WithFields(log.Fields{"member": req.Name, "ip": req.IP})

	if req.IP != "" && s.policy.Cooldown > 0 {
		ok, err := s.store.AcquireCooldown(ctx, req.IP, s.policy.Cooldown)
		switch {
		case err != nil:
			entry.WithError(err).Warn("cooldown check failed, continuing")
		case !ok:
			e := apperr.RateLimited("Espera un momento antes de volver a enviar", s.policy.Cooldown)
			e.Err = ErrCooldown
			return SubmitResult{}, e
		}
	}

	up, err := s.store.Submit(ctx, SubmitOp{
		Member: req.Name,
		Score:  score,
		Latest: req.Time,
		IP:     req.IP,
		At:     s.now(),
	})
	if err != nil {
		entry.WithError(err).Error("leaderboard submit failed")
		return SubmitResult{}, apperr.Wrap(apperr.KindInternal, "Error interno", err)
	}

	out := SubmitResult{Best: up.Best, Improved: up.Improved}
	if up.Rank >= 0 {
		out.Rank = up.Rank + 1
	}
	entry.WithFields(log.Fields{"rank": out.Rank, "best": out.Best, "improved": out.Improved}).Info("score processed")
	return out, nil
}

// Top devolve até n entradas, limitado a TopLimit.
func (s *Service) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > s.policy.TopLimit {
		n = s.policy.TopLimit
	}
	entries, err := s.store.Top(ctx, n)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Error interno", err)
	}
	return entries, nil
}

type RenameResult struct {
	Migrated bool
}

// Rename migra pontuação e metadados para a nova identidade.
// Sem pontuação na identidade antiga é sucesso sem tocar no store.
func (s *Service) Rename(ctx context.Context, oldName, newName string) (RenameResult, error) {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return RenameResult{}, apperr.Wrap(apperr.KindInvalidInput, "Faltan datos", ErrMissingNames)
	}
	if !ValidIdentity(newName) {
		return RenameResult{}, apperr.Wrap(apperr.KindInvalidInput, "Nombre inválido", ErrInvalidIdentity)
	}
	if oldName == newName {
		return RenameResult{}, nil
	}

	outcome, err := s.store.Rename(ctx, oldName, newName)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithFields(log.Fields{
			"old": oldName,
			"new": newName,
		}).Error("leaderboard rename failed")
		return RenameResult{}, apperr.Wrap(apperr.KindInternal, "Error interno", err)
	}

	switch outcome {
	case RenameConflict:
		return RenameResult{}, apperr.Wrap(apperr.KindConflict, "Nombre ya existe", ErrNameTaken)
	case RenameMigrated:
		logging.FromContext(ctx).WithFields(log.Fields{"old": oldName, "new": newName}).Info("identity migrated")
		return RenameResult{Migrated: true}, nil
	default:
		return RenameResult{}, nil
	}
}

// Player consulta uma identidade. Rank volta base 1.
func (s *Service) Player(ctx context.Context, name string) (Player, error) {
	name = strings.TrimSpace(name)
	if !ValidIdentity(name) {
		return Player{}, apperr.Wrap(apperr.KindInvalidInput, "Nombre inválido", ErrInvalidIdentity)
	}
	p, err := s.store.Player(ctx, name)
	if err != nil {
		if errors.Is(err, ErrPlayerNotFound) {
			return Player{}, apperr.Wrap(apperr.KindNotFound, "Usuario no encontrado", err)
		}
		return Player{}, apperr.Wrap(apperr.KindInternal, "Error interno", err)
	}
	p.Rank++
	return p, nil
}

func (s *Service) plausible(v, floor float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= floor
}
