package leaderboard

import "errors"

var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrImplausibleTime = errors.New("implausible reaction time")
	ErrMissingNames    = errors.New("old and new names are required")
	ErrNameTaken       = errors.New("identity already taken")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrCooldown        = errors.New("submit cooldown active")
)
