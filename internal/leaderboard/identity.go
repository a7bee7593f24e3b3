package leaderboard

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinIdentityLen = 3
	MaxIdentityLen = 25
)

var identityRe = regexp.MustCompile(`^[A-Za-z0-9 _#-]+$`)

// ValidIdentity aplica o padrão e os limites de tamanho de uma identidade.
func ValidIdentity(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < MinIdentityLen || n > MaxIdentityLen {
		return false
	}
	return identityRe.MatchString(name)
}

// Alias é a parte exibível da identidade (antes do primeiro '#').
func Alias(name string) string {
	alias, _, _ := strings.Cut(name, "#")
	return alias
}

// MetaKey é a chave do hash de metadados do jogador.
func MetaKey(name string) string {
	return "user:" + name
}
